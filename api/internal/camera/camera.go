// Package camera provides frame sources and the exclusively-owned camera handle.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

var (
	ErrUnavailable = errors.New("camera unavailable")
	ErrBusy        = errors.New("camera is held by another session")
	ErrNotHeld     = errors.New("camera is not acquired")
)

// Source delivers frames on demand.
type Source interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener opens the underlying source. A nil Opener means no camera is configured.
type Opener func(ctx context.Context) (Source, error)

// Device is the single camera handle. Only one owner may hold it at a time and
// it must be released before another owner can acquire it.
type Device struct {
	open Opener

	mu    sync.Mutex
	owner int64
	src   Source
}

func NewDevice(open Opener) *Device {
	return &Device{open: open}
}

// Acquire opens the camera for owner. Calling it again for the current owner
// is a no-op.
func (d *Device) Acquire(ctx context.Context, owner int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src != nil {
		if d.owner == owner {
			return nil
		}
		return ErrBusy
	}
	if d.open == nil {
		return ErrUnavailable
	}
	src, err := d.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	d.src = src
	d.owner = owner
	return nil
}

// Release closes the camera if owner holds it.
func (d *Device) Release(owner int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.src == nil || d.owner != owner {
		return nil
	}
	err := d.src.Close()
	d.src = nil
	d.owner = 0
	return err
}

// Held reports whether owner currently holds the camera.
func (d *Device) Held(owner int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.src != nil && d.owner == owner
}

// Snapshot grabs one frame. The caller must hold the camera.
func (d *Device) Snapshot(ctx context.Context, owner int64) (image.Image, error) {
	d.mu.Lock()
	src := d.src
	held := src != nil && d.owner == owner
	d.mu.Unlock()

	if !held {
		return nil, ErrNotHeld
	}
	img, err := src.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return img, nil
}
