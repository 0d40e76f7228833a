// Package crop owns the crop rectangle and its pointer-driven translation.
package crop

import (
	"snap-solver/api/internal/geom"
)

type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Point is a pointer position in canvas pixels.
type Point struct {
	X, Y float64
}

// Controller is a two-state machine: Idle and Dragging. Only translation is
// supported; the rect size is fixed at creation.
type Controller struct {
	canvasW, canvasH float64

	rect  geom.Rect
	state State
	start Point
	orig  geom.Rect
}

// New creates a controller for a canvas of the given size with the default
// centered rect.
func New(canvasW, canvasH int) *Controller {
	f := geom.Fit{Width: canvasW, Height: canvasH, Scale: 1}
	return &Controller{
		canvasW: float64(canvasW),
		canvasH: float64(canvasH),
		rect:    f.Centered(),
	}
}

func (c *Controller) Rect() geom.Rect { return c.rect }
func (c *Controller) State() State    { return c.state }

// Canvas returns the canvas size in pixels.
func (c *Controller) Canvas() (w, h float64) { return c.canvasW, c.canvasH }

// PointerDown starts a drag when p lies on the canvas.
func (c *Controller) PointerDown(p Point) {
	if p.X < 0 || p.Y < 0 || p.X > c.canvasW || p.Y > c.canvasH {
		return
	}
	c.state = Dragging
	c.start = p
	c.orig = c.rect
}

// PointerMove translates the rect by the delta from the gesture start.
// It reports whether the rect needs a redraw.
func (c *Controller) PointerMove(p Point) bool {
	if c.state != Dragging {
		return false
	}
	dx := p.X - c.start.X
	dy := p.Y - c.start.Y
	// clamp bounds come from the current size, so an oversize rect pins at 0
	c.rect.X = geom.Clamp(c.orig.X+dx, c.canvasW-c.rect.W)
	c.rect.Y = geom.Clamp(c.orig.Y+dy, c.canvasH-c.rect.H)
	return true
}

// PointerUp ends any gesture.
func (c *Controller) PointerUp() { c.state = Idle }

// PointerCancel is PointerUp for gestures that leave the canvas.
func (c *Controller) PointerCancel() { c.PointerUp() }

// Nudge runs a full gesture that moves the rect by (dx, dy), starting at the
// rect's center.
func (c *Controller) Nudge(dx, dy float64) geom.Rect {
	from := Point{
		X: geom.Clamp(c.rect.X+c.rect.W/2, c.canvasW),
		Y: geom.Clamp(c.rect.Y+c.rect.H/2, c.canvasH),
	}
	c.PointerDown(from)
	c.PointerMove(Point{X: from.X + dx, Y: from.Y + dy})
	c.PointerUp()
	return c.rect
}
