package camera

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// HTTPSnapshot reads a still image from a URL on every Frame, the way IP
// cameras expose /snapshot.jpg.
type HTTPSnapshot struct {
	URL   string
	httpc *http.Client
}

func NewHTTPSnapshot(url string) *HTTPSnapshot {
	return &HTTPSnapshot{URL: url, httpc: &http.Client{Timeout: 15 * time.Second}}
}

func (s *HTTPSnapshot) Frame(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("snapshot status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("snapshot content type %q is not an image", ct)
	}
	return imaging.Decode(resp.Body, imaging.AutoOrientation(true))
}

func (s *HTTPSnapshot) Close() error {
	s.httpc.CloseIdleConnections()
	return nil
}

// FileSource serves the same image file as every frame.
type FileSource struct {
	Path string
}

func (s *FileSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return imaging.Open(s.Path, imaging.AutoOrientation(true))
}

func (s *FileSource) Close() error { return nil }

// OpenerFor picks a source from configuration: a snapshot URL wins over a
// file path. Neither set means no camera.
func OpenerFor(url, path string) Opener {
	switch {
	case strings.TrimSpace(url) != "":
		return func(ctx context.Context) (Source, error) {
			s := NewHTTPSnapshot(strings.TrimSpace(url))
			// fetch once so permission/availability failures surface on acquire
			if _, err := s.Frame(ctx); err != nil {
				return nil, err
			}
			return s, nil
		}
	case strings.TrimSpace(path) != "":
		return func(ctx context.Context) (Source, error) {
			s := &FileSource{Path: strings.TrimSpace(path)}
			if _, err := s.Frame(ctx); err != nil {
				return nil, err
			}
			return s, nil
		}
	default:
		return nil
	}
}
