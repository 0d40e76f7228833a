// Package capture turns a camera frame or an uploaded photo into a cropped,
// full-resolution PNG ready for the solver.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	_ "golang.org/x/image/webp"

	"snap-solver/api/internal/crop"
	"snap-solver/api/internal/geom"
)

var (
	ErrEmptyImage = errors.New("image has no pixels")
	ErrNoCropper  = errors.New("no crop in progress")
	ErrTooLarge   = errors.New("image too large")
)

const thumbnailSide = 320

// MaxPixels caps decoded images; a 60 MP sensor still fits.
const MaxPixels = 64 << 20

// Decode reads an uploaded photo (JPEG, PNG, GIF or WebP) and applies EXIF
// orientation so the crop preview matches what the user saw.
func Decode(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// Session is one open crop UI: the original image, its fit onto the surface
// and the rectangle controller.
type Session struct {
	src     image.Image
	fit     geom.Fit
	ctl     *crop.Controller
	preview *image.NRGBA
}

func (s *Session) Fit() geom.Fit                { return s.fit }
func (s *Session) Controller() *crop.Controller { return s.ctl }
func (s *Session) Source() image.Image          { return s.src }

// SourceRect is the current crop in source pixels.
func (s *Session) SourceRect() image.Rectangle {
	r := s.fit.ToSource(s.ctl.Rect())
	return r.Add(s.src.Bounds().Min).Intersect(s.src.Bounds())
}

// Render draws the fitted image with a 2px white outline around the crop.
func (s *Session) Render() image.Image {
	dc := gg.NewContextForImage(s.preview)
	r := s.ctl.Rect()
	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(2)
	dc.DrawRectangle(r.X, r.Y, r.W, r.H)
	dc.Stroke()
	return dc.Image()
}

// RenderPNG is Render encoded for the surfaces.
func (s *Session) RenderPNG() ([]byte, error) {
	return EncodePNG(s.Render())
}

// Pipeline owns at most one crop session. It is not safe for concurrent use;
// the app controller serialises access per owner.
type Pipeline struct {
	surfaceW, surfaceH int
	active             *Session
}

func NewPipeline(surfaceW, surfaceH int) *Pipeline {
	return &Pipeline{surfaceW: surfaceW, surfaceH: surfaceH}
}

// Active returns the open session or nil.
func (p *Pipeline) Active() *Session { return p.active }

// OpenCropper fits img onto the crop surface and starts a session with the
// default rectangle. Any previous session is discarded.
func (p *Pipeline) OpenCropper(img image.Image) (*Session, error) {
	p.active = nil
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}
	fit := geom.Contain(b.Dx(), b.Dy(), p.surfaceW, p.surfaceH)
	if fit.Width == 0 || fit.Height == 0 {
		return nil, fmt.Errorf("crop surface %dx%d too small for %dx%d image", p.surfaceW, p.surfaceH, b.Dx(), b.Dy())
	}
	s := &Session{
		src:     img,
		fit:     fit,
		ctl:     crop.New(fit.Width, fit.Height),
		preview: imaging.Resize(img, fit.Width, fit.Height, imaging.Lanczos),
	}
	p.active = s
	return s, nil
}

// ConfirmCrop extracts the selected region from the original image at
// native resolution, encodes it as PNG and closes the session.
func (p *Pipeline) ConfirmCrop() ([]byte, image.Image, error) {
	s := p.active
	if s == nil {
		return nil, nil, ErrNoCropper
	}
	rect := s.SourceRect()
	if rect.Empty() {
		return nil, nil, ErrEmptyImage
	}
	out := imaging.Crop(s.src, rect)
	data, err := EncodePNG(out)
	if err != nil {
		return nil, nil, err
	}
	p.active = nil
	return data, out, nil
}

// CancelCrop closes the session without producing anything.
func (p *Pipeline) CancelCrop() { p.active = nil }

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Thumbnail downsizes img for history previews and encodes it as JPEG.
func Thumbnail(img image.Image) ([]byte, error) {
	small := imaging.Fit(img, thumbnailSide, thumbnailSide, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
