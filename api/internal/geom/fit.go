// Package geom maps between a source image's pixel space and the bounded
// display surface it is previewed on.
package geom

import (
	"image"
	"math"
)

// Fit is the result of scaling a source image into a bounding box.
type Fit struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`

	// source size; ToSource never leaves it
	SrcW int `json:"-"`
	SrcH int `json:"-"`
}

// Rect is a rectangle in display (post-fit) pixels.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contain scales (sw, sh) to fit entirely inside (dw, dh) keeping the aspect
// ratio. At least one axis touches the bound. Non-positive input yields a
// zero Fit; callers guard against degenerate images before getting here.
func Contain(sw, sh, dw, dh int) Fit {
	if sw <= 0 || sh <= 0 || dw <= 0 || dh <= 0 {
		return Fit{}
	}
	s := math.Min(float64(dw)/float64(sw), float64(dh)/float64(sh))
	return Fit{
		Width:  int(math.Round(float64(sw) * s)),
		Height: int(math.Round(float64(sh) * s)),
		Scale:  s,
		SrcW:   sw,
		SrcH:   sh,
	}
}

// Centered returns the default crop: 80% of each dimension with a 10% margin.
func (f Fit) Centered() Rect {
	return Rect{
		X: math.Round(float64(f.Width) * 0.1),
		Y: math.Round(float64(f.Height) * 0.1),
		W: math.Round(float64(f.Width) * 0.8),
		H: math.Round(float64(f.Height) * 0.8),
	}
}

// Full is the whole fitted surface as a Rect.
func (f Fit) Full() Rect {
	return Rect{W: float64(f.Width), H: float64(f.Height)}
}

// ToSource maps a display rect back into source pixels, clipped to the
// source bounds when they are known.
func (f Fit) ToSource(r Rect) image.Rectangle {
	s := f.Scale
	if s <= 0 {
		s = 1
	}
	x := int(math.Round(r.X / s))
	y := int(math.Round(r.Y / s))
	w := int(math.Round(r.W / s))
	h := int(math.Round(r.H / s))
	out := image.Rect(x, y, x+w, y+h)
	if f.SrcW > 0 && f.SrcH > 0 {
		out = out.Intersect(image.Rect(0, 0, f.SrcW, f.SrcH))
	}
	return out
}

// Clamp limits v to [0, limit]. An inverted bound (limit < 0) pins to 0.
func Clamp(v, limit float64) float64 {
	return math.Max(0, math.Min(v, limit))
}
