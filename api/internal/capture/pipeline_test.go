package capture

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadrants paints each quarter of the image a different color so crops can
// be checked by sampling.
func quadrants(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 255}
			if x >= w/2 {
				c.R = 255
			}
			if y >= h/2 {
				c.B = 255
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestOpenCropper_FitsSurface(t *testing.T) {
	p := NewPipeline(300, 300)
	s, err := p.OpenCropper(quadrants(1080, 1440))
	require.NoError(t, err)

	assert.Equal(t, 225, s.Fit().Width)
	assert.Equal(t, 300, s.Fit().Height)
	assert.Equal(t, 23.0, s.Controller().Rect().X)
	assert.Equal(t, 30.0, s.Controller().Rect().Y)
	assert.Same(t, s, p.Active())

	out := s.Render()
	assert.Equal(t, image.Rect(0, 0, 225, 300), out.Bounds())
	// outline is white on the crop edge
	r, g, b, _ := out.At(int(s.Controller().Rect().X), 150).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b})
}

func TestConfirmCrop_UsesFullResolution(t *testing.T) {
	p := NewPipeline(300, 300)
	s, err := p.OpenCropper(quadrants(1080, 1440))
	require.NoError(t, err)

	// move the rect into the bottom-right corner
	s.Controller().Nudge(1000, 1000)

	data, img, err := p.ConfirmCrop()
	require.NoError(t, err)
	assert.Nil(t, p.Active())

	// 180x240 display px at scale 0.2083 is 864x1152 source px
	assert.Equal(t, 864, img.Bounds().Dx())
	assert.Equal(t, 1152, img.Bounds().Dy())

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds().Size(), decoded.Bounds().Size())

	// bottom-right pixel comes from the red+blue quadrant
	r, _, b, _ := decoded.At(863, 1151).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), b)
}

func TestSourceRect_DefaultCrop(t *testing.T) {
	p := NewPipeline(300, 300)
	s, err := p.OpenCropper(quadrants(1080, 1440))
	require.NoError(t, err)

	// {23,30,180,240} display px
	assert.Equal(t, image.Rect(110, 144, 110+864, 144+1152), s.SourceRect())
}

func TestCancelCrop(t *testing.T) {
	p := NewPipeline(300, 300)
	_, err := p.OpenCropper(quadrants(40, 40))
	require.NoError(t, err)

	p.CancelCrop()
	assert.Nil(t, p.Active())

	_, _, err = p.ConfirmCrop()
	assert.ErrorIs(t, err, ErrNoCropper)
}

func TestOpenCropper_ReplacesPrevious(t *testing.T) {
	p := NewPipeline(300, 300)
	first, err := p.OpenCropper(quadrants(40, 40))
	require.NoError(t, err)
	second, err := p.OpenCropper(quadrants(80, 20))
	require.NoError(t, err)

	assert.NotSame(t, first, p.Active())
	assert.Same(t, second, p.Active())
}

func TestOpenCropper_Empty(t *testing.T) {
	p := NewPipeline(300, 300)
	_, err := p.OpenCropper(image.NewRGBA(image.Rect(0, 0, 0, 10)))
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, quadrants(64, 48), nil))

	img, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())

	_, err = Decode([]byte("not an image"))
	assert.Error(t, err)
}

func TestDecode_RejectsHugeDimensions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, quadrants(4, 4)))
	data := buf.Bytes()
	// declare 60000x60000 in IHDR and fix up its CRC
	binary.BigEndian.PutUint32(data[16:20], 60000)
	binary.BigEndian.PutUint32(data[20:24], 60000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestThumbnail(t *testing.T) {
	data, err := Thumbnail(quadrants(1080, 1440))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 240, img.Bounds().Dx())
	assert.Equal(t, 320, img.Bounds().Dy())
}
