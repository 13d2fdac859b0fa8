package pixel

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromABGRSwapsChannels(t *testing.T) {
	// Two pixels with distinct bytes in every channel position.
	data := []byte{
		0x10, 0x20, 0x30, 0x40,
		0x50, 0x60, 0x70, 0x80,
	}

	img, err := FromABGR(data, 2, 1)
	require.NoError(t, err)

	for i := 0; i < len(data); i += 4 {
		assert.Equal(t, data[i+2], img.Pix[i], "red must come from byte 2")
		assert.Equal(t, data[i+1], img.Pix[i+1], "green unchanged")
		assert.Equal(t, data[i], img.Pix[i+2], "blue must come from byte 0")
		assert.Equal(t, data[i+3], img.Pix[i+3], "alpha unchanged")
	}
}

func TestFromABGRShortBuffer(t *testing.T) {
	_, err := FromABGR(make([]byte, 7), 2, 1)
	assert.Error(t, err)
}

func TestFromABGRInvalidDimensions(t *testing.T) {
	_, err := FromABGR(nil, 0, 10)
	assert.Error(t, err)
}

func TestThumbnailWithinBoundUnchanged(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}

	out := Thumbnail(img, 128)
	require.Same(t, img, out)
	assert.Equal(t, 64, out.Rect.Dx())
	assert.Equal(t, 64, out.Rect.Dy())
}

func TestThumbnailDownscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1024, 512))

	out := Thumbnail(img, 128)
	assert.Equal(t, 128, out.Rect.Dx())
	assert.Equal(t, 64, out.Rect.Dy())
}

func TestThumbnailPreservesAspectRatio(t *testing.T) {
	cases := []struct {
		w, h, bound int
	}{
		{333, 200, 100},
		{200, 333, 100},
		{1920, 1080, 128},
		{799, 601, 64},
	}

	for _, tc := range cases {
		img := image.NewRGBA(image.Rect(0, 0, tc.w, tc.h))
		out := Thumbnail(img, tc.bound)

		longer := out.Rect.Dx()
		if out.Rect.Dy() > longer {
			longer = out.Rect.Dy()
		}
		assert.Equal(t, tc.bound, longer, "%dx%d bound %d", tc.w, tc.h, tc.bound)

		in := float64(tc.w) / float64(tc.h)
		got := float64(out.Rect.Dx()) / float64(out.Rect.Dy())
		// One pixel of rounding slack on the shorter side.
		shorter := math.Min(float64(out.Rect.Dx()), float64(out.Rect.Dy()))
		assert.InDelta(t, in, got, in/shorter, "%dx%d bound %d", tc.w, tc.h, tc.bound)
	}
}
