// Package pixel holds the pure pixel transformations used by the capture
// pipeline: channel reordering of raw compositor buffers and aspect-preserving
// thumbnail downscaling.
package pixel

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// FromABGR converts a raw shared-memory buffer in the compositor's ABGR8888
// layout (4 bytes per pixel, alpha last, red/blue swapped relative to RGBA)
// into a canonical RGBA image. The buffer stride must be exactly width*4.
func FromABGR(data []byte, width, height int) (*image.RGBA, error) {
	need := width * height * 4
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if len(data) < need {
		return nil, fmt.Errorf("buffer too small: have %d bytes, need %d", len(data), need)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < need; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = data[i+3]
	}
	return img, nil
}

// Thumbnail downscales img so that its longer side equals bound, preserving
// the aspect ratio to within integer rounding. Images already within the
// bound are returned unchanged.
func Thumbnail(img *image.RGBA, bound int) *image.RGBA {
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	longer := w
	if h > longer {
		longer = h
	}
	if longer <= bound {
		return img
	}

	scale := float64(bound) / float64(longer)
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Rect, img, img.Rect, draw.Src, nil)
	return dst
}
