package media

import (
	"bytes"
	"image"
	"image/png"

	"github.com/nfnt/resize"
)

// Thumbnail scales an image down so its longest edge is maxDim pixels,
// preserving aspect ratio. Images already within bounds are returned as-is.
func Thumbnail(img image.Image, maxDim uint) image.Image {
	b := img.Bounds()
	w, h := uint(b.Dx()), uint(b.Dy())
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		return resize.Resize(maxDim, 0, img, resize.Lanczos3)
	}
	return resize.Resize(0, maxDim, img, resize.Lanczos3)
}

// EncodeThumbnailPNG renders a PNG thumbnail for ingestion previews.
func EncodeThumbnailPNG(img image.Image, maxDim uint) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Thumbnail(img, maxDim)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
