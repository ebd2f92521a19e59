package processtest

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// JPEG returns a w x h gradient image encoded as JPEG. The encoder tables
// alone keep it well above the validators' minimum size.
func JPEG(w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
