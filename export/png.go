package export

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/meigma/zvi"
)

// WritePNG writes frame as a 16-bit PNG. Single-channel frames become
// grayscale images; frames with three or four channels become RGB or RGBA.
func WritePNG(w io.Writer, f *zvi.Frame) error {
	img, err := toImage(f)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("export: encode frame %d: %w", f.Number, err)
	}
	return nil
}

func toImage(f *zvi.Frame) (image.Image, error) {
	if f == nil {
		return nil, errors.New("export: nil frame")
	}
	switch f.Channels {
	case 0, 1:
		return f.Gray16(), nil
	case 3, 4:
		img := image.NewNRGBA64(image.Rect(0, 0, f.Width, f.Height))
		c := f.Channels
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				px := f.Pix[(y*f.Width+x)*c:]
				a := uint16(0xffff)
				if c == 4 {
					a = px[3]
				}
				img.SetNRGBA64(x, y, color.NRGBA64{R: px[0], G: px[1], B: px[2], A: a})
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("export: cannot encode %d-channel frame as PNG", f.Channels)
	}
}
