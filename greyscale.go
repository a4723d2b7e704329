package zvi

import "math"

// Luminance weights applied by Greyscale to the first three channels.
const (
	greyWeightR = 0.2125
	greyWeightG = 0.7154
	greyWeightB = 0.0721
)

// Greyscale converts frames with three or more channels to a single channel
// by weighting the first three as red, green and blue. Results are rounded
// to the nearest sample value. Frames with fewer than three channels are
// returned unchanged.
//
// ZVI streams decode to one channel, so Greyscale is a no-op for frames read
// from a Sequence unless a processing function expands them.
func Greyscale(f *Frame) (*Frame, error) {
	c := f.channels()
	if c < 3 {
		return f, nil
	}
	n := f.Width * f.Height
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		px := f.Pix[i*c : i*c+3]
		v := greyWeightR*float64(px[0]) + greyWeightG*float64(px[1]) + greyWeightB*float64(px[2])
		out[i] = uint16(math.Min(math.Round(v), math.MaxUint16))
	}
	return &Frame{
		Number:   f.Number,
		Width:    f.Width,
		Height:   f.Height,
		Channels: 1,
		Pix:      out,
	}, nil
}
