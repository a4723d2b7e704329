package zvi

import (
	"encoding/binary"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Shape is the pixel size of a frame.
type Shape struct {
	Width  int
	Height int
}

// String formats the shape as "<width>x<height>".
func (s Shape) String() string {
	return strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height)
}

// Pixels returns Width*Height.
func (s Shape) Pixels() int {
	return s.Width * s.Height
}

func (s Shape) valid() bool {
	if s.Width <= 0 || s.Height <= 0 {
		return false
	}
	n := s.Width * s.Height
	return n/s.Height == s.Width
}

// ParseShape parses "<width>x<height>", for example "660x492".
func ParseShape(s string) (Shape, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Shape{}, fmt.Errorf("%w: shape %q: want <width>x<height>", ErrConfiguration, s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return Shape{}, fmt.Errorf("%w: shape %q: %w", ErrConfiguration, s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return Shape{}, fmt.Errorf("%w: shape %q: %w", ErrConfiguration, s, err)
	}
	shape := Shape{Width: w, Height: h}
	if !shape.valid() {
		return Shape{}, fmt.Errorf("%w: shape %q: dimensions must be positive", ErrConfiguration, s)
	}
	return shape, nil
}

// PixelFormat identifies the sample layout of decoded frames.
type PixelFormat int

// PixelGray16LE is single-channel unsigned 16-bit samples stored little
// endian. It is the only format ZVI streams are decoded as.
const PixelGray16LE PixelFormat = 1

// String returns the sample type name.
func (p PixelFormat) String() string {
	if p == PixelGray16LE {
		return "uint16"
	}
	return "PixelFormat(" + strconv.Itoa(int(p)) + ")"
}

// BytesPerPixel returns the stored size of one sample.
func (p PixelFormat) BytesPerPixel() int {
	if p == PixelGray16LE {
		return 2
	}
	return 0
}

// Frame is one decoded image of a sequence.
//
// Samples are stored row-major with Channels interleaved values per pixel,
// so len(Pix) == Width*Height*Channels. Frames decoded from ZVI streams have
// one channel; processing functions may produce others.
type Frame struct {
	// Number is the index of the frame within its sequence.
	Number int

	Width    int
	Height   int
	Channels int
	Pix      []uint16
}

// Shape returns the frame's width and height.
func (f *Frame) Shape() Shape {
	return Shape{Width: f.Width, Height: f.Height}
}

// At returns the first channel of the pixel at column x, row y.
func (f *Frame) At(x, y int) uint16 {
	return f.Pix[(y*f.Width+x)*f.channels()]
}

// Row returns the samples of row y. The slice aliases Pix.
func (f *Frame) Row(y int) []uint16 {
	stride := f.Width * f.channels()
	return f.Pix[y*stride : (y+1)*stride]
}

// Bytes encodes the samples little endian, the layout they are stored in.
func (f *Frame) Bytes() []byte {
	out := make([]byte, len(f.Pix)*2)
	for i, v := range f.Pix {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

// Digest returns the SHA-256 digest of Bytes. Equal digests mean equal
// samples; the shape is not part of the digest.
func (f *Frame) Digest() digest.Digest {
	return digest.FromBytes(f.Bytes())
}

// Gray16 converts the first channel of the frame to an image.Gray16.
func (f *Frame) Gray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, f.Width, f.Height))
	c := f.channels()
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := f.Pix[(y*f.Width+x)*c]
			off := img.PixOffset(x, y)
			img.Pix[off] = uint8(v >> 8)
			img.Pix[off+1] = uint8(v)
		}
	}
	return img
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := *f
	out.Pix = append([]uint16(nil), f.Pix...)
	return &out
}

func (f *Frame) channels() int {
	if f.Channels <= 0 {
		return 1
	}
	return f.Channels
}
