// Package decode turns raw ZVI image streams into pixel samples.
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/meigma/zvi/container"
	"github.com/meigma/zvi/internal/index"
)

// BytesPerSample is the size of one stored sample (16-bit little endian).
const BytesPerSample = 2

// OffsetCorrection is the number of samples by which stored images are
// rotated relative to their declared shape. Decode rotates them back.
const OffsetCorrection = 162

// ErrShortStream is returned when a stream holds fewer bytes than the
// declared shape needs.
var ErrShortStream = errors.New("zvi: stream too short for frame shape")

// StreamPath returns the path of the pixel stream for an image item.
func StreamPath(item int) container.Path {
	return container.Path{index.ImageCategory, "Item(" + strconv.Itoa(item) + ")", "Contents"}
}

// Decode reinterprets data as width*height little-endian uint16 samples in
// row-major order and undoes the stored offset.
//
// Bytes beyond width*height samples are ignored. A shorter buffer returns
// ErrShortStream and no samples.
func Decode(data []byte, width, height int) ([]uint16, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("decode: invalid shape %dx%d", width, height)
	}
	n := width * height
	if n/height != width || n > len(data)/BytesPerSample {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortStream, len(data), n*BytesPerSample)
	}

	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(data[i*BytesPerSample:])
	}
	Rotate(out, -OffsetCorrection)
	return out, nil
}

// Read fetches and decodes the pixel stream of item from c.
// Container errors are returned unchanged.
func Read(c container.Container, item, width, height int) ([]uint16, error) {
	data, err := c.ReadStream(StreamPath(item))
	if err != nil {
		return nil, err
	}
	return Decode(data, width, height)
}

// Rotate circularly shifts s in place by k positions, so that the element at
// index i moves to index (i+k) mod len(s). Negative k shifts toward the
// front. Any k is accepted.
func Rotate[T any](s []T, k int) {
	n := len(s)
	if n == 0 {
		return
	}
	k %= n
	if k < 0 {
		k += n
	}
	if k == 0 {
		return
	}
	reverse(s)
	reverse(s[:k])
	reverse(s[k:])
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
