// Package testutil provides fixtures shared by the zvi test suites.
package testutil

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/meigma/zvi/container"
	"github.com/meigma/zvi/container/memory"
)

// OffsetCorrection mirrors the decoder's sample rotation so fixtures can
// store samples the way the instruments do.
const OffsetCorrection = 162

// Samples returns width*height samples whose values encode the frame number
// and position, so mixed-up frames or pixels show up in comparisons.
func Samples(frame, width, height int) []uint16 {
	out := make([]uint16, width*height)
	for i := range out {
		out[i] = uint16((frame*7919 + i) % 65536) //nolint:gosec // wraps intentionally
	}
	return out
}

// EncodeStored lays out samples as they appear in a stream: rotated forward
// by OffsetCorrection and encoded little endian.
func EncodeStored(samples []uint16) []byte {
	n := len(samples)
	out := make([]byte, n*2)
	for i, v := range samples {
		j := i
		if n > 0 {
			j = (i + OffsetCorrection) % n
		}
		binary.LittleEndian.PutUint16(out[j*2:], v)
	}
	return out
}

// ItemPath returns the stream path of an image item.
func ItemPath(item int) container.Path {
	return container.Path{"Image", fmt.Sprintf("Item(%d)", item), "Contents"}
}

// FrameStreams builds one image stream per item, each holding Samples for
// that item at the given shape.
func FrameStreams(width, height int, items ...int) []memory.Stream {
	out := make([]memory.Stream, 0, len(items))
	for _, item := range items {
		out = append(out, memory.Stream{
			Path: ItemPath(item),
			Data: EncodeStored(Samples(item, width, height)),
		})
	}
	return out
}

// MemoryContainer returns an in-memory container with image streams for the
// given items plus any extra streams.
func MemoryContainer(width, height int, items []int, extra ...memory.Stream) *memory.Container {
	return memory.New(append(FrameStreams(width, height, items...), extra...)...)
}

// WriteCompoundFile writes a compound file holding image streams for the
// given items plus any extra streams, and returns its path.
func WriteCompoundFile(tb testing.TB, width, height int, items []int, extra ...memory.Stream) string {
	tb.Helper()

	var streams []CompoundStream
	for _, s := range append(FrameStreams(width, height, items...), extra...) {
		streams = append(streams, CompoundStream{Path: s.Path, Data: s.Data})
	}
	path := filepath.Join(tb.TempDir(), "sample.zvi")
	if err := os.WriteFile(path, BuildCompoundFile(tb, streams), 0o600); err != nil {
		tb.Fatalf("write compound file: %v", err)
	}
	return path
}
