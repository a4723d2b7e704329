package zvi

import (
	"errors"
	"strconv"

	"github.com/meigma/zvi/container"
	"github.com/meigma/zvi/internal/decode"
	"github.com/meigma/zvi/internal/index"
)

// Errors re-exported from the container and decoding layers.
var (
	// ErrContainerOpen is returned when a file is not a readable compound file.
	ErrContainerOpen = container.ErrOpen

	// ErrStreamNotFound is returned when a container has no stream at a path.
	// Errors matching ErrMissingFrame also match ErrStreamNotFound.
	ErrStreamNotFound = container.ErrStreamNotFound

	// ErrEmptyIndex is returned when a container holds no image streams.
	ErrEmptyIndex = index.ErrEmptyIndex

	// ErrShortStream is returned when an image stream is shorter than the
	// frame shape requires. Errors matching it also match ErrDecode.
	ErrShortStream = decode.ErrShortStream
)

// Sentinel errors specific to the zvi package.
var (
	// ErrMissingFrame is returned when a frame index within the sequence
	// has no image stream, which happens when item numbers have gaps.
	ErrMissingFrame = errors.New("zvi: missing frame")

	// ErrDecode is returned when a stream cannot be decoded at the
	// configured frame shape.
	ErrDecode = errors.New("zvi: cannot decode frame")

	// ErrIndexOutOfRange is returned for frame indices outside the sequence
	// and for malformed slices.
	ErrIndexOutOfRange = errors.New("zvi: frame index out of range")

	// ErrConfiguration is returned for invalid or conflicting options.
	ErrConfiguration = errors.New("zvi: invalid configuration")
)

// FrameError records a failure to produce a specific frame.
type FrameError struct {
	Op    string // "read" or "process"
	Frame int
	Err   error
}

func (e *FrameError) Error() string {
	return e.Op + " frame " + strconv.Itoa(e.Frame) + ": " + e.Err.Error()
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
