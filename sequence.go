package zvi

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/meigma/zvi/container"
	"github.com/meigma/zvi/container/ole"
	"github.com/meigma/zvi/internal/decode"
	"github.com/meigma/zvi/internal/index"
)

// Extension is the file extension of ZVI files, without the dot.
const Extension = "zvi"

// Extensions returns the file extensions this package is registered for.
func Extensions() []string {
	return []string{Extension}
}

// HasExtension reports whether name ends in one of Extensions, ignoring case.
func HasExtension(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, e := range Extensions() {
		if ext == e {
			return true
		}
	}
	return false
}

// FrameSource is a length-bounded sequence of equally shaped frames.
type FrameSource interface {
	Len() int
	FrameShape() Shape
	PixelType() PixelFormat
	Frame(j int) (*Frame, error)
}

// Interface compliance.
var _ FrameSource = (*Sequence)(nil)

// Sequence provides random access to the frames of a ZVI file.
type Sequence struct {
	c         container.Container
	table     *index.Table
	shape     Shape
	process   ProcessFunc
	greyscale bool
	filename  string
	logger    *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Sequence) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Open opens the ZVI file at filename and indexes its image streams.
//
// Options and shape are validated before the file is touched, so a bad
// configuration returns ErrConfiguration without any I/O. A file that is not
// a compound file returns ErrContainerOpen; one without image streams
// returns ErrEmptyIndex.
func Open(filename string, shape Shape, opts ...Option) (*Sequence, error) {
	s, err := configure(shape, opts)
	if err != nil {
		return nil, err
	}
	if s.filename == "" {
		s.filename = filename
	}

	c, err := ole.Open(filename)
	if err != nil {
		return nil, err
	}
	if err := s.load(c); err != nil {
		_ = c.Close() //nolint:errcheck // the load error is more useful
		return nil, err
	}
	return s, nil
}

// New indexes the image streams of an already opened container.
//
// The Sequence takes ownership of c and closes it on Close, including when
// New fails after validation.
func New(c container.Container, shape Shape, opts ...Option) (*Sequence, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil container", ErrConfiguration)
	}
	s, err := configure(shape, opts)
	if err != nil {
		return nil, err
	}
	if err := s.load(c); err != nil {
		_ = c.Close() //nolint:errcheck // the load error is more useful
		return nil, err
	}
	return s, nil
}

// configure applies and validates options. It performs no I/O.
func configure(shape Shape, opts []Option) (*Sequence, error) {
	s := &Sequence{shape: shape}
	for _, opt := range opts {
		opt(s)
	}
	if s.process != nil && s.greyscale {
		return nil, fmt.Errorf("%w: a process func cannot be combined with greyscale conversion", ErrConfiguration)
	}
	if !shape.valid() {
		return nil, fmt.Errorf("%w: invalid frame shape %s", ErrConfiguration, shape)
	}
	if s.greyscale {
		s.process = Greyscale
	}
	return s, nil
}

func (s *Sequence) load(c container.Container) error {
	streams := c.Streams()
	paths := make([][]string, len(streams))
	for i, p := range streams {
		paths[i] = p
	}
	table, err := index.Build(paths)
	if err != nil {
		return err
	}
	s.c = c
	s.table = table
	s.log().Debug("indexed image streams",
		"source", s.filename,
		"streams", table.Scanned(),
		"items", table.Count(),
		"length", table.Len())
	return nil
}

// Len returns the number of frames in the sequence.
//
// The length is the largest image item number in the file, not the number
// of image streams. Item numbering usually starts at zero, so the highest
// numbered item falls outside the sequence; it remains readable with Item.
func (s *Sequence) Len() int {
	return s.table.Len()
}

// FrameShape returns the configured frame shape.
func (s *Sequence) FrameShape() Shape {
	return s.shape
}

// PixelType returns the sample format of decoded frames.
func (s *Sequence) PixelType() PixelFormat {
	return PixelGray16LE
}

// Filename returns the source name of the sequence.
func (s *Sequence) Filename() string {
	return s.filename
}

// Items returns the image item numbers found in the file, in ascending order.
func (s *Sequence) Items() []int {
	return s.table.Items()
}

// Frame decodes frame j.
//
// Negative j counts from the end, so Frame(-1) is the last frame. Indices
// outside the sequence return ErrIndexOutOfRange. An index without an image
// stream returns ErrMissingFrame, and a stream too short for the frame shape
// returns ErrDecode. Failures other than the index check are *FrameError.
func (s *Sequence) Frame(j int) (*Frame, error) {
	n, err := s.normalize(j)
	if err != nil {
		return nil, err
	}
	return s.read(n)
}

// Item decodes the image with item number n, ignoring the sequence length.
// Only negative n returns ErrIndexOutOfRange.
func (s *Sequence) Item(n int) (*Frame, error) {
	if n < 0 {
		return nil, fmt.Errorf("item %d: %w", n, ErrIndexOutOfRange)
	}
	return s.read(n)
}

// Close releases the underlying container.
func (s *Sequence) Close() error {
	return s.c.Close()
}

// String describes the sequence for display.
func (s *Sequence) String() string {
	return fmt.Sprintf("<Frames>\nSource: %s\nLength: %d frames\nFrame Shape: %d x %d\nPixel Datatype: %s",
		s.filename, s.Len(), s.shape.Width, s.shape.Height, s.PixelType())
}

func (s *Sequence) normalize(j int) (int, error) {
	n := s.Len()
	i := j
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("frame %d: %w (length %d)", j, ErrIndexOutOfRange, n)
	}
	return i, nil
}

func (s *Sequence) read(n int) (*Frame, error) {
	samples, err := decode.Read(s.c, n, s.shape.Width, s.shape.Height)
	if err != nil {
		switch {
		case errors.Is(err, container.ErrStreamNotFound):
			err = fmt.Errorf("%w: %w", ErrMissingFrame, err)
		case errors.Is(err, decode.ErrShortStream):
			err = fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return nil, &FrameError{Op: "read", Frame: n, Err: err}
	}

	f := &Frame{
		Number:   n,
		Width:    s.shape.Width,
		Height:   s.shape.Height,
		Channels: 1,
		Pix:      samples,
	}
	if s.process != nil {
		f, err = s.process(f)
		if err != nil {
			return nil, &FrameError{Op: "process", Frame: n, Err: err}
		}
		if f == nil {
			return nil, &FrameError{Op: "process", Frame: n, Err: errors.New("process func returned no frame")}
		}
	}
	f.Number = n
	s.log().Debug("decoded frame", "frame", n)
	return f, nil
}
