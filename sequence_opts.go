package zvi

import "log/slog"

// ProcessFunc transforms a decoded frame before it is returned.
//
// The function may modify and return its argument or return a new frame.
// The returned frame's Number is overwritten with the frame index.
type ProcessFunc func(*Frame) (*Frame, error)

// Option configures a Sequence.
type Option func(*Sequence)

// WithProcessFunc applies fn to every decoded frame.
// It cannot be combined with WithGreyscale(true). A nil fn is ignored.
func WithProcessFunc(fn ProcessFunc) Option {
	return func(s *Sequence) {
		s.process = fn
	}
}

// WithGreyscale converts frames to a single channel using Greyscale.
// It cannot be combined with WithProcessFunc.
func WithGreyscale(enabled bool) Option {
	return func(s *Sequence) {
		s.greyscale = enabled
	}
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequence) {
		s.logger = logger
	}
}

// WithFilename sets the source name reported by String.
// Open defaults it to the opened path.
func WithFilename(name string) Option {
	return func(s *Sequence) {
		s.filename = name
	}
}
