// Package export writes decoded frames to portable formats.
//
// Two formats are supported: CBOR, holding the raw samples as an RFC 8746
// typed array, and 16-bit PNG for viewing.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/meigma/zvi"
)

// Format selects an export encoding.
type Format string

const (
	FormatCBOR Format = "cbor"
	FormatPNG  Format = "png"
)

// ParseFormat returns the Format named by s, ignoring case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCBOR, FormatPNG:
		return f, nil
	default:
		return "", fmt.Errorf("export: unknown format %q", s)
	}
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// FileName returns the conventional file name for frame n, for example
// "frame_00042.png".
func FileName(n int, f Format) string {
	return fmt.Sprintf("frame_%05d.%s", n, f.Ext())
}

// Write encodes frame to w in format f.
func Write(w io.Writer, frame *zvi.Frame, f Format) error {
	switch f {
	case FormatCBOR:
		return WriteCBOR(w, frame)
	case FormatPNG:
		return WritePNG(w, frame)
	default:
		return fmt.Errorf("export: unknown format %q", string(f))
	}
}
