package export

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/meigma/zvi"
)

// RFC 8746 tags.
const (
	tagMultiDimArray = 40
	tagUint16LE      = 69
)

// ErrInvalidRecord is returned when a CBOR record does not describe a frame.
var ErrInvalidRecord = errors.New("export: invalid frame record")

// record is the CBOR layout of one frame. Image is a tag 40 array whose
// dimensions are [height, width] or [height, width, channels] and whose
// data is a tag 69 little endian uint16 typed array.
type record struct {
	Frame int      `cbor:"frame"`
	Image cbor.Tag `cbor:"image"`
}

// CBOREncoder writes frames as a CBOR sequence, one record per frame.
type CBOREncoder struct {
	enc *cbor.Encoder
}

// NewCBOREncoder returns an encoder writing to w.
func NewCBOREncoder(w io.Writer) *CBOREncoder {
	return &CBOREncoder{enc: cbor.NewEncoder(w)}
}

// Encode writes one frame record.
func (e *CBOREncoder) Encode(f *zvi.Frame) error {
	if f == nil {
		return errors.New("export: nil frame")
	}
	dims := []int{f.Height, f.Width}
	if f.Channels > 1 {
		dims = append(dims, f.Channels)
	}
	rec := record{
		Frame: f.Number,
		Image: cbor.Tag{
			Number: tagMultiDimArray,
			Content: []any{
				dims,
				cbor.Tag{Number: tagUint16LE, Content: f.Bytes()},
			},
		},
	}
	if err := e.enc.Encode(rec); err != nil {
		return fmt.Errorf("export: encode frame %d: %w", f.Number, err)
	}
	return nil
}

// CBORDecoder reads frame records written by CBOREncoder.
type CBORDecoder struct {
	dec *cbor.Decoder
}

// NewCBORDecoder returns a decoder reading from r.
func NewCBORDecoder(r io.Reader) *CBORDecoder {
	return &CBORDecoder{dec: cbor.NewDecoder(r)}
}

// Decode reads the next frame. It returns io.EOF when r is exhausted.
func (d *CBORDecoder) Decode() (*zvi.Frame, error) {
	var rec record
	if err := d.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return decodeRecord(rec)
}

// WriteCBOR writes a single frame record to w.
func WriteCBOR(w io.Writer, f *zvi.Frame) error {
	return NewCBOREncoder(w).Encode(f)
}

// ReadCBOR reads a single frame record from r.
func ReadCBOR(r io.Reader) (*zvi.Frame, error) {
	f, err := NewCBORDecoder(r).Decode()
	if errors.Is(err, io.EOF) {
		return nil, io.ErrUnexpectedEOF
	}
	return f, err
}

func decodeRecord(rec record) (*zvi.Frame, error) {
	if rec.Image.Number != tagMultiDimArray {
		return nil, fmt.Errorf("%w: expected tag %d, got %d", ErrInvalidRecord, tagMultiDimArray, rec.Image.Number)
	}
	items, ok := rec.Image.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, fmt.Errorf("%w: malformed multi-dimensional array", ErrInvalidRecord)
	}
	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) < 2 || len(dimsRaw) > 3 {
		return nil, fmt.Errorf("%w: malformed dimensions", ErrInvalidRecord)
	}
	dims := make([]int, len(dimsRaw))
	for i, v := range dimsRaw {
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		dims[i] = n
	}
	channels := 1
	if len(dims) == 3 {
		channels = dims[2]
	}

	data, ok := items[1].(cbor.Tag)
	if !ok || data.Number != tagUint16LE {
		return nil, fmt.Errorf("%w: expected uint16 typed array", ErrInvalidRecord)
	}
	raw, ok := data.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: typed array content %T", ErrInvalidRecord, data.Content)
	}
	// Checked by division: the product of the dimensions may overflow.
	want := len(raw) / 2
	if len(raw)%2 != 0 || dims[0] > want || dims[1] > want/dims[0] ||
		channels > want/(dims[0]*dims[1]) || dims[0]*dims[1]*channels != want {
		return nil, fmt.Errorf("%w: %d bytes for %dx%dx%d samples", ErrInvalidRecord, len(raw), dims[1], dims[0], channels)
	}

	pix := make([]uint16, want)
	for i := range pix {
		pix[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return &zvi.Frame{
		Number:   rec.Frame,
		Width:    dims[1],
		Height:   dims[0],
		Channels: channels,
		Pix:      pix,
	}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case uint64:
		if n == 0 || n > 1<<31 {
			return 0, fmt.Errorf("%w: dimension %d out of range", ErrInvalidRecord, n)
		}
		return int(n), nil
	case int64:
		if n <= 0 || n > 1<<31 {
			return 0, fmt.Errorf("%w: dimension %d out of range", ErrInvalidRecord, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: dimension of type %T", ErrInvalidRecord, v)
	}
}
