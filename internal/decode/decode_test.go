package decode

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zvi/container"
	"github.com/meigma/zvi/container/memory"
	"github.com/meigma/zvi/internal/testutil"
)

func TestStreamPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, container.Path{"Image", "Item(0)", "Contents"}, StreamPath(0))
	assert.Equal(t, container.Path{"Image", "Item(42)", "Contents"}, StreamPath(42))
}

func TestRotateMatchesRoll(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		k    int
		want []int
	}{
		{"zero", 0, []int{0, 1, 2, 3, 4}},
		{"forward", 2, []int{3, 4, 0, 1, 2}},
		{"backward", -2, []int{2, 3, 4, 0, 1}},
		{"full turn", 5, []int{0, 1, 2, 3, 4}},
		{"past length", 7, []int{3, 4, 0, 1, 2}},
		{"past length backward", -7, []int{2, 3, 4, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := []int{0, 1, 2, 3, 4}
			Rotate(s, tt.k)
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestRotateEmpty(t *testing.T) {
	t.Parallel()

	var s []uint16
	assert.NotPanics(t, func() { Rotate(s, -OffsetCorrection) })
}

func TestRotateRoundTrip(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 161, 162, 163, 1000, 4096} {
		orig := testutil.Samples(3, n, 1)
		s := append([]uint16(nil), orig...)
		Rotate(s, -OffsetCorrection)
		Rotate(s, OffsetCorrection)
		assert.Equal(t, orig, s, "n=%d", n)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	const w, h = 20, 10
	want := testutil.Samples(1, w, h)

	got, err := Decode(testutil.EncodeStored(want), w, h)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeLittleEndian(t *testing.T) {
	t.Parallel()

	// 1x162 frame: rotating by 162 is a full turn, so the order is unchanged.
	data := make([]byte, 162*2)
	binary.LittleEndian.PutUint16(data, 0x1234)
	got, err := Decode(data, 162, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), got[0])
	assert.Equal(t, byte(0x34), data[0])
}

func TestDecodeAppliesOffset(t *testing.T) {
	t.Parallel()

	const w, h = 200, 1
	data := make([]byte, w*h*2)
	for i := 0; i < w*h; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(i)) //nolint:gosec // small
	}
	got, err := Decode(data, w, h)
	require.NoError(t, err)
	assert.Equal(t, uint16(162), got[0])
	assert.Equal(t, uint16(199), got[37])
	assert.Equal(t, uint16(0), got[38])
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	t.Parallel()

	const w, h = 16, 16
	want := testutil.Samples(2, w, h)
	data := append(testutil.EncodeStored(want), 0xFF, 0xFF, 0xFF)

	got, err := Decode(data, w, h)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeShortStream(t *testing.T) {
	t.Parallel()

	_, err := Decode(make([]byte, 16*16*2-1), 16, 16)
	require.ErrorIs(t, err, ErrShortStream)

	_, err = Decode(nil, 1, 1)
	require.ErrorIs(t, err, ErrShortStream)
}

func TestDecodeInvalidShape(t *testing.T) {
	t.Parallel()

	_, err := Decode(make([]byte, 8), 0, 2)
	require.Error(t, err)
	_, err = Decode(make([]byte, 8), 2, -1)
	require.Error(t, err)
}

func TestRead(t *testing.T) {
	t.Parallel()

	const w, h = 12, 12
	c := memory.New(testutil.FrameStreams(w, h, 0, 1, 3)...)

	for _, item := range []int{0, 1, 3} {
		got, err := Read(c, item, w, h)
		require.NoError(t, err)
		assert.Equal(t, testutil.Samples(item, w, h), got)
	}

	_, err := Read(c, 2, w, h)
	require.ErrorIs(t, err, container.ErrStreamNotFound)
}
