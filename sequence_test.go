package zvi

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zvi/container"
	"github.com/meigma/zvi/container/memory"
	"github.com/meigma/zvi/internal/testutil"
)

var testShape = Shape{Width: 24, Height: 16}

// newTestSequence builds a sequence over an in-memory container.
func newTestSequence(tb testing.TB, items []int, opts ...Option) *Sequence {
	tb.Helper()
	c := testutil.MemoryContainer(testShape.Width, testShape.Height, items)
	seq, err := New(c, testShape, opts...)
	require.NoError(tb, err)
	return seq
}

// countingContainer records reads so tests can assert on I/O.
type countingContainer struct {
	container.Container
	mu      sync.Mutex
	reads   int
	streams int
}

func (c *countingContainer) Streams() []container.Path {
	c.mu.Lock()
	c.streams++
	c.mu.Unlock()
	return c.Container.Streams()
}

func (c *countingContainer) ReadStream(p container.Path) ([]byte, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return c.Container.ReadStream(p)
}

func (c *countingContainer) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func TestSequenceLengthIsMaxItem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		items []int
		want  int
	}{
		{"contiguous", []int{0, 1, 2, 3}, 3},
		{"gap", []int{0, 1, 3}, 3},
		{"unsorted", []int{5, 0, 2}, 5},
		{"single zero", []int{0}, 0},
		{"starts late", []int{7}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			seq := newTestSequence(t, tt.items)
			assert.Equal(t, tt.want, seq.Len())
		})
	}
}

func TestSequenceMetadata(t *testing.T) {
	t.Parallel()

	seq := newTestSequence(t, []int{0, 1, 3}, WithFilename("movie.zvi"))
	assert.Equal(t, testShape, seq.FrameShape())
	assert.Equal(t, PixelGray16LE, seq.PixelType())
	assert.Equal(t, "uint16", seq.PixelType().String())
	assert.Equal(t, []int{0, 1, 3}, seq.Items())
	assert.Equal(t, "movie.zvi", seq.Filename())
	assert.Equal(t,
		"<Frames>\nSource: movie.zvi\nLength: 3 frames\nFrame Shape: 24 x 16\nPixel Datatype: uint16",
		seq.String())
}

func TestSequenceEmptyIndex(t *testing.T) {
	t.Parallel()

	c := memory.New(memory.Stream{Path: container.Path{"Tags", "Contents"}, Data: []byte{1}})
	_, err := New(c, testShape)
	require.ErrorIs(t, err, ErrEmptyIndex)
	assert.True(t, c.Closed(), "New must release the container on failure")
}

func TestSequenceFrame(t *testing.T) {
	t.Parallel()

	seq := newTestSequence(t, []int{0, 1, 2, 3})

	for j := 0; j < seq.Len(); j++ {
		f, err := seq.Frame(j)
		require.NoError(t, err)
		assert.Equal(t, j, f.Number)
		assert.Equal(t, testShape, f.Shape())
		assert.Equal(t, 1, f.Channels)
		assert.Equal(t, testutil.Samples(j, testShape.Width, testShape.Height), f.Pix)
	}
}

func TestSequenceFrameNegativeIndex(t *testing.T) {
	t.Parallel()

	seq := newTestSequence(t, []int{0, 1, 2, 3, 4})

	last, err := seq.Frame(-1)
	require.NoError(t, err)
	want, err := seq.Frame(seq.Len() - 1)
	require.NoError(t, err)
	assert.Equal(t, want, last)
	assert.Equal(t, 3, last.Number)

	first, err := seq.Frame(-seq.Len())
	require.NoError(t, err)
	assert.Equal(t, 0, first.Number)
}

func TestSequenceFrameOutOfRange(t *testing.T) {
	t.Parallel()

	c := &countingContainer{Container: testutil.MemoryContainer(testShape.Width, testShape.Height, []int{0, 1, 2})}
	seq, err := New(c, testShape)
	require.NoError(t, err)

	for _, j := range []int{2, 3, 100, -3, -100} {
		_, err := seq.Frame(j)
		require.ErrorIs(t, err, ErrIndexOutOfRange, "j=%d", j)
	}
	assert.Zero(t, c.Reads(), "index checks must not read streams")
}

func TestSequenceGapExample(t *testing.T) {
	t.Parallel()

	seq := newTestSequence(t, []int{0, 1, 3})
	require.Equal(t, 3, seq.Len())

	for _, j := range []int{0, 1} {
		f, err := seq.Frame(j)
		require.NoError(t, err)
		assert.Equal(t, j, f.Number)
	}

	_, err := seq.Frame(2)
	require.ErrorIs(t, err, ErrMissingFrame)
	require.ErrorIs(t, err, ErrStreamNotFound)
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.Equal(t, 2, frameErr.Frame)
	assert.Equal(t, "read", frameErr.Op)

	// Item 3 lies outside the length-bounded sequence but can be read by item number.
	_, err = seq.Frame(3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	f, err := seq.Item(3)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Number)
	assert.Equal(t, testutil.Samples(3, testShape.Width, testShape.Height), f.Pix)

	_, err = seq.Item(2)
	require.ErrorIs(t, err, ErrMissingFrame)
	_, err = seq.Item(-1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSequenceShortStream(t *testing.T) {
	t.Parallel()

	short := memory.Stream{Path: testutil.ItemPath(1), Data: make([]byte, testShape.Pixels()*2-2)}
	c := testutil.MemoryContainer(testShape.Width, testShape.Height, []int{0, 2}, short)
	seq, err := New(c, testShape)
	require.NoError(t, err)

	f, err := seq.Frame(1)
	require.ErrorIs(t, err, ErrDecode)
	require.ErrorIs(t, err, ErrShortStream)
	assert.Nil(t, f)
}

func TestSequenceDeterministic(t *testing.T) {
	t.Parallel()

	seq := newTestSequence(t, []int{0, 1, 2})

	a, err := seq.Frame(1)
	require.NoError(t, err)
	b, err := seq.Frame(1)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
	assert.Equal(t, a.Digest(), b.Digest())

	// Frames are independent copies.
	a.Pix[0]++
	c, err := seq.Frame(1)
	require.NoError(t, err)
	assert.Equal(t, b.Pix, c.Pix)
}

func TestSequenceProcessFunc(t *testing.T) {
	t.Parallel()

	var calls int
	double := func(f *Frame) (*Frame, error) {
		calls++
		for i := range f.Pix {
			f.Pix[i] *= 2
		}
		f.Number = -99
		return f, nil
	}
	seq := newTestSequence(t, []int{0, 1, 2}, WithProcessFunc(double))

	f, err := seq.Frame(1)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, f.Number, "frame number is set after processing")
	want := testutil.Samples(1, testShape.Width, testShape.Height)
	for i := range want {
		want[i] *= 2
	}
	assert.Equal(t, want, f.Pix)
}

func TestSequenceProcessFuncError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	seq := newTestSequence(t, []int{0, 1}, WithProcessFunc(func(*Frame) (*Frame, error) {
		return nil, boom
	}))

	_, err := seq.Frame(0)
	require.ErrorIs(t, err, boom)
	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.Equal(t, "process", frameErr.Op)

	seq = newTestSequence(t, []int{0, 1}, WithProcessFunc(func(*Frame) (*Frame, error) {
		return nil, nil
	}))
	_, err = seq.Frame(0)
	require.Error(t, err)
}

func TestSequenceGreyscalePassesGrayThrough(t *testing.T) {
	t.Parallel()

	plain := newTestSequence(t, []int{0, 1})
	grey := newTestSequence(t, []int{0, 1}, WithGreyscale(true))

	a, err := plain.Frame(0)
	require.NoError(t, err)
	b, err := grey.Frame(0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestConfigurationErrorsBeforeIO(t *testing.T) {
	t.Parallel()

	identity := func(f *Frame) (*Frame, error) { return f, nil }

	t.Run("process and greyscale with New", func(t *testing.T) {
		t.Parallel()
		c := &countingContainer{Container: testutil.MemoryContainer(4, 4, []int{0, 1})}
		_, err := New(c, Shape{Width: 4, Height: 4}, WithProcessFunc(identity), WithGreyscale(true))
		require.ErrorIs(t, err, ErrConfiguration)
		assert.Zero(t, c.streams)
		assert.Zero(t, c.reads)
	})

	t.Run("process and greyscale with Open", func(t *testing.T) {
		t.Parallel()
		// The file does not exist: a configuration error must win over an open error.
		missing := filepath.Join(t.TempDir(), "missing.zvi")
		_, err := Open(missing, Shape{Width: 4, Height: 4}, WithGreyscale(true), WithProcessFunc(identity))
		require.ErrorIs(t, err, ErrConfiguration)
		require.NotErrorIs(t, err, ErrContainerOpen)
	})

	t.Run("invalid shape", func(t *testing.T) {
		t.Parallel()
		for _, shape := range []Shape{{0, 4}, {4, 0}, {-1, 4}} {
			_, err := Open(filepath.Join(t.TempDir(), "missing.zvi"), shape)
			require.ErrorIs(t, err, ErrConfiguration, "shape %v", shape)
		}
	})

	t.Run("nil container", func(t *testing.T) {
		t.Parallel()
		_, err := New(nil, Shape{Width: 4, Height: 4})
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("nil process func is identity", func(t *testing.T) {
		t.Parallel()
		c := testutil.MemoryContainer(4, 4, []int{0, 1})
		_, err := New(c, Shape{Width: 4, Height: 4}, WithProcessFunc(nil), WithGreyscale(true))
		require.NoError(t, err)
	})
}

func TestSequenceClose(t *testing.T) {
	t.Parallel()

	c := testutil.MemoryContainer(4, 4, []int{0, 1})
	seq, err := New(c, Shape{Width: 4, Height: 4})
	require.NoError(t, err)
	require.NoError(t, seq.Close())
	assert.True(t, c.Closed())
}

func TestSequenceLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	seq := newTestSequence(t, []int{0, 1, 2}, WithLogger(logger))

	_, err := seq.Frame(0)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "indexed image streams")
	assert.Contains(t, buf.String(), "decoded frame")
}

func TestSequenceConcurrentFrames(t *testing.T) {
	t.Parallel()

	seq := newTestSequence(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8})

	var wg sync.WaitGroup
	errs := make(chan error, seq.Len()*4)
	for range 4 {
		for j := 0; j < seq.Len(); j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f, err := seq.Frame(j)
				if err != nil {
					errs <- err
					return
				}
				if f.Pix[0] != testutil.Samples(j, testShape.Width, testShape.Height)[0] {
					errs <- errors.New("wrong frame content")
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestOpenConcurrentFrames(t *testing.T) {
	t.Parallel()

	items := []int{0, 1, 2, 3, 4, 5}
	seq, err := Open(testutil.WriteCompoundFile(t, testShape.Width, testShape.Height, items), testShape)
	require.NoError(t, err)
	defer seq.Close()

	var wg sync.WaitGroup
	frames := make([]*Frame, 4*seq.Len())
	errs := make([]error, len(frames))
	for slot := range frames {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frames[slot], errs[slot] = seq.Frame(slot % seq.Len())
		}()
	}
	wg.Wait()

	for slot, f := range frames {
		j := slot % seq.Len()
		require.NoError(t, errs[slot], "frame %d", j)
		assert.Equal(t, testutil.Samples(j, testShape.Width, testShape.Height), f.Pix, "frame %d", j)
	}
}

func TestOpenCompoundFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		shape Shape
	}{
		// 2400 bytes per frame: stored in the mini stream.
		{"mini stream", Shape{Width: 40, Height: 30}},
		// 8192 bytes per frame: stored in regular sectors.
		{"regular sectors", Shape{Width: 64, Height: 64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tags := memory.Stream{Path: container.Path{"Tags", "Contents"}, Data: []byte("metadata")}
			path := testutil.WriteCompoundFile(t, tt.shape.Width, tt.shape.Height, []int{0, 1, 3}, tags)

			seq, err := Open(path, tt.shape)
			require.NoError(t, err)
			defer seq.Close()

			assert.Equal(t, 3, seq.Len())
			assert.Equal(t, path, seq.Filename())

			for _, j := range []int{0, 1} {
				f, err := seq.Frame(j)
				require.NoError(t, err)
				assert.Equal(t, testutil.Samples(j, tt.shape.Width, tt.shape.Height), f.Pix)
			}
			last, err := seq.Item(3)
			require.NoError(t, err)
			assert.Equal(t, testutil.Samples(3, tt.shape.Width, tt.shape.Height), last.Pix)

			_, err = seq.Frame(2)
			require.ErrorIs(t, err, ErrMissingFrame)
		})
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.zvi")
	require.NoError(t, os.WriteFile(garbage, []byte("not a compound file"), 0o600))
	_, err := Open(garbage, testShape)
	require.ErrorIs(t, err, ErrContainerOpen)

	_, err = Open(filepath.Join(dir, "missing.zvi"), testShape)
	require.ErrorIs(t, err, ErrContainerOpen)

	empty := filepath.Join(dir, "empty.zvi")
	require.NoError(t, os.WriteFile(empty, testutil.BuildCompoundFile(t, []testutil.CompoundStream{
		{Path: []string{"Tags", "Contents"}, Data: []byte("only tags")},
	}), 0o600))
	_, err = Open(empty, testShape)
	require.ErrorIs(t, err, ErrEmptyIndex)
}

func TestExtensions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"zvi"}, Extensions())
	assert.True(t, HasExtension("movie.zvi"))
	assert.True(t, HasExtension("/data/MOVIE.ZVI"))
	assert.False(t, HasExtension("movie.oib"))
	assert.False(t, HasExtension("zvi"))
}
