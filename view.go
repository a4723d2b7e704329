package zvi

import (
	"fmt"
	"iter"
	"slices"
)

// View is a lazy selection of frames from a Sequence.
//
// Indices are validated when the view is created; frames are decoded only
// when requested, one at a time. A View can be iterated any number of times.
type View struct {
	seq     *Sequence
	indices []int
}

// Range returns a view of the frames at the given indices, in the given
// order. Negative indices count from the end and duplicates are kept. Any
// index outside the sequence returns ErrIndexOutOfRange before any frame is
// read.
func (s *Sequence) Range(indices ...int) (*View, error) {
	out := make([]int, len(indices))
	for i, j := range indices {
		n, err := s.normalize(j)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return &View{seq: s, indices: out}, nil
}

// Slice returns a view of the frames selected by start, stop and step.
//
// The bounds follow the usual half-open slice rules: negative values count
// from the end and out-of-range values are clamped, so a slice never fails
// for its bounds alone. A negative step walks backwards from start down to,
// but excluding, stop. A zero step returns ErrIndexOutOfRange.
func (s *Sequence) Slice(start, stop, step int) (*View, error) {
	indices, err := sliceIndices(start, stop, step, s.Len())
	if err != nil {
		return nil, err
	}
	return &View{seq: s, indices: indices}, nil
}

// All returns a view of every frame in the sequence.
func (s *Sequence) All() *View {
	indices := make([]int, s.Len())
	for i := range indices {
		indices[i] = i
	}
	return &View{seq: s, indices: indices}
}

// Len returns the number of frames in the view.
func (v *View) Len() int {
	return len(v.indices)
}

// Indices returns the sequence indices selected by the view.
func (v *View) Indices() []int {
	return slices.Clone(v.indices)
}

// Frame decodes the i-th frame of the view. Negative i counts from the end
// of the view.
func (v *View) Frame(i int) (*Frame, error) {
	j := i
	if j < 0 {
		j += len(v.indices)
	}
	if j < 0 || j >= len(v.indices) {
		return nil, fmt.Errorf("view position %d: %w (length %d)", i, ErrIndexOutOfRange, len(v.indices))
	}
	return v.seq.read(v.indices[j])
}

// All returns an iterator that decodes the frames of the view in order.
//
// Iteration stops after the first error, which is yielded with a nil frame.
func (v *View) All() iter.Seq2[*Frame, error] {
	return func(yield func(*Frame, error) bool) {
		for _, n := range v.indices {
			f, err := v.seq.read(n)
			if !yield(f, err) || err != nil {
				return
			}
		}
	}
}

// sliceIndices resolves slice bounds against a sequence of length n.
func sliceIndices(start, stop, step, n int) ([]int, error) {
	if step == 0 {
		return nil, fmt.Errorf("slice step: %w (step cannot be zero)", ErrIndexOutOfRange)
	}
	lower, upper := 0, n
	if step < 0 {
		lower, upper = -1, n-1
	}
	clamp := func(x int) int {
		if x < 0 {
			x += n
			if x < lower {
				x = lower
			}
		} else if x > upper {
			x = upper
		}
		return x
	}
	start, stop = clamp(start), clamp(stop)

	var out []int
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}
