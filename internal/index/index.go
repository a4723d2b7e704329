package index

import (
	"errors"
	"iter"
	"slices"
	"strconv"
	"strings"
)

// ImageCategory is the first path element of every image stream.
const ImageCategory = "Image"

const (
	itemPrefix = "Item("
	itemSuffix = ")"
)

// ErrEmptyIndex is returned by Build when no image streams are found.
var ErrEmptyIndex = errors.New("zvi: no image streams in container")

// StreamID identifies an image stream by category and item number.
type StreamID struct {
	Category string
	Item     int
}

// ParseStreamPath extracts the stream identifier from a stream path.
//
// Only the first two elements are inspected. The first must be exactly
// "Image" and the second must be exactly "Item(<digits>)" with one or more
// ASCII digits. ok is false for every other path, including item numbers
// that do not fit in an int.
func ParseStreamPath(path []string) (id StreamID, ok bool) {
	if len(path) < 2 || path[0] != ImageCategory {
		return StreamID{}, false
	}
	item, ok := parseItem(path[1])
	if !ok {
		return StreamID{}, false
	}
	return StreamID{Category: path[0], Item: item}, true
}

func parseItem(s string) (int, bool) {
	digits, ok := strings.CutPrefix(s, itemPrefix)
	if !ok {
		return 0, false
	}
	digits, ok = strings.CutSuffix(digits, itemSuffix)
	if !ok || digits == "" {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Table is the immutable set of item numbers found in a container.
type Table struct {
	items []int // sorted, unique
	seen  int   // paths inspected by Build
}

// Build scans a stream listing and records every image item number.
//
// The result does not depend on the order of paths. Build returns
// ErrEmptyIndex when no path matches.
func Build(paths [][]string) (*Table, error) {
	set := make(map[int]struct{})
	for _, p := range paths {
		id, ok := ParseStreamPath(p)
		if !ok {
			continue
		}
		set[id.Item] = struct{}{}
	}
	if len(set) == 0 {
		return nil, ErrEmptyIndex
	}

	items := make([]int, 0, len(set))
	for n := range set {
		items = append(items, n)
	}
	slices.Sort(items)
	return &Table{items: items, seen: len(paths)}, nil
}

// Len returns the sequence length: the largest item number.
//
// This is not the number of items. A container holding items 0, 1 and 3
// has length 3, which leaves item 3 outside the sequence and item 2 inside
// it but unreadable. Readers depend on this, so it is kept as is.
func (t *Table) Len() int {
	return t.items[len(t.items)-1]
}

// Count returns the number of distinct item numbers found.
func (t *Table) Count() int {
	return len(t.items)
}

// Scanned returns the number of stream paths Build inspected.
func (t *Table) Scanned() int {
	return t.seen
}

// Has reports whether item n was found.
func (t *Table) Has(n int) bool {
	_, ok := slices.BinarySearch(t.items, n)
	return ok
}

// Items returns the item numbers in ascending order.
func (t *Table) Items() []int {
	return slices.Clone(t.items)
}

// All returns an iterator over the item numbers in ascending order.
func (t *Table) All() iter.Seq[int] {
	return slices.Values(t.items)
}
