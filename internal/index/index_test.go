package index

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   []string
		want   int
		wantOK bool
	}{
		{"image item", []string{"Image", "Item(0)", "Contents"}, 0, true},
		{"multi digit", []string{"Image", "Item(1234)", "Contents"}, 1234, true},
		{"leading zeros", []string{"Image", "Item(007)", "Contents"}, 7, true},
		{"two elements", []string{"Image", "Item(5)"}, 5, true},
		{"only category", []string{"Image"}, 0, false},
		{"empty", nil, 0, false},
		{"wrong category", []string{"Tags", "Item(0)", "Contents"}, 0, false},
		{"category case", []string{"image", "Item(0)", "Contents"}, 0, false},
		{"no digits", []string{"Image", "Item()", "Contents"}, 0, false},
		{"sign", []string{"Image", "Item(-1)", "Contents"}, 0, false},
		{"plus sign", []string{"Image", "Item(+1)", "Contents"}, 0, false},
		{"letters", []string{"Image", "Item(1a)", "Contents"}, 0, false},
		{"space", []string{"Image", "Item( 1)", "Contents"}, 0, false},
		{"unclosed", []string{"Image", "Item(1", "Contents"}, 0, false},
		{"trailing text", []string{"Image", "Item(1)x", "Contents"}, 0, false},
		{"other stream", []string{"Image", "Contents"}, 0, false},
		{"overflow", []string{"Image", "Item(99999999999999999999999)", "Contents"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, ok := ParseStreamPath(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, StreamID{Category: "Image", Item: tt.want}, id)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	paths := [][]string{
		{"Image", "Item(1)", "Contents"},
		{"Tags", "Contents"},
		{"Image", "Item(3)", "Contents"},
		{"Image", "Item(0)", "Contents"},
		{"Image", "Item(3)", "Tags"},
		{"Image", "Contents"},
	}

	tbl, err := Build(paths)
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, 3, tbl.Count())
	assert.Equal(t, len(paths), tbl.Scanned())
	assert.Equal(t, []int{0, 1, 3}, tbl.Items())
	assert.True(t, tbl.Has(3))
	assert.False(t, tbl.Has(2))

	var all []int
	for n := range tbl.All() {
		all = append(all, n)
	}
	assert.Equal(t, []int{0, 1, 3}, all)
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		paths [][]string
	}{
		{"no streams", nil},
		{"only unrelated", [][]string{{"Tags", "Contents"}, {"Image", "Contents"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(tt.paths)
			require.ErrorIs(t, err, ErrEmptyIndex)
		})
	}
}

func TestBuildOrderIndependent(t *testing.T) {
	t.Parallel()

	paths := [][]string{
		{"Image", "Item(4)", "Contents"},
		{"Image", "Item(17)", "Contents"},
		{"Image", "Item(2)", "Contents"},
		{"Image", "Item(9)", "Contents"},
		{"Other", "Item(50)", "Contents"},
	}

	r := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // deterministic shuffle
	for range 20 {
		r.Shuffle(len(paths), func(i, j int) { paths[i], paths[j] = paths[j], paths[i] })
		tbl, err := Build(paths)
		require.NoError(t, err)
		assert.Equal(t, 17, tbl.Len())
		assert.Equal(t, []int{2, 4, 9, 17}, tbl.Items())
	}
}

func TestTableItemsIsCopy(t *testing.T) {
	t.Parallel()

	tbl, err := Build([][]string{{"Image", "Item(5)"}})
	require.NoError(t, err)

	items := tbl.Items()
	items[0] = 100
	assert.Equal(t, 5, tbl.Len())
}
