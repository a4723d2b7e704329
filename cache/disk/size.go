package disk

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// tempPrefix marks entries still being written by Put.
const tempPrefix = "cache-"

type entry struct {
	path    string
	size    int64
	modTime time.Time
}

// walkEntries lists committed cache entries under root.
func walkEntries(root string) ([]entry, int64, error) {
	var (
		entries []entry
		total   int64
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		entries = append(entries, entry{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	return entries, total, err
}

func dirSize(root string) (int64, error) {
	_, total, err := walkEntries(root)
	return total, err
}

// pruneDir removes the oldest entries under root until at most targetBytes remain.
func pruneDir(root string, targetBytes int64) (freed int64, remaining int64, err error) {
	targetBytes = max(targetBytes, 0)

	entries, remaining, err := walkEntries(root)
	if err != nil {
		return 0, 0, err
	}
	if remaining <= targetBytes {
		return 0, remaining, nil
	}

	slices.SortFunc(entries, func(a, b entry) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	})

	for _, e := range entries {
		if remaining <= targetBytes {
			break
		}
		if err := os.Remove(e.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return freed, remaining, err
		}
		remaining -= e.size
		freed += e.size
	}
	return freed, remaining, nil
}
