package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DirUsage returns the size of every top-level entry of dir, keyed by name,
// and their total. The catalog, its WAL sidecars, the vector file and the
// keyword index directory of an index each get their own entry. Empty
// entries such as the lock file are omitted. A missing dir has no usage.
func DirUsage(dir string) (map[string]int64, int64, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]int64{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	usage := make(map[string]int64, len(entries))
	var total int64
	for _, e := range entries {
		n, err := treeSize(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			continue
		}
		usage[e.Name()] = n
		total += n
	}
	return usage, total, nil
}

// treeSize sums regular file sizes under p. Files removed mid-walk are skipped.
func treeSize(p string) (int64, error) {
	var total int64
	err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
