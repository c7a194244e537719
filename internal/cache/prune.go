package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	metaSuffix = ".meta.json"
	bodySuffix = ".body"
	llmSuffix  = ".json"
)

// ClearDir removes dir and everything below it, then recreates it empty.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// entry groups the files that belong to one cache key.
type entry struct {
	files   []string
	size    int64
	used    time.Time
	savedAt time.Time
}

func scan(dir string) (map[string]*entry, error) {
	entries := map[string]*entry{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		var key string
		switch {
		case strings.HasSuffix(name, metaSuffix):
			key = strings.TrimSuffix(name, metaSuffix)
		case strings.HasSuffix(name, bodySuffix):
			key = strings.TrimSuffix(name, bodySuffix)
		case strings.HasSuffix(name, llmSuffix):
			key = strings.TrimSuffix(name, llmSuffix)
		default:
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		e := entries[key]
		if e == nil {
			e = &entry{}
			entries[key] = e
		}
		e.files = append(e.files, path)
		e.size += info.Size()
		if mt := info.ModTime(); mt.After(e.used) {
			e.used = mt
		}
		if strings.HasSuffix(name, metaSuffix) {
			if b, err := os.ReadFile(path); err == nil {
				var m HTTPEntry
				if json.Unmarshal(b, &m) == nil {
					e.savedAt = m.SavedAt
				}
			}
		}
		return nil
	})
	return entries, err
}

func (e *entry) remove() {
	for _, f := range e.files {
		_ = os.Remove(f)
	}
}

// PurgeByAge removes entries older than maxAge. Source entries are aged by
// their recorded SavedAt, model responses by modification time.
func PurgeByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := scan(dir)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		at := e.used
		if !e.savedAt.IsZero() {
			at = e.savedAt
		}
		if now.Sub(at) > maxAge {
			e.remove()
			removed++
		}
	}
	return removed, nil
}

// Enforce evicts least recently used entries until the directory holds at
// most maxCount entries and maxBytes bytes. A zero limit is not enforced.
func Enforce(dir string, maxBytes int64, maxCount int) (int, error) {
	if maxBytes <= 0 && maxCount <= 0 {
		return 0, nil
	}
	entries, err := scan(dir)
	if err != nil {
		return 0, err
	}
	list := make([]*entry, 0, len(entries))
	var total int64
	for _, e := range entries {
		list = append(list, e)
		total += e.size
	}
	sort.Slice(list, func(i, j int) bool { return list[i].used.Before(list[j].used) })
	removed := 0
	for _, e := range list {
		overCount := maxCount > 0 && len(list)-removed > maxCount
		overBytes := maxBytes > 0 && total > maxBytes
		if !overCount && !overBytes {
			break
		}
		e.remove()
		total -= e.size
		removed++
	}
	return removed, nil
}
