// Package cache keeps fetched source texts and model responses on disk so a
// re-ingestion does not download or translate the same material twice.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotConfigured is returned when a cache has no directory.
var ErrNotConfigured = errors.New("cache dir not configured")

func perms(strict bool) (dir, file os.FileMode) {
	if strict {
		return 0o700, 0o600
	}
	return 0o755, 0o644
}

func ensureDir(dir string, strict bool) error {
	if strings.TrimSpace(dir) == "" {
		return ErrNotConfigured
	}
	dperm, _ := perms(strict)
	if err := os.MkdirAll(dir, dperm); err != nil {
		return err
	}
	if strict {
		if info, err := os.Stat(dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(dir, 0o700)
		}
	}
	return nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, mode); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

func digest(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte("\n\n"))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
