package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrCorrupt means a cached body no longer matches its recorded digest.
var ErrCorrupt = errors.New("cached body does not match digest")

// HTTPEntry is the metadata kept beside a cached source document. ETag and
// LastModified drive conditional revalidation.
type HTTPEntry struct {
	URL          string    `json:"url"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	SHA256       string    `json:"sha256"`
	Size         int       `json:"size"`
	SavedAt      time.Time `json:"saved_at"`
}

// HTTPCache stores source documents as <sha256(url)>.meta.json plus
// <sha256(url)>.body.
type HTTPCache struct {
	Dir         string
	StrictPerms bool
}

func (c *HTTPCache) key(url string) string { return digest(url) }

func (c *HTTPCache) metaPath(key string) string { return filepath.Join(c.Dir, key+metaSuffix) }
func (c *HTTPCache) bodyPath(key string) string { return filepath.Join(c.Dir, key+bodySuffix) }

func (c *HTTPCache) ready() error {
	if c == nil {
		return ErrNotConfigured
	}
	return ensureDir(c.Dir, c.StrictPerms)
}

// LoadMeta returns the entry for url. A missing entry is reported with an
// error satisfying errors.Is(err, os.ErrNotExist).
func (c *HTTPCache) LoadMeta(_ context.Context, url string) (*HTTPEntry, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(c.metaPath(c.key(url)))
	if err != nil {
		return nil, err
	}
	var e HTTPEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode cache meta: %w", err)
	}
	return &e, nil
}

// LoadBody returns the cached body for url, verifying it against the digest
// in the metadata when one was recorded. Reading refreshes the entry's
// position for Enforce.
func (c *HTTPCache) LoadBody(ctx context.Context, url string) ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	key := c.key(url)
	body, err := os.ReadFile(c.bodyPath(key))
	if err != nil {
		return nil, err
	}
	if meta, err := c.LoadMeta(ctx, url); err == nil && meta.SHA256 != "" {
		sum := sha256.Sum256(body)
		if hex.EncodeToString(sum[:]) != meta.SHA256 {
			return nil, fmt.Errorf("%s: %w", url, ErrCorrupt)
		}
	}
	now := time.Now()
	_ = os.Chtimes(c.bodyPath(key), now, now)
	return body, nil
}

// Save stores body and its metadata. The body is written first so that a
// meta file never points at a missing body.
func (c *HTTPCache) Save(_ context.Context, url, contentType, etag, lastModified string, body []byte) error {
	if err := c.ready(); err != nil {
		return err
	}
	_, fperm := perms(c.StrictPerms)
	key := c.key(url)
	if err := writeAtomic(c.bodyPath(key), body, fperm); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	sum := sha256.Sum256(body)
	meta := HTTPEntry{
		URL:          url,
		ContentType:  contentType,
		ETag:         etag,
		LastModified: lastModified,
		SHA256:       hex.EncodeToString(sum[:]),
		Size:         len(body),
		SavedAt:      time.Now().UTC(),
	}
	b, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := writeAtomic(c.metaPath(key), b, fperm); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

// Remove drops the entry for url if present.
func (c *HTTPCache) Remove(_ context.Context, url string) error {
	if err := c.ready(); err != nil {
		return err
	}
	key := c.key(url)
	for _, p := range []string{c.metaPath(key), c.bodyPath(key)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
