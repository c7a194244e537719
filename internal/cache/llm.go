package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// LLMCache stores model responses as <key>.json.
type LLMCache struct {
	Dir         string
	StrictPerms bool
}

// KeyFrom derives a cache key from the model name and the full prompt.
func KeyFrom(model, prompt string) string {
	return digest(model, prompt)
}

// Key derives a cache key for a named use (for example "translate:ja" or
// "dictionary") so that identical prompts for different purposes never
// share an entry.
func Key(namespace, model string, parts ...string) string {
	return digest(append([]string{namespace, model}, parts...)...)
}

func (c *LLMCache) pathFor(key string) string { return filepath.Join(c.Dir, key+llmSuffix) }

// Get returns the cached bytes for key. A miss is (nil, false, nil).
func (c *LLMCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if c == nil {
		return nil, false, ErrNotConfigured
	}
	if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
		return nil, false, err
	}
	p := c.pathFor(key)
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return b, true, nil
}

// Save writes data under key, replacing any previous value.
func (c *LLMCache) Save(_ context.Context, key string, data []byte) error {
	if c == nil {
		return ErrNotConfigured
	}
	if err := ensureDir(c.Dir, c.StrictPerms); err != nil {
		return err
	}
	_, fperm := perms(c.StrictPerms)
	return writeAtomic(c.pathFor(key), data, fperm)
}
