// Package cache is a content-addressed store for fetched
// secondary-payload artifacts, keyed by a filesystem-safe transform of
// the source URL.
//
// The cache directory is shared, unlocked, and process-wide. Two
// concurrent runs can both miss on the same URL and both write the
// entry; writes go to a temp file renamed into place, so the last
// writer wins and a reader never observes a torn file. This race is a
// documented, accepted limitation.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
)

const maxKeyLen = 100

var unsafeChars = regexp.MustCompile(`[^\w\-.]`)

// Cache stores fetched artifacts under a single directory.
type Cache struct {
	Dir string
	log *zap.Logger
}

// New returns a Cache rooted at dir.
func New(dir string, log *zap.Logger) *Cache {
	return &Cache{Dir: dir, log: log}
}

// Key returns the filesystem-safe cache key for url: non-word
// characters replaced by underscore, truncated to a bounded length.
func Key(url string) string {
	safe := unsafeChars.ReplaceAllString(url, "_")
	if len(safe) > maxKeyLen {
		safe = safe[:maxKeyLen]
	}
	return safe
}

// Path returns the cache entry path for url.
func (c *Cache) Path(url string) string {
	return filepath.Join(c.Dir, Key(url))
}

// Get copies the cached entry for url to dst. It returns false when
// the entry does not exist.
func (c *Cache) Get(url, dst string) (bool, error) {
	src := c.Path(url)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := copyFile(src, dst); err != nil {
		return false, fmt.Errorf("copy cache entry: %w", err)
	}
	c.log.Info("cache hit", zap.String("url", url), zap.String("entry", src))
	return true, nil
}

// Put stores src as the cache entry for url.
func (c *Cache) Put(url, src string) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	dst := c.Path(url)
	tmp := dst + ".tmp"
	if err := copyFile(src, tmp); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish cache entry: %w", err)
	}
	c.log.Info("cached artifact", zap.String("url", url), zap.String("entry", dst))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
