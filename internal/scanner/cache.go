package scanner

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedHash struct {
	size    int64
	modTime time.Time
	hash    string
}

// HashCache remembers the content hash of a path for as long as its size and
// modification time stay the same. Safe for concurrent use.
type HashCache struct {
	entries *lru.Cache[string, cachedHash]
}

// NewHashCache returns nil when size is not positive, which disables caching.
func NewHashCache(size int) (*HashCache, error) {
	if size <= 0 {
		return nil, nil
	}

	entries, err := lru.New[string, cachedHash](size)
	if err != nil {
		return nil, err
	}

	return &HashCache{entries: entries}, nil
}

func (c *HashCache) Lookup(path string, size int64, modTime time.Time) (string, bool) {
	if c == nil {
		return "", false
	}

	cached, ok := c.entries.Get(path)
	if !ok || cached.size != size || !cached.modTime.Equal(modTime) || cached.hash == "" {
		return "", false
	}

	return cached.hash, true
}

func (c *HashCache) Store(path string, size int64, modTime time.Time, hash string) {
	if c == nil || hash == "" {
		return
	}

	c.entries.Add(path, cachedHash{size: size, modTime: modTime, hash: hash})
}

func (c *HashCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
