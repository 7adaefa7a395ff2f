package correction

import (
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the number of parsed files kept in memory.
const DefaultCacheSize = 64

// Loader reads correction files and keeps the parsed sets in an LRU cache.
// It is safe for concurrent use; concurrent loads of the same path parse once.
type Loader struct {
	cache *lru.Cache[string, *Set]
	group singleflight.Group
	read  func(string) ([]byte, error)
}

// NewLoader returns a loader caching at most size parsed sets.
func NewLoader(size int) (*Loader, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Set](size)
	if err != nil {
		return nil, err
	}
	return &Loader{cache: cache, read: os.ReadFile}, nil
}

// Load returns the parsed set stored at path.
func (l *Loader) Load(path string) (*Set, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}
	if set, ok := l.cache.Get(key); ok {
		return set, nil
	}
	v, err, _ := l.group.Do(key, func() (any, error) {
		if set, ok := l.cache.Get(key); ok {
			return set, nil
		}
		data, err := l.read(key)
		if err != nil {
			return nil, fmt.Errorf("failed to read correction file: %w", err)
		}
		set, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		l.cache.Add(key, set)
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Set), nil
}

// Len returns how many parsed sets are cached.
func (l *Loader) Len() int {
	return l.cache.Len()
}

// Purge drops every cached set.
func (l *Loader) Purge() {
	l.cache.Purge()
}
