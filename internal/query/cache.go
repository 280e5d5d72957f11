package query

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fsnotify/fsnotify"
)

// Mode selects which index legs a search runs against.
type Mode string

const (
	ModeLexical Mode = "lexical"
	ModeVector  Mode = "vector"
	ModeHybrid  Mode = "hybrid"
)

// cacheKey identifies a cached search result set: mode, normalized query
// text, canonical filter string, result limit, and the index version the
// result was computed against.
type cacheKey struct {
	mode    Mode
	query   string
	filters string
	limit   int
	version uint64
}

// Cache memoizes search results, keyed by (mode, query, filters, limit,
// version). A CVVI reload bumps version, invalidating every prior entry
// without an explicit sweep: cached results never outlive the index they
// were computed against.
type Cache struct {
	lru     *lru.Cache[cacheKey, any]
	version atomic.Uint64
	watcher *fsnotify.Watcher
}

// NewCache builds a cache holding up to size entries.
func NewCache(size int) (*Cache, error) {
	l, err := lru.New[cacheKey, any](size)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &Cache{lru: l}, nil
}

// Version returns the current index version.
func (c *Cache) Version() uint64 {
	return c.version.Load()
}

// Bump increments the index version, implicitly invalidating all cached
// entries (stale entries simply miss on their old version key and fall out
// via normal LRU eviction).
func (c *Cache) Bump() uint64 {
	return c.version.Add(1)
}

// Get looks up a cached result for the given coordinates at the cache's
// current version.
func (c *Cache) Get(mode Mode, normalizedQuery, canonicalFilters string, limit int) (any, bool) {
	key := cacheKey{mode: mode, query: normalizedQuery, filters: canonicalFilters, limit: limit, version: c.version.Load()}
	return c.lru.Get(key)
}

// Put stores a result under the cache's current version.
func (c *Cache) Put(mode Mode, normalizedQuery, canonicalFilters string, limit int, result any) {
	key := cacheKey{mode: mode, query: normalizedQuery, filters: canonicalFilters, limit: limit, version: c.version.Load()}
	c.lru.Add(key, result)
}

// WatchDataDir bumps the cache version whenever any file in dataDir is
// created, written or renamed, which includes a CVVI or CHSW file renamed
// into place (the atomic-save rename pattern both internal/vectorindex and
// internal/ann use), so a freshly rebuilt
// index is visible on the next query instead of serving stale cached
// results.
func (c *Cache) WatchDataDir(dataDir string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create data dir watcher: %w", err)
	}
	if err := watcher.Add(dataDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch data dir: %w", err)
	}
	c.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Write) {
					v := c.Bump()
					if logger != nil {
						logger.Info("query cache invalidated", slog.String("path", event.Name), slog.Uint64("version", v))
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.Warn("data dir watch error", slog.String("error", err.Error()))
				}
			}
		}
	}()
	return nil
}

// Close stops the underlying filesystem watcher, if any.
func (c *Cache) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}
