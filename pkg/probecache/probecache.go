// Package probecache memoizes the answers of external plugins' read-only
// probe verbs (spec.md §6) on top of a disk-backed LRU store, so a large
// plugin roster does not re-exec every external plugin binary on every
// invocation within a short window.
package probecache

import (
	"encoding/json"
	"fmt"
	"time"

	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
)

// DefaultTTL is the default memoization window for a probe answer.
const DefaultTTL = 5 * time.Minute

// mutatingVerbs are never cacheable; their effects must always be observed
// directly rather than served from a stale answer.
var mutatingVerbs = map[plugin.Verb]bool{
	plugin.VerbDownload: true,
	plugin.VerbUpdate:   true,
}

// Cache memoizes (plugin, verb, phase) probe answers with a bypass mode
// for --dry-run / --no-cache.
type Cache struct {
	store  *store
	ttl    time.Duration
	bypass bool
}

// New creates a Cache rooted at dir. bypass, when true, disables all
// caching (used for --dry-run and --no-cache).
func New(dir string, ttl time.Duration, bypass bool) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	st, err := newStore(storeConfig{
		Dir:        dir,
		DefaultTTL: ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("probecache: %w", err)
	}
	return &Cache{store: st, ttl: ttl, bypass: bypass}, nil
}

// Cacheable reports whether verb is a read-only probe eligible for
// memoization. Mutating verbs (download, update) are never cacheable.
func Cacheable(verb plugin.Verb) bool {
	return !mutatingVerbs[verb]
}

// key builds the domain-shaped cache key for a (plugin, verb, phase)
// probe answer.
func key(pluginName string, verb plugin.Verb, phase plugin.Phase) string {
	return fmt.Sprintf("%s|%s|%s", pluginName, verb, phase)
}

// GetBool returns a cached boolean probe answer, if present and fresh.
func (c *Cache) GetBool(pluginName string, verb plugin.Verb, phase plugin.Phase) (bool, bool) {
	if c.bypass || !Cacheable(verb) {
		return false, false
	}
	data, ok := c.store.get(key(pluginName, verb, phase))
	if !ok {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return false, false
	}
	return v, true
}

// PutBool stores a boolean probe answer under the store's default TTL.
// It is a no-op for mutating verbs or when the cache is bypassed.
func (c *Cache) PutBool(pluginName string, verb plugin.Verb, phase plugin.Phase, value bool) error {
	if c.bypass || !Cacheable(verb) {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("probecache: marshal bool for %s/%s/%s: %w", pluginName, verb, phase, err)
	}
	return c.store.put(key(pluginName, verb, phase), data)
}

// GetStrings returns a cached string-slice probe answer (e.g. dynamic
// mutex names or sudo program paths), if present and fresh.
func (c *Cache) GetStrings(pluginName string, verb plugin.Verb, phase plugin.Phase) ([]string, bool) {
	if c.bypass || !Cacheable(verb) {
		return nil, false
	}
	data, ok := c.store.get(key(pluginName, verb, phase))
	if !ok {
		return nil, false
	}
	var v []string
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return v, true
}

// PutStrings stores a string-slice probe answer.
func (c *Cache) PutStrings(pluginName string, verb plugin.Verb, phase plugin.Phase, value []string) error {
	if c.bypass || !Cacheable(verb) {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("probecache: marshal strings for %s/%s/%s: %w", pluginName, verb, phase, err)
	}
	return c.store.put(key(pluginName, verb, phase), data)
}

// Stats returns a snapshot of the underlying store's hit/miss/eviction
// counters, useful for the status bar or a --verbose summary.
func (c *Cache) Stats() (hits, misses, evictions int64) {
	st := c.store.stats()
	return st.Hits, st.Misses, st.Evictions
}

// Close releases the underlying store's background cleanup goroutine.
func (c *Cache) Close() error {
	return c.store.close()
}
