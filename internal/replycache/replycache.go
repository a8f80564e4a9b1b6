// Package replycache holds the last known-good reply for optional RouterOS
// commands, so a transient failure on one cycle does not blank out a
// domain (VPN interfaces/peers) that the device simply didn't answer for
// this scrape. Entries age out on their own TTL, independent of the
// registry's dynamic-label TTL, since a cached reply and a rendered series
// are different kinds of staleness.
package replycache

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// defaultTTL is how long a cached reply remains eligible for reuse after a
// failed optional command.
const defaultTTL = 10 * time.Minute

// defaultCleanupInterval is how often the underlying cache sweeps expired
// entries.
const defaultCleanupInterval = time.Minute

// Cache stores the most recent successful reply per (router, command) key.
type Cache struct {
	c *cache.Cache
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{c: cache.New(defaultTTL, defaultCleanupInterval)}
}

func key(router, command string) string {
	return router + "\x00" + command
}

// Store records value as the last known-good reply for (router, command).
func (c *Cache) Store(router, command string, value any) {
	c.c.SetDefault(key(router, command), value)
}

// Load returns the last known-good reply for (router, command), if one is
// cached and has not expired.
func (c *Cache) Load(router, command string) (any, bool) {
	return c.c.Get(key(router, command))
}

// PurgeRouter discards every cached reply belonging to router; called when
// a target is removed from the fleet so its stale replies cannot leak into
// a router name that gets reused.
func (c *Cache) PurgeRouter(router string) {
	prefix := router + "\x00"
	for k := range c.c.Items() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.c.Delete(k)
		}
	}
}

// ItemCount returns the number of cached replies, for diagnostics.
func (c *Cache) ItemCount() int {
	return c.c.ItemCount()
}
