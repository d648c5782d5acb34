// Package cache keeps recently read records in memory for the HTTP API.
// It uses patrickmn/go-cache for TTL-based expiry.
package cache

import (
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agentstation/blockquote/pkg/records"
)

const (
	recordPrefix = "record:"
	listPrefix   = "list:"
)

// Cache wraps go-cache with record-aware keys.
type Cache struct {
	store *gocache.Cache
}

// New creates a new cache with the given TTL and cleanup interval.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{
		store: gocache.New(defaultTTL, cleanupInterval),
	}
}

// RecordKey is the cache key of a single record.
func RecordKey(id string) string {
	return recordPrefix + id
}

// ListKey is the cache key of one page of the record list.
func ListKey(p records.Page) string {
	return fmt.Sprintf("%s%d:%d", listPrefix, p.Limit, p.Offset)
}

// Get retrieves a value from the cache.
func (c *Cache) Get(key string) (any, bool) {
	return c.store.Get(key)
}

// Set stores a value in the cache with default TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// InvalidateRecord drops a record and every cached list page, since any
// page may contain it.
func (c *Cache) InvalidateRecord(id string) {
	c.store.Delete(RecordKey(id))
	for key := range c.store.Items() {
		if strings.HasPrefix(key, listPrefix) {
			c.store.Delete(key)
		}
	}
}

// Clear removes all items from the cache.
func (c *Cache) Clear() {
	c.store.Flush()
}

// ItemCount returns the number of items in the cache.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// Stats returns cache statistics.
type Stats struct {
	ItemCount int `json:"item_count"`
}

// GetStats returns current cache statistics.
func (c *Cache) GetStats() Stats {
	return Stats{
		ItemCount: c.store.ItemCount(),
	}
}
