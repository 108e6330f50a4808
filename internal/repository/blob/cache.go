package blob

import (
	"fmt"
	"sync"

	"github.com/jaennil/plateserve/pkg/logger"
	"github.com/jaennil/plateserve/pkg/metrics"
)

type cacheEntry struct {
	blob        *Blob
	platefileID int32
}

// Cache maps computed blob filenames to open handles. Entries are created
// lazily and never evicted; the map is bounded by the number of distinct
// blob files touched over the process lifetime.
type Cache struct {
	logger logger.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCache(l logger.Logger) *Cache {
	return &Cache{
		logger:  l,
		entries: make(map[string]cacheEntry),
	}
}

// Filename computes the on-disk name of one blob within a dataset.
func Filename(plateFilename string, blobID uint32) string {
	return fmt.Sprintf("%s/plate_%d.blob", plateFilename, blobID)
}

// Resolve returns a shared handle for the blob file, opening it on first
// use. A cached handle is only reused when its owning dataset id matches:
// the same filename can belong to a different dataset after a delete and
// recreate, and serving the stale handle would leak the old file's bytes.
func (c *Cache) Resolve(platefileID int32, plateFilename string, blobID uint32) (*Blob, error) {
	filename := Filename(plateFilename, blobID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[filename]; ok && entry.platefileID == platefileID {
		return entry.blob, nil
	}

	b, err := Open(filename)
	if err != nil {
		return nil, err
	}

	// A replaced stale handle stays open: in-flight requests may still be
	// reading through it.
	c.entries[filename] = cacheEntry{blob: b, platefileID: platefileID}
	metrics.BlobCacheSize.Set(float64(len(c.entries)))
	c.logger.Debug("opened blob", "filename", filename, "platefile_id", platefileID)

	return b, nil
}

// Len reports how many handles the cache holds.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
