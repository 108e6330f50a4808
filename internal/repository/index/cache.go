// Package index mirrors the remote index service's dataset metadata in
// memory. The mirror is rebuilt wholesale by Sync and published with a
// single atomic swap, so readers always observe a complete snapshot.
package index

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jaennil/plateserve/internal/platerr"
	"github.com/jaennil/plateserve/internal/remote"
	"github.com/jaennil/plateserve/pkg/logger"
	"github.com/jaennil/plateserve/pkg/metrics"
)

// Entry is the cached view of one dataset. Entries are value types,
// replaced wholesale on resync, never mutated in place.
type Entry struct {
	ID           int32
	ShortName    string
	Filename     string
	Description  string
	TileFiletype string
	NumLevels    int
	// ReadCursor is the dataset's last-known committed transaction id,
	// substituted for "latest" tile requests.
	ReadCursor int
}

// RemoteClient is the slice of the index service the cache depends on.
type RemoteClient interface {
	ListDatasets() ([]string, error)
	IndexHeader(name string) (remote.Header, error)
	ResolveTile(platefileID int32, col, row, level, transactionID int, exact bool) (remote.Record, error)
	Close() error
}

type Cache struct {
	dial   func() (RemoteClient, error)
	logger logger.Logger

	// mu guards the connection state and serializes all RPC calls: the
	// underlying channel carries one request/reply exchange at a time.
	mu     sync.Mutex
	client RemoteClient

	entries atomic.Pointer[map[int32]Entry]
}

func NewCache(dial func() (RemoteClient, error), l logger.Logger) *Cache {
	return &Cache{dial: dial, logger: l}
}

// Connect establishes the RPC client on first call and is a no-op after a
// success. A failed attempt leaves the cache disconnected so a later call
// can retry.
func (c *Cache) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	client, err := c.dial()
	if err != nil {
		return platerr.Wrap(platerr.KindServerError, "failed to connect to index service", err)
	}
	c.client = client
	c.logger.Info("connected to index service")
	return nil
}

// Sync rebuilds the dataset map from a fresh listing. Datasets whose
// headers cannot be fetched are logged and skipped; they never abort the
// sync. The new map replaces the old one atomically.
func (c *Cache) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return platerr.New(platerr.KindServerError, "must connect before syncing the index cache")
	}

	start := time.Now()

	names, err := c.client.ListDatasets()
	if err != nil {
		return platerr.Wrap(platerr.KindServerError, "failed to list datasets", err)
	}

	fresh := make(map[int32]Entry, len(names))
	for _, name := range names {
		hdr, err := c.client.IndexHeader(name)
		if err != nil {
			c.logger.Error("failed to add dataset to index cache", "dataset", name, "error", err)
			continue
		}

		entry := Entry{
			ID:           hdr.PlatefileID,
			ShortName:    name,
			Filename:     hdr.Filename,
			Description:  hdr.Description,
			TileFiletype: hdr.TileFiletype,
			NumLevels:    hdr.NumLevels,
			ReadCursor:   hdr.TransactionCursor,
		}
		if entry.Description == "" {
			entry.Description = name + "." + strconv.Itoa(entry.ReadCursor)
		}

		fresh[entry.ID] = entry
		c.logger.Debug("added dataset to index cache", "dataset", name, "id", entry.ID, "cursor", entry.ReadCursor)
	}

	c.entries.Store(&fresh)
	metrics.IndexSyncDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (c *Cache) Lookup(id int32) (Entry, bool) {
	snapshot := c.entries.Load()
	if snapshot == nil {
		return Entry{}, false
	}
	entry, ok := (*snapshot)[id]
	return entry, ok
}

// Snapshot returns the current dataset map. Callers must treat it as
// read-only; it is shared with every other reader of the same snapshot.
func (c *Cache) Snapshot() map[int32]Entry {
	snapshot := c.entries.Load()
	if snapshot == nil {
		return nil
	}
	return *snapshot
}

// ResolveTile forwards a tile lookup to the remote index, serialized with
// every other call on the shared channel.
func (c *Cache) ResolveTile(platefileID int32, col, row, level, transactionID int, exact bool) (remote.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return remote.Record{}, platerr.New(platerr.KindServerError, "must connect before resolving tiles")
	}
	return c.client.ResolveTile(platefileID, col, row, level, transactionID, exact)
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
