package usecase

import (
	"github.com/jaennil/plateserve/internal/platerr"
	"github.com/jaennil/plateserve/internal/remote"
	"github.com/jaennil/plateserve/internal/repository/blob"
	"github.com/jaennil/plateserve/internal/repository/index"
	"github.com/jaennil/plateserve/pkg/logger"
	"github.com/jaennil/plateserve/pkg/metrics"
)

// Cache-control windows. Coarse tiles are broadly shared and change
// rarely; fine tiles churn with every commit.
const (
	CoarseLevelCutoff = 7
	MaxAgeCoarse      = 604800 // 7 days
	MaxAgeFine        = 1200   // 20 minutes
)

// TileRequest is one parsed tile request. TransactionID of -1 means
// "latest committed".
type TileRequest struct {
	PlatefileID   int32
	Level         int
	Col           int
	Row           int
	Format        string
	TransactionID int
	Exact         bool
	NoCache       bool
}

type CachePolicy struct {
	NoCache bool
	MaxAge  int
}

// Resolution is the outcome of the index half of a tile request: enough to
// answer a metadata-only request, and enough to locate the payload for a
// full one.
type Resolution struct {
	Entry       index.Entry
	Record      remote.Record
	Transaction int
	Policy      CachePolicy
}

type TileResolver struct {
	index  *index.Cache
	blobs  *blob.Cache
	logger logger.Logger
}

func NewTileResolver(idx *index.Cache, blobs *blob.Cache, l logger.Logger) *TileResolver {
	return &TileResolver{
		index:  idx,
		blobs:  blobs,
		logger: l,
	}
}

// Resolve runs the per-request state machine: validate, look up the
// dataset (resyncing once on a miss), resolve the tile against the remote
// index and decide the cache policy. It performs no blob I/O.
func (r *TileResolver) Resolve(req TileRequest) (*Resolution, error) {
	metrics.TileRequests.Inc()

	if req.TransactionID < -1 {
		return nil, platerr.New(platerr.KindBadRequest, "illegal transaction_id")
	}

	if err := r.index.Connect(); err != nil {
		return nil, err
	}

	entry, ok := r.index.Lookup(req.PlatefileID)
	if !ok {
		// An unknown platefile may simply have been created after our
		// last sync. Resync once before rejecting.
		r.logger.Warn("platefile not in index cache, resyncing", "id", req.PlatefileID)
		if err := r.index.Sync(); err != nil {
			return nil, err
		}
		entry, ok = r.index.Lookup(req.PlatefileID)
		if !ok {
			return nil, platerr.Errorf(platerr.KindBadRequest, "no such platefile [id = %d]", req.PlatefileID)
		}
	}

	transactionID := req.TransactionID
	exact := req.Exact
	if transactionID == -1 {
		// "Latest" reads resolve against the dataset's committed cursor
		// and are inherently inexact.
		transactionID = entry.ReadCursor
		exact = false
	}

	r.logger.Debug("resolving tile",
		"id", req.PlatefileID, "level", req.Level, "col", req.Col, "row", req.Row,
		"transaction", transactionID, "exact", exact)

	record, err := r.index.ResolveTile(entry.ID, req.Col, req.Row, req.Level, transactionID, exact)
	if err != nil {
		switch platerr.KindOf(err) {
		case platerr.KindTileNotFound:
			metrics.TileNotFound.Inc()
			return nil, err
		case platerr.KindBadRequest:
			return nil, err
		default:
			return nil, platerr.Wrap(platerr.KindServerError, "could not read plate index", err)
		}
	}

	return &Resolution{
		Entry:       entry,
		Record:      record,
		Transaction: transactionID,
		Policy:      cachePolicy(req),
	}, nil
}

func cachePolicy(req TileRequest) CachePolicy {
	if req.NoCache {
		return CachePolicy{NoCache: true}
	}
	if req.Level <= CoarseLevelCutoff {
		return CachePolicy{MaxAge: MaxAgeCoarse}
	}
	return CachePolicy{MaxAge: MaxAgeFine}
}

// Sendfile resolves the blob behind a Resolution and translates the record
// offset into the byte range the HTTP layer hands to the kernel.
func (r *TileResolver) Sendfile(res *Resolution) (filename string, offset, size uint64, err error) {
	b, err := r.blobs.Resolve(res.Entry.ID, res.Entry.Filename, res.Record.BlobID)
	if err != nil {
		return "", 0, 0, platerr.Wrap(platerr.KindServerError, "could not load blob data", err)
	}

	filename, offset, size, err = b.ReadSendfile(res.Record.BlobOffset)
	if err != nil {
		return "", 0, 0, platerr.Wrap(platerr.KindServerError, "could not load blob data", err)
	}
	return filename, offset, size, nil
}
