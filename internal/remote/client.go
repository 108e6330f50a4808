// Package remote speaks the index service protocol: listing datasets,
// fetching per-dataset index headers and resolving tile coordinates to
// blob locations.
package remote

import (
	"time"

	"github.com/jaennil/plateserve/internal/transport"
	"github.com/jaennil/plateserve/pkg/logger"
)

// Header is the metadata one dataset's index exposes.
type Header struct {
	PlatefileID       int32  `json:"platefile_id"`
	Filename          string `json:"filename"`
	Description       string `json:"description"`
	TileFiletype      string `json:"tile_filetype"`
	NumLevels         int    `json:"num_levels"`
	TransactionCursor int    `json:"transaction_cursor"`
}

// Record locates one tile inside a blob file.
type Record struct {
	BlobID     uint32 `json:"blob_id"`
	BlobOffset uint64 `json:"blob_offset"`
}

const (
	methodListDatasets = "ListDatasets"
	methodIndexHeader  = "IndexHeader"
	methodResolveTile  = "ResolveTile"
)

type listReply struct {
	Names []string `json:"names"`
}

type headerParams struct {
	Name string `json:"name"`
}

type resolveParams struct {
	PlatefileID   int32 `json:"platefile_id"`
	Col           int   `json:"col"`
	Row           int   `json:"row"`
	Level         int   `json:"level"`
	TransactionID int   `json:"transaction_id"`
	Exact         bool  `json:"exact"`
}

// IndexClient invokes the remote index service over a channel. Not safe
// for concurrent use; each request-handling goroutine needs its own, or
// access must be serialized by the owner.
type IndexClient struct {
	rpc *transport.Client
}

// Dial connects a channel to the index service at rawURL and wraps it in a
// client with the given per-call timeout and retry budget.
func Dial(rawURL, identity, service string, timeout time.Duration, tries int, l logger.Logger) (*IndexClient, error) {
	ch, err := transport.Connect(rawURL, identity)
	if err != nil {
		return nil, err
	}
	return NewIndexClient(transport.NewClient(ch, service, timeout, tries, l)), nil
}

func NewIndexClient(rpc *transport.Client) *IndexClient {
	return &IndexClient{rpc: rpc}
}

func (c *IndexClient) ListDatasets() ([]string, error) {
	var reply listReply
	if err := c.rpc.Call(methodListDatasets, nil, &reply); err != nil {
		return nil, err
	}
	return reply.Names, nil
}

func (c *IndexClient) IndexHeader(name string) (Header, error) {
	var hdr Header
	err := c.rpc.Call(methodIndexHeader, headerParams{Name: name}, &hdr)
	return hdr, err
}

func (c *IndexClient) ResolveTile(platefileID int32, col, row, level, transactionID int, exact bool) (Record, error) {
	var rec Record
	err := c.rpc.Call(methodResolveTile, resolveParams{
		PlatefileID:   platefileID,
		Col:           col,
		Row:           row,
		Level:         level,
		TransactionID: transactionID,
		Exact:         exact,
	}, &rec)
	return rec, err
}

func (c *IndexClient) Close() error { return c.rpc.Close() }
