package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jaennil/plateserve/internal/platerr"
	"github.com/jaennil/plateserve/internal/transport"
	"github.com/jaennil/plateserve/pkg/logger"
)

// Backend answers index service requests. Implementations return errors
// tagged with platerr kinds; those kinds survive the wire.
type Backend interface {
	ListDatasets() ([]string, error)
	IndexHeader(name string) (Header, error)
	ResolveTile(platefileID int32, col, row, level, transactionID int, exact bool) (Record, error)
}

// Server drives one bound channel with a single receive/reply loop. It is
// the in-process stand-in for the real index service, used by tests and by
// deployments that colocate the index.
type Server struct {
	ch      transport.Channel
	backend Backend
	logger  logger.Logger
}

func NewServer(ch transport.Channel, backend Backend, l logger.Logger) *Server {
	return &Server{ch: ch, backend: backend, logger: l}
}

// Serve processes requests until ctx is done or the channel fails. The
// channel timeout doubles as the ctx poll interval.
func (s *Server) Serve(ctx context.Context) error {
	s.ch.SetTimeout(100 * time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		buf, ok, err := s.ch.RecvBytes()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		reply := s.dispatch(buf)
		payload, err := json.Marshal(reply)
		if err != nil {
			s.logger.Error("failed to encode reply", "error", err)
			continue
		}
		if err := s.ch.SendBytes(payload); err != nil {
			return err
		}
	}
}

func (s *Server) dispatch(buf []byte) transport.Response {
	var req transport.Request
	if err := json.Unmarshal(buf, &req); err != nil {
		return transport.Response{Error: &transport.RemoteError{
			Kind:    transport.RemoteBadRequest,
			Message: "malformed request envelope",
		}}
	}

	result, err := s.invoke(&req)
	if err != nil {
		return transport.Response{Seq: req.Seq, Error: toRemoteError(err)}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return transport.Response{Seq: req.Seq, Error: &transport.RemoteError{
			Kind:    transport.RemoteServerError,
			Message: "failed to encode result",
		}}
	}
	return transport.Response{Seq: req.Seq, Result: raw}
}

func (s *Server) invoke(req *transport.Request) (any, error) {
	switch req.Method {
	case methodListDatasets:
		names, err := s.backend.ListDatasets()
		if err != nil {
			return nil, err
		}
		return listReply{Names: names}, nil

	case methodIndexHeader:
		var p headerParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, platerr.New(platerr.KindBadRequest, "malformed IndexHeader params")
		}
		return s.backend.IndexHeader(p.Name)

	case methodResolveTile:
		var p resolveParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, platerr.New(platerr.KindBadRequest, "malformed ResolveTile params")
		}
		return s.backend.ResolveTile(p.PlatefileID, p.Col, p.Row, p.Level, p.TransactionID, p.Exact)

	default:
		return nil, platerr.Errorf(platerr.KindBadRequest, "unknown method %q", req.Method)
	}
}

func toRemoteError(err error) *transport.RemoteError {
	kind := transport.RemoteServerError
	switch platerr.KindOf(err) {
	case platerr.KindBadRequest:
		kind = transport.RemoteBadRequest
	case platerr.KindTileNotFound:
		kind = transport.RemoteTileNotFound
	}
	return &transport.RemoteError{Kind: kind, Message: err.Error()}
}
