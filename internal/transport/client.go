package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jaennil/plateserve/internal/platerr"
	"github.com/jaennil/plateserve/pkg/logger"
	"github.com/jaennil/plateserve/pkg/metrics"
)

// Request and Response form the JSON envelope carried over a Channel.
type Request struct {
	Seq    uint64          `json:"seq"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	Seq    uint64          `json:"seq"`
	Error  *RemoteError    `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type RemoteError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	RemoteBadRequest   = "bad_request"
	RemoteTileNotFound = "tile_not_found"
	RemoteServerError  = "server_error"
)

func (e *RemoteError) toError() error {
	switch e.Kind {
	case RemoteBadRequest:
		return platerr.New(platerr.KindBadRequest, e.Message)
	case RemoteTileNotFound:
		return platerr.New(platerr.KindTileNotFound, e.Message)
	default:
		return platerr.New(platerr.KindServerError, e.Message)
	}
}

// Client layers a request/reply call convention on a Channel. Calls are
// strictly sequential; each concurrent caller owns its own Client.
type Client struct {
	ch      Channel
	service string
	timeout time.Duration
	tries   int
	seq     uint64
	logger  logger.Logger
}

func NewClient(ch Channel, service string, timeout time.Duration, tries int, l logger.Logger) *Client {
	if tries < 1 {
		tries = 1
	}
	ch.SetTimeout(timeout)
	return &Client{
		ch:      ch,
		service: service,
		timeout: timeout,
		tries:   tries,
		logger:  l,
	}
}

// Call invokes method on the remote service, retrying on timeout up to the
// configured number of attempts. A nil result discards the reply payload.
func (c *Client) Call(method string, params, result any) error {
	c.seq++

	req := Request{Seq: c.seq, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return platerr.Wrap(platerr.KindServerError, fmt.Sprintf("failed to encode %s request", method), err)
		}
		req.Params = raw
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return platerr.Wrap(platerr.KindServerError, fmt.Sprintf("failed to encode %s envelope", method), err)
	}

	for attempt := 1; attempt <= c.tries; attempt++ {
		if attempt > 1 {
			metrics.RPCRetries.Inc()
			c.logger.Warn("rpc retry", "service", c.service, "method", method, "attempt", attempt)
		}

		if err := c.ch.SendBytes(payload); err != nil {
			return platerr.Wrap(platerr.KindServerError, fmt.Sprintf("failed to send %s.%s request", c.service, method), err)
		}

		reply, ok, err := c.recvMatching(req.Seq)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if reply.Error != nil {
			return reply.Error.toError()
		}
		if result != nil && reply.Result != nil {
			if err := json.Unmarshal(reply.Result, result); err != nil {
				return platerr.Wrap(platerr.KindServerError, fmt.Sprintf("failed to decode %s.%s reply", c.service, method), err)
			}
		}
		return nil
	}

	metrics.RPCTimeouts.Inc()
	return platerr.Errorf(platerr.KindServerError, "%s.%s timed out after %d attempts of %s",
		c.service, method, c.tries, c.timeout)
}

// recvMatching waits for the reply with the given sequence number,
// discarding stale replies left over from retried calls.
func (c *Client) recvMatching(seq uint64) (*Response, bool, error) {
	for {
		buf, ok, err := c.ch.RecvBytes()
		if err != nil {
			return nil, false, platerr.Wrap(platerr.KindServerError, "channel receive failed", err)
		}
		if !ok {
			return nil, false, nil
		}

		var reply Response
		if err := json.Unmarshal(buf, &reply); err != nil {
			return nil, false, platerr.Wrap(platerr.KindServerError, "malformed rpc reply", err)
		}
		if reply.Seq != seq {
			c.logger.Debug("discarding stale rpc reply", "service", c.service, "want", seq, "got", reply.Seq)
			continue
		}
		return &reply, true, nil
	}
}

func (c *Client) Close() error { return c.ch.Close() }
