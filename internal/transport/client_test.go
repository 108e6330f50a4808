package transport

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jaennil/plateserve/internal/platerr"
	"github.com/jaennil/plateserve/pkg/logger"
)

type scriptedRecv struct {
	reply   *Response
	timeout bool
}

// scriptChannel feeds a canned sequence of receive outcomes to the rpc
// client and records everything it sends.
type scriptChannel struct {
	sent    [][]byte
	scripts []scriptedRecv
}

func (c *scriptChannel) SetTimeout(time.Duration) {}

func (c *scriptChannel) SendBytes(p []byte) error {
	buf := make([]byte, len(p))
	copy(buf, p)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *scriptChannel) RecvBytes() ([]byte, bool, error) {
	if len(c.scripts) == 0 {
		return nil, false, nil
	}
	s := c.scripts[0]
	c.scripts = c.scripts[1:]
	if s.timeout {
		return nil, false, nil
	}
	buf, err := json.Marshal(s.reply)
	if err != nil {
		return nil, false, err
	}
	return buf, true, nil
}

func (c *scriptChannel) Close() error { return nil }

func TestClientCallSuccess(t *testing.T) {
	ch := &scriptChannel{scripts: []scriptedRecv{
		{reply: &Response{Seq: 1, Result: json.RawMessage(`{"answer":26}`)}},
	}}
	client := NewClient(ch, "index", time.Second, 5, logger.NewNop())

	var result struct {
		Answer int `json:"answer"`
	}
	if err := client.Call("Double", map[string]int{"value": 13}, &result); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if result.Answer != 26 {
		t.Fatalf("answer = %d, want 26", result.Answer)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("sent %d requests, want 1", len(ch.sent))
	}
}

func TestClientResendsOnTimeout(t *testing.T) {
	ch := &scriptChannel{scripts: []scriptedRecv{
		{timeout: true},
		{timeout: true},
		{reply: &Response{Seq: 1}},
	}}
	client := NewClient(ch, "index", 10*time.Millisecond, 5, logger.NewNop())

	if err := client.Call("Ping", nil, nil); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(ch.sent) != 3 {
		t.Fatalf("sent %d requests, want 3", len(ch.sent))
	}
}

func TestClientExhaustsRetries(t *testing.T) {
	ch := &scriptChannel{}
	client := NewClient(ch, "index", 10*time.Millisecond, 3, logger.NewNop())

	err := client.Call("Ping", nil, nil)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if !platerr.IsServerError(err) {
		t.Fatalf("kind = %v, want server error", platerr.KindOf(err))
	}
	if !strings.Contains(err.Error(), "3 attempts") {
		t.Fatalf("error should carry the attempt context, got %q", err)
	}
	if len(ch.sent) != 3 {
		t.Fatalf("sent %d requests, want 3", len(ch.sent))
	}
}

func TestClientRemoteErrorKinds(t *testing.T) {
	tests := []struct {
		kind string
		want platerr.Kind
	}{
		{RemoteTileNotFound, platerr.KindTileNotFound},
		{RemoteBadRequest, platerr.KindBadRequest},
		{RemoteServerError, platerr.KindServerError},
	}

	for _, tt := range tests {
		ch := &scriptChannel{scripts: []scriptedRecv{
			{reply: &Response{Seq: 1, Error: &RemoteError{Kind: tt.kind, Message: "nope"}}},
		}}
		client := NewClient(ch, "index", time.Second, 1, logger.NewNop())

		err := client.Call("ResolveTile", nil, nil)
		if platerr.KindOf(err) != tt.want {
			t.Fatalf("remote kind %q mapped to %v, want %v", tt.kind, platerr.KindOf(err), tt.want)
		}
	}
}

func TestClientDiscardsStaleReplies(t *testing.T) {
	ch := &scriptChannel{scripts: []scriptedRecv{
		{reply: &Response{Seq: 99}},
		{reply: &Response{Seq: 1}},
	}}
	client := NewClient(ch, "index", time.Second, 1, logger.NewNop())

	if err := client.Call("Ping", nil, nil); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("sent %d requests, want 1", len(ch.sent))
	}
}
