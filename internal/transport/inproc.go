package transport

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"
)

func init() {
	Register("inproc", Factory{Connect: connectInproc, Bind: bindInproc})
}

type inprocEnvelope struct {
	data  []byte
	reply chan []byte
}

type inprocEndpoint struct {
	requests chan inprocEnvelope
	done     chan struct{}
}

var (
	inprocMu        sync.Mutex
	inprocEndpoints = make(map[string]*inprocEndpoint)
)

func inprocName(u *url.URL) string {
	return u.Host + u.Path
}

type inprocServer struct {
	name    string
	ep      *inprocEndpoint
	timeout time.Duration

	// reply target of the last received message
	lastReply chan []byte

	closeOnce sync.Once
}

func bindInproc(u *url.URL, _ string) (Channel, error) {
	name := inprocName(u)

	inprocMu.Lock()
	defer inprocMu.Unlock()
	if _, exists := inprocEndpoints[name]; exists {
		return nil, fmt.Errorf("inproc endpoint %q already bound", name)
	}

	ep := &inprocEndpoint{
		requests: make(chan inprocEnvelope, 128),
		done:     make(chan struct{}),
	}
	inprocEndpoints[name] = ep

	return &inprocServer{name: name, ep: ep}, nil
}

func (s *inprocServer) SetTimeout(d time.Duration) { s.timeout = d }

func (s *inprocServer) SendBytes(p []byte) error {
	if s.lastReply == nil {
		return errors.New("inproc: no peer to reply to")
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case s.lastReply <- buf:
		return nil
	case <-s.ep.done:
		return errors.New("inproc: endpoint closed")
	}
}

func (s *inprocServer) RecvBytes() ([]byte, bool, error) {
	var expired <-chan time.Time
	if s.timeout > 0 {
		t := time.NewTimer(s.timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case env := <-s.ep.requests:
		s.lastReply = env.reply
		return env.data, true, nil
	case <-expired:
		return nil, false, nil
	case <-s.ep.done:
		return nil, false, errors.New("inproc: endpoint closed")
	}
}

func (s *inprocServer) Close() error {
	s.closeOnce.Do(func() {
		inprocMu.Lock()
		delete(inprocEndpoints, s.name)
		inprocMu.Unlock()
		close(s.ep.done)
	})
	return nil
}

type inprocClient struct {
	ep      *inprocEndpoint
	reply   chan []byte
	timeout time.Duration
}

func connectInproc(u *url.URL, _ string) (Channel, error) {
	name := inprocName(u)

	inprocMu.Lock()
	ep, ok := inprocEndpoints[name]
	inprocMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("inproc endpoint %q is not bound", name)
	}

	return &inprocClient{
		ep:    ep,
		reply: make(chan []byte, 16),
	}, nil
}

func (c *inprocClient) SetTimeout(d time.Duration) { c.timeout = d }

func (c *inprocClient) SendBytes(p []byte) error {
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case c.ep.requests <- inprocEnvelope{data: buf, reply: c.reply}:
		return nil
	case <-c.ep.done:
		return errors.New("inproc: endpoint closed")
	}
}

func (c *inprocClient) RecvBytes() ([]byte, bool, error) {
	var expired <-chan time.Time
	if c.timeout > 0 {
		t := time.NewTimer(c.timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case buf := <-c.reply:
		return buf, true, nil
	case <-expired:
		return nil, false, nil
	case <-c.ep.done:
		return nil, false, errors.New("inproc: endpoint closed")
	}
}

func (c *inprocClient) Close() error { return nil }
