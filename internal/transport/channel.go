// Package transport provides the message channel the serving core uses to
// talk to the remote index service, plus the request/reply client layered on
// top of it.
//
// A Channel moves whole byte messages in both directions. Transports are
// selected by URL scheme through a registry, decided once at construction:
//
//	amqp://host:port/vhost/queue   message broker
//	tcp://host:port                framed network socket
//	ipc:///path/to/socket          framed unix socket
//	inproc://name                  in-process endpoint
//
// A channel is owned by a single caller; concurrent callers each create
// their own. A bound (server) channel replies to whichever peer it last
// received from.
package transport

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

type Channel interface {
	// SetTimeout bounds subsequent RecvBytes calls.
	SetTimeout(d time.Duration)

	// SendBytes transmits the buffer as one message, blocking until the
	// transport accepts it.
	SendBytes(p []byte) error

	// RecvBytes blocks up to the configured timeout. A timeout returns
	// (nil, false, nil); transport failures return an error.
	RecvBytes() ([]byte, bool, error)

	Close() error
}

type Factory struct {
	Connect func(u *url.URL, identity string) (Channel, error)
	Bind    func(u *url.URL, identity string) (Channel, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

func Register(scheme string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = f
}

func lookup(rawURL string) (*url.URL, Factory, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, Factory{}, fmt.Errorf("invalid channel url %q: %w", rawURL, err)
	}

	registryMu.RLock()
	f, ok := registry[u.Scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, Factory{}, fmt.Errorf("unknown channel scheme %q", u.Scheme)
	}
	return u, f, nil
}

// Connect creates a client channel to the endpoint named by rawURL.
func Connect(rawURL, identity string) (Channel, error) {
	u, f, err := lookup(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Connect(u, identity)
}

// Bind creates a server channel listening at the endpoint named by rawURL.
func Bind(rawURL, identity string) (Channel, error) {
	u, f, err := lookup(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Bind(u, identity)
}
