package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sync"
	"time"
)

func init() {
	Register("tcp", Factory{
		Connect: func(u *url.URL, id string) (Channel, error) { return dialSocket("tcp", u.Host) },
		Bind:    func(u *url.URL, id string) (Channel, error) { return listenSocket("tcp", u.Host) },
	})
	Register("ipc", Factory{
		Connect: func(u *url.URL, id string) (Channel, error) { return dialSocket("unix", u.Path) },
		Bind:    func(u *url.URL, id string) (Channel, error) { return bindUnix(u.Path) },
	})
}

// Messages on socket transports are framed with a 4-byte big-endian length
// prefix.
const maxFrameSize = 64 << 20

func writeFrame(w io.Writer, p []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

type socketClient struct {
	conn    net.Conn
	timeout time.Duration
	writeMu sync.Mutex
}

func dialSocket(network, addr string) (Channel, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s channel to %s: %w", network, addr, err)
	}
	return &socketClient{conn: conn}, nil
}

func (c *socketClient) SetTimeout(d time.Duration) { c.timeout = d }

func (c *socketClient) SendBytes(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.conn, p)
}

func (c *socketClient) RecvBytes() ([]byte, bool, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, false, err
		}
	} else {
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, false, err
		}
	}

	buf, err := readFrame(c.conn)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, false, nil
		}
		return nil, false, err
	}
	return buf, true, nil
}

func (c *socketClient) Close() error { return c.conn.Close() }

type socketIncoming struct {
	conn net.Conn
	data []byte
}

type socketServer struct {
	listener net.Listener
	incoming chan socketIncoming
	done     chan struct{}
	timeout  time.Duration

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	lastConn  net.Conn
	closeOnce sync.Once
}

func bindUnix(path string) (Channel, error) {
	// A stale socket file from a previous run would block the bind.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to clear socket path %s: %w", path, err)
	}
	return listenSocket("unix", path)
}

func listenSocket(network, addr string) (Channel, error) {
	l, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s channel at %s: %w", network, addr, err)
	}

	s := &socketServer{
		listener: l,
		incoming: make(chan socketIncoming, 128),
		done:     make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

func (s *socketServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()
		go s.readLoop(conn)
	}
}

// readLoop pushes frames from one connection into the shared incoming
// queue. One goroutine per connection keeps per-sender ordering intact.
func (s *socketServer) readLoop(conn net.Conn) {
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		conn.Close()
	}()

	for {
		buf, err := readFrame(conn)
		if err != nil {
			return
		}
		select {
		case s.incoming <- socketIncoming{conn: conn, data: buf}:
		case <-s.done:
			return
		}
	}
}

func (s *socketServer) SetTimeout(d time.Duration) { s.timeout = d }

func (s *socketServer) SendBytes(p []byte) error {
	if s.lastConn == nil {
		return errors.New("socket: no peer to reply to")
	}
	return writeFrame(s.lastConn, p)
}

func (s *socketServer) RecvBytes() ([]byte, bool, error) {
	var expired <-chan time.Time
	if s.timeout > 0 {
		t := time.NewTimer(s.timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case in := <-s.incoming:
		s.lastConn = in.conn
		return in.data, true, nil
	case <-expired:
		return nil, false, nil
	case <-s.done:
		return nil, false, errors.New("socket: channel closed")
	}
}

func (s *socketServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.listener.Close()
		s.connsMu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.connsMu.Unlock()
	})
	return err
}
