// Package conn owns a single TCP socket to one Riak node and drives
// one request through to one or many responses over it, enforcing
// read/write deadlines and surfacing the three error categories the
// dispatcher needs to make retry decisions: communication, remote,
// and shutdown.
package conn

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"

	"github.com/riakclient/goriak/internal/rpb"
)

// Config carries the per-node dial/deadline settings a Connection
// needs. It is duplicated from the node configuration the cluster
// layer owns so this package has no dependency on it.
type Config struct {
	Addr           string // host:port
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// ProxyURL, if set, dials through a SOCKS5 proxy (e.g.
	// "socks5://127.0.0.1:1080") instead of connecting directly —
	// the wire-level analogue of the teacher's configurable dialer.
	ProxyURL string
	TLS      *TLSConfig
}

// TLSConfig enables transport security on the binary-protocol socket.
// Riak's PB port does not negotiate TLS itself in older protocol
// versions; when configured, the dial simply wraps the raw TCP
// connection in a TLS client using stdlib crypto/tls (see
// internal/conn/dial.go), no third-party TLS stack needed.
type TLSConfig struct {
	ServerName         string
	InsecureSkipVerify bool
}

// ErrShutdown is returned by any method called on a connection after
// Close has been invoked while it was in use.
var ErrShutdown = errors.New("conn: connection disposed while in use")

// Connection owns one socket. It is not safe for concurrent use by
// more than one logical operation — the pool only ever hands it to a
// single borrower at a time (spec §3 invariant).
type Connection struct {
	cfg  Config
	nc   net.Conn
	codec *rpb.Codec

	mu     sync.Mutex
	broken bool
	closed bool
}

// Dial opens a new Connection to cfg.Addr, applying ConnectTimeout to
// the dial itself and routing through a SOCKS5 proxy when configured.
func Dial(ctx context.Context, cfg Config) (*Connection, error) {
	nc, err := dial(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "conn: dial")
	}
	return &Connection{cfg: cfg, nc: nc, codec: rpb.New(nc)}, nil
}

func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	d := &net.Dialer{Timeout: cfg.ConnectTimeout}
	var nc net.Conn
	var err error
	if cfg.ProxyURL != "" {
		proxyDialer, perr := proxyDialerFromURL(cfg.ProxyURL, d)
		if perr != nil {
			return nil, perr
		}
		nc, err = proxyDialContext(ctx, proxyDialer, "tcp", cfg.Addr)
	} else {
		nc, err = d.DialContext(ctx, "tcp", cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	if cfg.TLS != nil {
		return wrapTLS(nc, cfg.TLS)
	}
	return nc, nil
}

func proxyDialerFromURL(rawURL string, forward *net.Dialer) (proxy.Dialer, error) {
	u, err := parseProxyURL(rawURL)
	if err != nil {
		return nil, err
	}
	return proxy.FromURL(u, forward)
}

// NewForTest builds a Connection directly over an already-established
// net.Conn, bypassing Dial. It exists so internal/pool and
// internal/cluster can exercise pool/dispatcher bookkeeping against a
// net.Pipe() without a real Riak server.
func NewForTest(nc net.Conn) *Connection {
	return &Connection{cfg: Config{}, nc: nc, codec: rpb.New(nc)}
}

// Broken reports whether a communication error has already killed
// this connection. The pool checks this on release to decide whether
// to discard rather than reuse it.
func (c *Connection) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

func (c *Connection) markBroken() {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

// Close tears down the underlying socket. Safe to call more than
// once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.nc.Close()
}

func (c *Connection) setDeadlines() error {
	now := time.Now()
	if c.cfg.WriteTimeout > 0 {
		if err := c.nc.SetWriteDeadline(now.Add(c.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	if c.cfg.ReadTimeout > 0 {
		if err := c.nc.SetReadDeadline(now.Add(c.cfg.ReadTimeout)); err != nil {
			return err
		}
	}
	return nil
}

// WriteRead performs a ping-style round trip: write requestCode with
// an empty body, read one frame back and require it be responseCode.
func (c *Connection) WriteRead(requestCode, responseCode rpb.Code) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrShutdown
	}
	if err := c.setDeadlines(); err != nil {
		c.markBroken()
		return errors.Wrap(err, "conn: set deadlines")
	}
	if err := c.codec.Write(requestCode, nil); err != nil {
		c.markBroken()
		return err
	}
	code, _, err := c.codec.Read()
	if err != nil {
		c.markBroken()
		return err
	}
	if code != responseCode {
		c.markBroken()
		return &rpb.CodeMismatchError{Expected: responseCode, Got: code}
	}
	return nil
}

// WriteReadTyped performs one typed round trip.
func (c *Connection) WriteReadTyped(
	request interface{}, requestCode rpb.Code, serialize rpb.Serializer,
	responseCode rpb.Code, deserialize rpb.Deserializer,
) (interface{}, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrShutdown
	}
	if err := c.setDeadlines(); err != nil {
		c.markBroken()
		return nil, errors.Wrap(err, "conn: set deadlines")
	}
	if err := c.codec.WriteTyped(requestCode, request, serialize); err != nil {
		c.markBroken()
		return nil, err
	}
	resp, err := c.codec.ReadTyped(responseCode, deserialize)
	if err != nil {
		if _, isRemote := err.(*rpb.RemoteError); !isRemote {
			c.markBroken()
		}
		return nil, err
	}
	return resp, nil
}

// IsLast decides, for a streaming response, whether the frame just
// decoded is the terminal one.
type IsLast func(resp interface{}) bool

// WriteReadStreaming writes request once, then reads and decodes
// frames until IsLast returns true, eagerly materializing every
// decoded response. It surfaces the first error and stops.
func (c *Connection) WriteReadStreaming(
	request interface{}, requestCode rpb.Code, serialize rpb.Serializer,
	responseCode rpb.Code, deserialize rpb.Deserializer, isLast IsLast,
) ([]interface{}, error) {
	if err := c.startStream(request, requestCode, serialize); err != nil {
		return nil, err
	}
	var out []interface{}
	for {
		resp, err := c.readStreamFrame(responseCode, deserialize)
		if err != nil {
			return out, err
		}
		out = append(out, resp)
		if isLast(resp) {
			return out, nil
		}
	}
}

// StreamHandle is the lazily-drained, once-iterable sequence returned
// by WriteReadStreamingDelayed. Next must be called until it returns
// done==true or an error; onFinish fires exactly once, whichever
// happens first — full drain or Close.
type StreamHandle struct {
	c          *Connection
	respCode   rpb.Code
	deserialize rpb.Deserializer
	isLast     IsLast
	onFinish   func()
	finishOnce sync.Once
	finished   bool
}

// Next reads and decodes the next frame. done is true once the
// terminal frame (or an error) has been consumed; callers must stop
// calling Next at that point.
func (h *StreamHandle) Next() (value interface{}, done bool, err error) {
	if h.finished {
		return nil, true, nil
	}
	resp, err := h.c.readStreamFrame(h.respCode, h.deserialize)
	if err != nil {
		h.finish()
		return nil, true, err
	}
	if h.isLast(resp) {
		h.finish()
		return resp, true, nil
	}
	return resp, false, nil
}

// Close releases the connection early if the caller abandons the
// stream before draining it; safe to call after a full drain too.
func (h *StreamHandle) Close() {
	h.finish()
}

func (h *StreamHandle) finish() {
	h.finishOnce.Do(func() {
		h.finished = true
		if h.onFinish != nil {
			h.onFinish()
		}
	})
}

// WriteReadStreamingDelayed writes request once and returns a
// StreamHandle the caller drains at its own pace; onFinish fires
// exactly once, on full consumption or on Close, whichever is first.
func (c *Connection) WriteReadStreamingDelayed(
	request interface{}, requestCode rpb.Code, serialize rpb.Serializer,
	responseCode rpb.Code, deserialize rpb.Deserializer, isLast IsLast, onFinish func(),
) (*StreamHandle, error) {
	if err := c.startStream(request, requestCode, serialize); err != nil {
		onFinish()
		return nil, err
	}
	return &StreamHandle{c: c, respCode: responseCode, deserialize: deserialize, isLast: isLast, onFinish: onFinish}, nil
}

func (c *Connection) startStream(request interface{}, requestCode rpb.Code, serialize rpb.Serializer) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrShutdown
	}
	if err := c.setDeadlines(); err != nil {
		c.markBroken()
		return errors.Wrap(err, "conn: set deadlines")
	}
	if err := c.codec.WriteTyped(requestCode, request, serialize); err != nil {
		c.markBroken()
		return err
	}
	return nil
}

func (c *Connection) readStreamFrame(responseCode rpb.Code, deserialize rpb.Deserializer) (interface{}, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrShutdown
	}
	if err := c.setDeadlines(); err != nil {
		c.markBroken()
		return nil, errors.Wrap(err, "conn: set deadlines")
	}
	resp, err := c.codec.ReadTyped(responseCode, deserialize)
	if err != nil {
		if _, isRemote := err.(*rpb.RemoteError); !isRemote {
			c.markBroken()
		}
		return nil, err
	}
	return resp, nil
}
