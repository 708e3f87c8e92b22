// Package transport implements Connection, the framing state machine that
// wraps one TLS-over-TCP stream. Each Connection owns an outbound send
// queue and is fed messages onto a shared inbound queue, with one reader
// goroutine and one writer goroutine per Connection driving the read/write
// state machines.
package transport

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/socketbroker/socketbroker/logging"
	"github.com/socketbroker/socketbroker/message"
	"github.com/socketbroker/socketbroker/metrics"
	"github.com/socketbroker/socketbroker/queue"
	"github.com/socketbroker/socketbroker/wireerr"
)

// Role discriminates which side of the handshake a Connection played. It
// affects only which side initiated the TLS handshake and what the
// OwnedMessage.Sender field holds.
type Role int

const (
	// ServerSide marks a Connection accepted by a ServerEndpoint.
	ServerSide Role = iota
	// ClientSide marks a Connection dialed by a ClientEndpoint.
	ClientSide
)

func (r Role) String() string {
	if r == ServerSide {
		return "server"
	}
	return "client"
}

// Connection wraps one TLS stream and its framing state machines. It is
// shared between its owning endpoint (registry entry or client supervisor)
// and its own reader/writer goroutines; the uuid handle is the stable way
// callers reference it even after it closes.
type Connection[K comparable] struct {
	id       uuid.UUID
	role     Role
	conn     net.Conn
	inbound  *queue.FIFO[message.OwnedMessage[K]]
	outbound *queue.FIFO[message.Message[K]]
	log      logging.Logger
	metrics  *metrics.Collector

	mu       sync.Mutex
	open     bool
	lastErr  error
	closed   chan struct{}
	closeOne sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// New wraps conn (already past the TLS handshake) as a Connection of the
// given role, whose read loop enqueues onto inbound.
func New[K comparable](role Role, conn net.Conn, inbound *queue.FIFO[message.OwnedMessage[K]], log logging.Logger, mcs *metrics.Collector) *Connection[K] {
	if log == nil {
		log = logging.Noop()
	}
	return &Connection[K]{
		id:       uuid.New(),
		role:     role,
		conn:     conn,
		inbound:  inbound,
		outbound: queue.New[message.Message[K]](),
		log:      log,
		metrics:  mcs,
		open:     true,
		closed:   make(chan struct{}),
	}
}

// ID returns this Connection's stable handle.
func (c *Connection[K]) ID() uuid.UUID { return c.id }

// Role reports which side of the handshake this Connection played.
func (c *Connection[K]) Role() Role { return c.role }

// RemoteAddr returns the peer's network address, or "" if unknown.
func (c *Connection[K]) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// IsConnected reports whether the underlying socket is still open.
func (c *Connection[K]) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Done returns a channel closed once the Connection has terminated, for any
// reason (local Close, or a read/write failure).
func (c *Connection[K]) Done() <-chan struct{} { return c.closed }

// Err returns the error that caused termination, if any.
func (c *Connection[K]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Send enqueues msg for delivery. Send never fails visibly: if the
// connection is already closed the message is silently dropped, exactly
// like the client/server Send wrappers that call it.
func (c *Connection[K]) Send(msg message.Message[K]) {
	if !c.IsConnected() {
		return
	}
	c.outbound.PushBack(msg)
	if c.metrics != nil {
		c.metrics.SentOne()
	}
}

// Close closes the underlying socket. Safe to call more than once and from
// any goroutine; subsequent calls are no-ops.
func (c *Connection[K]) Close() error {
	return c.fail(nil)
}

// fail marks the connection closed, recording err (if any) as the reason,
// and closes the underlying socket. Idempotent. Cancelling the internal
// context is what wakes a writeLoop blocked in outbound.Wait: a peer-side
// read error must unblock the writer too, not just the reader, or Run would
// never return.
func (c *Connection[K]) fail(err error) error {
	var closeErr error
	c.closeOne.Do(func() {
		c.mu.Lock()
		c.open = false
		c.lastErr = err
		cancel := c.cancel
		c.mu.Unlock()
		closeErr = c.conn.Close()
		c.outbound.Clear()
		if cancel != nil {
			cancel()
		}
		close(c.closed)
	})
	return closeErr
}

// Run starts the reader and writer goroutines and blocks until both have
// exited (i.e. until the connection has closed). Callers that want a
// non-blocking start should invoke Run in its own goroutine. Run derives its
// own cancelable context from ctx so that a read error (which closes the
// connection) promptly unblocks the writer even while ctx itself is still
// live; ctx cancellation from the caller also stops both loops.
func (c *Connection[K]) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.ctx = runCtx
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()
	stop := context.AfterFunc(runCtx, func() { _ = c.Close() })
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readLoop()
	}()
	go func() {
		defer wg.Done()
		c.writeLoop(runCtx)
	}()
	wg.Wait()
}

// readLoop implements ReadHeader -> (ReadBody) -> Enqueue -> ReadHeader. On
// any read error it closes the connection; the caller (client supervisor
// or server accept loop) observes termination via Done().
func (c *Connection[K]) readLoop() {
	for {
		hdr, err := message.DecodeHeader[K](c.conn)
		if err != nil {
			c.closeOnReadErr(err)
			return
		}
		m := message.Message[K]{Header: hdr}
		if hdr.BodyLength > 0 {
			m.Body = make([]byte, hdr.BodyLength)
			if _, err := io.ReadFull(c.conn, m.Body); err != nil {
				c.closeOnReadErr(err)
				return
			}
		}
		var owned message.OwnedMessage[K]
		if c.role == ServerSide {
			owned = message.OwnedMessage[K]{Sender: c, Message: m}
		} else {
			owned = message.OwnedMessage[K]{Sender: nil, Message: m}
		}
		c.inbound.PushBack(owned)
		if c.metrics != nil {
			c.metrics.ReceivedOne()
		}
	}
}

func (c *Connection[K]) closeOnReadErr(err error) {
	if !c.IsConnected() {
		return
	}
	c.log.Warnf("connection %s: read failed: %v", c.id, err)
	c.fail(wireerr.NewReadError(c.RemoteAddr(), err))
}

// writeLoop drains the outbound FIFO strictly in enqueue order; because a
// single goroutine owns the outbound queue, at most one write chain is
// ever in flight.
func (c *Connection[K]) writeLoop(ctx context.Context) {
	for {
		c.outbound.Wait(ctx)
		if ctx.Err() != nil {
			return
		}
		for {
			msg, ok := c.outbound.PopFront()
			if !ok {
				break
			}
			if err := message.Encode[K](c.conn, msg); err != nil {
				c.log.Warnf("connection %s: write failed: %v", c.id, err)
				c.fail(wireerr.NewWriteError(c.RemoteAddr(), err))
				return
			}
		}
		if !c.IsConnected() {
			return
		}
	}
}
