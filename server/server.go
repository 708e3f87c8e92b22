// Package server implements ServerEndpoint: an accept loop and connection
// registry that listens, gates admission, handshakes, registers, and
// supports broadcast/unicast sends with cleanup on disconnect.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/socketbroker/socketbroker/logging"
	"github.com/socketbroker/socketbroker/message"
	"github.com/socketbroker/socketbroker/metrics"
	"github.com/socketbroker/socketbroker/queue"
	"github.com/socketbroker/socketbroker/tlsconfig"
	"github.com/socketbroker/socketbroker/transport"
)

// Options configures a ServerEndpoint.
type Options[K comparable] struct {
	Port uint16

	CertFile string
	KeyFile  string
	CAFile   string

	// OnClientConnect gates admission before the TLS handshake, given the
	// raw peer address. A nil hook rejects everyone; admission defaults
	// closed rather than open.
	OnClientConnect func(remoteAddr string) bool

	// OnClientValidated runs once a Connection has been handshaked and
	// registered, before its read/write loops start.
	OnClientValidated func(conn *transport.Connection[K])

	// OnClientDisconnect runs once a registered Connection is removed.
	OnClientDisconnect func(conn *transport.Connection[K])

	// OnMessageReceived is invoked by the dispatcher goroutine for every
	// inbound message, in arrival order.
	OnMessageReceived func(message.OwnedMessage[K])

	Logger  logging.Logger
	Metrics *metrics.Collector
}

func (o *Options[K]) setDefaults() {
	if o.Logger == nil {
		o.Logger = logging.Noop()
	}
	if o.OnMessageReceived == nil {
		o.OnMessageReceived = func(message.OwnedMessage[K]) {}
	}
	if o.OnClientConnect == nil {
		o.OnClientConnect = func(string) bool { return false }
	}
}

// Registry tracks currently-admitted Connections, keyed by their stable
// uuid handle and kept in insertion order. All mutation goes through one
// mutex; broadcast takes a snapshot of the membership before iterating so a
// Connection closing mid-broadcast cannot corrupt the walk.
type Registry[K comparable] struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*transport.Connection[K]
	order []uuid.UUID
}

func newRegistry[K comparable]() *Registry[K] {
	return &Registry[K]{conns: make(map[uuid.UUID]*transport.Connection[K])}
}

func (r *Registry[K]) add(c *transport.Connection[K]) {
	r.mu.Lock()
	if _, ok := r.conns[c.ID()]; !ok {
		r.order = append(r.order, c.ID())
	}
	r.conns[c.ID()] = c
	r.mu.Unlock()
}

// remove drops id from the registry and reports whether it was present.
func (r *Registry[K]) remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// snapshot returns a copy of the currently-registered connections, in the
// order they were registered.
func (r *Registry[K]) snapshot() []*transport.Connection[K] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*transport.Connection[K], 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.conns[id])
	}
	return out
}

// Len reports the number of currently-registered connections.
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// ServerEndpoint listens for mutually-authenticated clients and exposes a
// shared inbound queue plus broadcast/unicast sends.
type ServerEndpoint[K comparable] struct {
	opts     Options[K]
	tlsConf  *tls.Config
	inbound  *queue.FIFO[message.OwnedMessage[K]]
	registry *Registry[K]

	mu       sync.Mutex
	listener net.Listener

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a ServerEndpoint and loads its TLS material. Start begins
// listening.
func New[K comparable](opts Options[K]) (*ServerEndpoint[K], error) {
	opts.setDefaults()
	tlsConf, err := tlsconfig.ServerMutualConfig(tlsconfig.Paths{
		CertFile: opts.CertFile, KeyFile: opts.KeyFile, CAFile: opts.CAFile,
	})
	if err != nil {
		return nil, err
	}
	return &ServerEndpoint[K]{
		opts:     opts,
		tlsConf:  tlsConf,
		inbound:  queue.New[message.OwnedMessage[K]](),
		registry: newRegistry[K](),
	}, nil
}

// Start binds the listening socket and begins accepting connections in a
// background goroutine. It returns once the socket is bound; accept
// failures after that are logged, not returned.
func (s *ServerEndpoint[K]) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		return fmt.Errorf("server: listen on port %d: %w", s.opts.Port, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	g.Go(func() error {
		s.acceptLoop(gctx, ln)
		return nil
	})
	return nil
}

// acceptLoop accepts connections and re-arms immediately after each one, so
// a slow handshake never blocks new accepts.
func (s *ServerEndpoint[K]) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		rawConn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.opts.Logger.Errorf("server: accept failed: %v", err)
			continue
		}
		s.group.Go(func() error {
			s.admit(ctx, rawConn)
			return nil
		})
	}
}

// admit runs the admission hook, then (if accepted) the TLS handshake,
// registration, and validated hook, then runs the Connection's read/write
// loops until it closes. A rejected connection is closed without ever
// touching the registry.
func (s *ServerEndpoint[K]) admit(ctx context.Context, rawConn net.Conn) {
	remoteAddr := rawConn.RemoteAddr().String()
	if !s.opts.OnClientConnect(remoteAddr) {
		s.opts.Logger.Warnf("server: admission denied for %s", remoteAddr)
		_ = rawConn.Close()
		return
	}

	tlsConn := tls.Server(rawConn, s.tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		s.opts.Logger.Errorf("server: handshake with %s failed: %v", remoteAddr, err)
		_ = rawConn.Close()
		return
	}

	conn := transport.New[K](transport.ServerSide, tlsConn, s.inbound, s.opts.Logger, s.opts.Metrics)
	s.registry.add(conn)
	if s.opts.Metrics != nil {
		s.opts.Metrics.IncActive()
	}
	s.opts.Logger.Infof("server: registered connection %s from %s", conn.ID(), remoteAddr)

	if s.opts.OnClientValidated != nil {
		s.opts.OnClientValidated(conn)
	}

	conn.Run(ctx)

	s.evict(conn)
}

// evict removes conn from the registry and invokes OnClientDisconnect, the
// cleanup every dead-connection path (admit after Run returns, MessageClient,
// MessageAllClients) shares. Only the first eviction of a connection has any
// effect.
func (s *ServerEndpoint[K]) evict(conn *transport.Connection[K]) {
	if !s.registry.remove(conn.ID()) {
		return
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.DecActive()
	}
	if s.opts.OnClientDisconnect != nil {
		s.opts.OnClientDisconnect(conn)
	}
}

// MessageClient unicasts msg to one connection if it is still connected;
// otherwise it invokes OnClientDisconnect and removes it from the registry.
func (s *ServerEndpoint[K]) MessageClient(conn *transport.Connection[K], msg message.Message[K]) {
	if !conn.IsConnected() {
		s.evict(conn)
		return
	}
	conn.Send(msg)
}

// MessageAllClients broadcasts msg to every registered connection except
// ignore (pass nil to exclude none). Membership is snapshotted before the
// walk, so a connection that disconnects mid-broadcast is simply evicted on
// its own turn rather than corrupting the iteration. Dead connections
// encountered along the way are evicted exactly like MessageClient does.
func (s *ServerEndpoint[K]) MessageAllClients(msg message.Message[K], ignore *transport.Connection[K]) {
	conns := s.registry.snapshot()
	sent := 0
	for _, c := range conns {
		if ignore != nil && c.ID() == ignore.ID() {
			continue
		}
		if !c.IsConnected() {
			s.evict(c)
			continue
		}
		c.Send(msg)
		sent++
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.Fanout(sent)
	}
}

// ConnectionCount reports the number of currently-registered connections.
func (s *ServerEndpoint[K]) ConnectionCount() int {
	return s.registry.Len()
}

// IncomingMessages returns the server's shared inbound FIFO handle.
func (s *ServerEndpoint[K]) IncomingMessages() *queue.FIFO[message.OwnedMessage[K]] {
	return s.inbound
}

// HandleRequestsNoThread drains the inbound FIFO once, in the caller's
// goroutine, invoking OnMessageReceived for each message.
func (s *ServerEndpoint[K]) HandleRequestsNoThread(ctx context.Context) {
	s.inbound.Wait(ctx)
	s.drainOnce()
}

// HandleRequests spawns a dispatcher goroutine draining forever until ctx is
// cancelled or Stop is called.
func (s *ServerEndpoint[K]) HandleRequests(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	prev := s.cancel
	s.cancel = func() {
		cancel()
		if prev != nil {
			prev()
		}
	}
	if s.group == nil {
		g, _ := errgroup.WithContext(ctx)
		s.group = g
	}
	s.group.Go(func() error {
		for ctx.Err() == nil {
			s.inbound.Wait(ctx)
			if ctx.Err() != nil {
				return nil
			}
			s.drainOnce()
		}
		return nil
	})
}

func (s *ServerEndpoint[K]) drainOnce() {
	for {
		owned, ok := s.inbound.PopFront()
		if !ok {
			return
		}
		s.invokeHandler(owned)
	}
}

func (s *ServerEndpoint[K]) invokeHandler(owned message.OwnedMessage[K]) {
	defer func() {
		if r := recover(); r != nil {
			s.opts.Logger.Errorf("server: OnMessageReceived panicked: %v", r)
		}
	}()
	s.opts.OnMessageReceived(owned)
}

// Stop stops accepting new connections, closes every registered connection,
// and waits for the accept/dispatcher goroutines to exit.
func (s *ServerEndpoint[K]) Stop() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	for _, c := range s.registry.snapshot() {
		c.Close()
	}
	if s.group != nil {
		return s.group.Wait()
	}
	return nil
}
