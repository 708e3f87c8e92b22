// Package client implements ClientEndpoint, a supervisor that resolves,
// connects, TLS-handshakes, and runs the frame loop for one outbound
// connection, with a heartbeat and a fixed-delay, unconditional
// auto-reconnect.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/socketbroker/socketbroker/defaults"
	"github.com/socketbroker/socketbroker/logging"
	"github.com/socketbroker/socketbroker/message"
	"github.com/socketbroker/socketbroker/metrics"
	"github.com/socketbroker/socketbroker/queue"
	"github.com/socketbroker/socketbroker/tlsconfig"
	"github.com/socketbroker/socketbroker/transport"
	"github.com/socketbroker/socketbroker/wireerr"
)

// Default timings: fixed reconnect delay and heartbeat cadence, no
// backoff and no maximum attempts.
const (
	DefaultReconnectDelay    = defaults.ReconnectDelay
	DefaultHeartbeatInterval = defaults.HeartbeatInterval
)

// Options configures a ClientEndpoint. Host/Port/cert paths and the
// heartbeat identifier are supplied by the caller at construction time;
// certificate provisioning itself stays an external concern.
type Options[K comparable] struct {
	Host string
	Port uint16

	CertFile string
	KeyFile  string
	CAFile   string

	// Heartbeat governs whether this client sends periodic pulse frames
	// (a device-style client role) and under what identifier/interval.
	// Heartbeat=false disables pulsing entirely, whatever HeartbeatID is.
	Heartbeat         bool
	HeartbeatID       K
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration

	// OnMessageReceived is invoked by the dispatcher goroutine (never by the
	// reactor) for every inbound message, in arrival order.
	OnMessageReceived func(message.Message[K])

	Logger  logging.Logger
	Metrics *metrics.Collector
}

func (o *Options[K]) setDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.Logger == nil {
		o.Logger = logging.Noop()
	}
	if o.OnMessageReceived == nil {
		o.OnMessageReceived = func(message.Message[K]) {}
	}
}

// ClientEndpoint drives one Connection: resolve, connect, TLS-handshake,
// frame-loop, with heartbeat and auto-reconnect.
type ClientEndpoint[K comparable] struct {
	opts     Options[K]
	tlsConf  *tls.Config
	inbound  *queue.FIFO[message.OwnedMessage[K]]

	mu      sync.Mutex
	current *transport.Connection[K]

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a ClientEndpoint and loads its TLS material. It does not
// connect yet; call Connect to start the reactor.
func New[K comparable](opts Options[K]) (*ClientEndpoint[K], error) {
	opts.setDefaults()
	tlsConf, err := tlsconfig.ClientMutualConfig(tlsconfig.Paths{
		CertFile: opts.CertFile, KeyFile: opts.KeyFile, CAFile: opts.CAFile,
	}, opts.Host)
	if err != nil {
		return nil, err
	}
	return &ClientEndpoint[K]{
		opts:    opts,
		tlsConf: tlsConf,
		inbound: queue.New[message.OwnedMessage[K]](),
	}, nil
}

// Connect begins the connect+reconnect loop in background goroutines and
// returns immediately.
func (e *ClientEndpoint[K]) Connect(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	e.group = g
	g.Go(func() error {
		e.reactor(gctx)
		return nil
	})
}

// reactor runs attemptConnect/reconnect forever until ctx is cancelled.
func (e *ClientEndpoint[K]) reactor(ctx context.Context) {
	for ctx.Err() == nil {
		e.attemptConnect(ctx)
		if ctx.Err() != nil {
			return
		}
		e.opts.Logger.Infof("client: disconnected, reconnecting in %s", e.opts.ReconnectDelay)
		if e.opts.Metrics != nil {
			e.opts.Metrics.Reconnect()
		}
		select {
		case <-time.After(e.opts.ReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// attemptConnect performs resolve -> connect -> handshake -> frame-loop,
// blocking until the connection dies or ctx is cancelled.
func (e *ClientEndpoint[K]) attemptConnect(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", e.opts.Host, e.opts.Port)

	resolved, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		e.opts.Logger.Errorf("client: resolve %s failed: %v", addr, err)
		_ = wireerr.NewResolveError(addr, err)
		return
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, defaults.DialTimeout)
	rawConn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", resolved.String())
	cancelDial()
	if err != nil {
		e.opts.Logger.Errorf("client: connect %s failed: %v", addr, err)
		_ = wireerr.NewConnectError(addr, err)
		return
	}

	tlsConn := tls.Client(rawConn, e.tlsConf)
	hsCtx, cancelHS := context.WithTimeout(ctx, defaults.HandshakeTimeout)
	err = tlsConn.HandshakeContext(hsCtx)
	cancelHS()
	if err != nil {
		_ = rawConn.Close()
		e.opts.Logger.Errorf("client: handshake with %s failed: %v", addr, err)
		_ = wireerr.NewHandshakeError(addr, err)
		return
	}

	conn := transport.New[K](transport.ClientSide, tlsConn, e.inbound, e.opts.Logger, e.opts.Metrics)
	e.mu.Lock()
	e.current = conn
	e.mu.Unlock()

	var pulseWG sync.WaitGroup
	pulseCtx, cancelPulse := context.WithCancel(ctx)
	if e.opts.Heartbeat {
		pulseWG.Add(1)
		go func() {
			defer pulseWG.Done()
			e.pulse(pulseCtx, conn)
		}()
	}

	conn.Run(ctx) // blocks until the connection dies or ctx is cancelled

	cancelPulse()
	pulseWG.Wait()

	e.mu.Lock()
	if e.current == conn {
		e.current = nil
	}
	e.mu.Unlock()
}

// pulse sends an empty heartbeat frame every HeartbeatInterval while conn is
// alive. Heartbeat timer errors stop the heartbeat but leave the
// connection otherwise alone; read errors eventually detect loss.
func (e *ClientEndpoint[K]) pulse(ctx context.Context, conn *transport.Connection[K]) {
	ticker := time.NewTicker(e.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case <-ticker.C:
			if !conn.IsConnected() {
				return
			}
			conn.Send(message.New[K](e.opts.HeartbeatID))
			if e.opts.Metrics != nil {
				e.opts.Metrics.Heartbeat()
			}
		}
	}
}

// IsConnected reports whether the current socket is open.
func (e *ClientEndpoint[K]) IsConnected() bool {
	e.mu.Lock()
	conn := e.current
	e.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

// Send enqueues msg if connected; otherwise it is silently dropped.
func (e *ClientEndpoint[K]) Send(msg message.Message[K]) {
	e.mu.Lock()
	conn := e.current
	e.mu.Unlock()
	if conn != nil {
		conn.Send(msg)
	}
}

// IncomingMessages returns the endpoint's inbound FIFO handle.
func (e *ClientEndpoint[K]) IncomingMessages() *queue.FIFO[message.OwnedMessage[K]] {
	return e.inbound
}

// HandleMessagesNoThread drains the inbound FIFO once, in the caller's
// goroutine, invoking OnMessageReceived for each message. A panicking
// handler is recovered so it cannot take down the caller.
func (e *ClientEndpoint[K]) HandleMessagesNoThread(ctx context.Context) {
	e.inbound.Wait(ctx)
	e.drainOnce()
}

// HandleMessages spawns a dispatcher goroutine that drains forever until
// ctx is cancelled, so a long-running handler can never leak a goroutine
// that silently stops draining.
func (e *ClientEndpoint[K]) HandleMessages(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	prev := e.cancel
	e.cancel = func() {
		cancel()
		if prev != nil {
			prev()
		}
	}
	if e.group == nil {
		g, _ := errgroup.WithContext(ctx)
		e.group = g
	}
	e.group.Go(func() error {
		for ctx.Err() == nil {
			e.inbound.Wait(ctx)
			if ctx.Err() != nil {
				return nil
			}
			e.drainOnce()
		}
		return nil
	})
}

func (e *ClientEndpoint[K]) drainOnce() {
	for {
		owned, ok := e.inbound.PopFront()
		if !ok {
			return
		}
		e.invokeHandler(owned.Message)
	}
}

func (e *ClientEndpoint[K]) invokeHandler(msg message.Message[K]) {
	defer func() {
		if r := recover(); r != nil {
			e.opts.Logger.Errorf("client: OnMessageReceived panicked: %v", r)
		}
	}()
	e.opts.OnMessageReceived(msg)
}

// Disconnect closes the current connection, stops the reactor and any
// dispatcher goroutine, and waits for them to exit.
func (e *ClientEndpoint[K]) Disconnect() {
	e.mu.Lock()
	conn := e.current
	e.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.group != nil {
		_ = e.group.Wait()
	}
}
