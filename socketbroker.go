// Package socketbroker is a mutually-authenticated TLS messaging library:
// client and server endpoints exchange length-prefixed, typed binary frames
// over TCP, with a connection registry, broadcast, heartbeat, and automatic
// reconnect on the client side.
package socketbroker

import (
	"github.com/socketbroker/socketbroker/client"
	"github.com/socketbroker/socketbroker/message"
	"github.com/socketbroker/socketbroker/metrics"
	"github.com/socketbroker/socketbroker/queue"
	"github.com/socketbroker/socketbroker/server"
	"github.com/socketbroker/socketbroker/transport"
	"github.com/socketbroker/socketbroker/wireerr"
)

// Version is the current version of the socketbroker library.
const Version = "0.1.0"

// GetVersion returns the current version of the library.
func GetVersion() string {
	return Version
}

// Re-export the types callers need most often, so a typical program only
// imports this package and a message-kind type of its own choosing.
type (
	// ClientEndpoint supervises one outbound connection, with heartbeat and
	// auto-reconnect.
	ClientEndpoint[K comparable] = client.ClientEndpoint[K]

	// ClientOptions configures a ClientEndpoint.
	ClientOptions[K comparable] = client.Options[K]

	// ServerEndpoint accepts inbound connections into a registry and
	// supports unicast and broadcast sends.
	ServerEndpoint[K comparable] = server.ServerEndpoint[K]

	// ServerOptions configures a ServerEndpoint.
	ServerOptions[K comparable] = server.Options[K]

	// Connection is one TLS-wrapped, framed stream, server- or client-side.
	Connection[K comparable] = transport.Connection[K]

	// Message is one framed unit of application data.
	Message[K comparable] = message.Message[K]

	// OwnedMessage pairs a Message with the Connection it arrived on (nil
	// for messages read by a client, which has exactly one peer).
	OwnedMessage[K comparable] = message.OwnedMessage[K]

	// FIFO is the thread-safe queue both endpoints use for inbound delivery.
	FIFO[T any] = queue.FIFO[T]

	// Error is socketbroker's structured, typed error.
	Error = wireerr.Error

	// ErrorType names one category of Error.
	ErrorType = wireerr.ErrorType

	// Collector reports connection and message-flow metrics to Prometheus.
	Collector = metrics.Collector
)

// NewClient constructs a ClientEndpoint; see client.New.
func NewClient[K comparable](opts ClientOptions[K]) (*ClientEndpoint[K], error) {
	return client.New[K](opts)
}

// NewServer constructs a ServerEndpoint; see server.New.
func NewServer[K comparable](opts ServerOptions[K]) (*ServerEndpoint[K], error) {
	return server.New[K](opts)
}
