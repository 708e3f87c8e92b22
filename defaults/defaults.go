// Package defaults centralizes the timing constants socketbroker's client
// package uses: its dial and handshake timeouts, and the reconnect delay and
// heartbeat interval an Options field falls back to when left zero.
package defaults

import "time"

// Connection establishment timeouts.
const (
	DialTimeout      = 10 * time.Second
	HandshakeTimeout = 10 * time.Second
)

// ClientEndpoint timing: fixed reconnect delay and heartbeat cadence.
const (
	ReconnectDelay    = 5 * time.Second
	HeartbeatInterval = 10 * time.Second
)
