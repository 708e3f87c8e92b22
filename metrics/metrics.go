// Package metrics wires socketbroker's connection registry and message
// flow into Prometheus. A nil *Collector is valid everywhere in this
// package: metrics are pure enrichment, never required to operate the
// library.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds the gauges/counters a ClientEndpoint or ServerEndpoint
// reports through. Construct with NewCollector, passing the
// prometheus.Registerer its metrics should be registered with.
type Collector struct {
	ActiveConnections prometheus.Gauge
	MessagesSent      prometheus.Counter
	MessagesReceived  prometheus.Counter
	HeartbeatsSent    prometheus.Counter
	ReconnectAttempts prometheus.Counter
	BroadcastFanout   prometheus.Histogram
}

// NewCollector builds a Collector and registers its metrics with reg. Pass
// prometheus.NewRegistry() for an isolated registry (recommended in tests)
// or prometheus.DefaultRegisterer for process-wide metrics.
func NewCollector(reg prometheus.Registerer, namespace, subsystem string) *Collector {
	c := &Collector{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "active_connections",
			Help: "Number of connections currently admitted into the registry.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "messages_sent_total",
			Help: "Total frames enqueued for send across all connections.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "messages_received_total",
			Help: "Total frames read from connections and enqueued onto an inbound FIFO.",
		}),
		HeartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "heartbeats_sent_total",
			Help: "Total pulse frames sent by client endpoints.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "reconnect_attempts_total",
			Help: "Total client reconnect attempts.",
		}),
		BroadcastFanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "broadcast_fanout",
			Help:    "Number of recipients a single MessageAllClients call enqueued to.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(c.ActiveConnections, c.MessagesSent, c.MessagesReceived,
			c.HeartbeatsSent, c.ReconnectAttempts, c.BroadcastFanout)
	}
	return c
}

func (c *Collector) incActive() {
	if c != nil {
		c.ActiveConnections.Inc()
	}
}

func (c *Collector) decActive() {
	if c != nil {
		c.ActiveConnections.Dec()
	}
}

func (c *Collector) sentOne() {
	if c != nil {
		c.MessagesSent.Inc()
	}
}

func (c *Collector) receivedOne() {
	if c != nil {
		c.MessagesReceived.Inc()
	}
}

func (c *Collector) heartbeat() {
	if c != nil {
		c.HeartbeatsSent.Inc()
	}
}

func (c *Collector) reconnect() {
	if c != nil {
		c.ReconnectAttempts.Inc()
	}
}

func (c *Collector) fanout(n int) {
	if c != nil {
		c.BroadcastFanout.Observe(float64(n))
	}
}

// IncActive reports a connection entering the registry.
func (c *Collector) IncActive() { c.incActive() }

// DecActive reports a connection leaving the registry.
func (c *Collector) DecActive() { c.decActive() }

// SentOne reports one frame enqueued for send.
func (c *Collector) SentOne() { c.sentOne() }

// ReceivedOne reports one frame read from a connection and enqueued onto an
// inbound FIFO.
func (c *Collector) ReceivedOne() { c.receivedOne() }

// Heartbeat reports one pulse frame sent.
func (c *Collector) Heartbeat() { c.heartbeat() }

// Reconnect reports one client reconnect attempt.
func (c *Collector) Reconnect() { c.reconnect() }

// Fanout reports the recipient count of one broadcast call.
func (c *Collector) Fanout(n int) { c.fanout(n) }
