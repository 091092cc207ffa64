package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for SASL client sessions.
// A nil *Collector is valid and records nothing.
type Collector struct {
	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsStarted   *prometheus.CounterVec
	SessionsCompleted *prometheus.CounterVec
	SessionsFailed    *prometheus.CounterVec
	SessionsClosed    prometheus.Counter

	// Handshake metrics
	HandshakeRequests *prometheus.CounterVec
	HandshakeRejected *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec

	// Frame metrics
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	BytesSent      prometheus.Counter
	BytesReceived  prometheus.Counter
}

// NewCollector creates a new metrics collector registered with reg.
// A nil reg leaves the metrics unregistered.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "sasl_client"
	}
	factory := promauto.With(reg)

	return &Collector{
		// Session metrics
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Current number of sessions that have not reached a terminal state",
		}),
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of configured sessions",
		}, []string{"mechanism"}),
		SessionsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of sessions that authenticated successfully",
		}, []string{"mechanism"}),
		SessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions that failed, by fault kind",
		}, []string{"mechanism", "kind"}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of sessions closed by their owner",
		}),

		// Handshake metrics
		HandshakeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_requests_total",
			Help:      "Total number of mechanism negotiation requests sent",
		}, []string{"mechanism"}),
		HandshakeRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_rejected_total",
			Help:      "Total number of handshake responses carrying an error code",
		}, []string{"mechanism", "error"}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of committed state transitions",
		}, []string{"state"}),

		// Frame metrics
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of frames fully written",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of frames fully assembled",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total bytes written, size prefixes included",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total bytes read, size prefixes included",
		}),
	}
}

// RecordSessionStarted increments the started counter and active gauge
func (c *Collector) RecordSessionStarted(mechanism string) {
	if c == nil {
		return
	}
	c.SessionsStarted.WithLabelValues(mechanism).Inc()
	c.SessionsActive.Inc()
}

// RecordSessionCompleted increments the completed counter and decrements active
func (c *Collector) RecordSessionCompleted(mechanism string) {
	if c == nil {
		return
	}
	c.SessionsCompleted.WithLabelValues(mechanism).Inc()
	c.SessionsActive.Dec()
}

// RecordSessionFailed increments the failed counter and decrements active
func (c *Collector) RecordSessionFailed(mechanism, kind string) {
	if c == nil {
		return
	}
	c.SessionsFailed.WithLabelValues(mechanism, kind).Inc()
	c.SessionsActive.Dec()
}

// RecordSessionClosed counts a close; active only drops if the session was unfinished
func (c *Collector) RecordSessionClosed(unfinished bool) {
	if c == nil {
		return
	}
	c.SessionsClosed.Inc()
	if unfinished {
		c.SessionsActive.Dec()
	}
}

// RecordHandshakeRequest counts a negotiation request
func (c *Collector) RecordHandshakeRequest(mechanism string) {
	if c == nil {
		return
	}
	c.HandshakeRequests.WithLabelValues(mechanism).Inc()
}

// RecordHandshakeRejected counts a negotiation response with a nonzero error code
func (c *Collector) RecordHandshakeRejected(mechanism, errorName string) {
	if c == nil {
		return
	}
	c.HandshakeRejected.WithLabelValues(mechanism, errorName).Inc()
}

// RecordStateTransition counts a committed state
func (c *Collector) RecordStateTransition(state string) {
	if c == nil {
		return
	}
	c.StateTransitions.WithLabelValues(state).Inc()
}

// RecordBytesSent adds written bytes
func (c *Collector) RecordBytesSent(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.BytesSent.Add(float64(n))
}

// RecordBytesReceived adds read bytes
func (c *Collector) RecordBytesReceived(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.BytesReceived.Add(float64(n))
}

// RecordFrameSent counts a fully drained outbound frame
func (c *Collector) RecordFrameSent() {
	if c == nil {
		return
	}
	c.FramesSent.Inc()
}

// RecordFrameReceived counts a fully assembled inbound frame
func (c *Collector) RecordFrameReceived() {
	if c == nil {
		return
	}
	c.FramesReceived.Inc()
}
