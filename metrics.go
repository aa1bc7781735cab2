package livevoice

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for connections and streams.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	framesSent      *prometheus.CounterVec
	bytesSent       prometheus.Counter
	framesReceived  prometheus.Counter
	decodeErrors    prometheus.Counter
	desyncs         prometheus.Counter
	connectAttempts *prometheus.CounterVec
	activeStreams   prometheus.Gauge
	turnsCompleted  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is useful in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livevoice",
			Name:      "frames_sent_total",
			Help:      "Frames written to the transport, by envelope kind.",
		}, []string{"kind"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livevoice",
			Name:      "bytes_sent_total",
			Help:      "Encoded bytes written to the transport.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livevoice",
			Name:      "frames_received_total",
			Help:      "Frames read from the transport.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livevoice",
			Name:      "decode_errors_total",
			Help:      "Inbound frames that failed to decode.",
		}),
		desyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livevoice",
			Name:      "protocol_desyncs_total",
			Help:      "Receive pumps terminated by consecutive decode failures.",
		}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livevoice",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts, by result.",
		}, []string{"result"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livevoice",
			Name:      "active_streams",
			Help:      "Streams currently running.",
		}),
		turnsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livevoice",
			Name:      "turns_completed_total",
			Help:      "Turns completed by the peer.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.framesSent, m.bytesSent, m.framesReceived, m.decodeErrors,
			m.desyncs, m.connectAttempts, m.activeStreams, m.turnsCompleted)
	}
	return m
}

func (m *Metrics) frameSent(kind string, n int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind).Inc()
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) frameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Metrics) decodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) desync() {
	if m == nil {
		return
	}
	m.desyncs.Inc()
}

func (m *Metrics) connectAttempt(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(ErrorKindOf(err))
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) streamStarted() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) streamEnded() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

func (m *Metrics) turnCompleted() {
	if m == nil {
		return
	}
	m.turnsCompleted.Inc()
}
