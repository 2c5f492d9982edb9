package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	faultTransport = "transport"
	faultDispatch  = "dispatch"
)

// Metrics counts framing activity per connection role. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	framesRead     *prometheus.CounterVec
	framesWritten  *prometheus.CounterVec
	bytesRead      *prometheus.CounterVec
	bytesWritten   *prometheus.CounterVec
	faults         *prometheus.CounterVec
	protocolFaults *prometheus.CounterVec
	droppedWrites  *prometheus.CounterVec
	queuedWrites   *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		framesRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yarmi",
			Subsystem: "conn",
			Name:      "frames_read_total",
			Help:      "Frames read and dispatched.",
		}, []string{"role"}),
		framesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yarmi",
			Subsystem: "conn",
			Name:      "writes_total",
			Help:      "Buffers written to the socket.",
		}, []string{"role"}),
		bytesRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yarmi",
			Subsystem: "conn",
			Name:      "read_bytes_total",
			Help:      "Header and body bytes read.",
		}, []string{"role"}),
		bytesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yarmi",
			Subsystem: "conn",
			Name:      "written_bytes_total",
			Help:      "Bytes written to the socket.",
		}, []string{"role"}),
		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yarmi",
			Subsystem: "conn",
			Name:      "faults_total",
			Help:      "Reported transport and dispatch faults.",
		}, []string{"role", "kind"}),
		protocolFaults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yarmi",
			Subsystem: "conn",
			Name:      "protocol_faults_total",
			Help:      "Protocol faults raised by dispatchers.",
		}, []string{"role"}),
		droppedWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yarmi",
			Subsystem: "conn",
			Name:      "dropped_writes_total",
			Help:      "Queued buffers discarded by the overflow policy.",
		}, []string{"role"}),
		queuedWrites: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "yarmi",
			Subsystem: "conn",
			Name:      "queued_writes",
			Help:      "Buffers waiting behind the in-flight write.",
		}, []string{"role"}),
	}
}

func (m *Metrics) frameRead(role string, n int) {
	if m == nil {
		return
	}
	m.framesRead.WithLabelValues(role).Inc()
	m.bytesRead.WithLabelValues(role).Add(float64(n))
}

func (m *Metrics) written(role string, n int) {
	if m == nil {
		return
	}
	m.framesWritten.WithLabelValues(role).Inc()
	m.bytesWritten.WithLabelValues(role).Add(float64(n))
}

func (m *Metrics) fault(role string, kind string) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(role, kind).Inc()
}

func (m *Metrics) protocolFault(role string) {
	if m == nil {
		return
	}
	m.protocolFaults.WithLabelValues(role).Inc()
}

func (m *Metrics) dropped(role string) {
	if m == nil {
		return
	}
	m.droppedWrites.WithLabelValues(role).Inc()
}

func (m *Metrics) queueDelta(role string, delta int) {
	if m == nil {
		return
	}
	m.queuedWrites.WithLabelValues(role).Add(float64(delta))
}
