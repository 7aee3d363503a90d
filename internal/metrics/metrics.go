// Package metrics exposes Prometheus instrumentation for the SOCKS5 listener.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "socks5d"

type Metrics struct {
	TotalConnection          prometheus.Counter
	CurrentConnection        prometheus.Gauge
	HandshakeTotal           *prometheus.CounterVec
	HandshakeDurationSeconds prometheus.Histogram
	RelayBytesTotal          *prometheus.CounterVec
}

// New registers the socks5d collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		TotalConnection: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_total",
			Help:      "The total number of accepted connections",
		}),
		CurrentConnection: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_current",
			Help:      "The current number of connections",
		}),
		HandshakeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_total",
			Help:      "The total number of finished handshakes by reply",
		}, []string{"reply"}),
		HandshakeDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Time from accept until the handshake finished",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		RelayBytesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_bytes_total",
			Help:      "The total number of relayed bytes by direction",
		}, []string{"direction"}),
	}
}

// AddConnection records an accepted connection. The returned func marks it
// closed.
func (m *Metrics) AddConnection() (done func()) {
	if m == nil {
		return func() {}
	}
	m.TotalConnection.Inc()
	m.CurrentConnection.Inc()
	return m.CurrentConnection.Dec
}

// AddHandshake records a finished handshake with its reply label and
// duration.
func (m *Metrics) AddHandshake(reply string, d time.Duration) {
	if m == nil {
		return
	}
	m.HandshakeTotal.WithLabelValues(reply).Inc()
	m.HandshakeDurationSeconds.Observe(d.Seconds())
}

// CountConn wraps a client connection so bytes read from it count as upload
// and bytes written to it as download.
func (m *Metrics) CountConn(c net.Conn) net.Conn {
	if m == nil {
		return c
	}
	return &countingConn{
		Conn:     c,
		upload:   m.RelayBytesTotal.WithLabelValues("upload"),
		download: m.RelayBytesTotal.WithLabelValues("download"),
	}
}

type countingConn struct {
	net.Conn
	upload   prometheus.Counter
	download prometheus.Counter
}

func (c *countingConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.upload.Add(float64(n))
	}
	return n, err
}

func (c *countingConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.download.Add(float64(n))
	}
	return n, err
}
