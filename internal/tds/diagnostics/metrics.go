package diagnostics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSink is a Sink backed by prometheus/client_golang.
type MetricsSink struct {
	packetsSent        prometheus.Counter
	packetsReceived    prometheus.Counter
	bytesSent          prometheus.Counter
	bytesReceived      prometheus.Counter
	attentionsSent     prometheus.Counter
	attentionsAcked    prometheus.Counter
	attentionLatency   prometheus.Histogram
	timeoutsExpired    prometheus.Counter
	sessionsBroken     prometheus.Counter
	openTransactions   *prometheus.GaugeVec
}

// NewMetricsSink registers the TDS client metric families against reg
// and returns a Sink backed by them. Pass prometheus.NewRegistry() in
// tests to avoid colliding with the global default registry.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	return &MetricsSink{
		packetsSent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tds_client_packets_sent_total",
			Help: "Total number of TDS packets sent.",
		}),
		packetsReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tds_client_packets_received_total",
			Help: "Total number of TDS packets received.",
		}),
		bytesSent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tds_client_bytes_sent_total",
			Help: "Total number of bytes sent on the wire.",
		}),
		bytesReceived: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tds_client_bytes_received_total",
			Help: "Total number of bytes received from the wire.",
		}),
		attentionsSent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tds_client_attentions_sent_total",
			Help: "Total number of attention (cancellation) signals sent.",
		}),
		attentionsAcked: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tds_client_attention_acks_total",
			Help: "Total number of attention acknowledgements received.",
		}),
		attentionLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "tds_client_attention_roundtrip_seconds",
			Help:    "Time between sending an attention and receiving its acknowledgement.",
			Buckets: prometheus.DefBuckets,
		}),
		timeoutsExpired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tds_client_timeouts_expired_total",
			Help: "Total number of operation timeouts that fired.",
		}),
		sessionsBroken: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tds_client_sessions_broken_total",
			Help: "Total number of sessions marked broken.",
		}),
		openTransactions: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "tds_client_open_transactions",
			Help: "Current number of open transactions per session.",
		}, []string{"session_id"}),
	}
}

func (m *MetricsSink) PacketSent(sessionID string, bytes int) {
	m.packetsSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *MetricsSink) PacketReceived(sessionID string, bytes int) {
	m.packetsReceived.Inc()
	m.bytesReceived.Add(float64(bytes))
}

func (m *MetricsSink) AttentionSent(sessionID string) {
	m.attentionsSent.Inc()
}

func (m *MetricsSink) AttentionAcked(sessionID string, latency time.Duration) {
	m.attentionsAcked.Inc()
	m.attentionLatency.Observe(latency.Seconds())
}

func (m *MetricsSink) TimeoutExpired(sessionID string) {
	m.timeoutsExpired.Inc()
}

func (m *MetricsSink) SessionBroken(sessionID string) {
	m.sessionsBroken.Inc()
}

func (m *MetricsSink) TransactionOpened(sessionID string) {
	m.openTransactions.WithLabelValues(sessionID).Inc()
}

func (m *MetricsSink) TransactionClosed(sessionID string) {
	m.openTransactions.WithLabelValues(sessionID).Dec()
}
