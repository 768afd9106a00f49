package diagnostics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSinkIsUsableWithoutPanics(t *testing.T) {
	var s Sink = NoopSink{}
	s.PacketSent("sess-1", 10)
	s.PacketReceived("sess-1", 20)
	s.AttentionSent("sess-1")
	s.AttentionAcked("sess-1", time.Millisecond)
	s.TimeoutExpired("sess-1")
	s.SessionBroken("sess-1")
	s.TransactionOpened("sess-1")
	s.TransactionClosed("sess-1")
}

func TestMultiFansOutToAllSinks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsSink(reg)
	combined := Multi(NoopSink{}, m)

	combined.PacketSent("sess-1", 128)
	combined.AttentionSent("sess-1")

	mf, err := reg.Gather()
	require.NoError(t, err)
	assert.True(t, hasCounterValue(mf, "tds_client_packets_sent_total", 1))
	assert.True(t, hasCounterValue(mf, "tds_client_attentions_sent_total", 1))
}

func TestMetricsSinkTracksOpenTransactionsPerSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsSink(reg)

	m.TransactionOpened("sess-a")
	m.TransactionOpened("sess-a")
	m.TransactionClosed("sess-a")

	mf, err := reg.Gather()
	require.NoError(t, err)
	assert.True(t, hasGaugeValue(mf, "tds_client_open_transactions", 1))
}

func hasCounterValue(mf []*dto.MetricFamily, name string, want float64) bool {
	for _, f := range mf {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.Metric {
			if m.GetCounter().GetValue() == want {
				return true
			}
		}
	}
	return false
}

func hasGaugeValue(mf []*dto.MetricFamily, name string, want float64) bool {
	for _, f := range mf {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.Metric {
			if m.GetGauge().GetValue() == want {
				return true
			}
		}
	}
	return false
}

type fakeLister struct {
	snapshots []SessionSnapshot
}

func (f fakeLister) ListSessions() []SessionSnapshot { return f.snapshots }

func TestDebugServerHealthzAndSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	lister := fakeLister{snapshots: []SessionSnapshot{
		{SessionID: "sess-1", SPID: 52, Broken: false, OpenTransactions: 1, LastActivity: time.Now()},
	}}
	srv := NewDebugServer(reg, lister)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sess-1")

	req = httptest.NewRequest(http.MethodGet, "/sessions?format=text", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "sess-1")
}
