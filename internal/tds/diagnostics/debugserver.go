package diagnostics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionSnapshot is a point-in-time view of one live session, for
// DebugServer's /sessions endpoint.
type SessionSnapshot struct {
	SessionID        string    `json:"session_id"`
	SPID             uint16    `json:"spid"`
	Broken           bool      `json:"broken"`
	OpenTransactions int       `json:"open_transactions"`
	LastActivity     time.Time `json:"last_activity"`
}

// SessionLister supplies the live session snapshots DebugServer serves.
type SessionLister interface {
	ListSessions() []SessionSnapshot
}

// DebugServer is an operator-facing HTTP mux exposing health, Prometheus
// metrics, and a live session dump. It is used only by tdsctl's
// serve-debug subcommand and integration tests, never by the core
// session engine itself.
type DebugServer struct {
	handler http.Handler
}

// NewDebugServer builds the mux. reg is the Prometheus registry to
// serve at /metrics; sessions supplies the live session table.
func NewDebugServer(reg *prometheus.Registry, sessions SessionLister) *DebugServer {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
		snapshots := sessions.ListSessions()

		if req.URL.Query().Get("format") == "text" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			writeSessionTable(w, snapshots)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshots)
	})

	return &DebugServer{handler: r}
}

// ServeHTTP implements http.Handler.
func (d *DebugServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.handler.ServeHTTP(w, r)
}

func writeSessionTable(w http.ResponseWriter, snapshots []SessionSnapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Session", "SPID", "Broken", "Open Txns", "Last Activity"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	for _, s := range snapshots {
		table.Append([]string{
			s.SessionID,
			strconv.Itoa(int(s.SPID)),
			boolToString(s.Broken),
			strconv.Itoa(s.OpenTransactions),
			s.LastActivity.Format(time.RFC3339),
		})
	}
	table.Render()
}

func boolToString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
