package commands

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gotds/tds/internal/cli/output"
	"github.com/gotds/tds/internal/tds/diagnostics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveDebugCmd = &cobra.Command{
	Use:   "serve-debug",
	Short: "Serve the diagnostics debug endpoints (/healthz, /metrics, /sessions)",
	Long: `Start an HTTP server exposing the diagnostics surface for an embedded
TDS session engine: liveness, Prometheus metrics, and a session
inventory dump. Intended for local inspection, not production exposure.

Examples:
  tdsctl serve-debug --listen :9090`,
	RunE: runServeDebug,
}

func init() {
	serveDebugCmd.Flags().String("listen", ":9090", "Address to serve the debug endpoints on")
}

// emptySessionLister reports no live sessions. tdsctl does not keep a
// long-running session registry of its own; serve-debug exists so the
// debug HTTP surface can be exercised and pointed at in isolation.
type emptySessionLister struct{}

func (emptySessionLister) ListSessions() []diagnostics.SessionSnapshot {
	return nil
}

func runServeDebug(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")

	reg := prometheus.NewRegistry()
	_ = diagnostics.NewMetricsSink(reg)

	srv := diagnostics.NewDebugServer(reg, emptySessionLister{})

	printer := output.NewPrinter(os.Stdout, output.FormatTable, true)
	printer.Success(fmt.Sprintf("serving debug endpoints on %s (/healthz, /metrics, /sessions)", listen))
	return http.ListenAndServe(listen, srv)
}
