package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gotds/tds/internal/cli/output"
	"github.com/gotds/tds/internal/cli/prompt"
	"github.com/gotds/tds/internal/tds/config"
	"github.com/gotds/tds/internal/tds/transport"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open a TDS transport connection and report its status",
	Long: `Resolve connection configuration, dial the SQL Server endpoint, and
report whether the transport came up. This exercises only the framed
transport layer (C1) — it does not perform a LOGIN7 handshake.

Examples:
  tdsctl connect --server sql.example.com --username sa`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().String("password", "", "SQL login password (prompted if omitted and auth requires one)")
	connectCmd.Flags().Duration("dial-timeout", 15*time.Second, "Dial timeout")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Server == "" {
		return fmt.Errorf("tdsctl: --server is required")
	}

	password, _ := cmd.Flags().GetString("password")
	if password == "" && cfg.Password == "" && cfg.Auth == config.AuthSQLPassword {
		password, err = prompt.Password("SQL login password")
		if err != nil {
			return err
		}
		cfg.Password = password
	}

	dialTimeout, _ := cmd.Flags().GetDuration("dial-timeout")
	addr := fmt.Sprintf("%s:%d", cfg.Server, cfg.Port)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	t, err := transport.Open(ctx, addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("tdsctl: connect to %s: %w", addr, err)
	}
	defer t.Close()

	printer := output.NewPrinter(os.Stdout, output.FormatTable, true)
	printer.Success(fmt.Sprintf("connected to %s", addr))
	return printer.Print(connectionSummary{
		Server:     cfg.Server,
		Port:       cfg.Port,
		PacketSize: cfg.PacketSize,
		Encryption: string(cfg.Encryption),
		Auth:       string(cfg.Auth),
	})
}

// connectionSummary renders the resolved connection as a table when
// printer is in table mode, or as JSON/YAML as requested.
type connectionSummary struct {
	Server     string `json:"server" yaml:"server"`
	Port       int    `json:"port" yaml:"port"`
	PacketSize int    `json:"packet_size" yaml:"packet_size"`
	Encryption string `json:"encryption" yaml:"encryption"`
	Auth       string `json:"auth" yaml:"auth"`
}

func (c connectionSummary) Headers() []string {
	return []string{"Server", "Port", "Packet size", "Encryption", "Auth"}
}

func (c connectionSummary) Rows() [][]string {
	return [][]string{{
		c.Server,
		fmt.Sprintf("%d", c.Port),
		fmt.Sprintf("%d", c.PacketSize),
		c.Encryption,
		c.Auth,
	}}
}
