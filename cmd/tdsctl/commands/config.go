package commands

import (
	"fmt"
	"os"

	"github.com/gotds/tds/internal/cli/output"
	"github.com/gotds/tds/internal/tds/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Resolve and validate connection configuration",
	Long: `Resolve connection configuration from flags, environment variables
(TDS_*), and an optional config file, then print the validated result.

Examples:
  tdsctl config --server sql.example.com --username sa
  tdsctl config --server sql.example.com -o json`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().String("config-file", "", "Path to a config file (YAML)")
	configCmd.Flags().StringP("output", "o", "table", "Output format (table|json|yaml)")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	formatStr, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(formatStr)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, cfg)
	default:
		return output.SimpleTable(os.Stdout, [][2]string{
			{"Server", cfg.Server},
			{"Port", fmt.Sprintf("%d", cfg.Port)},
			{"Packet size", fmt.Sprintf("%d", cfg.PacketSize)},
			{"Login timeout", cfg.LoginTimeout.String()},
			{"Command timeout", cfg.CommandTimeout.String()},
			{"Encryption", string(cfg.Encryption)},
			{"MARS", fmt.Sprintf("%t", cfg.MARS)},
			{"Auth strategy", string(cfg.Auth)},
			{"Username", cfg.Username},
		})
	}
}

// resolveConfig loads a base config (file + env), overlays any flags
// the caller explicitly set (plus the --port default when no port came
// from file or env), then validates the result.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config-file")

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("server"); v != "" {
		cfg.Server = v
	}
	if cmd.Flags().Changed("port") || cfg.Port == 0 {
		v, _ := cmd.Flags().GetInt("port")
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetString("username"); v != "" {
		cfg.Username = v
	}
	if cmd.Flags().Changed("auth") {
		v, _ := cmd.Flags().GetString("auth")
		cfg.Auth = config.AuthStrategy(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
