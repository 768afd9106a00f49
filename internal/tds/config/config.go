// Package config collects the connection-level settings the session
// engine needs that aren't wire state: packet size, timeouts,
// encryption mode, MARS, and the chosen authentication strategy.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (TDS_*)
//  2. Configuration file
//  3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EncryptionMode selects how the LOGIN7 handshake negotiates TLS.
type EncryptionMode string

const (
	EncryptOff      EncryptionMode = "off"
	EncryptLogin    EncryptionMode = "login"    // encrypt the login packet only
	EncryptRequired EncryptionMode = "required" // encrypt the whole session
	EncryptStrict   EncryptionMode = "strict"   // TDS 8.0 strict encryption
)

// AuthStrategy selects which LoginBlobProvider the session uses.
type AuthStrategy string

const (
	AuthSQLPassword        AuthStrategy = "sql_password"
	AuthKerberos           AuthStrategy = "kerberos"
	AuthNTLM               AuthStrategy = "ntlm"
	AuthAzureADPassword    AuthStrategy = "azuread_password"
	AuthAzureADAccessToken AuthStrategy = "azuread_access_token"
)

const (
	DefaultPacketSize = 4096
	MinPacketSize     = 512
	MaxPacketSize     = 32767
)

// Config is the validated set of connection-level knobs.
type Config struct {
	Server string `mapstructure:"server" validate:"required" yaml:"server"`
	Port   int    `mapstructure:"port" validate:"required,gt=0,lte=65535" yaml:"port"`

	// PacketSize is the negotiated TDS packet size, clamped to
	// [MinPacketSize, MaxPacketSize].
	PacketSize int `mapstructure:"packet_size" validate:"required,gte=512,lte=32767" yaml:"packet_size"`

	LoginTimeout   time.Duration `mapstructure:"login_timeout" validate:"required,gt=0" yaml:"login_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`

	Encryption EncryptionMode `mapstructure:"encryption" validate:"required,oneof=off login required strict" yaml:"encryption"`

	// MARS enables Multiple Active Result Sets (multiple logical streams
	// multiplexed over one physical connection, spec.md §5).
	MARS bool `mapstructure:"mars" yaml:"mars"`

	// SyncOverAsync is decoded and validated with the rest of Config;
	// no package in this module reads it, and write.Writer.Flush writes
	// synchronously whatever its value.
	SyncOverAsync bool `mapstructure:"sync_over_async" yaml:"sync_over_async"`

	Auth AuthStrategy `mapstructure:"auth" validate:"required,oneof=sql_password kerberos ntlm azuread_password azuread_access_token" yaml:"auth"`

	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Domain   string `mapstructure:"domain" yaml:"domain"`

	Database string `mapstructure:"database" yaml:"database"`
}

// DefaultConfig returns a Config with the spec-mandated defaults
// applied; callers still need to set Server/Port.
func DefaultConfig() *Config {
	return &Config{
		PacketSize:     DefaultPacketSize,
		LoginTimeout:   15 * time.Second,
		CommandTimeout: 30 * time.Second,
		Encryption:     EncryptLogin,
		Auth:           AuthSQLPassword,
	}
}

var validate = validator.New()

// Validate checks struct constraints and clamps PacketSize into range
// rather than rejecting an out-of-range value outright, mirroring how
// SQL Server's own drivers silently clamp rather than error.
func (c *Config) Validate() error {
	if c.PacketSize < MinPacketSize {
		c.PacketSize = MinPacketSize
	}
	if c.PacketSize > MaxPacketSize {
		c.PacketSize = MaxPacketSize
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("tds/config: %w", err)
	}
	return nil
}

// FromConnectionProperties decodes a connection-string property map
// (the output of an out-of-scope connection-string parser) into a
// Config, applying defaults for anything the map doesn't mention.
func FromConnectionProperties(props map[string]string) (*Config, error) {
	cfg := DefaultConfig()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("tds/config: build decoder: %w", err)
	}
	if err := decoder.Decode(props); err != nil {
		return nil, fmt.Errorf("tds/config: decode connection properties: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from an optional file plus TDS_*
// environment variable overrides, falling back to DefaultConfig
// values for anything unset. Used by tdsctl. The result is not
// validated: callers apply any further overrides, then call Validate.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"server", "port", "packet_size", "login_timeout", "command_timeout", "encryption", "mars", "sync_over_async", "auth", "username", "password", "domain", "database"} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("tds/config: read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("tds/config: unmarshal: %w", err)
	}
	return cfg, nil
}
