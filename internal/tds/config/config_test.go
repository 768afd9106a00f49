package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValidOnceServerSet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server = "sql.example.com"
	cfg.Port = 1433
	require.NoError(t, cfg.Validate())
}

func TestValidateClampsPacketSizeOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server = "sql.example.com"
	cfg.Port = 1433

	cfg.PacketSize = 10
	require.NoError(t, cfg.Validate())
	assert.Equal(t, MinPacketSize, cfg.PacketSize)

	cfg.PacketSize = 1 << 20
	require.NoError(t, cfg.Validate())
	assert.Equal(t, MaxPacketSize, cfg.PacketSize)
}

func TestValidateRejectsUnknownEncryptionMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server = "sql.example.com"
	cfg.Port = 1433
	cfg.Encryption = "nonsense"

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownAuthStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server = "sql.example.com"
	cfg.Port = 1433
	cfg.Auth = "nonsense"

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 1433
	assert.Error(t, cfg.Validate())
}

func TestFromConnectionPropertiesDecodesDurationsAndDefaults(t *testing.T) {
	props := map[string]string{
		"server":          "sql.example.com",
		"port":            "1433",
		"login_timeout":   "10s",
		"command_timeout": "45s",
		"auth":            "sql_password",
		"username":        "sa",
		"password":        "hunter2",
	}

	cfg, err := FromConnectionProperties(props)
	require.NoError(t, err)
	assert.Equal(t, "sql.example.com", cfg.Server)
	assert.Equal(t, 1433, cfg.Port)
	assert.Equal(t, 10e9, float64(cfg.LoginTimeout))
	assert.Equal(t, AuthSQLPassword, cfg.Auth)
	assert.Equal(t, DefaultPacketSize, cfg.PacketSize)
}

func TestFromConnectionPropertiesRejectsInvalidPort(t *testing.T) {
	props := map[string]string{
		"server": "sql.example.com",
		"port":   "0",
		"auth":   "sql_password",
	}
	_, err := FromConnectionProperties(props)
	assert.Error(t, err)
}
