package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", cfg.Listen)
	assert.Equal(t, "127.0.0.1:50001", cfg.BackendAddress())
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Empty(t, cfg.RefreshSchedule)
	assert.False(t, cfg.Debug)
}

func TestEnvironmentThenFlags(t *testing.T) {
	t.Setenv("ELECTRUMX_HOST", "electrumx.internal")
	t.Setenv("ELECTRUMX_PORT", "50010")
	t.Setenv("ELECTRUMX_READ_TIMEOUT", "2s")
	t.Setenv("PROXY_LISTEN", "127.0.0.1:8080")

	cfg, err := Load([]string{"--backend-port", "60001", "--debug"})
	require.NoError(t, err)

	assert.Equal(t, "electrumx.internal:60001", cfg.BackendAddress())
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.True(t, cfg.Debug)
}

func TestIPv6BackendAddress(t *testing.T) {
	cfg, err := Load([]string{"--backend-host", "::1"})
	require.NoError(t, err)
	assert.Equal(t, "[::1]:50001", cfg.BackendAddress())
}

func TestValidation(t *testing.T) {
	for name, args := range map[string][]string{
		"port zero":      {"--backend-port", "0"},
		"port too large": {"--backend-port", "70000"},
		"empty host":     {"--backend-host", ""},
		"negative read":  {"--read-timeout", "-1s"},
		"bad schedule":   {"--refresh-schedule", "every tuesday"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(args)
			assert.Error(t, err)
		})
	}
}

func TestRefreshSchedule(t *testing.T) {
	cfg, err := Load([]string{"--refresh-schedule", "0 4 * * *"})
	require.NoError(t, err)
	assert.Equal(t, "0 4 * * *", cfg.RefreshSchedule)
}

func TestHelp(t *testing.T) {
	_, err := Load([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}
