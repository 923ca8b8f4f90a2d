package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALCHEMY_API_KEY", "")
	t.Setenv("PORT", "")
	t.Setenv("RPC_URL_1", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Empty(t, cfg.AlchemyAPIKey)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ALCHEMY_API_KEY", "test-key")
	t.Setenv("PORT", "9090")
	t.Setenv("RPC_URL_1", "https://custom.example/rpc")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "test-key", cfg.AlchemyAPIKey)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "https://custom.example/rpc", cfg.RPCOverrides[1])
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}

func TestRequireAPIKey(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.RequireAPIKey())

	cfg.AlchemyAPIKey = "set"
	require.NoError(t, cfg.RequireAPIKey())
}
