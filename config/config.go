// Package config loads process-wide configuration from the environment,
// following the pattern the wider pack uses for EVM tooling: an optional
// .env for local development (github.com/joho/godotenv), then os.Getenv for
// anything that must be set in production.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/evmsentry/pers/pkgerr"
)

// Config is the immutable, process-wide configuration loaded once at
// startup. It is safe for concurrent reads from any number of goroutines.
type Config struct {
	AlchemyAPIKey string
	Port          int

	// RPCOverrides maps a chain_id to a caller-supplied RPC URL that takes
	// priority over the compiled-in managed/public endpoints.
	RPCOverrides map[uint64]string
}

// Load reads configuration from the environment. It first attempts to load
// a .env file (ignored if absent — this is a convenience for local
// development, never a requirement) and then reads the well-known
// variables. AlchemyAPIKey may be empty; callers that need a managed
// endpoint surface ConfigMissingApiKey themselves rather than failing here,
// since public fallback endpoints remain usable without a key.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AlchemyAPIKey: os.Getenv("ALCHEMY_API_KEY"),
		Port:          8080,
		RPCOverrides:  map[uint64]string{},
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, pkgerr.Wrap(pkgerr.CodeConfigInvalidValue, "PORT must be an integer", err)
		}
		cfg.Port = port
	}

	for _, chainID := range []uint64{1, 10, 56, 137, 8453, 42161, 43114} {
		envVar := "RPC_URL_" + strconv.FormatUint(chainID, 10)
		if override := os.Getenv(envVar); override != "" {
			cfg.RPCOverrides[chainID] = override
		}
	}

	return cfg, nil
}

// RequireAPIKey returns ConfigMissingApiKey when no Alchemy key is
// configured. Call this only from the code paths that actually need a
// managed endpoint (public fallbacks should keep working without it).
func (c *Config) RequireAPIKey() error {
	if c.AlchemyAPIKey == "" {
		return pkgerr.New(pkgerr.CodeConfigMissingAPIKey, "ALCHEMY_API_KEY is not set")
	}
	return nil
}
