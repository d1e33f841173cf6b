package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, ValidateConfig(DefaultConfig()))
}

func TestFlagsOverrideDefaults(t *testing.T) {
	cfg := DefaultConfig()
	fs := NewConfigFlagSet(&cfg)

	err := fs.Parse([]string{
		"--asset=SOL",
		"--speed-factor=1.0",
		"--checks=5",
		"--poll-interval=30s",
	})
	require.NoError(t, err)
	require.NoError(t, ApplyEnvDefaults(fs, &cfg))

	require.Equal(t, "SOL", cfg.Asset)
	require.Equal(t, 1.0, cfg.SpeedFactor)
	require.Equal(t, 5, cfg.Checks)
	require.Equal(t, 30*time.Second, cfg.PollInterval)
}

func TestEnvFillsUnsetFlags(t *testing.T) {
	t.Setenv("ARKFLIP_ASSET", "SOL")
	t.Setenv("ARKFLIP_SIZING_MIN", "0.60")
	t.Setenv("ARKFLIP_HEADLESS", "true")

	cfg := DefaultConfig()
	fs := NewConfigFlagSet(&cfg)
	require.NoError(t, fs.Parse(nil))
	require.NoError(t, ApplyEnvDefaults(fs, &cfg))

	require.Equal(t, "SOL", cfg.Asset)
	require.Equal(t, 0.60, cfg.SizingMin)
	require.True(t, cfg.Headless)
}

func TestFlagsBeatEnv(t *testing.T) {
	t.Setenv("ARKFLIP_ASSET", "SOL")

	cfg := DefaultConfig()
	fs := NewConfigFlagSet(&cfg)
	require.NoError(t, fs.Parse([]string{"--asset=ETH"}))
	require.NoError(t, ApplyEnvDefaults(fs, &cfg))

	require.Equal(t, "ETH", cfg.Asset)
}

func TestValidateConfigRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty asset", func(c *AppConfig) { c.Asset = " " }},
		{"zero speed factor", func(c *AppConfig) { c.SpeedFactor = 0 }},
		{"no checks", func(c *AppConfig) { c.Checks = 0 }},
		{"inverted sizing band", func(c *AppConfig) { c.SizingMin = 0.9; c.SizingMax = 0.5 }},
		{"sizing above one", func(c *AppConfig) { c.SizingMax = 1.5 }},
		{"zero increment floor", func(c *AppConfig) { c.IncrementMin = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			require.Error(t, ValidateConfig(cfg))
		})
	}
}
