package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "3000", cfg.Server.Port)
	require.Equal(t, 0x20, cfg.Hardware.RelayAddr)
	require.Equal(t, 0x26, cfg.Hardware.ScaleAddr)
	require.Equal(t, 0x10, cfg.Hardware.WeightRegister)
	require.Equal(t, 0x50, cfg.Hardware.TareRegister)
	require.Equal(t, 0x01, cfg.Hardware.TareCommand)
	require.Equal(t, 200*time.Millisecond, cfg.Hardware.TareSettle)
	require.Equal(t, 100*time.Millisecond, cfg.Hardware.ScalePoll)
	require.Equal(t, 50*time.Millisecond, cfg.Pour.Tick)
	require.Equal(t, time.Second, cfg.Pour.SettleDelay)
	require.Equal(t, 60*time.Second, cfg.Pour.StepTimeout)
	require.Equal(t, 64, cfg.Broadcast.Buffer)
	require.Equal(t, 10*time.Second, cfg.Cleaning.Duration)
	require.Equal(t, DefaultChannels(), cfg.Channels)
}

func TestLoad_FileOverridesAndChannels(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
hardware:
  relay_addr: 0x21
  simulate: true
pour:
  step_timeout: 15s
channels:
  vodka: 3
  tonic: 4
`))
	require.NoError(t, err)
	require.Equal(t, 0x21, cfg.Hardware.RelayAddr)
	require.True(t, cfg.Hardware.Simulate)
	require.Equal(t, 15*time.Second, cfg.Pour.StepTimeout)
	require.Equal(t, map[string]int{"vodka": 3, "tonic": 4}, cfg.Channels)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("POTION_SERVER_PORT", "4100")
	t.Setenv("POTION_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load(writeConfig(t, "server:\n  port: \"3000\"\n"))
	require.NoError(t, err)
	require.Equal(t, "4100", cfg.Server.Port)
	require.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, "{}\n"))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"channel out of range", func(c *Config) { c.Channels = map[string]int{"vodka": 8} }},
		{"negative channel", func(c *Config) { c.Channels = map[string]int{"vodka": -1} }},
		{"shared channel", func(c *Config) { c.Channels = map[string]int{"vodka": 2, "gin": 2} }},
		{"bad device address", func(c *Config) { c.Hardware.ScaleAddr = 0x80 }},
		{"register too wide", func(c *Config) { c.Hardware.TareRegister = 0x100 }},
		{"zero tick", func(c *Config) { c.Pour.Tick = 0 }},
		{"zero buffer", func(c *Config) { c.Broadcast.Buffer = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			require.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}

	require.NoError(t, base().Validate())
}
