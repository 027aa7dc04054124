package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, "test.out", cfg.LogPath)
	assert.Equal(t, 20*time.Second, cfg.MaxDuration)
	assert.EqualValues(t, 2, cfg.ClockLimit)
	assert.Equal(t, 100, cfg.SpawnLimit)
	assert.EqualValues(t, 1000, cfg.Tick)
	assert.True(t, cfg.RecoverLostToken)
	assert.Empty(t, cfg.Database)
	require.NoError(t, cfg.Validate())
}

func TestDecode_OverridesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
workers: 3
log_path: run.log
max_duration: 5s
spawn_limit: 10
recover_lost_token: false
`))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "run.log", cfg.LogPath)
	assert.Equal(t, 5*time.Second, cfg.MaxDuration)
	assert.Equal(t, 10, cfg.SpawnLimit)
	assert.False(t, cfg.RecoverLostToken)

	// Untouched keys keep their defaults.
	assert.EqualValues(t, 2, cfg.ClockLimit)
	assert.EqualValues(t, 1000, cfg.Tick)
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecode_UnknownKey(t *testing.T) {
	_, err := Decode(strings.NewReader("slaves: 4\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slaves")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oss.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 7\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"empty log path", func(c *Config) { c.LogPath = "" }, "log_path"},
		{"negative duration", func(c *Config) { c.MaxDuration = -time.Second }, "max_duration"},
		{"zero tick", func(c *Config) { c.Tick = 0 }, "tick_nanos"},
		{"tick of a second", func(c *Config) { c.Tick = 1_000_000_000 }, "tick_nanos"},
		{"zero budget", func(c *Config) { c.BudgetMax = 0 }, "budget_max"},
		{"zero timer period", func(c *Config) { c.TimerPeriod = 0 }, "timer_period"},
		{"negative spawn limit", func(c *Config) { c.SpawnLimit = -3 }, "spawn_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_ZeroValuesAllowed(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	cfg.MaxDuration = 0
	cfg.ClockLimit = 0
	require.NoError(t, cfg.Validate())
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	cfg := Default()
	cfg.Workers = -1
	cfg.BudgetMax = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
	assert.Contains(t, err.Error(), "budget_max")
}
