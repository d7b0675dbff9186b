package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradegym/env"
	"github.com/rustyeddy/tradegym/market"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, []float64{-1, 0, 1}, cfg.Env.Positions)
	assert.Equal(t, "random", cfg.Env.InitialPosition)
	assert.Equal(t, 1000.0, cfg.Env.InitialValue)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "no positions",
			mutate:  func(c *Config) { c.Env.Positions = nil },
			wantErr: true,
			errMsg:  "env.positions is required",
		},
		{
			name:   "numeric initial position",
			mutate: func(c *Config) { c.Env.InitialPosition = "0" },
		},
		{
			name:    "initial position not allowed",
			mutate:  func(c *Config) { c.Env.InitialPosition = "2" },
			wantErr: true,
			errMsg:  "not one of",
		},
		{
			name:    "initial position garbage",
			mutate:  func(c *Config) { c.Env.InitialPosition = "long" },
			wantErr: true,
			errMsg:  "'random' or a number",
		},
		{
			name:    "fees out of range",
			mutate:  func(c *Config) { c.Env.TradingFees = 1 },
			wantErr: true,
			errMsg:  "env.trading_fees",
		},
		{
			name:    "unknown dynamic feature",
			mutate:  func(c *Config) { c.Env.DynamicFeatures = []string{"momentum"} },
			wantErr: true,
			errMsg:  "unknown dynamic feature: momentum",
		},
		{
			name:    "unknown metric",
			mutate:  func(c *Config) { c.Env.Metrics = []string{"sortino"} },
			wantErr: true,
			errMsg:  "unknown metric: sortino",
		},
		{
			name:    "bad overflow",
			mutate:  func(c *Config) { c.Env.HistoryOverflow = "wrap" },
			wantErr: true,
			errMsg:  "env.history_overflow",
		},
		{
			name:    "path and pattern",
			mutate:  func(c *Config) { c.Dataset.Path = "a.csv" },
			wantErr: true,
			errMsg:  "exactly one of dataset.path and dataset.pattern",
		},
		{
			name:    "bad preprocess",
			mutate:  func(c *Config) { c.Dataset.Preprocess = "fancy" },
			wantErr: true,
			errMsg:  "dataset.preprocess",
		},
		{
			name:    "zero episodes",
			mutate:  func(c *Config) { c.Run.Episodes = 0 },
			wantErr: true,
			errMsg:  "run.episodes must be positive",
		},
		{
			name:    "bad timeout",
			mutate:  func(c *Config) { c.Run.Timeout = "soon" },
			wantErr: true,
			errMsg:  "run.timeout",
		},
		{
			name:    "csv journal without files",
			mutate:  func(c *Config) { c.Journal = JournalConfig{Type: "csv"} },
			wantErr: true,
			errMsg:  "trades_file and episodes_file",
		},
		{
			name:    "unknown journal",
			mutate:  func(c *Config) { c.Journal.Type = "postgres" },
			wantErr: true,
			errMsg:  "journal.type",
		},
		{
			name:    "render without dir",
			mutate:  func(c *Config) { c.Render = RenderConfig{Enabled: true} },
			wantErr: true,
			errMsg:  "render.dir",
		},
		{
			name:    "onnx without model",
			mutate:  func(c *Config) { c.Agent.Type = "onnx" },
			wantErr: true,
			errMsg:  "agent.model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			one := 1
			cfg.Agent = AgentConfig{Type: "constant", Action: &one}
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("env:\n  positions: []\n"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		timeout  string
		expected time.Duration
		wantErr  bool
	}{
		{"10m", 10 * time.Minute, false},
		{"1h", time.Hour, false},
		{"", 0, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.timeout, func(t *testing.T) {
			d, err := RunConfig{Timeout: tt.timeout}.ParseTimeout()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestEnvOptionsBuildEnv(t *testing.T) {
	times := make([]time.Time, 5)
	closes := []float64{100, 101, 102, 103, 104}
	for i := range times {
		times[i] = time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC)
	}
	ds := market.NewDataset("X", times)
	for _, c := range []string{"open", "high", "low", "close", "feature_x"} {
		require.NoError(t, ds.AddColumn(c, closes))
	}

	cfg := Default().Env
	cfg.Name = "cfg-env"
	cfg.InitialPosition = "1"
	cfg.Verbose = 0
	cfg.HistoryOverflow = "grow"
	opts, err := cfg.Options()
	require.NoError(t, err)

	e, err := env.New(ds, opts...)
	require.NoError(t, err)
	assert.Equal(t, "cfg-env", e.Name())
	assert.Equal(t, 3, e.ActionCount())
	assert.Equal(t, []int{3}, e.ObservationShape())

	_, _, err = e.Reset(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Position())

	hold := 2
	for {
		res, err := e.Step(&hold)
		require.NoError(t, err)
		if res.Done || res.Truncated {
			break
		}
	}
	m := e.Metrics()
	require.Len(t, m, 6)
	v, ok := m.Get("Episode Length")
	require.True(t, ok)
	assert.Equal(t, 4, v)
}

func TestPreprocessor(t *testing.T) {
	ds := market.NewDataset("X", nil)
	got, err := DatasetConfig{Preprocess: "none"}.Preprocessor()(ds)
	require.NoError(t, err)
	assert.Same(t, ds, got)

	_, err = DatasetConfig{Preprocess: "standard"}.Preprocessor()(ds)
	assert.Error(t, err, "empty dataset has no OHLC columns")
}
