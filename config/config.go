package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradegym/env"
	"github.com/rustyeddy/tradegym/history"
	"github.com/rustyeddy/tradegym/market"
)

// Config represents a complete tradegym run
type Config struct {
	Env     EnvConfig     `json:"env" yaml:"env"`
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`
	Agent   AgentConfig   `json:"agent" yaml:"agent"`
	Run     RunConfig     `json:"run" yaml:"run"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Render  RenderConfig  `json:"render" yaml:"render"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// EnvConfig contains the environment parameters
type EnvConfig struct {
	Name               string    `json:"name,omitempty" yaml:"name,omitempty"`
	Positions          []float64 `json:"positions" yaml:"positions"`
	InitialPosition    string    `json:"initial_position" yaml:"initial_position"` // "random" or one of positions
	Windows            int       `json:"windows,omitempty" yaml:"windows,omitempty"`
	TradingFees        float64   `json:"trading_fees" yaml:"trading_fees"`
	BorrowInterestRate float64   `json:"borrow_interest_rate" yaml:"borrow_interest_rate"`
	InitialValue       float64   `json:"portfolio_initial_value" yaml:"portfolio_initial_value"`
	MaxEpisodeDuration int       `json:"max_episode_duration,omitempty" yaml:"max_episode_duration,omitempty"`
	Verbose            int       `json:"verbose" yaml:"verbose"`
	FeatureMarker      string    `json:"feature_marker,omitempty" yaml:"feature_marker,omitempty"`
	DynamicFeatures    []string  `json:"dynamic_features" yaml:"dynamic_features"`
	Metrics            []string  `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	HistoryOverflow    string    `json:"history_overflow,omitempty" yaml:"history_overflow,omitempty"` // "error" or "grow"
}

// DatasetConfig selects the data. Pattern, a glob, rotates between every
// matching file; Path trades a single file.
type DatasetConfig struct {
	Path        string        `json:"path,omitempty" yaml:"path,omitempty"`
	Pattern     string        `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	SwitchEvery int           `json:"switch_every,omitempty" yaml:"switch_every,omitempty"`
	Preprocess  string        `json:"preprocess" yaml:"preprocess"` // "none" or "standard"
	Features    FeatureConfig `json:"features,omitempty" yaml:"features,omitempty"`
}

// FeatureConfig sizes the windows of the standard preprocessing
type FeatureConfig struct {
	VolumeWindow int `json:"volume_window,omitempty" yaml:"volume_window,omitempty"`
	RSIPeriod    int `json:"rsi_period,omitempty" yaml:"rsi_period,omitempty"`
	EMAPeriod    int `json:"ema_period,omitempty" yaml:"ema_period,omitempty"`
}

// AgentConfig selects the policy
type AgentConfig struct {
	Type        string `json:"type" yaml:"type"` // random, hold, constant, ema-cross, onnx
	Action      *int   `json:"action,omitempty" yaml:"action,omitempty"`
	FastPeriod  int    `json:"fast_period,omitempty" yaml:"fast_period,omitempty"`
	SlowPeriod  int    `json:"slow_period,omitempty" yaml:"slow_period,omitempty"`
	LongAction  int    `json:"long_action,omitempty" yaml:"long_action,omitempty"`
	ShortAction int    `json:"short_action,omitempty" yaml:"short_action,omitempty"`
	Model       string `json:"model,omitempty" yaml:"model,omitempty"`
	Library     string `json:"library,omitempty" yaml:"library,omitempty"`
	InputName   string `json:"input_name,omitempty" yaml:"input_name,omitempty"`
	OutputName  string `json:"output_name,omitempty" yaml:"output_name,omitempty"`
}

// RunConfig contains the episode loop parameters
type RunConfig struct {
	Episodes int    `json:"episodes" yaml:"episodes"`
	Envs     int    `json:"envs" yaml:"envs"`
	Seed     *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	MaxSteps int    `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
	Timeout  string `json:"timeout,omitempty" yaml:"timeout,omitempty"` // e.g. "10m"
}

// ParseTimeout converts the timeout string to time.Duration
func (r RunConfig) ParseTimeout() (time.Duration, error) {
	if r.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(r.Timeout)
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type         string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile   string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EpisodesFile string `json:"episodes_file,omitempty" yaml:"episodes_file,omitempty"`
	DBPath       string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// RenderConfig controls the render files saved after every episode
type RenderConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Dir     string `json:"dir" yaml:"dir"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // console or json
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Env.Positions) == 0 {
		return fmt.Errorf("env.positions is required")
	}
	if _, _, err := c.Env.initialPosition(); err != nil {
		return err
	}
	if c.Env.InitialValue <= 0 {
		return fmt.Errorf("env.portfolio_initial_value must be positive")
	}
	if c.Env.TradingFees < 0 || c.Env.TradingFees >= 1 {
		return fmt.Errorf("env.trading_fees must be in [0, 1)")
	}
	if c.Env.BorrowInterestRate < 0 {
		return fmt.Errorf("env.borrow_interest_rate must not be negative")
	}
	if c.Env.Windows < 0 || c.Env.MaxEpisodeDuration < 0 {
		return fmt.Errorf("env.windows and env.max_episode_duration must not be negative")
	}
	for _, name := range c.Env.DynamicFeatures {
		if _, ok := DynamicFeatures[name]; !ok {
			return fmt.Errorf("unknown dynamic feature: %s", name)
		}
	}
	for _, name := range c.Env.Metrics {
		if _, ok := Metrics[name]; !ok {
			return fmt.Errorf("unknown metric: %s", name)
		}
	}
	if _, err := c.Env.overflow(); err != nil {
		return err
	}

	if (c.Dataset.Path == "") == (c.Dataset.Pattern == "") {
		return fmt.Errorf("exactly one of dataset.path and dataset.pattern is required")
	}
	if c.Dataset.SwitchEvery < 0 {
		return fmt.Errorf("dataset.switch_every must not be negative")
	}
	if p := c.Dataset.Preprocess; p != "" && p != "none" && p != "standard" {
		return fmt.Errorf("dataset.preprocess must be 'none' or 'standard'")
	}

	if c.Run.Episodes <= 0 {
		return fmt.Errorf("run.episodes must be positive")
	}
	if c.Run.Envs <= 0 {
		return fmt.Errorf("run.envs must be positive")
	}
	if _, err := c.Run.ParseTimeout(); err != nil {
		return fmt.Errorf("run.timeout: %w", err)
	}

	switch c.Journal.Type {
	case "none", "":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EpisodesFile == "" {
			return fmt.Errorf("journal trades_file and episodes_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}

	if c.Render.Enabled && c.Render.Dir == "" {
		return fmt.Errorf("render.dir required when render is enabled")
	}
	if c.Agent.Type == "onnx" && c.Agent.Model == "" {
		return fmt.Errorf("agent.model required for the onnx agent")
	}
	return nil
}

// DynamicFeatures maps config names to dynamic feature functions.
var DynamicFeatures = map[string]env.DynamicFeature{
	"last_position": env.DynamicFeatureLastPosition,
	"real_position": env.DynamicFeatureRealPosition,
}

// Metrics maps config names to terminal metrics and their display names.
var Metrics = map[string]struct {
	Name string
	Fn   env.MetricFunc
}{
	"episode_length":   {"Episode Length", env.MetricEpisodeLength},
	"position_changes": {"Position Changes", env.MetricPositionChanges},
	"sharpe":           {"Sharpe", env.MetricSharpe},
	"max_drawdown":     {"Max Drawdown", env.MetricMaxDrawdown},
}

// initialPosition parses InitialPosition. random is true for "random" or "".
func (e EnvConfig) initialPosition() (p float64, random bool, err error) {
	s := strings.TrimSpace(e.InitialPosition)
	if s == "" || strings.EqualFold(s, "random") {
		return 0, true, nil
	}
	p, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("env.initial_position must be 'random' or a number: %w", err)
	}
	for _, q := range e.Positions {
		if q == p {
			return p, false, nil
		}
	}
	return 0, false, fmt.Errorf("env.initial_position %v is not one of %v", p, e.Positions)
}

func (e EnvConfig) overflow() (history.Overflow, error) {
	switch e.HistoryOverflow {
	case "", "error":
		return history.OverflowError, nil
	case "grow":
		return history.OverflowGrow, nil
	}
	return 0, fmt.Errorf("env.history_overflow must be 'error' or 'grow'")
}

// Options turns the env section into env options. Logger and journal are
// added by the caller.
func (e EnvConfig) Options() ([]env.Option, error) {
	opts := []env.Option{
		env.WithPositions(e.Positions...),
		env.WithWindows(e.Windows),
		env.WithTradingFees(e.TradingFees),
		env.WithBorrowInterestRate(e.BorrowInterestRate),
		env.WithInitialValue(e.InitialValue),
		env.WithMaxEpisodeDuration(e.MaxEpisodeDuration),
		env.WithVerbose(e.Verbose),
	}
	if e.Name != "" {
		opts = append(opts, env.WithName(e.Name))
	}
	if e.FeatureMarker != "" {
		opts = append(opts, env.WithFeatureMarker(e.FeatureMarker))
	}

	p, random, err := e.initialPosition()
	if err != nil {
		return nil, err
	}
	if random {
		opts = append(opts, env.WithRandomInitialPosition())
	} else {
		opts = append(opts, env.WithInitialPosition(p))
	}

	dyn := make([]env.DynamicFeature, 0, len(e.DynamicFeatures))
	for _, name := range e.DynamicFeatures {
		fn, ok := DynamicFeatures[name]
		if !ok {
			return nil, fmt.Errorf("unknown dynamic feature: %s", name)
		}
		dyn = append(dyn, fn)
	}
	opts = append(opts, env.WithDynamicFeatures(dyn...))

	for _, name := range e.Metrics {
		m, ok := Metrics[name]
		if !ok {
			return nil, fmt.Errorf("unknown metric: %s", name)
		}
		opts = append(opts, env.WithMetric(m.Name, m.Fn))
	}

	of, err := e.overflow()
	if err != nil {
		return nil, err
	}
	return append(opts, env.WithHistoryOverflow(of)), nil
}

// Preprocessor returns the dataset preprocessing step.
func (d DatasetConfig) Preprocessor() market.Preprocess {
	if d.Preprocess != "standard" {
		return market.Identity
	}
	opts := market.DefaultFeatureOptions()
	if d.Features.VolumeWindow > 0 {
		opts.VolumeWindow = d.Features.VolumeWindow
	}
	if d.Features.RSIPeriod > 0 {
		opts.RSIPeriod = d.Features.RSIPeriod
	}
	if d.Features.EMAPeriod > 0 {
		opts.EMAPeriod = d.Features.EMAPeriod
	}
	return market.StandardFeatures(opts)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	seed := int64(42)
	return &Config{
		Env: EnvConfig{
			Positions:       []float64{-1, 0, 1},
			InitialPosition: "random",
			InitialValue:    1000,
			TradingFees:     0.001,
			// 0.003% per hourly step
			BorrowInterestRate: 0.00003,
			Verbose:            1,
			DynamicFeatures:    []string{"last_position", "real_position"},
			Metrics:            []string{"episode_length", "position_changes", "sharpe", "max_drawdown"},
		},
		Dataset: DatasetConfig{
			Pattern:     "./data/*.csv",
			SwitchEvery: 1,
			Preprocess:  "standard",
		},
		Agent: AgentConfig{Type: "random"},
		Run: RunConfig{
			Episodes: 10,
			Envs:     1,
			Seed:     &seed,
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./tradegym.db",
		},
		Render: RenderConfig{Dir: "./render_logs"},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}
