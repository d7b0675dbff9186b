package env

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradegym/history"
	"github.com/rustyeddy/tradegym/journal"
	"github.com/rustyeddy/tradegym/market"
)

type settings struct {
	name         string
	nameSet      bool
	positions    []float64
	initial      *float64 // nil picks a random allowed position each Reset
	dynamic      []DynamicFeature
	reward       RewardFunc
	windows      int // 0 observes only the current bar
	fees         float64
	borrowRate   float64
	initialValue float64
	maxDuration  int // 0 runs to the last bar
	verbose      int
	marker       string
	logger       *zap.Logger
	journal      journal.Journal
	runID        string
	overflow     history.Overflow
	metrics      []namedMetric
}

func defaults() settings {
	return settings{
		name:         "Stock",
		positions:    []float64{0, 1},
		dynamic:      []DynamicFeature{DynamicFeatureLastPosition, DynamicFeatureRealPosition},
		reward:       RewardLogReturn,
		initialValue: 1000,
		verbose:      1,
		marker:       market.FeatureMarker,
		overflow:     history.OverflowError,
	}
}

func (s settings) validate() error {
	if len(s.positions) == 0 {
		return fmt.Errorf("%w: no positions", ErrInvalidConfig)
	}
	if s.initial != nil && !contains(s.positions, *s.initial) {
		return fmt.Errorf("%w: initial position %v is not one of %v", ErrInvalidPosition, *s.initial, s.positions)
	}
	if s.windows < 0 {
		return fmt.Errorf("%w: windows %d", ErrInvalidConfig, s.windows)
	}
	if s.maxDuration < 0 {
		return fmt.Errorf("%w: max episode duration %d", ErrInvalidConfig, s.maxDuration)
	}
	if s.initialValue <= 0 {
		return fmt.Errorf("%w: initial portfolio value %v", ErrInvalidConfig, s.initialValue)
	}
	if s.fees < 0 || s.fees >= 1 {
		return fmt.Errorf("%w: trading fees %v", ErrInvalidConfig, s.fees)
	}
	if s.borrowRate < 0 {
		return fmt.Errorf("%w: borrow interest rate %v", ErrInvalidConfig, s.borrowRate)
	}
	if s.reward == nil {
		return fmt.Errorf("%w: nil reward function", ErrInvalidConfig)
	}
	return nil
}

func contains(xs []float64, x float64) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Option configures an Env.
type Option func(*settings)

// WithName names the environment, e.g. "BTC/USDT".
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
		s.nameSet = true
	}
}

// WithPositions sets the allowed positions. Action i selects positions[i].
// Defaults to [0, 1].
func WithPositions(positions ...float64) Option {
	return func(s *settings) { s.positions = append([]float64(nil), positions...) }
}

// WithInitialPosition starts every episode at p, which must be one of the
// allowed positions.
func WithInitialPosition(p float64) Option {
	return func(s *settings) { s.initial = &p }
}

// WithRandomInitialPosition starts every episode at a position drawn
// uniformly from the allowed ones. This is the default.
func WithRandomInitialPosition() Option {
	return func(s *settings) { s.initial = nil }
}

// WithDynamicFeatures replaces the dynamic feature functions. Passing none
// disables dynamic features.
func WithDynamicFeatures(fns ...DynamicFeature) Option {
	return func(s *settings) { s.dynamic = append([]DynamicFeature(nil), fns...) }
}

func WithReward(fn RewardFunc) Option {
	return func(s *settings) { s.reward = fn }
}

// WithWindows makes observations the n most recent bars instead of the
// current one.
func WithWindows(n int) Option {
	return func(s *settings) { s.windows = n }
}

// WithTradingFees sets the proportional fee per trade, 0.001 = 0.1%.
func WithTradingFees(fee float64) Option {
	return func(s *settings) { s.fees = fee }
}

// WithBorrowInterestRate sets the interest charged per step on borrowed
// balances. A 0.05% daily rate on hourly bars is 0.0005/24.
func WithBorrowInterestRate(rate float64) Option {
	return func(s *settings) { s.borrowRate = rate }
}

func WithInitialValue(v float64) Option {
	return func(s *settings) { s.initialValue = v }
}

// WithMaxEpisodeDuration truncates episodes after n steps and starts each
// episode at a random bar. 0 runs episodes to the end of the dataset.
func WithMaxEpisodeDuration(n int) Option {
	return func(s *settings) { s.maxDuration = n }
}

// WithVerbose sets what is logged: 0 nothing, 1 episode results, 2 also
// dataset switches.
func WithVerbose(level int) Option {
	return func(s *settings) { s.verbose = level }
}

// WithFeatureMarker changes the substring that marks a dataset column as an
// observation feature. Defaults to "feature".
func WithFeatureMarker(marker string) Option {
	return func(s *settings) { s.marker = marker }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithJournal records trades and episode results under runID.
func WithJournal(j journal.Journal, runID string) Option {
	return func(s *settings) {
		s.journal = j
		s.runID = runID
	}
}

// WithHistoryOverflow selects what the history does if an episode records
// more rows than the dataset has bars. The default, history.OverflowError,
// fails the step.
func WithHistoryOverflow(o history.Overflow) Option {
	return func(s *settings) { s.overflow = o }
}

// WithMetric registers a terminal metric, as AddMetric does after
// construction.
func WithMetric(name string, fn MetricFunc) Option {
	return func(s *settings) { s.metrics = append(s.metrics, namedMetric{name: name, fn: fn}) }
}
