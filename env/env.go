// Package env simulates an agent trading one instrument over historical
// bars. An Env steps through a market.Dataset, rebalancing a leveraged
// ledger toward the position the agent picks, and records every step in a
// history.History from which rewards, observations and terminal metrics
// are computed.
package env

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/tradegym/history"
	"github.com/rustyeddy/tradegym/journal"
	"github.com/rustyeddy/tradegym/ledger"
	"github.com/rustyeddy/tradegym/market"
)

var (
	ErrInvalidPosition = errors.New("env: invalid position")
	ErrInvalidConfig   = errors.New("env: invalid configuration")
	ErrEpisodeOver     = errors.New("env: episode is over, call Reset")
	ErrNotReset        = errors.New("env: Reset has not been called")
)

// Environment is the contract an agent loop drives.
//
// Reset starts an episode. It returns the first observation and the first
// history row, and fails with ErrInvalidPosition or ErrInvalidConfig when the
// reset options are out of range.
//
// Step applies an action index into the allowed positions, or no action
// when nil, and advances one bar. Once a step reports Done or Truncated the
// episode is over and Step fails with ErrEpisodeOver until the next Reset.
// Step before the first Reset fails with ErrNotReset.
//
// ActionCount is the number of discrete actions. ObservationShape is
// [windows, features] for windowed observations and [features] otherwise.
// An unwindowed observation is still a 1 x features matrix; Flatten gives
// the [features] vector.
type Environment interface {
	Reset(seed *int64, opts map[string]any) (*mat.Dense, history.Record, error)
	Step(action *int) (StepResult, error)
	ActionCount() int
	ObservationShape() []int
	Close() error
}

// DatasetProvider hands an Env the datasets it trades. Due is asked once per
// Reset; when it reports true the Env asks Next for a new dataset before
// starting the episode.
type DatasetProvider interface {
	Next() (*market.Dataset, error)
	Due() bool
}

// StepResult is what Step returns.
type StepResult struct {
	Observation *mat.Dense
	Reward      float64
	Done        bool // valuation reached zero or below
	Truncated   bool // out of bars or max episode duration reached
	Info        history.Record
}

// Env is a single-instrument trading environment. It is not safe for
// concurrent use; run independent Envs for parallelism.
type Env struct {
	cfg      settings
	log      *zap.Logger
	rng      *rand.Rand
	provider DatasetProvider

	ds          *market.Dataset
	name        string
	featureCols []string
	infoCols    []string
	textCols    []string
	nStatic     int
	features    *mat.Dense // one row per bar, static then dynamic columns
	closes      []float64

	idx      int
	step     int
	position float64
	ledger   *ledger.Ledger
	hist     *history.History
	orders   map[float64]LimitOrder
	metrics  []namedMetric
	results  Metrics
	episode  int
	ready    bool
	over     bool
}

// New returns an Env over one dataset.
func New(ds *market.Dataset, opts ...Option) (*Env, error) {
	e, err := newEnv(opts)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: nil dataset", ErrInvalidConfig)
	}
	if err := e.setDataset(ds); err != nil {
		return nil, err
	}
	return e, nil
}

// NewWithProvider returns an Env that takes its first dataset from p and
// rotates datasets between episodes as p decides. Unless WithName is given
// the Env is named after the current dataset.
func NewWithProvider(p DatasetProvider, opts ...Option) (*Env, error) {
	e, err := newEnv(opts)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: nil dataset provider", ErrInvalidConfig)
	}
	e.provider = p
	if err := e.nextDataset(); err != nil {
		return nil, err
	}
	return e, nil
}

func newEnv(opts []Option) (*Env, error) {
	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Env{
		cfg:    cfg,
		log:    cfg.logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		name:    cfg.name,
		orders:  make(map[float64]LimitOrder),
		metrics: append([]namedMetric(nil), cfg.metrics...),
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e, nil
}

func (e *Env) nextDataset() error {
	ds, err := e.provider.Next()
	if err != nil {
		return fmt.Errorf("next dataset: %w", err)
	}
	if err := e.setDataset(ds); err != nil {
		return err
	}
	if !e.cfg.nameSet {
		e.name = ds.Name
	}
	if e.cfg.verbose > 1 {
		e.log.Info("selected dataset", zap.String("env", e.name), zap.String("dataset", ds.Name), zap.Int("bars", ds.Len()))
	}
	return nil
}

// setDataset binds ds and precomputes the static feature matrix. The
// dynamic columns start at zero and are filled as the episode runs.
func (e *Env) setDataset(ds *market.Dataset) error {
	if err := ds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if need := e.baseIndex() + 2; ds.Len() < need {
		return fmt.Errorf("%w: dataset %s has %d bars, need at least %d", ErrInvalidConfig, ds.Name, ds.Len(), need)
	}

	for _, c := range ds.TextColumns() {
		if strings.Contains(c, e.cfg.marker) {
			return fmt.Errorf("%w: feature column %q in %s is not numeric", ErrInvalidConfig, c, ds.Name)
		}
	}
	featureCols := ds.FeatureColumns(e.cfg.marker)
	n := len(featureCols) + len(e.cfg.dynamic)
	if n == 0 {
		return fmt.Errorf("%w: dataset %s has no %q columns and no dynamic features are configured", ErrInvalidConfig, ds.Name, e.cfg.marker)
	}

	features := mat.NewDense(ds.Len(), n, nil)
	for j, c := range featureCols {
		col, err := ds.Column(c)
		if err != nil {
			return err
		}
		features.SetCol(j, col)
	}
	closes, err := ds.Column("close")
	if err != nil {
		return err
	}

	e.ds = ds
	e.featureCols = featureCols
	e.infoCols = ds.InfoColumns(e.cfg.marker)
	e.textCols = ds.TextColumns()
	e.nStatic = len(featureCols)
	e.features = features
	e.closes = closes
	e.ready = false
	return nil
}

// baseIndex is the first bar an episode can start on.
func (e *Env) baseIndex() int {
	if e.cfg.windows > 0 {
		return e.cfg.windows - 1
	}
	return 0
}

// Name identifies the environment in logs, journals and render files.
func (e *Env) Name() string { return e.name }

// Dataset is the dataset currently traded.
func (e *Env) Dataset() *market.Dataset { return e.ds }

// Positions returns the allowed positions, indexed by action.
func (e *Env) Positions() []float64 { return append([]float64(nil), e.cfg.positions...) }

func (e *Env) ActionCount() int { return len(e.cfg.positions) }

// FeatureColumns names the observation columns, dynamic features last.
func (e *Env) FeatureColumns() []string {
	out := append([]string(nil), e.featureCols...)
	for i := range e.cfg.dynamic {
		out = append(out, fmt.Sprintf("dynamic_feature__%d", i))
	}
	return out
}

func (e *Env) ObservationShape() []int {
	_, n := e.features.Dims()
	if e.cfg.windows > 0 {
		return []int{e.cfg.windows, n}
	}
	return []int{n}
}

// History is the current episode's history. It is nil before Reset.
func (e *Env) History() *history.History { return e.hist }

// Ledger is the current episode's ledger. It is nil before Reset.
func (e *Env) Ledger() *ledger.Ledger { return e.ledger }

// Position is the position the ledger was last rebalanced to.
func (e *Env) Position() float64 { return e.position }

// Index is the current bar index into the dataset.
func (e *Env) Index() int { return e.idx }

// Episode counts the episodes started by Reset.
func (e *Env) Episode() int { return e.episode }

// Close closes the journal, if one was given.
func (e *Env) Close() error {
	if e.cfg.journal == nil {
		return nil
	}
	return e.cfg.journal.Close()
}

func (e *Env) price() float64 { return e.closes[e.idx] }

func (e *Env) positionIndex(p float64) int {
	for i, q := range e.cfg.positions {
		if q == p {
			return i
		}
	}
	return -1
}

// trade rebalances the ledger to target at price and journals the trade.
func (e *Env) trade(target, price float64, reason string) error {
	from := e.position
	tr := e.ledger.TradeToPosition(target, price, e.cfg.fees)
	e.position = target

	if e.cfg.journal == nil {
		return nil
	}
	err := e.cfg.journal.RecordTrade(journal.TradeRecord{
		RunID:           e.cfg.runID,
		Env:             e.name,
		Episode:         e.episode,
		Step:            e.step,
		Time:            e.ds.Time(e.idx),
		From:            from,
		To:              target,
		Units:           tr.Units,
		Price:           tr.Price,
		Fee:             tr.Fee,
		SettledInterest: tr.SettledInterest,
		Reason:          reason,
	})
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

var _ Environment = (*Env)(nil)
