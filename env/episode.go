package env

import (
	"fmt"
	"math/rand"

	"github.com/mitchellh/mapstructure"
	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/tradegym/history"
	"github.com/rustyeddy/tradegym/ledger"
)

// ResetOptions override the configured start of one episode. They are
// passed to Reset as a map, e.g. {"initial_position": 1, "start_index": 50}.
type ResetOptions struct {
	InitialPosition *float64 `mapstructure:"initial_position"`
	StartIndex      *int     `mapstructure:"start_index"`
}

func decodeResetOptions(in map[string]any) (ResetOptions, error) {
	var out ResetOptions
	if len(in) == 0 {
		return out, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(in); err != nil {
		return out, fmt.Errorf("%w: reset options: %v", ErrInvalidConfig, err)
	}
	return out, nil
}

// Reset starts a new episode. A non-nil seed reseeds the Env's random
// source, which drives the initial position and start bar. When the Env has
// a DatasetProvider that is due, the next dataset is bound first.
func (e *Env) Reset(seed *int64, opts map[string]any) (*mat.Dense, history.Record, error) {
	ro, err := decodeResetOptions(opts)
	if err != nil {
		return nil, history.Record{}, err
	}

	if e.provider != nil && e.provider.Due() {
		if err := e.nextDataset(); err != nil {
			return nil, history.Record{}, err
		}
	}
	if seed != nil {
		e.rng = rand.New(rand.NewSource(*seed))
	}

	position, err := e.initialPosition(ro.InitialPosition)
	if err != nil {
		return nil, history.Record{}, err
	}
	idx, err := e.startIndex(ro.StartIndex)
	if err != nil {
		return nil, history.Record{}, err
	}

	e.step = 0
	e.idx = idx
	e.position = position
	e.orders = make(map[float64]LimitOrder)
	e.results = nil
	e.ledger = ledger.NewTarget(position, e.cfg.initialValue, e.price())
	e.hist = history.New(e.ds.Len(), e.cfg.overflow)

	err = e.hist.Set(e.row(e.positionIndex(position), position, e.cfg.initialValue)...)
	if err != nil {
		return nil, history.Record{}, err
	}
	e.episode++
	e.ready, e.over = true, false

	rec, err := e.hist.Row(0)
	if err != nil {
		return nil, history.Record{}, err
	}
	return e.observation(), rec, nil
}

func (e *Env) initialPosition(override *float64) (float64, error) {
	switch {
	case override != nil:
		if !contains(e.cfg.positions, *override) {
			return 0, fmt.Errorf("%w: %v is not one of %v", ErrInvalidPosition, *override, e.cfg.positions)
		}
		return *override, nil
	case e.cfg.initial != nil:
		return *e.cfg.initial, nil
	}
	return e.cfg.positions[e.rng.Intn(len(e.cfg.positions))], nil
}

// startIndex picks the first bar. With a max episode duration the start is
// uniform over [base, len-maxDuration-base) so the episode can run its
// full length; when that range is empty the episode starts at base.
func (e *Env) startIndex(override *int) (int, error) {
	base := e.baseIndex()
	last := e.ds.Len() - 1
	if override != nil {
		if *override < base || *override >= last {
			return 0, fmt.Errorf("%w: start index %d outside [%d, %d)", ErrInvalidConfig, *override, base, last)
		}
		return *override, nil
	}

	idx := base
	if e.cfg.maxDuration > 0 {
		high := e.ds.Len() - e.cfg.maxDuration - base
		if high > base {
			idx = base + e.rng.Intn(high-base)
		}
	}
	return idx, nil
}

// row is the history row of the current state. positionIndex is an int at
// Reset and the step's *int action afterwards, nil when no action was taken.
func (e *Env) row(positionIndex any, realPosition, valuation float64) []history.Field {
	data := make(history.Keyed, 0, len(e.infoCols)+len(e.textCols))
	for _, c := range e.infoCols {
		data = append(data, history.F(c, e.ds.Value(c, e.idx)))
	}
	for _, c := range e.textCols {
		data = append(data, history.F(c, e.ds.Text(c, e.idx)))
	}
	return []history.Field{
		history.F("idx", e.idx),
		history.F("step", e.step),
		history.F("date", e.ds.Time(e.idx)),
		history.F("position_index", positionIndex),
		history.F("position", e.position),
		history.F("real_position", realPosition),
		history.F("data", data),
		history.F("portfolio_valuation", valuation),
		history.F("portfolio_distribution", e.ledger.Distribution()),
		history.F("reward", 0.0),
	}
}

// Step plays one bar. The action, if any, trades at the close of the
// current bar; the pending limit orders are then checked against the next
// bar, interest accrues and the new state is recorded. An error from the
// journal is returned together with a complete result.
func (e *Env) Step(action *int) (StepResult, error) {
	switch {
	case !e.ready:
		return StepResult{}, ErrNotReset
	case e.over:
		return StepResult{}, ErrEpisodeOver
	}
	if action != nil && (*action < 0 || *action >= len(e.cfg.positions)) {
		return StepResult{}, fmt.Errorf("%w: action %d, have %d positions", ErrInvalidPosition, *action, len(e.cfg.positions))
	}

	var journalErr error
	keep := func(err error) {
		if err != nil && journalErr == nil {
			journalErr = err
		}
	}

	if action != nil {
		if target := e.cfg.positions[*action]; target != e.position {
			keep(e.trade(target, e.price(), "action"))
		}
	}
	e.idx++
	e.step++

	keep(e.fillLimitOrders())

	price := e.price()
	e.ledger.UpdateInterest(e.cfg.borrowRate)
	valuation := e.ledger.Valuation(price)

	done := valuation <= 0
	truncated := e.idx >= e.ds.Len()-1
	if e.cfg.maxDuration > 0 && e.step >= e.cfg.maxDuration-1 {
		truncated = true
	}

	if err := e.hist.Add(e.row(action, e.ledger.RealPosition(price), valuation)...); err != nil {
		e.over = true
		return StepResult{}, err
	}
	reward := 0.0
	if !done {
		reward = e.cfg.reward(e.hist)
		if err := e.hist.SetAt("reward", -1, reward); err != nil {
			return StepResult{}, err
		}
	}

	if done || truncated {
		e.over = true
		keep(e.finishEpisode(done, truncated))
	}

	rec, err := e.hist.Row(-1)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{
		Observation: e.observation(),
		Reward:      reward,
		Done:        done,
		Truncated:   truncated,
		Info:        rec,
	}, journalErr
}
