package agent

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/tradegym/history"
)

// EMA is a streaming exponential moving average seeded with the simple
// average of its first period values.
type EMA struct {
	period     int
	multiplier float64
	ema        float64
	count      int
	warmupSum  float64
}

func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }

func (e *EMA) Reset() {
	e.ema = 0
	e.count = 0
	e.warmupSum = 0
}

func (e *EMA) Update(x float64) {
	if e.count < e.period {
		e.warmupSum += x
		e.count++
		if e.count == e.period {
			e.ema = e.warmupSum / float64(e.period)
		}
		return
	}
	e.ema = (x-e.ema)*e.multiplier + e.ema
}

func (e *EMA) Ready() bool { return e.count >= e.period }

// Value is 0 until the EMA is ready.
func (e *EMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.ema
}

// EMACross goes long when the fast EMA of data_close crosses above the slow
// one and short when it crosses below. Between crosses it holds.
type EMACross struct {
	Long  int // action index played on a bull cross
	Short int // action index played on a bear cross

	fast *EMA
	slow *EMA

	lastDiff     float64
	haveLastDiff bool
}

func NewEMACross(fast, slow, long, short int) (*EMACross, error) {
	if fast <= 0 || slow <= 0 || fast >= slow {
		return nil, fmt.Errorf("ema-cross: need 0 < fast < slow, got fast=%d slow=%d", fast, slow)
	}
	return &EMACross{
		Long:  long,
		Short: short,
		fast:  NewEMA(fast),
		slow:  NewEMA(slow),
	}, nil
}

func (s *EMACross) Reset() {
	s.fast.Reset()
	s.slow.Reset()
	s.lastDiff = 0
	s.haveLastDiff = false
}

func (s *EMACross) Act(_ *mat.Dense, info history.Record) (*int, error) {
	px := info.Float("data_close")
	if math.IsNaN(px) {
		return nil, fmt.Errorf("ema-cross: history row has no data_close")
	}
	s.fast.Update(px)
	s.slow.Update(px)
	if !s.fast.Ready() || !s.slow.Ready() {
		return nil, nil
	}

	diff := s.fast.Value() - s.slow.Value()
	if !s.haveLastDiff {
		s.lastDiff = diff
		s.haveLastDiff = true
		return nil, nil
	}

	bullCross := diff > 0 && s.lastDiff <= 0
	bearCross := diff < 0 && s.lastDiff >= 0
	s.lastDiff = diff

	switch {
	case bullCross:
		a := s.Long
		return &a, nil
	case bearCross:
		a := s.Short
		return &a, nil
	}
	return nil, nil
}
