package env

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/tradegym/history"
)

// RewardFunc computes the reward of the latest step from the episode
// history. It is not called on the step that ends the episode with a
// non-positive valuation.
type RewardFunc func(h *history.History) float64

// DynamicFeature computes one observation column from the episode history.
// It runs every time an observation is built.
type DynamicFeature func(h *history.History) float64

// RewardLogReturn is the log return of the portfolio valuation over the
// latest step.
func RewardLogReturn(h *history.History) float64 {
	last, err := h.Float("portfolio_valuation", -1)
	if err != nil {
		return math.NaN()
	}
	prev, err := h.Float("portfolio_valuation", -2)
	if err != nil {
		return math.NaN()
	}
	return math.Log(last / prev)
}

// DynamicFeatureLastPosition is the position taken at the latest step.
func DynamicFeatureLastPosition(h *history.History) float64 {
	v, _ := h.Float("position", -1)
	return v
}

// DynamicFeatureRealPosition is the ledger's real position at the latest
// step.
func DynamicFeatureRealPosition(h *history.History) float64 {
	v, _ := h.Float("real_position", -1)
	return v
}

// observation refreshes the dynamic columns of the current bar and returns
// a copy of the observed rows.
func (e *Env) observation() *mat.Dense {
	for i, fn := range e.cfg.dynamic {
		e.features.Set(e.idx, e.nStatic+i, fn(e.hist))
	}

	_, n := e.features.Dims()
	from := e.idx
	if e.cfg.windows > 0 {
		from = e.idx + 1 - e.cfg.windows
	}
	return mat.DenseCopyOf(e.features.Slice(from, e.idx+1, 0, n))
}

// Flatten returns the observation as one row-major slice, the shape a
// non-windowed observation is usually consumed in.
func Flatten(obs mat.Matrix) []float64 {
	r, c := obs.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, obs.At(i, j))
		}
	}
	return out
}
