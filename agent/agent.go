// Package agent holds the action policies that drive an env.Env.
package agent

import (
	"fmt"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/tradegym/history"
)

// Policy picks the next action from the latest observation and history row.
// A nil action leaves the position unchanged.
type Policy interface {
	Act(obs *mat.Dense, info history.Record) (*int, error)
}

// Resetter is implemented by policies that keep per-episode state. The
// runner calls Reset before every episode.
type Resetter interface {
	Reset()
}

// Options configures ByName.
type Options struct {
	Actions int   // number of discrete actions of the env
	Seed    int64 // random policy seed

	Action *int // constant policy action, nil holds

	FastPeriod  int // ema-cross
	SlowPeriod  int
	LongAction  int
	ShortAction int

	Model      string // onnx model file
	Library    string // onnxruntime shared library, "" for the platform default
	ObsShape   []int
	InputName  string
	OutputName string
}

// ByName builds a policy from its name: random, hold, constant, ema-cross
// or onnx.
func ByName(name string, o Options) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "random", "":
		return NewRandom(o.Actions, o.Seed), nil

	case "hold", "none", "noop":
		return Hold(), nil

	case "constant":
		if o.Action != nil && (*o.Action < 0 || *o.Action >= o.Actions) {
			return nil, fmt.Errorf("agent: constant action %d out of range [0, %d)", *o.Action, o.Actions)
		}
		return Constant{Action: o.Action}, nil

	case "ema-cross", "emacross":
		return NewEMACross(o.FastPeriod, o.SlowPeriod, o.LongAction, o.ShortAction)

	case "onnx":
		return NewONNX(ONNXOptions{
			Model:      o.Model,
			Library:    o.Library,
			ObsShape:   o.ObsShape,
			Actions:    o.Actions,
			InputName:  o.InputName,
			OutputName: o.OutputName,
		})

	default:
		return nil, fmt.Errorf("unknown agent %q (supported: random, hold, constant, ema-cross, onnx)", name)
	}
}

// Random picks every action uniformly from its own seeded source.
type Random struct {
	n   int
	rng *rand.Rand
}

func NewRandom(actions int, seed int64) *Random {
	return &Random{n: actions, rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Act(*mat.Dense, history.Record) (*int, error) {
	if r.n <= 0 {
		return nil, fmt.Errorf("agent: random policy over %d actions", r.n)
	}
	a := r.rng.Intn(r.n)
	return &a, nil
}

// Constant always plays Action. A nil Action never trades.
type Constant struct {
	Action *int
}

// Hold returns a policy that never trades.
func Hold() Constant { return Constant{} }

func (c Constant) Act(*mat.Dense, history.Record) (*int, error) {
	if c.Action == nil {
		return nil, nil
	}
	a := *c.Action
	return &a, nil
}
