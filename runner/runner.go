// Package runner plays episodes of an env.Environment with an agent.Policy.
package runner

import (
	"context"
	"fmt"
	"io"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/rustyeddy/tradegym/agent"
	"github.com/rustyeddy/tradegym/env"
	"github.com/rustyeddy/tradegym/history"
)

// Renderer is implemented by environments that can save the finished episode
// for the visual renderer.
type Renderer interface {
	SaveForRender(dir string) (string, error)
}

// Options controls how the runner behaves.
type Options struct {
	Episodes int    // defaults to 1
	Seed     *int64 // seeds the first Reset, nil leaves the env unseeded
	// RenderDir, when set, saves every finished episode there if the env is
	// a Renderer.
	RenderDir string
	// MaxSteps stops an episode that neither finishes nor truncates. 0 means
	// no limit.
	MaxSteps int
}

// Runner drives an environment forward with a policy.
type Runner struct {
	Name    string
	Env     env.Environment
	Policy  agent.Policy
	Options Options
}

// EpisodeResult summarizes one played episode.
type EpisodeResult struct {
	Episode         int
	Steps           int
	Reward          float64 // sum of step rewards
	Done            bool
	Truncated       bool
	InitialValue    float64
	FinalValue      float64
	PortfolioReturn float64 // percent
	MarketReturn    float64 // percent
	Render          string
}

// Result is the summary of a run.
type Result struct {
	Name       string
	Episodes   []EpisodeResult
	MeanReward float64
	StdReward  float64
	MeanReturn float64 // mean portfolio return, percent
	Bankrupt   int
}

// Run plays Options.Episodes episodes. The context is checked between
// episodes.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Env == nil {
		return Result{}, fmt.Errorf("runner: Env is required")
	}
	if r.Policy == nil {
		return Result{}, fmt.Errorf("runner: Policy is required")
	}
	n := r.Options.Episodes
	if n <= 0 {
		n = 1
	}

	res := Result{Name: r.Name}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		seed := r.Options.Seed
		if i > 0 {
			seed = nil
		}
		ep, err := r.episode(seed)
		if err != nil {
			return res, fmt.Errorf("%s episode %d: %w", r.Name, i+1, err)
		}
		ep.Episode = i + 1
		res.Episodes = append(res.Episodes, ep)
	}
	res.summarize()
	return res, nil
}

func (r *Runner) episode(seed *int64) (EpisodeResult, error) {
	if rs, ok := r.Policy.(agent.Resetter); ok {
		rs.Reset()
	}
	obs, info, err := r.Env.Reset(seed, nil)
	if err != nil {
		return EpisodeResult{}, err
	}
	first := info

	var ep EpisodeResult
	for {
		action, err := r.Policy.Act(obs, info)
		if err != nil {
			return ep, err
		}
		step, err := r.Env.Step(action)
		if err != nil {
			return ep, err
		}
		ep.Steps++
		ep.Reward += step.Reward
		obs, info = step.Observation, step.Info

		if step.Done || step.Truncated {
			ep.Done, ep.Truncated = step.Done, step.Truncated
			break
		}
		if r.Options.MaxSteps > 0 && ep.Steps >= r.Options.MaxSteps {
			break
		}
	}

	ep.InitialValue = first.Float("portfolio_valuation")
	ep.FinalValue = info.Float("portfolio_valuation")
	ep.PortfolioReturn = pctChange(first, info, "portfolio_valuation")
	ep.MarketReturn = pctChange(first, info, "data_close")

	if r.Options.RenderDir != "" {
		if rd, ok := r.Env.(Renderer); ok {
			path, err := rd.SaveForRender(r.Options.RenderDir)
			if err != nil {
				return ep, err
			}
			ep.Render = path
		}
	}
	return ep, nil
}

func pctChange(first, last history.Record, column string) float64 {
	return 100 * (last.Float(column)/first.Float(column) - 1)
}

func (r *Result) summarize() {
	if len(r.Episodes) == 0 {
		return
	}
	rewards := make([]float64, len(r.Episodes))
	returns := make([]float64, len(r.Episodes))
	r.Bankrupt = 0
	for i, ep := range r.Episodes {
		rewards[i] = ep.Reward
		returns[i] = ep.PortfolioReturn
		if ep.Done {
			r.Bankrupt++
		}
	}
	r.MeanReward, r.StdReward = stat.MeanStdDev(rewards, nil)
	if math.IsNaN(r.StdReward) {
		r.StdReward = 0
	}
	r.MeanReturn = stat.Mean(returns, nil)
}

// Factory builds the i-th runner of a parallel run. seed is base+i.
type Factory func(i int, seed int64) (*Runner, error)

// Parallel runs n independent runners on their own goroutines and returns
// their results in order. The first error cancels the context seen by the
// others. Every env built by the factory is closed, as is every policy that
// is an io.Closer.
func Parallel(ctx context.Context, n int, base int64, factory Factory) ([]Result, error) {
	results := make([]Result, n)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			r, err := factory(i, base+int64(i))
			if err != nil {
				return err
			}
			defer r.Env.Close()
			if c, ok := r.Policy.(io.Closer); ok {
				defer c.Close()
			}

			res, err := r.Run(ctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
