package env

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/rustyeddy/tradegym/history"
	"github.com/rustyeddy/tradegym/journal"
)

// MetricFunc computes a terminal metric from the finished episode's history.
type MetricFunc func(h *history.History) any

type namedMetric struct {
	name string
	fn   MetricFunc
}

// Metric is one computed terminal metric.
type Metric struct {
	Name  string
	Value any
}

// Metrics are the terminal metrics of an episode, built-ins first.
type Metrics []Metric

// Get returns the value of the named metric.
func (m Metrics) Get(name string) (any, bool) {
	for _, x := range m {
		if x.Name == name {
			return x.Value, true
		}
	}
	return nil, false
}

// Strings formats every value with fmt.Sprint.
func (m Metrics) Strings() map[string]string {
	out := make(map[string]string, len(m))
	for _, x := range m {
		out[x.Name] = fmt.Sprint(x.Value)
	}
	return out
}

// AddMetric registers a metric computed at the end of every episode.
func (e *Env) AddMetric(name string, fn MetricFunc) {
	e.metrics = append(e.metrics, namedMetric{name: name, fn: fn})
}

// Metrics returns the metrics of the last finished episode.
func (e *Env) Metrics() Metrics { return append(Metrics(nil), e.results...) }

// returns is the percent change of a history column from the first to the
// latest row.
func returns(h *history.History, column string) float64 {
	first, _ := h.Float(column, 0)
	last, _ := h.Float(column, -1)
	return 100 * (last/first - 1)
}

func fmtReturn(pct float64) string { return fmt.Sprintf("%5.2f%%", pct) }

func (e *Env) computeMetrics() {
	e.results = Metrics{
		{Name: "Market Return", Value: fmtReturn(returns(e.hist, "data_close"))},
		{Name: "Portfolio Return", Value: fmtReturn(returns(e.hist, "portfolio_valuation"))},
	}
	for _, m := range e.metrics {
		e.results = append(e.results, Metric{Name: m.name, Value: m.fn(e.hist)})
	}
}

// finishEpisode computes the terminal metrics, logs them and journals the
// episode.
func (e *Env) finishEpisode(done, truncated bool) error {
	e.computeMetrics()

	if e.cfg.verbose > 0 {
		fields := []zap.Field{
			zap.String("env", e.name),
			zap.Int("episode", e.episode),
			zap.Int("steps", e.step),
		}
		for _, m := range e.results {
			fields = append(fields, zap.Any(m.Name, m.Value))
		}
		e.log.Info("episode finished", fields...)
	}

	if e.cfg.journal == nil {
		return nil
	}
	first, _ := e.hist.At("date", 0)
	last, _ := e.hist.At("date", -1)
	initial, _ := e.hist.Float("portfolio_valuation", 0)
	final, _ := e.hist.Float("portfolio_valuation", -1)
	err := e.cfg.journal.RecordEpisode(journal.EpisodeRecord{
		RunID:           e.cfg.runID,
		Env:             e.name,
		Dataset:         e.ds.Name,
		Episode:         e.episode,
		Steps:           e.step,
		Start:           first.Time(),
		End:             last.Time(),
		InitialValue:    initial,
		FinalValue:      final,
		MarketReturn:    returns(e.hist, "data_close"),
		PortfolioReturn: returns(e.hist, "portfolio_valuation"),
		Done:            done,
		Truncated:       truncated,
		Metrics:         e.results.Strings(),
	})
	if err != nil {
		return fmt.Errorf("record episode: %w", err)
	}
	return nil
}

// MetricEpisodeLength is the number of steps taken.
func MetricEpisodeLength(h *history.History) any {
	return h.Len() - 1
}

// MetricPositionChanges counts the steps whose position differs from the
// previous step's.
func MetricPositionChanges(h *history.History) any {
	pos, err := h.Floats("position")
	if err != nil {
		return 0
	}
	n := 0
	for i := 1; i < len(pos); i++ {
		if pos[i] != pos[i-1] {
			n++
		}
	}
	return n
}

// MetricSharpe is the mean over the standard deviation of the per-step log
// returns of the portfolio valuation, not annualized. It is 0 when the
// returns do not vary.
func MetricSharpe(h *history.History) any {
	r := logReturns(h)
	if len(r) < 2 {
		return 0.0
	}
	mean, std := stat.MeanStdDev(r, nil)
	if std == 0 || math.IsNaN(std) {
		return 0.0
	}
	return mean / std
}

// MetricMaxDrawdown is the largest peak-to-trough fall of the portfolio
// valuation, in percent.
func MetricMaxDrawdown(h *history.History) any {
	v, err := h.Floats("portfolio_valuation")
	if err != nil || len(v) == 0 {
		return 0.0
	}
	peak, dd := v[0], 0.0
	for _, x := range v {
		peak = math.Max(peak, x)
		if peak > 0 {
			dd = math.Max(dd, 100*(peak-x)/peak)
		}
	}
	return dd
}

func logReturns(h *history.History) []float64 {
	v, err := h.Floats("portfolio_valuation")
	if err != nil {
		return nil
	}
	out := make([]float64, 0, len(v))
	for i := 1; i < len(v); i++ {
		if v[i] <= 0 || v[i-1] <= 0 {
			break
		}
		out = append(out, math.Log(v[i]/v[i-1]))
	}
	return out
}
