package env

import (
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradegym/journal"
	"github.com/rustyeddy/tradegym/market"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newDataset builds an hourly dataset with high/low one unit around close
// and two feature columns.
func newDataset(t *testing.T, closes ...float64) *market.Dataset {
	t.Helper()
	n := len(closes)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range closes {
		highs[i] = c + 1
		lows[i] = c - 1
	}
	return newBars(t, closes, highs, lows)
}

func newBars(t *testing.T, closes, highs, lows []float64) *market.Dataset {
	t.Helper()
	n := len(closes)
	times := make([]time.Time, n)
	fa := make([]float64, n)
	fb := make([]float64, n)
	for i := range closes {
		times[i] = t0.Add(time.Duration(i) * time.Hour)
		fa[i] = float64(i)
		fb[i] = -float64(i)
	}
	ds := market.NewDataset("test", times)
	require.NoError(t, ds.AddColumn("open", closes))
	require.NoError(t, ds.AddColumn("high", highs))
	require.NoError(t, ds.AddColumn("low", lows))
	require.NoError(t, ds.AddColumn("close", closes))
	require.NoError(t, ds.AddColumn("volume", make([]float64, n)))
	require.NoError(t, ds.AddColumn("feature_a", fa))
	require.NoError(t, ds.AddColumn("feature_b", fb))
	return ds
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func newTestEnv(t *testing.T, ds *market.Dataset, opts ...Option) *Env {
	t.Helper()
	e, err := New(ds, append([]Option{WithVerbose(0)}, opts...)...)
	require.NoError(t, err)
	return e
}

func intp(i int) *int      { return &i }
func seedp(s int64) *int64 { return &s }

func TestNewValidation(t *testing.T) {
	ds := newDataset(t, flat(10, 100)...)

	tests := []struct {
		name string
		opts []Option
		err  error
	}{
		{"initial position not allowed", []Option{WithPositions(0, 1), WithInitialPosition(0.5)}, ErrInvalidPosition},
		{"no positions", []Option{WithPositions()}, ErrInvalidConfig},
		{"negative windows", []Option{WithWindows(-1)}, ErrInvalidConfig},
		{"negative duration", []Option{WithMaxEpisodeDuration(-3)}, ErrInvalidConfig},
		{"zero value", []Option{WithInitialValue(0)}, ErrInvalidConfig},
		{"fees", []Option{WithTradingFees(1)}, ErrInvalidConfig},
		{"windows longer than data", []Option{WithWindows(10)}, ErrInvalidConfig},
		{"no features", []Option{WithFeatureMarker("nope"), WithDynamicFeatures()}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(ds, tt.opts...)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	missing := market.NewDataset("x", []time.Time{t0, t0.Add(time.Hour)})
	require.NoError(t, missing.AddColumn("close", []float64{1, 2}))
	_, err := New(missing)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, market.ErrMissingColumn)
}

func TestObservationShape(t *testing.T) {
	ds := newDataset(t, flat(20, 100)...)

	e := newTestEnv(t, ds)
	assert.Equal(t, []int{4}, e.ObservationShape())
	obs, _, err := e.Reset(seedp(1), nil)
	require.NoError(t, err)
	r, c := obs.Dims()
	assert.Equal(t, 1, r)
	assert.Equal(t, 4, c)
	assert.Len(t, Flatten(obs), 4)
	assert.Equal(t, []string{"feature_a", "feature_b", "dynamic_feature__0", "dynamic_feature__1"}, e.FeatureColumns())

	w := newTestEnv(t, ds, WithWindows(5))
	assert.Equal(t, []int{5, 4}, w.ObservationShape())
	obs, rec, err := w.Reset(seedp(1), nil)
	require.NoError(t, err)
	r, c = obs.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, 4.0, rec.Float("idx"), "windowed episodes start at windows-1")
	// rows end at the current bar
	assert.Equal(t, 0.0, obs.At(0, 0))
	assert.Equal(t, 4.0, obs.At(4, 0))

	res, err := w.Step(nil)
	require.NoError(t, err)
	r, c = res.Observation.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, 5.0, res.Observation.At(4, 0))
}

func TestTextColumnsEchoedIntoHistory(t *testing.T) {
	ds := newDataset(t, 100, 101, 102, 103)
	closeTimes := make([]string, ds.Len())
	for i := range closeTimes {
		closeTimes[i] = ds.Time(i).Add(time.Hour).Format("2006-01-02 15:04:05")
	}
	require.NoError(t, ds.AddTextColumn("date_close", closeTimes))
	e := newTestEnv(t, ds, WithInitialPosition(0))

	_, rec, err := e.Reset(nil, map[string]any{"start_index": 1})
	require.NoError(t, err)
	assert.Contains(t, rec.Names(), "data_date_close")
	v, ok := rec.Get("data_date_close")
	require.True(t, ok)
	assert.Equal(t, "2024-01-01 02:00:00", v.String())

	res, err := e.Step(nil)
	require.NoError(t, err)
	v, _ = res.Info.Get("data_date_close")
	assert.Equal(t, "2024-01-01 03:00:00", v.String())

	path, err := e.SaveForRender(t.TempDir())
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "date_close")
	assert.Contains(t, string(raw), "2024-01-01 03:00:00")
}

func TestTextFeatureColumnRejected(t *testing.T) {
	ds := newDataset(t, flat(5, 100)...)
	require.NoError(t, ds.AddTextColumn("feature_label", []string{"a", "b", "c", "d", "e"}))

	_, err := New(ds, WithVerbose(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "feature_label")
}

func TestResetRecordsFirstRow(t *testing.T) {
	ds := newDataset(t, flat(10, 100)...)
	e := newTestEnv(t, ds, WithPositions(-1, 0, 1), WithInitialPosition(1))

	obs, rec, err := e.Reset(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"idx", "step", "date", "position_index", "position", "real_position",
		"data_open", "data_high", "data_low", "data_close", "data_volume",
		"portfolio_valuation",
		"portfolio_distribution_asset", "portfolio_distribution_fiat",
		"portfolio_distribution_borrowed_asset", "portfolio_distribution_borrowed_fiat",
		"portfolio_distribution_interest_asset", "portfolio_distribution_interest_fiat",
		"reward",
	}, rec.Names())

	assert.Equal(t, 2.0, rec.Float("position_index"))
	assert.Equal(t, 1.0, rec.Float("position"))
	assert.Equal(t, 1000.0, rec.Float("portfolio_valuation"))
	assert.Equal(t, 10.0, rec.Float("portfolio_distribution_asset"))
	assert.Equal(t, 0.0, rec.Float("reward"))
	date, _ := rec.Get("date")
	assert.True(t, t0.Equal(date.Time()))

	// dynamic features read the row just recorded
	assert.Equal(t, []float64{0, 0, 1, 1}, Flatten(obs))
	assert.Equal(t, 1, e.History().Len())
	assert.Equal(t, 10, e.History().Cap())
}

func TestTruncatesAtLastBar(t *testing.T) {
	ds := newDataset(t, flat(10, 100)...)
	e := newTestEnv(t, ds, WithInitialPosition(0))

	_, _, err := e.Reset(nil, nil)
	require.NoError(t, err)

	steps := 0
	for {
		res, err := e.Step(intp(1))
		require.NoError(t, err)
		steps++
		assert.False(t, res.Done)
		if res.Truncated {
			break
		}
	}
	assert.Equal(t, 9, steps)
	assert.Equal(t, 9, e.Index())

	_, err = e.Step(nil)
	assert.ErrorIs(t, err, ErrEpisodeOver)
}

func TestMaxEpisodeDuration(t *testing.T) {
	ds := newDataset(t, flat(100, 100)...)
	e := newTestEnv(t, ds, WithMaxEpisodeDuration(5))

	for i := int64(0); i < 20; i++ {
		_, rec, err := e.Reset(seedp(i), nil)
		require.NoError(t, err)
		start := int(rec.Float("idx"))
		assert.True(t, start >= 0 && start < 95, "start %d", start)

		steps := 0
		for {
			res, err := e.Step(nil)
			require.NoError(t, err)
			steps++
			if res.Truncated {
				break
			}
		}
		assert.Equal(t, 4, steps)
	}
}

func TestMaxEpisodeDurationLongerThanData(t *testing.T) {
	ds := newDataset(t, flat(6, 100)...)
	e := newTestEnv(t, ds, WithMaxEpisodeDuration(50))

	_, rec, err := e.Reset(seedp(3), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.Float("idx"))
}

func TestDoneWhenValuationNotPositive(t *testing.T) {
	ds := newDataset(t, 100, 100, 40, 40, 40)
	e := newTestEnv(t, ds, WithPositions(0, 2), WithInitialPosition(2))

	_, _, err := e.Reset(nil, nil)
	require.NoError(t, err)

	res, err := e.Step(nil)
	require.NoError(t, err)
	assert.False(t, res.Done)

	res, err = e.Step(nil)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.False(t, res.Truncated)
	assert.Equal(t, 0.0, res.Reward, "no reward once the portfolio is wiped out")
	assert.InDelta(t, -200.0, res.Info.Float("portfolio_valuation"), 1e-9)

	m, ok := e.Metrics().Get("Portfolio Return")
	require.True(t, ok)
	assert.Equal(t, "-120.00%", m)

	_, err = e.Step(nil)
	assert.ErrorIs(t, err, ErrEpisodeOver)
}

func TestRewardIsLogReturn(t *testing.T) {
	ds := newDataset(t, 100, 110, 99, 120)
	e := newTestEnv(t, ds, WithInitialPosition(1))

	_, _, err := e.Reset(nil, nil)
	require.NoError(t, err)

	res, err := e.Step(nil)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(110.0/100.0), res.Reward, 1e-12)
	assert.Equal(t, res.Reward, res.Info.Float("reward"), "reward is backfilled into the row")

	// the sale fills at 110, before the drop to 99
	res, err = e.Step(intp(0))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.Reward, 1e-12)

	res, err = e.Step(nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.Reward, 1e-12)
	assert.InDelta(t, 1100.0, res.Info.Float("portfolio_valuation"), 1e-9)
	assert.True(t, res.Truncated)
}

func TestLimitOrderFillsOnceAtLimitPrice(t *testing.T) {
	closes := []float64{100, 108, 104, 106}
	highs := []float64{101, 110, 107, 107}
	lows := []float64{99, 100, 103, 104}
	ds := newBars(t, closes, highs, lows)
	e := newTestEnv(t, ds, WithPositions(0, 0.5, 1), WithInitialPosition(0))

	_, _, err := e.Reset(nil, nil)
	require.NoError(t, err)

	e.AddLimitOrder(0.5, 105, false)
	require.Len(t, e.LimitOrders(), 1)

	res, err := e.Step(nil)
	require.NoError(t, err)

	assert.Equal(t, 0.5, e.Position())
	assert.Empty(t, e.LimitOrders())
	asset := 0.5 * 1000 / 105
	assert.InDelta(t, asset, e.Ledger().Asset, 1e-9)
	assert.InDelta(t, 500, e.Ledger().Fiat, 1e-9)
	assert.InDelta(t, asset*108+500, res.Info.Float("portfolio_valuation"), 1e-9)

	// the next bar also trades through 105 but the order is gone
	_, err = e.Step(nil)
	require.NoError(t, err)
	assert.InDelta(t, asset, e.Ledger().Asset, 1e-9)
}

func TestLimitOrderLeavesBookWhenJournalFails(t *testing.T) {
	closes := []float64{100, 108, 104, 106}
	highs := []float64{101, 110, 107, 107}
	lows := []float64{99, 100, 103, 104}
	ds := newBars(t, closes, highs, lows)
	e := newTestEnv(t, ds, WithPositions(0, 0.5, 1), WithInitialPosition(0), WithJournal(failingJournal{}, "R1"))

	_, _, err := e.Reset(nil, nil)
	require.NoError(t, err)
	e.AddLimitOrder(0.5, 105, false)

	res, err := e.Step(nil)
	assert.ErrorContains(t, err, "disk full")
	assert.False(t, res.Info.IsZero())
	assert.Equal(t, 0.5, e.Position())
	assert.Empty(t, e.LimitOrders())

	// back to flat; bar 2 covers 105 again but the order already filled
	_, err = e.Step(intp(0))
	assert.Error(t, err)
	assert.Equal(t, 0.0, e.Position())
	assert.InDelta(t, 0.0, e.Ledger().Asset, 1e-9)
}

func TestLimitOrderOutsideRangeAndPersistent(t *testing.T) {
	closes := []float64{100, 108, 104, 106, 105}
	highs := []float64{101, 110, 107, 107, 106}
	lows := []float64{99, 100, 103, 104, 104}
	ds := newBars(t, closes, highs, lows)
	e := newTestEnv(t, ds, WithPositions(0, 1), WithInitialPosition(0))

	_, _, err := e.Reset(nil, nil)
	require.NoError(t, err)

	e.AddLimitOrder(1, 90, true)
	e.AddLimitOrder(1, 103.5, true) // replaces
	require.Len(t, e.LimitOrders(), 1)

	_, err = e.Step(nil) // low 100, high 110
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Position())
	assert.Len(t, e.LimitOrders(), 1, "persistent orders stay")

	asset := e.Ledger().Asset
	_, err = e.Step(intp(0)) // back to flat at 108, then bar 2 hits 103.5 again
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Position())
	assert.NotEqual(t, asset, e.Ledger().Asset)

	e.AddLimitOrder(0, 200, false)
	_, err = e.Step(nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.Position(), "limit outside the bar range")
	assert.Len(t, e.LimitOrders(), 2)
}

func TestSeedReproducesEpisode(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/5)
	}
	ds := newDataset(t, closes...)

	run := func() ([]float64, float64, float64) {
		e := newTestEnv(t, ds, WithPositions(-1, 0, 1, 2), WithMaxEpisodeDuration(30), WithTradingFees(0.001))
		_, rec, err := e.Reset(seedp(42), nil)
		require.NoError(t, err)
		var rewards []float64
		for i := 0; ; i++ {
			res, err := e.Step(intp(i % 4))
			require.NoError(t, err)
			rewards = append(rewards, res.Reward)
			if res.Done || res.Truncated {
				break
			}
		}
		return rewards, rec.Float("idx"), rec.Float("position")
	}

	r1, idx1, pos1 := run()
	r2, idx2, pos2 := run()
	assert.Equal(t, r1, r2)
	assert.Equal(t, idx1, idx2)
	assert.Equal(t, pos1, pos2)
}

func TestResetOptions(t *testing.T) {
	ds := newDataset(t, flat(20, 100)...)
	e := newTestEnv(t, ds, WithPositions(0, 1))

	_, rec, err := e.Reset(nil, map[string]any{"initial_position": 1, "start_index": 7})
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.Float("position"))
	assert.Equal(t, 7.0, rec.Float("idx"))

	_, _, err = e.Reset(nil, map[string]any{"initial_position": 0.25})
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, _, err = e.Reset(nil, map[string]any{"start_index": 19})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, _, err = e.Reset(nil, map[string]any{"bogus": true})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStepErrors(t *testing.T) {
	ds := newDataset(t, flat(10, 100)...)
	e := newTestEnv(t, ds)

	_, err := e.Step(nil)
	assert.ErrorIs(t, err, ErrNotReset)

	_, _, err = e.Reset(nil, nil)
	require.NoError(t, err)
	_, err = e.Step(intp(2))
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestDynamicFeaturesFollowPosition(t *testing.T) {
	ds := newDataset(t, 100, 100, 120, 120)
	e := newTestEnv(t, ds, WithPositions(0, 0.5), WithInitialPosition(0))

	_, _, err := e.Reset(nil, nil)
	require.NoError(t, err)

	res, err := e.Step(intp(1))
	require.NoError(t, err)
	obs := Flatten(res.Observation)
	assert.Equal(t, 0.5, obs[2])
	assert.InDelta(t, 0.5, obs[3], 1e-12)

	res, err = e.Step(nil)
	require.NoError(t, err)
	obs = Flatten(res.Observation)
	assert.Equal(t, 0.5, obs[2])
	// price moved, so the real position drifted
	assert.InDelta(t, 600.0/1100.0, obs[3], 1e-9)

	pi, _ := res.Info.Get("position_index")
	assert.True(t, pi.IsNone(), "no action taken")
}

func TestBorrowInterestLowersValuation(t *testing.T) {
	ds := newDataset(t, flat(5, 100)...)
	e := newTestEnv(t, ds, WithPositions(-1), WithInitialPosition(-1), WithBorrowInterestRate(0.01))

	_, _, err := e.Reset(nil, nil)
	require.NoError(t, err)

	res, err := e.Step(nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, res.Info.Float("portfolio_distribution_interest_asset"), 1e-12)
	assert.InDelta(t, 990, res.Info.Float("portfolio_valuation"), 1e-9)
	assert.Less(t, res.Reward, 0.0)
}

func TestMetrics(t *testing.T) {
	ds := newDataset(t, 100, 105, 110)
	e := newTestEnv(t, ds, WithInitialPosition(1))
	e.AddMetric("Steps", MetricEpisodeLength)
	e.AddMetric("Changes", MetricPositionChanges)
	e.AddMetric("Drawdown", MetricMaxDrawdown)
	e.AddMetric("Sharpe", MetricSharpe)

	_, _, err := e.Reset(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, e.Metrics())

	_, err = e.Step(nil)
	require.NoError(t, err)
	res, err := e.Step(nil)
	require.NoError(t, err)
	require.True(t, res.Truncated)

	m := e.Metrics()
	require.Len(t, m, 6)
	assert.Equal(t, "Market Return", m[0].Name)
	assert.Equal(t, "10.00%", m[0].Value)
	assert.Equal(t, "10.00%", m[1].Value)
	assert.Equal(t, 2, m[2].Value)
	assert.Equal(t, 0, m[3].Value)
	assert.Equal(t, 0.0, m[4].Value)
	assert.Greater(t, m[5].Value.(float64), 0.0)
	assert.Equal(t, " 0.00%", fmtReturn(0))
	assert.Equal(t, "2", m.Strings()["Steps"])
}

type recordingJournal struct {
	trades   []journal.TradeRecord
	episodes []journal.EpisodeRecord
	closed   bool
}

func (j *recordingJournal) RecordTrade(t journal.TradeRecord) error {
	j.trades = append(j.trades, t)
	return nil
}

func (j *recordingJournal) RecordEpisode(e journal.EpisodeRecord) error {
	j.episodes = append(j.episodes, e)
	return nil
}

func (j *recordingJournal) Close() error {
	j.closed = true
	return nil
}

type failingJournal struct{}

func (failingJournal) RecordTrade(journal.TradeRecord) error     { return errors.New("disk full") }
func (failingJournal) RecordEpisode(journal.EpisodeRecord) error { return nil }
func (failingJournal) Close() error                              { return nil }

func TestJournalRecordsTradesAndEpisodes(t *testing.T) {
	ds := newDataset(t, 100, 110, 120)
	j := &recordingJournal{}
	e := newTestEnv(t, ds, WithName("BTCUSDT"), WithInitialPosition(0), WithJournal(j, "R1"))

	_, _, err := e.Reset(nil, nil)
	require.NoError(t, err)
	_, err = e.Step(intp(1))
	require.NoError(t, err)
	res, err := e.Step(nil)
	require.NoError(t, err)
	require.True(t, res.Truncated)

	require.Len(t, j.trades, 1)
	tr := j.trades[0]
	assert.Equal(t, "R1", tr.RunID)
	assert.Equal(t, "BTCUSDT", tr.Env)
	assert.Equal(t, 1, tr.Episode)
	assert.Equal(t, 0, tr.Step)
	assert.Equal(t, "action", tr.Reason)
	assert.InDelta(t, 10.0, tr.Units, 1e-9)
	assert.True(t, t0.Equal(tr.Time))

	require.Len(t, j.episodes, 1)
	ep := j.episodes[0]
	assert.Equal(t, 2, ep.Steps)
	assert.InDelta(t, 20.0, ep.MarketReturn, 1e-9)
	assert.InDelta(t, 1200.0, ep.FinalValue, 1e-9)
	assert.Equal(t, "20.00%", ep.Metrics["Portfolio Return"])
	assert.True(t, ep.End.Equal(t0.Add(2*time.Hour)))

	require.NoError(t, e.Close())
	assert.True(t, j.closed)
}

func TestSaveForRender(t *testing.T) {
	ds := newDataset(t, 100, 101, 102, 103)
	e := newTestEnv(t, ds, WithName("BTC/USDT"), WithInitialPosition(1))

	_, err := e.SaveForRender(t.TempDir())
	assert.ErrorIs(t, err, ErrNotReset)

	_, _, err = e.Reset(nil, map[string]any{"start_index": 1})
	require.NoError(t, err)
	_, err = e.Step(nil)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "render_logs")
	path, err := e.SaveForRender(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "BTCUSDT_"))
	assert.Equal(t, ".csv", filepath.Ext(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3, "header plus one row per recorded step")
	header := rows[0]
	assert.Equal(t, []string{"date", "open", "high", "low", "close", "volume", "feature_a", "feature_b", "idx"}, header[:9])
	assert.Contains(t, header, "portfolio_valuation")
	assert.Contains(t, header, "reward")
	for _, h := range header {
		assert.False(t, strings.HasPrefix(h, "data_"), h)
	}
	assert.Equal(t, "2024-01-01T01:00:00Z", rows[1][0])
	assert.Equal(t, "101", rows[1][4])
	assert.Equal(t, "2024-01-01T02:00:00Z", rows[2][0])
}
