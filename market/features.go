package market

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// Preprocess transforms a freshly loaded dataset before it is used, usually
// to add feature columns.
type Preprocess func(*Dataset) (*Dataset, error)

// Identity returns the dataset unchanged.
func Identity(d *Dataset) (*Dataset, error) { return d, nil }

type namedColumn struct {
	name   string
	values []float64
}

// FeatureOptions sizes the indicator windows of StandardFeatures.
type FeatureOptions struct {
	VolumeWindow int // rolling max window for feature_volume
	RSIPeriod    int
	EMAPeriod    int
}

// DefaultFeatureOptions uses a one week volume window on hourly bars.
func DefaultFeatureOptions() FeatureOptions {
	return FeatureOptions{VolumeWindow: 7 * 24, RSIPeriod: 14, EMAPeriod: 20}
}

// StandardFeatures adds the usual normalized feature columns:
//
//	feature_close      close-to-close rate of change
//	feature_open       open / close
//	feature_high       high / close
//	feature_low        low / close
//	feature_volume     volume / rolling max volume (only with a volume column)
//	feature_rsi        RSI / 100
//	feature_ema        close / EMA - 1
//
// Warm-up rows the indicators cannot fill are dropped, as are rows with
// non-finite values.
func StandardFeatures(opts FeatureOptions) Preprocess {
	return func(d *Dataset) (*Dataset, error) {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		d = d.Copy()

		open, _ := d.Column("open")
		high, _ := d.Column("high")
		low, _ := d.Column("low")
		closes, _ := d.Column("close")

		lookback := 1
		if opts.RSIPeriod > lookback {
			lookback = opts.RSIPeriod
		}
		if opts.EMAPeriod-1 > lookback {
			lookback = opts.EMAPeriod - 1
		}
		vol, volErr := d.Column("volume")
		if volErr == nil && opts.VolumeWindow-1 > lookback {
			lookback = opts.VolumeWindow - 1
		}
		if d.Len() <= lookback {
			return nil, fmt.Errorf("features: %s has %d rows, need more than %d", d.Name, d.Len(), lookback)
		}

		ratio := func(a, b []float64) []float64 {
			out := make([]float64, len(a))
			for i := range a {
				out[i] = a[i] / b[i]
			}
			return out
		}

		cols := []namedColumn{
			{"feature_close", talib.Rocp(closes, 1)},
			{"feature_open", ratio(open, closes)},
			{"feature_high", ratio(high, closes)},
			{"feature_low", ratio(low, closes)},
		}
		if volErr == nil && opts.VolumeWindow > 0 {
			cols = append(cols, namedColumn{"feature_volume", ratio(vol, talib.Max(vol, opts.VolumeWindow))})
		}
		if opts.RSIPeriod > 0 {
			rsi := talib.Rsi(closes, opts.RSIPeriod)
			for i := range rsi {
				rsi[i] /= 100
			}
			cols = append(cols, namedColumn{"feature_rsi", rsi})
		}
		if opts.EMAPeriod > 0 {
			ema := ratio(closes, talib.Ema(closes, opts.EMAPeriod))
			for i := range ema {
				ema[i]--
			}
			cols = append(cols, namedColumn{"feature_ema", ema})
		}

		for _, c := range cols {
			if err := d.AddColumn(c.name, c.values); err != nil {
				return nil, err
			}
		}
		return d.Slice(lookback, d.Len()).DropNaN(), nil
	}
}
