package market

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// FeatureMarker is the default substring that marks a column as an
// observation feature.
const FeatureMarker = "feature"

var (
	ErrMissingColumn = errors.New("market: missing column")
	ErrLength        = errors.New("market: column length does not match dataset")
	ErrUnsorted      = errors.New("market: timestamps are not increasing")
)

// Bar is one OHLC row.
type Bar struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Dataset is a time-indexed table for a single instrument. Rows are
// ordered by time. Numeric columns hold prices and features; text columns
// are opaque per-bar values carried along for the history.
type Dataset struct {
	Name     string
	times    []time.Time
	columns  []string
	data     map[string][]float64
	textCols []string
	text     map[string][]string
}

// NewDataset returns an empty table over the given timestamps.
func NewDataset(name string, times []time.Time) *Dataset {
	return &Dataset{
		Name:  name,
		times: append([]time.Time(nil), times...),
		data:  make(map[string][]float64),
		text:  make(map[string][]string),
	}
}

// AddColumn adds or replaces a column. values must have one entry per row.
func (d *Dataset) AddColumn(name string, values []float64) error {
	if len(values) != len(d.times) {
		return fmt.Errorf("%w: %q has %d values, dataset has %d rows", ErrLength, name, len(values), len(d.times))
	}
	if _, ok := d.text[name]; ok {
		return fmt.Errorf("market: %q is already a text column", name)
	}
	if _, ok := d.data[name]; !ok {
		d.columns = append(d.columns, name)
	}
	d.data[name] = append([]float64(nil), values...)
	return nil
}

// AddTextColumn adds or replaces a text column.
func (d *Dataset) AddTextColumn(name string, values []string) error {
	if len(values) != len(d.times) {
		return fmt.Errorf("%w: %q has %d values, dataset has %d rows", ErrLength, name, len(values), len(d.times))
	}
	if _, ok := d.data[name]; ok {
		return fmt.Errorf("market: %q is already a numeric column", name)
	}
	if _, ok := d.text[name]; !ok {
		d.textCols = append(d.textCols, name)
	}
	d.text[name] = append([]string(nil), values...)
	return nil
}

// TextColumns lists the text columns in load order.
func (d *Dataset) TextColumns() []string { return append([]string(nil), d.textCols...) }

// Text returns one text cell, or "" when the column does not exist.
func (d *Dataset) Text(name string, i int) string {
	col, ok := d.text[name]
	if !ok {
		return ""
	}
	return col[i]
}

func (d *Dataset) Len() int { return len(d.times) }
func (d *Dataset) Time(i int) time.Time { return d.times[i] }
func (d *Dataset) Times() []time.Time { return append([]time.Time(nil), d.times...) }
func (d *Dataset) Columns() []string { return append([]string(nil), d.columns...) }
func (d *Dataset) Has(name string) bool {
	_, ok := d.data[name]
	return ok
}
func (d *Dataset) Close(i int) float64 { return d.data["close"][i] }

// Column returns a copy of a column.
func (d *Dataset) Column(name string) ([]float64, error) {
	col, ok := d.data[name]
	if !ok {
		return nil, fmt.Errorf("%w %q in %s, available: %v", ErrMissingColumn, name, d.Name, d.columns)
	}
	return append([]float64(nil), col...), nil
}

// Value returns one cell, or NaN when the column does not exist.
func (d *Dataset) Value(name string, i int) float64 {
	col, ok := d.data[name]
	if !ok {
		return math.NaN()
	}
	return col[i]
}

// Bar returns the OHLC values of row i.
func (d *Dataset) Bar(i int) Bar {
	return Bar{
		Time:  d.times[i],
		Open:  d.Value("open", i),
		High:  d.Value("high", i),
		Low:   d.Value("low", i),
		Close: d.Value("close", i),
	}
}

// Validate checks the columns the simulator relies on.
func (d *Dataset) Validate() error {
	for _, c := range []string{"open", "high", "low", "close"} {
		if !d.Has(c) {
			return fmt.Errorf("%w %q in %s", ErrMissingColumn, c, d.Name)
		}
	}
	for i := 1; i < len(d.times); i++ {
		if !d.times[i].After(d.times[i-1]) {
			return fmt.Errorf("%w: row %d (%s)", ErrUnsorted, i, d.times[i].Format(time.RFC3339))
		}
	}
	return nil
}

// FeatureColumns lists, in column order, the numeric columns whose name
// contains marker.
func (d *Dataset) FeatureColumns(marker string) []string {
	var out []string
	for _, c := range d.columns {
		if strings.Contains(c, marker) {
			out = append(out, c)
		}
	}
	return out
}

// InfoColumns lists the numeric columns that are not features. close is
// always included. Text columns are listed by TextColumns.
func (d *Dataset) InfoColumns(marker string) []string {
	var out []string
	for _, c := range d.columns {
		if !strings.Contains(c, marker) || c == "close" {
			out = append(out, c)
		}
	}
	return out
}

// Slice returns rows [from, to) as a new dataset.
func (d *Dataset) Slice(from, to int) *Dataset {
	out := NewDataset(d.Name, d.times[from:to])
	for _, c := range d.columns {
		out.columns = append(out.columns, c)
		out.data[c] = append([]float64(nil), d.data[c][from:to]...)
	}
	for _, c := range d.textCols {
		out.textCols = append(out.textCols, c)
		out.text[c] = append([]string(nil), d.text[c][from:to]...)
	}
	return out
}

// Copy returns a deep copy.
func (d *Dataset) Copy() *Dataset { return d.Slice(0, d.Len()) }

// DropNaN returns the rows where every numeric column is finite.
func (d *Dataset) DropNaN() *Dataset {
	keep := make([]int, 0, d.Len())
	for i := range d.times {
		ok := true
		for _, c := range d.columns {
			v := d.data[c][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}

	times := make([]time.Time, len(keep))
	for j, i := range keep {
		times[j] = d.times[i]
	}
	out := NewDataset(d.Name, times)
	for _, c := range d.columns {
		col := make([]float64, len(keep))
		for j, i := range keep {
			col[j] = d.data[c][i]
		}
		out.columns = append(out.columns, c)
		out.data[c] = col
	}
	for _, c := range d.textCols {
		col := make([]string, len(keep))
		for j, i := range keep {
			col[j] = d.text[c][i]
		}
		out.textCols = append(out.textCols, c)
		out.text[c] = col
	}
	return out
}

// IndexOf returns the row holding timestamp t.
func (d *Dataset) IndexOf(t time.Time) (int, bool) {
	lo, hi := 0, len(d.times)
	for lo < hi {
		mid := (lo + hi) / 2
		if d.times[mid].Before(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(d.times) && d.times[lo].Equal(t) {
		return lo, true
	}
	return 0, false
}
