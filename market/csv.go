package market

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

// TimeColumns are the header names accepted as the timestamp column, in
// order of preference.
var TimeColumns = []string{"date", "timestamp", "time", "date_open"}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"20060102 150405",
}

// LoadCSV reads a dataset from a CSV file. The dataset is named after the
// file.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ds, err := ReadCSV(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

type csvRow struct {
	t     time.Time
	cells []string
	line  int
}

// ReadCSV parses a header-first CSV with one timestamp column. A column
// whose cells all parse as numbers is numeric, with empty cells read as
// NaN; any other column is kept as text. OHLC and feature columns must be
// numeric. Rows are sorted by time; for duplicate timestamps the first row
// wins.
func ReadCSV(r io.Reader, name string) (*Dataset, error) {
	records, err := gocsv.DefaultCSVReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv")
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	tcol := timeColumn(header)
	if tcol < 0 {
		return nil, fmt.Errorf("%w: need one of %v", ErrMissingColumn, TimeColumns)
	}

	rows := make([]csvRow, 0, len(records)-1)
	for n, rec := range records[1:] {
		line := n + 2
		if len(rec) != len(header) {
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(rec), len(header))
		}
		t, err := ParseTime(rec[tcol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, csvRow{t: t, cells: rec, line: line})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].t.Before(rows[j].t) })

	// keep-first policy for duplicate timestamps
	uniq := rows[:0]
	for i, row := range rows {
		if i > 0 && row.t.Equal(uniq[len(uniq)-1].t) {
			continue
		}
		uniq = append(uniq, row)
	}

	times := make([]time.Time, len(uniq))
	for i, row := range uniq {
		times[i] = row.t
	}
	ds := NewDataset(name, times)

	for i, h := range header {
		if i == tcol {
			continue
		}
		col, err := parseNumbers(uniq, i)
		if err == nil {
			if err := ds.AddColumn(h, col); err != nil {
				return nil, err
			}
			continue
		}
		if numericColumn(h) {
			return nil, fmt.Errorf("column %q: %w", h, err)
		}
		text := make([]string, len(uniq))
		for j, row := range uniq {
			text[j] = strings.TrimSpace(row.cells[i])
		}
		if err := ds.AddTextColumn(h, text); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func parseNumbers(rows []csvRow, i int) ([]float64, error) {
	col := make([]float64, len(rows))
	for j, row := range rows {
		cell := strings.TrimSpace(row.cells[i])
		if cell == "" {
			col[j] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", row.line, err)
		}
		col[j] = v
	}
	return col, nil
}

func numericColumn(name string) bool {
	switch strings.ToLower(name) {
	case "open", "high", "low", "close":
		return true
	}
	return strings.Contains(name, FeatureMarker)
}

// WriteCSV writes the dataset with a leading "date" column in RFC3339,
// numeric columns first and text columns after.
func WriteCSV(w io.Writer, d *Dataset) error {
	cw := gocsv.DefaultCSVWriter(w)

	cols := d.Columns()
	texts := d.TextColumns()
	header := append(append([]string{"date"}, cols...), texts...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < d.Len(); i++ {
		rec := make([]string, 0, len(header))
		rec = append(rec, d.Time(i).UTC().Format(time.RFC3339))
		for _, c := range cols {
			rec = append(rec, strconv.FormatFloat(d.Value(c, i), 'f', -1, 64))
		}
		for _, c := range texts {
			rec = append(rec, d.Text(c, i))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the dataset to path.
func SaveCSV(path string, d *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, d); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ParseTime reads the timestamp formats found in exported market data,
// including unix seconds and milliseconds.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

func timeColumn(header []string) int {
	for _, want := range TimeColumns {
		for i, h := range header {
			if strings.EqualFold(h, want) {
				return i
			}
		}
	}
	return -1
}
