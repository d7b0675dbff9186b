package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
)

// RenderTimeLayout stamps render file names.
const RenderTimeLayout = "2006-01-02_15-04-05"

// SaveForRender writes the current episode for the renderer: every dataset
// column joined on date with the history columns, per-bar data_ copies
// excluded, one row per recorded step. The file is
// <dir>/<name>_<timestamp>.csv and its path is returned.
func (e *Env) SaveForRender(dir string) (string, error) {
	if e.hist == nil {
		return "", ErrNotReset
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	var histCols []string
	for _, c := range e.hist.Columns() {
		if c == "date" || strings.HasPrefix(c, "data_") {
			continue
		}
		histCols = append(histCols, c)
	}
	tbl, err := e.hist.Select(append([]string{"date"}, histCols...)...)
	if err != nil {
		return "", err
	}

	name := strings.NewReplacer("/", "", string(os.PathSeparator), "").Replace(e.name)
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", name, time.Now().Format(RenderTimeLayout)))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := gocsv.DefaultCSVWriter(f)
	dsCols := e.ds.Columns()
	textCols := e.ds.TextColumns()
	header := append(append(append([]string{"date"}, dsCols...), textCols...), histCols...)
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, row := range tbl.Rows {
		t := row[0].Time()
		i, ok := e.ds.IndexOf(t)
		if !ok {
			continue
		}
		rec := make([]string, 0, len(header))
		rec = append(rec, t.UTC().Format(time.RFC3339))
		for _, c := range dsCols {
			rec = append(rec, strconv.FormatFloat(e.ds.Value(c, i), 'f', -1, 64))
		}
		for _, c := range textCols {
			rec = append(rec, e.ds.Text(c, i))
		}
		for _, v := range row[1:] {
			rec = append(rec, v.String())
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, f.Close()
}
