package journal

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
)

type csvTrade struct {
	RunID           string `csv:"run_id"`
	Env             string `csv:"env"`
	Episode         int    `csv:"episode"`
	Step            int    `csv:"step"`
	Time            string `csv:"time"`
	From            string `csv:"from_position"`
	To              string `csv:"to_position"`
	Units           string `csv:"units"`
	Price           string `csv:"price"`
	Fee             string `csv:"fee"`
	SettledInterest string `csv:"settled_interest"`
	Reason          string `csv:"reason"`
}

type csvEpisode struct {
	RunID           string `csv:"run_id"`
	Env             string `csv:"env"`
	Dataset         string `csv:"dataset"`
	Episode         int    `csv:"episode"`
	Steps           int    `csv:"steps"`
	Start           string `csv:"start_time"`
	End             string `csv:"end_time"`
	InitialValue    string `csv:"initial_value"`
	FinalValue      string `csv:"final_value"`
	MarketReturn    string `csv:"market_return"`
	PortfolioReturn string `csv:"portfolio_return"`
	Done            bool   `csv:"done"`
	Truncated       bool   `csv:"truncated"`
	Metrics         string `csv:"metrics"` // name=value pairs joined by ';'
}

// CSVJournal keeps the records in memory and rewrites both files whenever an
// episode is recorded and on Close.
type CSVJournal struct {
	mu       sync.Mutex
	trades   []csvTrade
	episodes []csvEpisode
	tf, ef   *os.File
}

func NewCSV(tradesPath, episodesPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(episodesPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	j := &CSVJournal{tf: tf, ef: ef}
	if err := j.flushLocked(); err != nil {
		j.closeFiles()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.trades = append(j.trades, csvTrade{
		RunID:           t.RunID,
		Env:             t.Env,
		Episode:         t.Episode,
		Step:            t.Step,
		Time:            t.Time.UTC().Format(time.RFC3339),
		From:            f(t.From),
		To:              f(t.To),
		Units:           f(t.Units),
		Price:           f(t.Price),
		Fee:             f(t.Fee),
		SettledInterest: f(t.SettledInterest),
		Reason:          t.Reason,
	})
	return nil
}

func (j *CSVJournal) RecordEpisode(e EpisodeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	pairs := make([]string, 0, len(e.Metrics))
	for _, k := range sortedKeys(e.Metrics) {
		pairs = append(pairs, k+"="+strings.TrimSpace(e.Metrics[k]))
	}
	j.episodes = append(j.episodes, csvEpisode{
		RunID:           e.RunID,
		Env:             e.Env,
		Dataset:         e.Dataset,
		Episode:         e.Episode,
		Steps:           e.Steps,
		Start:           e.Start.UTC().Format(time.RFC3339),
		End:             e.End.UTC().Format(time.RFC3339),
		InitialValue:    f(e.InitialValue),
		FinalValue:      f(e.FinalValue),
		MarketReturn:    f(e.MarketReturn),
		PortfolioReturn: f(e.PortfolioReturn),
		Done:            e.Done,
		Truncated:       e.Truncated,
		Metrics:         strings.Join(pairs, ";"),
	})
	return j.flushLocked()
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flushLocked(); err != nil {
		j.closeFiles()
		return err
	}
	return j.closeFiles()
}

func (j *CSVJournal) flushLocked() error {
	if err := rewrite(j.tf, &j.trades); err != nil {
		return err
	}
	return rewrite(j.ef, &j.episodes)
}

func (j *CSVJournal) closeFiles() error {
	if err := j.tf.Close(); err != nil {
		j.ef.Close()
		return err
	}
	return j.ef.Close()
}

// rewrite replaces the file content with rows, header included even when
// rows is empty.
func rewrite(file *os.File, rows any) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.Seek(0, 0); err != nil {
		return err
	}
	return gocsv.MarshalFile(rows, file)
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
