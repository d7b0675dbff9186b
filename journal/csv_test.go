package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	episodesPath := filepath.Join(dir, "episodes.csv")

	j, err := NewCSV(tradesPath, episodesPath)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	trades := readCSV(t, tradesPath)
	require.Len(t, trades, 1)
	assert.Equal(t, []string{
		"run_id", "env", "episode", "step", "time", "from_position", "to_position",
		"units", "price", "fee", "settled_interest", "reason",
	}, trades[0])

	episodes := readCSV(t, episodesPath)
	require.Len(t, episodes, 1)
	assert.Equal(t, "run_id", episodes[0][0])
	assert.Equal(t, "metrics", episodes[0][len(episodes[0])-1])
}

func TestCSVJournalRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	episodesPath := filepath.Join(dir, "episodes.csv")

	j, err := NewCSV(tradesPath, episodesPath)
	require.NoError(t, err)

	require.NoError(t, j.RecordTrade(TradeRecord{
		RunID:  "R1",
		Env:    "BTCUSDT",
		Step:   3,
		Time:   time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC),
		From:   0,
		To:     1,
		Units:  9.99,
		Price:  100,
		Fee:    1,
		Reason: "action",
	}))
	require.NoError(t, j.RecordEpisode(testEpisode("R1", "BTCUSDT", 1, 2)))

	// episodes are visible before Close
	episodes := readCSV(t, episodesPath)
	require.Len(t, episodes, 2)
	assert.Equal(t, "Market Return=1.50%;Portfolio Return=", episodes[1][len(episodes[1])-1])

	require.NoError(t, j.Close())

	trades := readCSV(t, tradesPath)
	require.Len(t, trades, 2)
	assert.Equal(t, []string{
		"R1", "BTCUSDT", "0", "3", "2024-01-02T03:00:00Z", "0.000000", "1.000000",
		"9.990000", "100.000000", "1.000000", "0.000000", "action",
	}, trades[1])
}

func TestDiscard(t *testing.T) {
	var j Journal = Discard{}
	assert.NoError(t, j.RecordTrade(TradeRecord{}))
	assert.NoError(t, j.RecordEpisode(EpisodeRecord{}))
	assert.NoError(t, j.Close())
}

func TestSharedDoesNotClose(t *testing.T) {
	dir := t.TempDir()
	j, err := NewCSV(filepath.Join(dir, "trades.csv"), filepath.Join(dir, "episodes.csv"))
	require.NoError(t, err)

	s := Shared(j)
	require.NoError(t, s.Close())
	require.NoError(t, s.RecordEpisode(EpisodeRecord{RunID: "r1", Env: "a", Episode: 1}))
	require.NoError(t, j.Close())
}
