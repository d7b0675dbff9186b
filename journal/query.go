package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

const episodeColumns = `run_id, env, dataset, episode, steps, start_time, end_time, initial_value, final_value,
	market_return, portfolio_return, done, truncated`

// GetRun returns a single run by ID.
func (j *SQLite) GetRun(runID string) (Run, error) {
	var r Run
	err := j.db.Get(&r, `
		SELECT run_id, created, env, dataset, agent, seed, config
		FROM runs
		WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %q not found", runID)
	}
	return r, err
}

// ListRuns returns every run, newest first.
func (j *SQLite) ListRuns() ([]Run, error) {
	var out []Run
	err := j.db.Select(&out, `
		SELECT run_id, created, env, dataset, agent, seed, config
		FROM runs
		ORDER BY created DESC`)
	return out, err
}

// ListEpisodes returns the episodes of a run with their metrics, ordered by
// env and episode. An empty runID lists every run.
func (j *SQLite) ListEpisodes(runID string) ([]EpisodeRecord, error) {
	var (
		out []EpisodeRecord
		err error
	)
	if runID == "" {
		err = j.db.Select(&out, `SELECT `+episodeColumns+` FROM episodes ORDER BY run_id, env, episode`)
	} else {
		err = j.db.Select(&out, `SELECT `+episodeColumns+` FROM episodes WHERE run_id = ? ORDER BY env, episode`, runID)
	}
	if err != nil {
		return nil, err
	}

	type metricRow struct {
		RunID   string `db:"run_id"`
		Env     string `db:"env"`
		Episode int    `db:"episode"`
		Name    string `db:"name"`
		Value   string `db:"value"`
	}
	var metrics []metricRow
	q := `SELECT run_id, env, episode, name, value FROM episode_metrics`
	if runID == "" {
		err = j.db.Select(&metrics, q)
	} else {
		err = j.db.Select(&metrics, q+` WHERE run_id = ?`, runID)
	}
	if err != nil {
		return nil, err
	}

	type key struct {
		run, env string
		episode  int
	}
	byEpisode := make(map[key]map[string]string)
	for _, m := range metrics {
		k := key{m.RunID, m.Env, m.Episode}
		if byEpisode[k] == nil {
			byEpisode[k] = make(map[string]string)
		}
		byEpisode[k][m.Name] = m.Value
	}
	for i := range out {
		out[i].Metrics = byEpisode[key{out[i].RunID, out[i].Env, out[i].Episode}]
	}
	return out, nil
}

// ListTrades returns the trades of one episode in step order.
func (j *SQLite) ListTrades(runID, env string, episode int) ([]TradeRecord, error) {
	var out []TradeRecord
	err := j.db.Select(&out, `
		SELECT run_id, env, episode, step, time, from_position, to_position, units, price, fee, settled_interest, reason
		FROM trades
		WHERE run_id = ? AND env = ? AND episode = ?
		ORDER BY step ASC`, runID, env, episode)
	return out, err
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
