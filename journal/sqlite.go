package journal

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Run describes one invocation of the runner.
type Run struct {
	RunID   string    `db:"run_id"`
	Created time.Time `db:"created"`
	Env     string    `db:"env"`
	Dataset string    `db:"dataset"`
	Agent   string    `db:"agent"`
	Seed    int64     `db:"seed"`
	Config  string    `db:"config"` // YAML the run was started with
}

// SQLite is a Journal backed by a sqlite3 database file. It is safe for
// concurrent use by the environments of a parallel run.
type SQLite struct {
	mu sync.Mutex
	db *sqlx.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordRun(r Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.NamedExec(`
		INSERT INTO runs (run_id, created, env, dataset, agent, seed, config)
		VALUES (:run_id, :created, :env, :dataset, :agent, :seed, :config)`, r)
	return err
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.NamedExec(`
		INSERT INTO trades
		(run_id, env, episode, step, time, from_position, to_position, units, price, fee, settled_interest, reason)
		VALUES (:run_id, :env, :episode, :step, :time, :from_position, :to_position, :units, :price, :fee, :settled_interest, :reason)`, t)
	return err
}

// RecordEpisode stores the episode row and its metrics in one transaction.
func (j *SQLite) RecordEpisode(e EpisodeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Beginx()
	if err != nil {
		return err
	}
	_, err = tx.NamedExec(`
		INSERT INTO episodes
		(run_id, env, dataset, episode, steps, start_time, end_time, initial_value, final_value,
		 market_return, portfolio_return, done, truncated)
		VALUES (:run_id, :env, :dataset, :episode, :steps, :start_time, :end_time, :initial_value, :final_value,
		 :market_return, :portfolio_return, :done, :truncated)`, e)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("record episode %d: %w", e.Episode, err)
	}
	for _, name := range sortedKeys(e.Metrics) {
		if _, err := tx.Exec(`
			INSERT INTO episode_metrics (run_id, env, episode, name, value)
			VALUES (?, ?, ?, ?, ?)`,
			e.RunID, e.Env, e.Episode, name, e.Metrics[name],
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record episode %d metric %q: %w", e.Episode, name, err)
		}
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
