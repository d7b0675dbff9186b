// Package journal persists what happened during a run: the trades the
// environment executed and a summary row per finished episode.
package journal

import (
	"time"
)

// TradeRecord is one ledger rebalance.
type TradeRecord struct {
	RunID           string    `db:"run_id"`
	Env             string    `db:"env"`
	Episode         int       `db:"episode"`
	Step            int       `db:"step"`
	Time            time.Time `db:"time"`
	From            float64   `db:"from_position"`
	To              float64   `db:"to_position"`
	Units           float64   `db:"units"`
	Price           float64   `db:"price"`
	Fee             float64   `db:"fee"`
	SettledInterest float64   `db:"settled_interest"`
	Reason          string    `db:"reason"` // "action" or "limit"
}

// EpisodeRecord summarizes a finished episode.
type EpisodeRecord struct {
	RunID           string    `db:"run_id"`
	Env             string    `db:"env"`
	Dataset         string    `db:"dataset"`
	Episode         int       `db:"episode"`
	Steps           int       `db:"steps"`
	Start           time.Time `db:"start_time"`
	End             time.Time `db:"end_time"`
	InitialValue    float64   `db:"initial_value"`
	FinalValue      float64   `db:"final_value"`
	MarketReturn    float64   `db:"market_return"`    // percent
	PortfolioReturn float64   `db:"portfolio_return"` // percent
	Done            bool      `db:"done"`
	Truncated       bool      `db:"truncated"`

	// Metrics holds the formatted terminal metrics, built-ins included.
	Metrics map[string]string `db:"-"`
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEpisode(EpisodeRecord) error
	Close() error
}

// Discard is a Journal that drops everything.
type Discard struct{}

func (Discard) RecordTrade(TradeRecord) error     { return nil }
func (Discard) RecordEpisode(EpisodeRecord) error { return nil }
func (Discard) Close() error                      { return nil }

// Shared wraps j so that Close does nothing. Environments of a parallel run
// share one journal that its owner closes.
func Shared(j Journal) Journal { return shared{j} }

type shared struct{ Journal }

func (shared) Close() error { return nil }
