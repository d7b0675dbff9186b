package market

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// RateLimit describes how an exchange may be paginated: Limit bars per
// request, and a Pause after every PauseEvery requests.
type RateLimit struct {
	Limit      int           `yaml:"limit" json:"limit"`
	PauseEvery int           `yaml:"pause_every" json:"pause_every"`
	Pause      time.Duration `yaml:"pause" json:"pause"`
}

// ExchangeRateLimits are known-good settings for common exchanges.
var ExchangeRateLimits = map[string]RateLimit{
	"bitfinex2": {Limit: 10_000, PauseEvery: 1, Pause: 3 * time.Second},
	"binance":   {Limit: 1_000, PauseEvery: 10, Pause: time.Second},
	"huobi":     {Limit: 1_000, PauseEvery: 10, Pause: time.Second},
}

// Source supplies OHLCV datasets. Network downloaders live outside this
// module; they only need to produce a Dataset that passes Validate.
type Source interface {
	Fetch(ctx context.Context, exchange, symbol, timeframe string) (*Dataset, error)
}

// FileSource reads datasets saved as <Dir>/<exchange>-<SYMBOL>-<timeframe>.csv,
// with the "/" removed from the symbol.
type FileSource struct {
	Dir string
}

// Path returns the file FileSource reads for a request.
func (s FileSource) Path(exchange, symbol, timeframe string) string {
	name := fmt.Sprintf("%s-%s-%s.csv", exchange, strings.ReplaceAll(symbol, "/", ""), timeframe)
	return filepath.Join(s.Dir, name)
}

func (s FileSource) Fetch(ctx context.Context, exchange, symbol, timeframe string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds, err := LoadCSV(s.Path(exchange, symbol, timeframe))
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}
