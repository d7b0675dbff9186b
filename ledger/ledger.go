package ledger

import "math"

// Ledger holds a leveraged single-instrument portfolio.
//
// Asset and Fiat may go negative: a negative balance is borrowed and
// accrues interest each step through UpdateInterest. Interest balances are
// never negative.
type Ledger struct {
	Asset         float64
	Fiat          float64
	InterestAsset float64
	InterestFiat  float64
}

// Distribution is the non-negative decomposition of a ledger, used for
// history records and journaling only.
type Distribution struct {
	Asset         float64 `structs:"asset"`
	Fiat          float64 `structs:"fiat"`
	BorrowedAsset float64 `structs:"borrowed_asset"`
	BorrowedFiat  float64 `structs:"borrowed_fiat"`
	InterestAsset float64 `structs:"interest_asset"`
	InterestFiat  float64 `structs:"interest_fiat"`
}

// Trade describes what TradeToPosition did to the ledger.
type Trade struct {
	Units           float64 // asset units credited (negative when selling)
	Price           float64
	Fee             float64 // fee paid, in fiat
	SettledInterest float64 // interest paid down, in fiat at Price
}

// New returns a ledger with the given balances and no outstanding interest.
func New(asset, fiat float64) *Ledger {
	return &Ledger{Asset: asset, Fiat: fiat}
}

// NewTarget builds a ledger holding exactly position exposure of value at
// price: asset = position*value/price, fiat = (1-position)*value.
func NewTarget(position, value, price float64) *Ledger {
	return &Ledger{
		Asset: position * value / price,
		Fiat:  (1 - position) * value,
	}
}

// Valuation is the portfolio value in fiat at price, net of interest owed.
func (l *Ledger) Valuation(price float64) float64 {
	return l.Asset*price + l.Fiat - l.InterestAsset*price - l.InterestFiat
}

// Position is the nominal exposure: asset value over portfolio value.
func (l *Ledger) Position(price float64) float64 {
	return l.Asset * price / l.Valuation(price)
}

// RealPosition is the exposure once asset interest owed is paid back.
func (l *Ledger) RealPosition(price float64) float64 {
	return (l.Asset - l.InterestAsset) * price / l.Valuation(price)
}

// UpdateInterest charges one step of borrow interest on the negative part of
// each balance. Previous interest is replaced, not accumulated.
func (l *Ledger) UpdateInterest(rate float64) {
	l.InterestAsset = math.Max(0, -l.Asset) * rate
	l.InterestFiat = math.Max(0, -l.Fiat) * rate
}

// TradeToPosition trades asset against fiat at price so the nominal position
// becomes target. fee is the proportional trading fee (0.001 = 0.1%).
func (l *Ledger) TradeToPosition(target, price, fee float64) Trade {
	tr := Trade{Price: price}
	tr.SettledInterest = l.settleInterest(target, price)

	delta := target*l.Valuation(price)/price - l.Asset
	if delta > 0 {
		delta = delta / (1 - fee + fee*target)
		l.Fiat -= delta * price
		l.Asset += delta * (1 - fee)
		tr.Units = delta * (1 - fee)
		tr.Fee = delta * fee * price
	} else {
		delta = delta / (1 - fee*target)
		l.Asset += delta
		l.Fiat -= delta * price * (1 - fee)
		tr.Units = delta
		tr.Fee = -delta * price * fee
	}
	return tr
}

// settleInterest pays back outstanding interest in proportion to how much of
// the borrowed exposure the move to target unwinds.
func (l *Ledger) settleInterest(target, price float64) float64 {
	current := l.Position(price)

	ratio := 1.0
	switch {
	case current < 0 && target <= 0:
		ratio = math.Min(1, target/current)
	case current < 0:
		// crossing zero closes the whole borrow, so all interest is settled
		ratio = 0
	case current > 1 && target >= 1:
		ratio = math.Min(1, (target-1)/(current-1))
	case current > 1:
		ratio = 0
	}
	if ratio >= 1 {
		return 0
	}

	paid := (1-ratio)*l.InterestAsset*price + (1-ratio)*l.InterestFiat
	l.Asset -= (1 - ratio) * l.InterestAsset
	l.Fiat -= (1 - ratio) * l.InterestFiat
	l.InterestAsset *= ratio
	l.InterestFiat *= ratio
	return paid
}

// Distribution returns the ledger split into held, borrowed and owed parts.
func (l *Ledger) Distribution() Distribution {
	return Distribution{
		Asset:         math.Max(0, l.Asset),
		Fiat:          math.Max(0, l.Fiat),
		BorrowedAsset: math.Max(0, -l.Asset),
		BorrowedFiat:  math.Max(0, -l.Fiat),
		InterestAsset: l.InterestAsset,
		InterestFiat:  l.InterestFiat,
	}
}
