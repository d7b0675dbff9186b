package env

import (
	"sort"

	"github.com/rustyeddy/tradegym/market"
)

// LimitOrder is a pending rebalance to a target position, filled at Limit
// once a bar trades through that price.
type LimitOrder struct {
	Position   float64
	Limit      float64
	Persistent bool // stays in the book after filling
}

// AddLimitOrder registers or replaces the pending order for position.
func (e *Env) AddLimitOrder(position, limit float64, persistent bool) {
	e.orders[position] = LimitOrder{Position: position, Limit: limit, Persistent: persistent}
}

// LimitOrders lists the pending orders by target position.
func (e *Env) LimitOrders() []LimitOrder {
	out := make([]LimitOrder, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// hitLimit reports whether bar traded through the order's limit price.
func hitLimit(o LimitOrder, bar market.Bar) bool {
	return o.Limit >= bar.Low && o.Limit <= bar.High
}

// fillLimitOrders executes, at their limit price, the orders the current bar
// reaches. Orders are visited by ascending target position so a bar that
// reaches several of them fills deterministically. A journal error does not
// stop the fills; the first one is returned.
func (e *Env) fillLimitOrders() error {
	if len(e.orders) == 0 {
		return nil
	}
	var first error
	bar := e.ds.Bar(e.idx)
	for _, o := range e.LimitOrders() {
		if o.Position == e.position || !hitLimit(o, bar) {
			continue
		}
		err := e.trade(o.Position, o.Limit, "limit")
		if !o.Persistent {
			delete(e.orders, o.Position)
		}
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}
