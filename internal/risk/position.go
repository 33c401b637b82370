// Package risk approves or rejects proposed actions and sizes approved trades.
// Everything here is a pure function of the values passed in.
package risk

// Side is the direction of an open position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position is an open position as seen by the risk rules.
type Position struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
}

// Notional is the position's value at its entry price.
func (p Position) Notional() float64 {
	return p.Quantity * p.EntryPrice
}

// PortfolioStatus is the portfolio context a decision is made against.
// Drawdown is a fraction, 0.2 meaning 20% below the reference equity.
type PortfolioStatus struct {
	Equity           float64    `json:"equity"`
	AvailableCapital float64    `json:"available_capital"`
	Drawdown         float64    `json:"drawdown"`
	Positions        []Position `json:"positions"`
}

// Exposure sums the entry notional of positions.
func Exposure(positions []Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.Notional()
	}
	return total
}

// Drawdown is the fractional decline from initial to current, never negative.
func Drawdown(initial, current float64) float64 {
	if initial <= 0 {
		return 0
	}
	dd := (initial - current) / initial
	if dd < 0 {
		return 0
	}
	return dd
}
