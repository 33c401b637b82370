package decision

import (
	"context"
	"fmt"

	"portfolio-ledger/internal/ledger"
	"portfolio-ledger/internal/risk"
)

// Book is the read side of the ledger the engine needs.
type Book interface {
	GetPortfolioValue(ctx context.Context, prices ledger.PriceLookup) (*ledger.PortfolioSnapshot, error)
}

// Status derives the risk view of a valuation. The reference capital is the
// net contributed capital, or initialCapital when nothing has been contributed.
// Equity is that reference plus realized and unrealized P&L. Holdings without
// a price count at cost, so a missing quote cannot trip the drawdown breaker.
func Status(snap *ledger.PortfolioSnapshot, initialCapital float64) risk.PortfolioStatus {
	base := snap.NetContributed
	if base <= 0 {
		base = initialCapital
	}

	unrealized := snap.UnrealizedPnL
	for _, p := range snap.Positions {
		if !p.Priced {
			unrealized -= p.UnrealizedPnL
		}
	}

	status := risk.PortfolioStatus{
		Equity:           base + snap.RealizedPnL + unrealized,
		AvailableCapital: base + snap.RealizedPnL,
		Positions:        make([]risk.Position, 0, len(snap.Positions)),
	}
	status.Drawdown = risk.Drawdown(base, status.Equity)
	for _, p := range snap.Positions {
		status.Positions = append(status.Positions, toPosition(p))
	}
	return status
}

// PositionFor returns the open position in symbol, or nil when flat.
// Ledger holdings are always long.
func PositionFor(snap *ledger.PortfolioSnapshot, symbol string) *risk.Position {
	symbol = ledger.NormalizeSymbol(symbol)
	for _, p := range snap.Positions {
		if p.Symbol == symbol {
			pos := toPosition(p)
			return &pos
		}
	}
	return nil
}

func toPosition(p ledger.PositionValue) risk.Position {
	return risk.Position{
		Symbol:     p.Symbol,
		Side:       risk.SideLong,
		Quantity:   p.Quantity,
		EntryPrice: p.AvgEntryPrice,
	}
}

// DecideFor values book with prices and decides for symbol against the result.
func (e *Engine) DecideFor(ctx context.Context, book Book, symbol string, bias float64, prices ledger.PriceLookup) (Decision, error) {
	snap, err := book.GetPortfolioValue(ctx, prices)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to value portfolio: %w", err)
	}

	symbol = ledger.NormalizeSymbol(symbol)
	d := e.Decide(bias, PositionFor(snap, symbol), Status(snap, e.allocator.InitialCapital()))
	d.Symbol = symbol
	return d, nil
}
