package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"portfolio-ledger/internal/models"
)

// PriceLookup resolves the current price of a symbol. ok is false when no
// price is available.
type PriceLookup interface {
	Price(ctx context.Context, symbol string) (price float64, ok bool)
}

// PriceMap is a fixed set of prices, mostly useful for manual valuation and tests.
type PriceMap map[string]float64

// Price implements PriceLookup.
func (m PriceMap) Price(_ context.Context, symbol string) (float64, bool) {
	p, ok := m[symbol]
	return p, ok && p > 0
}

// PriceFunc adapts a function to PriceLookup.
type PriceFunc func(ctx context.Context, symbol string) (float64, bool)

// Price implements PriceLookup.
func (f PriceFunc) Price(ctx context.Context, symbol string) (float64, bool) {
	return f(ctx, symbol)
}

// PositionValue is a holding marked to market.
type PositionValue struct {
	Symbol           string  `json:"symbol"`
	Quantity         float64 `json:"quantity"`
	AvgEntryPrice    float64 `json:"avg_entry_price"`
	CurrentPrice     float64 `json:"current_price"`
	Priced           bool    `json:"priced"`
	MarketValue      float64 `json:"market_value"`
	CostBasis        float64 `json:"cost_basis"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
	WeightPct        float64 `json:"weight_pct"`
}

// PortfolioSnapshot is a derived valuation of the ledger. It is recomputed on
// demand and never used as the source of truth for quantities.
type PortfolioSnapshot struct {
	Timestamp        time.Time       `json:"timestamp"`
	TotalEquity      float64         `json:"total_equity"`
	PositionsValue   float64         `json:"positions_value"`
	TotalPnL         float64         `json:"total_pnl"`
	TotalPnLPct      float64         `json:"total_pnl_pct"`
	NetContributed   float64         `json:"net_contributed"`
	TotalDeposits    float64         `json:"total_deposits"`
	TotalWithdrawals float64         `json:"total_withdrawals"`
	RealizedPnL      float64         `json:"realized_pnl"`
	UnrealizedPnL    float64         `json:"unrealized_pnl"`
	NumPositions     int             `json:"num_positions"`
	Positions        []PositionValue `json:"positions"`
	Unpriced         []string        `json:"unpriced,omitempty"`
}

type bookState struct {
	holdings    []models.Holding
	deposits    float64
	withdrawals float64
	realized    float64
}

// loadBook reads holdings and aggregates in one transaction so a concurrent
// trade is either fully visible or not at all.
func (l *Ledger) loadBook(ctx context.Context) (*bookState, error) {
	var state bookState
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("symbol asc").Find(&state.holdings).Error; err != nil {
			return fmt.Errorf("failed to get holdings: %w", err)
		}

		var flows struct {
			Deposits    float64
			Withdrawals float64
		}
		err := tx.Model(&models.CapitalFlow{}).
			Select("COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS deposits, "+
				"COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS withdrawals",
				models.FlowDeposit, models.FlowWithdrawal).
			Scan(&flows).Error
		if err != nil {
			return fmt.Errorf("failed to sum capital flows: %w", err)
		}
		state.deposits, state.withdrawals = flows.Deposits, flows.Withdrawals

		var pnl struct{ Realized float64 }
		err = tx.Model(&models.Trade{}).
			Select("COALESCE(SUM(realized_pnl), 0) AS realized").
			Where("action = ?", models.TradeActionSell).
			Scan(&pnl).Error
		if err != nil {
			return fmt.Errorf("failed to sum realized pnl: %w", err)
		}
		state.realized = pnl.Realized
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// GetPortfolioValue marks every holding to market with prices and aggregates
// the result. A symbol without a price is valued at 0 and listed in Unpriced.
func (l *Ledger) GetPortfolioValue(ctx context.Context, prices PriceLookup) (*PortfolioSnapshot, error) {
	state, err := l.loadBook(ctx)
	if err != nil {
		return nil, err
	}

	snap := &PortfolioSnapshot{
		Timestamp:        l.timestamp(),
		TotalDeposits:    state.deposits,
		TotalWithdrawals: state.withdrawals,
		NetContributed:   state.deposits - state.withdrawals,
		RealizedPnL:      state.realized,
		NumPositions:     len(state.holdings),
		Positions:        make([]PositionValue, 0, len(state.holdings)),
	}

	for _, h := range state.holdings {
		pv := PositionValue{
			Symbol:        h.Symbol,
			Quantity:      h.Quantity,
			AvgEntryPrice: h.AvgEntryPrice,
			CostBasis:     h.CostBasis(),
		}
		if price, ok := prices.Price(ctx, h.Symbol); ok {
			pv.CurrentPrice, pv.Priced = price, true
		} else {
			snap.Unpriced = append(snap.Unpriced, h.Symbol)
			l.logger.Warn("No current price, valuing holding at 0", zap.String("symbol", h.Symbol))
		}
		pv.MarketValue = pv.Quantity * pv.CurrentPrice
		pv.UnrealizedPnL = pv.MarketValue - pv.CostBasis
		if pv.CostBasis > 0 {
			pv.UnrealizedPnLPct = pv.UnrealizedPnL / pv.CostBasis * 100
		}

		snap.PositionsValue += pv.MarketValue
		snap.UnrealizedPnL += pv.UnrealizedPnL
		snap.Positions = append(snap.Positions, pv)
	}

	snap.TotalEquity = snap.PositionsValue
	snap.TotalPnL = snap.TotalEquity - snap.NetContributed
	if snap.NetContributed > 0 {
		snap.TotalPnLPct = snap.TotalPnL / snap.NetContributed * 100
	}
	if snap.TotalEquity > 0 {
		for i := range snap.Positions {
			snap.Positions[i].WeightPct = snap.Positions[i].MarketValue / snap.TotalEquity * 100
		}
	}
	return snap, nil
}

// GetOpenPositions returns every holding marked to market, ordered by symbol.
func (l *Ledger) GetOpenPositions(ctx context.Context, prices PriceLookup) ([]PositionValue, error) {
	snap, err := l.GetPortfolioValue(ctx, prices)
	if err != nil {
		return nil, err
	}
	return snap.Positions, nil
}
