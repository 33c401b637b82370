package risk

import (
	"fmt"
	"math"

	"portfolio-ledger/internal/config"
)

// Market regimes understood by AdjustPositionSizes.
const (
	RegimeHighlyVolatile = "highly_volatile"
	RegimeNormal         = "normal"
	RegimeTrending       = "trending"
)

// defaultDrawdownWarning applies when no max_portfolio_drawdown is configured.
const defaultDrawdownWarning = 0.15

// Allocator sizes trades against available capital.
type Allocator struct {
	riskPerTrade    float64
	maxPositionSize float64
	initialCapital  float64
	drawdownWarning float64
}

// NewAllocator creates an Allocator from the trading and risk configuration.
func NewAllocator(trading config.Trading, limits config.Risk) *Allocator {
	a := &Allocator{
		riskPerTrade:    trading.RiskPerTrade,
		maxPositionSize: trading.MaxPositionSize,
		initialCapital:  trading.InitialCapital,
		drawdownWarning: limits.MaxPortfolioDrawdown,
	}
	if a.drawdownWarning <= 0 {
		a.drawdownWarning = defaultDrawdownWarning
	}
	return a
}

// InitialCapital is the configured starting capital.
func (a *Allocator) InitialCapital() float64 {
	return a.initialCapital
}

// CalculateTradeSize returns the capital to commit to a new trade:
// the risk fraction of what is left after current exposure, capped at the
// maximum position size. The result can be negative when exposure exceeds
// available capital; callers treat size <= 0 as nothing to trade.
func (a *Allocator) CalculateTradeSize(available float64, positions []Position) float64 {
	free := available - Exposure(positions)
	return math.Min(free*a.riskPerTrade, a.maxPositionSize)
}

// Adjustment is the regime-scaled size of one position.
type Adjustment struct {
	CurrentSize  float64 `json:"current_size"`
	AdjustedSize float64 `json:"adjusted_size"`
	Factor       float64 `json:"factor"`
}

// RegimeFactor returns the sizing multiplier for regime.
func RegimeFactor(regime string) float64 {
	switch regime {
	case RegimeHighlyVolatile:
		return 0.5
	case RegimeTrending:
		return 1.2
	default:
		return 1.0
	}
}

// AdjustPositionSizes scales every position's quantity by the regime factor, keyed by symbol.
func (a *Allocator) AdjustPositionSizes(positions []Position, regime string) map[string]Adjustment {
	factor := RegimeFactor(regime)
	out := make(map[string]Adjustment, len(positions))
	for _, p := range positions {
		out[p.Symbol] = Adjustment{
			CurrentSize:  p.Quantity,
			AdjustedSize: p.Quantity * factor,
			Factor:       factor,
		}
	}
	return out
}

// PortfolioRisk summarises soft portfolio limits.
type PortfolioRisk struct {
	WithinLimits bool     `json:"within_limits"`
	Exposure     float64  `json:"exposure"`
	Warnings     []string `json:"warnings,omitempty"`
}

// ValidatePortfolioRisk warns when exposure exceeds the initial capital or
// drawdown exceeds the portfolio drawdown limit (15% by default).
func (a *Allocator) ValidatePortfolioRisk(status PortfolioStatus) PortfolioRisk {
	res := PortfolioRisk{Exposure: Exposure(status.Positions)}
	if res.Exposure > a.initialCapital {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("total exposure %.2f exceeds initial capital %.2f", res.Exposure, a.initialCapital))
	}
	if status.Drawdown > a.drawdownWarning {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("drawdown %s exceeds %s", formatPct(status.Drawdown), formatPct(a.drawdownWarning)))
	}
	res.WithinLimits = len(res.Warnings) == 0
	return res
}
