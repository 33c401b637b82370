package risk

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"portfolio-ledger/internal/config"
)

// Validation is the outcome of a risk check. A rejection is a normal result,
// not an error.
type Validation struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Gate applies the hard portfolio limits and the per-position exit rules.
type Gate struct {
	maxDrawdown float64
	stopLoss    float64
	takeProfit  float64
	logger      *zap.Logger
}

// NewGate creates a Gate from the risk configuration. logger may be nil.
func NewGate(cfg config.Risk, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		maxDrawdown: cfg.MaxDrawdown,
		stopLoss:    cfg.StopLoss,
		takeProfit:  cfg.TakeProfit,
		logger:      logger.Named("risk"),
	}
}

// Validate approves action unless the portfolio drawdown has reached the
// configured maximum. The check does not depend on the action.
func (g *Gate) Validate(action string, status PortfolioStatus) Validation {
	if status.Drawdown >= g.maxDrawdown {
		reason := fmt.Sprintf("maximum drawdown of %s exceeded", formatPct(g.maxDrawdown))
		g.logger.Warn("Drawdown circuit breaker tripped",
			zap.String("action", action),
			zap.Float64("drawdown", status.Drawdown),
			zap.Float64("max_drawdown", g.maxDrawdown))
		return Validation{Approved: false, Reason: reason}
	}
	return Validation{Approved: true}
}

// CheckStopLoss reports whether price has moved against pos by at least the stop-loss fraction.
func (g *Gate) CheckStopLoss(pos Position, price float64) bool {
	if pos.EntryPrice <= 0 || price <= 0 {
		return false
	}
	switch pos.Side {
	case SideLong:
		return atOrBelow(price, pos.EntryPrice*(1-g.stopLoss))
	case SideShort:
		return atOrAbove(price, pos.EntryPrice*(1+g.stopLoss))
	}
	return false
}

// CheckTakeProfit reports whether price has moved in favour of pos by at least the take-profit fraction.
func (g *Gate) CheckTakeProfit(pos Position, price float64) bool {
	if pos.EntryPrice <= 0 || price <= 0 {
		return false
	}
	switch pos.Side {
	case SideLong:
		return atOrAbove(price, pos.EntryPrice*(1+g.takeProfit))
	case SideShort:
		return atOrBelow(price, pos.EntryPrice*(1-g.takeProfit))
	}
	return false
}

// Exit thresholds are products of fractions, so a price equal to the
// threshold can miss it by an ulp. Compare with a relative tolerance.
const thresholdTolerance = 1e-9

func atOrAbove(price, threshold float64) bool {
	return price >= threshold-thresholdTolerance*math.Abs(threshold)
}

func atOrBelow(price, threshold float64) bool {
	return price <= threshold+thresholdTolerance*math.Abs(threshold)
}

// CalculatePositionSize returns the quantity that loses stop-loss × capital
// if price travels from entry to stop.
func (g *Gate) CalculatePositionSize(capital, entry, stop float64) float64 {
	if capital == 0 || entry == 0 || stop == 0 {
		return 0
	}
	diff := math.Abs(entry - stop)
	if diff == 0 {
		return 0
	}
	return capital * g.stopLoss / diff
}

// formatPct renders a fraction as a percentage without trailing zeros: 0.2 -> "20%".
func formatPct(fraction float64) string {
	return fmt.Sprintf("%g%%", math.Round(fraction*10000)/100)
}
