// Package decision turns a market-bias signal and the current position into
// one trading action, gated by the risk rules and sized by the allocator.
package decision

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"portfolio-ledger/internal/metrics"
	"portfolio-ledger/internal/risk"
)

// Actions returned by the engine.
const (
	ActionHold       = "HOLD"
	ActionBuy        = "BUY"
	ActionSell       = "SELL"
	ActionCloseLong  = "CLOSE_LONG"
	ActionCloseShort = "CLOSE_SHORT"
)

const (
	// entryThreshold is the |bias| needed to open a position.
	entryThreshold = 0.3
	// exitThreshold is the opposing bias needed to close one.
	exitThreshold = 0.2
)

const (
	reasonNoConviction = "insufficient conviction"
	reasonNoCapital    = "no capital available"
)

// Decision is the engine's final word for one symbol. Size is the capital to
// commit for opening actions and 0 otherwise.
type Decision struct {
	Symbol       string  `json:"symbol,omitempty"`
	Action       string  `json:"action"`
	Bias         float64 `json:"bias"`
	Confidence   float64 `json:"confidence"`
	Size         float64 `json:"size"`
	Reason       string  `json:"reason"`
	RiskRejected bool    `json:"risk_rejected"`
}

// IsOpening reports whether the action opens a new position.
func (d Decision) IsOpening() bool {
	return d.Action == ActionBuy || d.Action == ActionSell
}

// Engine arbitrates actions. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	gate      *risk.Gate
	allocator *risk.Allocator
	logger    *zap.Logger
}

// NewEngine creates a decision engine.
func NewEngine(gate *risk.Gate, allocator *risk.Allocator, logger *zap.Logger) *Engine {
	return &Engine{
		gate:      gate,
		allocator: allocator,
		logger:    logger.Named("decision"),
	}
}

// Decide maps bias in [-1, 1] and the open position (nil when flat) to an action.
// A flat book opens on |bias| > 0.3; a held position is only ever closed, on an
// opposing bias beyond 0.2. Any non-HOLD action must pass the risk gate before
// it is sized.
func (e *Engine) Decide(bias float64, position *risk.Position, status risk.PortfolioStatus) Decision {
	d := e.arbitrate(clampBias(bias), position)
	if d.Action != ActionHold {
		e.gateAndSize(&d, status)
	}

	metrics.DecisionsTotal.WithLabelValues(d.Action).Inc()
	e.logger.Debug("Decision made",
		zap.String("action", d.Action),
		zap.Float64("bias", d.Bias),
		zap.Float64("confidence", d.Confidence),
		zap.Float64("size", d.Size),
		zap.String("reason", d.Reason))
	return d
}

func (e *Engine) arbitrate(bias float64, position *risk.Position) Decision {
	d := Decision{Action: ActionHold, Bias: bias, Reason: reasonNoConviction}
	strength := math.Abs(bias)

	if position == nil {
		if strength > entryThreshold {
			d.Confidence = strength
			if bias > 0 {
				d.Action = ActionBuy
				d.Reason = fmt.Sprintf("bullish bias %.2f", bias)
			} else {
				d.Action = ActionSell
				d.Reason = fmt.Sprintf("bearish bias %.2f", bias)
			}
		}
		return d
	}

	d.Symbol = position.Symbol
	switch {
	case position.Side == risk.SideLong && bias < -exitThreshold:
		d.Action, d.Confidence = ActionCloseLong, strength
		d.Reason = fmt.Sprintf("bearish bias %.2f against long position", bias)
	case position.Side == risk.SideShort && bias > exitThreshold:
		d.Action, d.Confidence = ActionCloseShort, strength
		d.Reason = fmt.Sprintf("bullish bias %.2f against short position", bias)
	default:
		d.Reason = fmt.Sprintf("holding %s position", position.Side)
		if strength <= exitThreshold {
			d.Reason = reasonNoConviction
		}
	}
	return d
}

func (e *Engine) gateAndSize(d *Decision, status risk.PortfolioStatus) {
	v := e.gate.Validate(d.Action, status)
	if !v.Approved {
		metrics.RiskRejectionsTotal.Inc()
		e.logger.Info("Decision rejected by risk gate",
			zap.String("action", d.Action),
			zap.String("reason", v.Reason))
		d.Action, d.Confidence, d.Size = ActionHold, 0, 0
		d.Reason, d.RiskRejected = v.Reason, true
		return
	}

	d.Size = e.allocator.CalculateTradeSize(status.AvailableCapital, status.Positions)
	if d.IsOpening() && d.Size <= 0 {
		d.Action, d.Confidence, d.Size = ActionHold, 0, 0
		d.Reason = reasonNoCapital
	}
}

// clampBias limits bias to [-1, 1]; NaN counts as no signal.
func clampBias(bias float64) float64 {
	if math.IsNaN(bias) {
		return 0
	}
	return math.Max(-1, math.Min(1, bias))
}
