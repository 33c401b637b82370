package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio-ledger/internal/config"
)

func newTestGate() *Gate {
	return NewGate(config.Risk{MaxDrawdown: 0.2, StopLoss: 0.05, TakeProfit: 0.1}, nil)
}

func TestGate_Validate(t *testing.T) {
	gate := newTestGate()

	testCases := []struct {
		name     string
		drawdown float64
		expected Validation
	}{
		{name: "No drawdown", drawdown: 0, expected: Validation{Approved: true}},
		{name: "Below limit", drawdown: 0.19, expected: Validation{Approved: true}},
		{name: "At limit", drawdown: 0.2, expected: Validation{Approved: false, Reason: "maximum drawdown of 20% exceeded"}},
		{name: "Beyond limit", drawdown: 0.35, expected: Validation{Approved: false, Reason: "maximum drawdown of 20% exceeded"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, action := range []string{"BUY", "SELL", "CLOSE_LONG"} {
				got := gate.Validate(action, PortfolioStatus{Drawdown: tc.drawdown})
				assert.Equal(t, tc.expected, got)
			}
		})
	}
}

func TestGate_CheckStopLoss(t *testing.T) {
	gate := newTestGate()

	testCases := []struct {
		name     string
		pos      Position
		price    float64
		expected bool
	}{
		{name: "Long above stop", pos: Position{Side: SideLong, EntryPrice: 100}, price: 96, expected: false},
		{name: "Long at stop", pos: Position{Side: SideLong, EntryPrice: 100}, price: 95, expected: true},
		{name: "Long below stop", pos: Position{Side: SideLong, EntryPrice: 100}, price: 80, expected: true},
		{name: "Short below stop", pos: Position{Side: SideShort, EntryPrice: 100}, price: 104, expected: false},
		{name: "Short at stop", pos: Position{Side: SideShort, EntryPrice: 100}, price: 105, expected: true},
		{name: "Long at fractional stop", pos: Position{Side: SideLong, EntryPrice: 0.7}, price: 0.665, expected: true},
		{name: "Short at fractional stop", pos: Position{Side: SideShort, EntryPrice: 0.3}, price: 0.315, expected: true},
		{name: "Short just under fractional stop", pos: Position{Side: SideShort, EntryPrice: 0.3}, price: 0.3149, expected: false},
		{name: "No entry price", pos: Position{Side: SideLong}, price: 1, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, gate.CheckStopLoss(tc.pos, tc.price))
		})
	}
}

func TestGate_CheckTakeProfit(t *testing.T) {
	gate := newTestGate()

	testCases := []struct {
		name     string
		pos      Position
		price    float64
		expected bool
	}{
		{name: "Long below target", pos: Position{Side: SideLong, EntryPrice: 100}, price: 109, expected: false},
		{name: "Long at target", pos: Position{Side: SideLong, EntryPrice: 100}, price: 110, expected: true},
		{name: "Short above target", pos: Position{Side: SideShort, EntryPrice: 100}, price: 91, expected: false},
		{name: "Short at target", pos: Position{Side: SideShort, EntryPrice: 100}, price: 90, expected: true},
		{name: "Long at fractional target", pos: Position{Side: SideLong, EntryPrice: 0.3}, price: 0.33, expected: true},
		{name: "Short at fractional target", pos: Position{Side: SideShort, EntryPrice: 0.7}, price: 0.63, expected: true},
		{name: "Short just above fractional target", pos: Position{Side: SideShort, EntryPrice: 0.7}, price: 0.6301, expected: false},
		{name: "Unknown side", pos: Position{EntryPrice: 100}, price: 200, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, gate.CheckTakeProfit(tc.pos, tc.price))
		})
	}
}

func TestGate_CalculatePositionSize(t *testing.T) {
	gate := newTestGate()

	testCases := []struct {
		name                 string
		capital, entry, stop float64
		expected             float64
	}{
		{name: "Long stop", capital: 10000, entry: 100, stop: 95, expected: 100},
		{name: "Short stop", capital: 10000, entry: 100, stop: 110, expected: 50},
		{name: "Zero capital", capital: 0, entry: 100, stop: 95, expected: 0},
		{name: "Zero entry", capital: 10000, entry: 0, stop: 95, expected: 0},
		{name: "Zero stop", capital: 10000, entry: 100, stop: 0, expected: 0},
		{name: "Stop equals entry", capital: 10000, entry: 100, stop: 100, expected: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, gate.CalculatePositionSize(tc.capital, tc.entry, tc.stop), 1e-9)
		})
	}
}

func TestDrawdown(t *testing.T) {
	assert.InDelta(t, 0.25, Drawdown(100, 75), 1e-12)
	assert.Equal(t, 0.0, Drawdown(100, 120))
	assert.Equal(t, 0.0, Drawdown(0, 50))
	assert.Equal(t, 0.0, Drawdown(-10, 50))
}

func TestFormatPct(t *testing.T) {
	assert.Equal(t, "20%", formatPct(0.2))
	assert.Equal(t, "15.5%", formatPct(0.155))
	assert.Equal(t, "0%", formatPct(0))
}
