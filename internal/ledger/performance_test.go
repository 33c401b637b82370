package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-ledger/internal/models"
)

func saveEquity(t *testing.T, l *Ledger, clock *fakeClock, equities ...float64) {
	t.Helper()
	for _, eq := range equities {
		_, err := l.SaveSnapshot(context.Background(), &PortfolioSnapshot{Timestamp: clock.Now(), TotalEquity: eq})
		require.NoError(t, err)
		clock.Advance(24 * time.Hour)
	}
}

func TestSnapshots(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	l := setupLedger(t, WithClock(clock.Now))
	ctx := context.Background()

	saveEquity(t, l, clock, 100, 101, 102, 103, 104)

	all, err := l.GetSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, 100.0, all[0].TotalEquity)
	assert.Equal(t, 104.0, all[4].TotalEquity)

	// clock now sits one day after the last snapshot
	recent, err := l.GetSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 103.0, recent[0].TotalEquity)

	t.Run("Zero timestamp uses clock", func(t *testing.T) {
		rec, err := l.SaveSnapshot(ctx, &PortfolioSnapshot{TotalEquity: 1})
		require.NoError(t, err)
		assert.True(t, rec.Timestamp.Equal(clock.Now()))
	})
}

func TestPerformance(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	l := setupLedger(t, WithClock(clock.Now))
	ctx := context.Background()

	t.Run("Empty ledger", func(t *testing.T) {
		perf, err := l.Performance(ctx)
		require.NoError(t, err)
		assert.Equal(t, &Performance{}, perf)
	})

	saveEquity(t, l, clock, 100, 110, 99, 120)

	buy(t, l, "AAPL", 10, 100)
	for _, price := range []float64{120, 90, 130} {
		_, err := l.RecordSell(ctx, TradeRequest{Symbol: "AAPL", Quantity: 1, Price: price})
		require.NoError(t, err)
	}

	perf, err := l.Performance(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, perf.Snapshots)
	assert.InDelta(t, 0.2, perf.TotalReturn, 1e-9)
	assert.InDelta(t, 20.0, perf.TotalReturnPct, 1e-9)
	assert.InDelta(t, 0.1, perf.MaxDrawdown, 1e-9)
	assert.Greater(t, perf.Volatility, 0.0)
	assert.NotZero(t, perf.SharpeRatio)

	assert.Equal(t, 4, perf.TotalTrades)
	assert.Equal(t, 3, perf.ClosedTrades)
	assert.Equal(t, 2, perf.WinningTrades)
	assert.Equal(t, 1, perf.LosingTrades)
	assert.InDelta(t, 2.0/3.0, perf.WinRate, 1e-9)
	assert.InDelta(t, 25.0, perf.AvgWin, 1e-9)
	assert.InDelta(t, -10.0, perf.AvgLoss, 1e-9)
	assert.InDelta(t, 5.0, perf.ProfitFactor, 1e-9)
}

func TestTradeStats_NoLosses(t *testing.T) {
	win := 15.0
	perf := &Performance{}
	tradeStats(perf, []models.Trade{
		{Action: models.TradeActionBuy},
		{Action: models.TradeActionSell, RealizedPnL: &win},
	})

	assert.Equal(t, 1, perf.WinningTrades)
	assert.Equal(t, 1.0, perf.WinRate)
	assert.Equal(t, 0.0, perf.ProfitFactor)
	assert.Equal(t, 0.0, perf.AvgLoss)
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	// sample standard deviation: sqrt(32/7)
	assert.InDelta(t, 2.138089935, std, 1e-9)
}

func TestExport(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	l := setupLedger(t, WithClock(clock.Now))
	ctx := context.Background()

	_, err := l.RecordDeposit(ctx, 1000, "seed")
	require.NoError(t, err)
	buy(t, l, "AAPL", 2, 100)
	buy(t, l, "MSFT", 1, 300)
	_, err = l.RecordSell(ctx, TradeRequest{Symbol: "MSFT", Quantity: 1, Price: 310})
	require.NoError(t, err)
	saveEquity(t, l, clock, 200)

	var buf bytes.Buffer
	require.NoError(t, l.Export(ctx, &buf))

	var doc Export
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, map[string]int{
		"holdings":            1,
		"trades":              3,
		"capital_flows":       1,
		"portfolio_snapshots": 1,
	}, doc.Metadata.TotalRecords)
	require.Len(t, doc.Holdings, 1)
	assert.Equal(t, "AAPL", doc.Holdings[0].Symbol)
	require.NotNil(t, doc.Performance)
	assert.Equal(t, 1, doc.Performance.WinningTrades)
	assert.Contains(t, buf.String(), `"performance_metrics"`)
}
