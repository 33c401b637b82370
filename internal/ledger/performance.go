package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"portfolio-ledger/internal/models"
)

// tradingDaysPerYear annualises per-snapshot return statistics.
const tradingDaysPerYear = 252

// Performance summarises the equity history and closed trades.
// MaxDrawdown is the largest peak-to-trough decline as a positive fraction.
type Performance struct {
	Snapshots      int     `json:"snapshots"`
	TotalReturn    float64 `json:"total_return"`
	TotalReturnPct float64 `json:"total_return_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	Volatility     float64 `json:"volatility"`
	MaxDrawdown    float64 `json:"max_drawdown"`

	TotalTrades   int     `json:"total_trades"`
	ClosedTrades  int     `json:"closed_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	ProfitFactor  float64 `json:"profit_factor"`
}

// Performance computes return statistics over every stored snapshot and
// win/loss statistics over every sell.
func (l *Ledger) Performance(ctx context.Context) (*Performance, error) {
	snaps, err := l.GetSnapshots(ctx, 0)
	if err != nil {
		return nil, err
	}
	trades, err := l.GetTradeHistory(ctx, 0, "")
	if err != nil {
		return nil, err
	}

	perf := equityStats(snaps)
	tradeStats(perf, trades)
	return perf, nil
}

func equityStats(snaps []models.EquitySnapshot) *Performance {
	perf := &Performance{Snapshots: len(snaps)}
	if len(snaps) == 0 {
		return perf
	}

	first, last := snaps[0].TotalEquity, snaps[len(snaps)-1].TotalEquity
	if first > 0 {
		perf.TotalReturn = last/first - 1
		perf.TotalReturnPct = perf.TotalReturn * 100
	}

	var returns []float64
	peak := 0.0
	for i, s := range snaps {
		if s.TotalEquity > peak {
			peak = s.TotalEquity
		}
		if peak > 0 {
			if dd := (peak - s.TotalEquity) / peak; dd > perf.MaxDrawdown {
				perf.MaxDrawdown = dd
			}
		}
		if i > 0 && snaps[i-1].TotalEquity > 0 {
			returns = append(returns, s.TotalEquity/snaps[i-1].TotalEquity-1)
		}
	}

	if len(returns) > 1 {
		mean, std := meanStd(returns)
		perf.Volatility = std * math.Sqrt(tradingDaysPerYear)
		if std > 0 {
			perf.SharpeRatio = mean / std * math.Sqrt(tradingDaysPerYear)
		}
	}
	return perf
}

func tradeStats(perf *Performance, trades []models.Trade) {
	perf.TotalTrades = len(trades)

	var grossWin, grossLoss float64
	for _, t := range trades {
		if t.Action != models.TradeActionSell || t.RealizedPnL == nil {
			continue
		}
		perf.ClosedTrades++
		switch pnl := *t.RealizedPnL; {
		case pnl > 0:
			perf.WinningTrades++
			grossWin += pnl
		case pnl < 0:
			perf.LosingTrades++
			grossLoss += pnl
		}
	}

	if perf.ClosedTrades > 0 {
		perf.WinRate = float64(perf.WinningTrades) / float64(perf.ClosedTrades)
	}
	if perf.WinningTrades > 0 {
		perf.AvgWin = grossWin / float64(perf.WinningTrades)
	}
	if perf.LosingTrades > 0 {
		perf.AvgLoss = grossLoss / float64(perf.LosingTrades)
		perf.ProfitFactor = grossWin / -grossLoss
	}
}

// meanStd returns the mean and sample standard deviation of xs.
func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}

// Export is the JSON document written by Ledger.Export.
type Export struct {
	Metadata struct {
		ExportDate   time.Time      `json:"export_date"`
		TotalRecords map[string]int `json:"total_records"`
	} `json:"metadata"`
	Holdings     []models.Holding        `json:"holdings"`
	Trades       []models.Trade          `json:"trades"`
	CapitalFlows []models.CapitalFlow    `json:"capital_flows"`
	Snapshots    []models.EquitySnapshot `json:"portfolio_snapshots"`
	Performance  *Performance            `json:"performance_metrics"`
}

// Export writes every ledger record and the performance summary to w as JSON.
func (l *Ledger) Export(ctx context.Context, w io.Writer) error {
	var doc Export
	var err error

	if doc.Holdings, err = l.GetHoldings(ctx); err != nil {
		return err
	}
	if doc.Trades, err = l.GetTradeHistory(ctx, 0, ""); err != nil {
		return err
	}
	if doc.CapitalFlows, err = l.GetCapitalFlows(ctx); err != nil {
		return err
	}
	if doc.Snapshots, err = l.GetSnapshots(ctx, 0); err != nil {
		return err
	}
	doc.Performance = equityStats(doc.Snapshots)
	tradeStats(doc.Performance, doc.Trades)

	doc.Metadata.ExportDate = l.timestamp()
	doc.Metadata.TotalRecords = map[string]int{
		"holdings":            len(doc.Holdings),
		"trades":              len(doc.Trades),
		"capital_flows":       len(doc.CapitalFlows),
		"portfolio_snapshots": len(doc.Snapshots),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}
