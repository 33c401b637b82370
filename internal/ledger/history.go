package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"portfolio-ledger/internal/models"
)

// GetTradeHistory returns trades from the last days days, newest first.
// days <= 0 returns the full history; an empty symbol matches every symbol.
func (l *Ledger) GetTradeHistory(ctx context.Context, days int, symbol string) ([]models.Trade, error) {
	q := l.db.WithContext(ctx).Order("timestamp desc").Order("id desc")
	if days > 0 {
		q = q.Where("timestamp >= ?", l.since(days))
	}
	if symbol = NormalizeSymbol(symbol); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}

	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to get trade history: %w", err)
	}
	return trades, nil
}

// GetCapitalFlows returns every deposit and withdrawal, oldest first.
func (l *Ledger) GetCapitalFlows(ctx context.Context) ([]models.CapitalFlow, error) {
	var flows []models.CapitalFlow
	if err := l.db.WithContext(ctx).Order("timestamp asc").Order("id asc").Find(&flows).Error; err != nil {
		return nil, fmt.Errorf("failed to get capital flows: %w", err)
	}
	return flows, nil
}

// SaveSnapshot stores a valuation in the equity history.
func (l *Ledger) SaveSnapshot(ctx context.Context, snap *PortfolioSnapshot) (*models.EquitySnapshot, error) {
	record := &models.EquitySnapshot{
		Timestamp:      snap.Timestamp.UTC(),
		TotalEquity:    snap.TotalEquity,
		PositionsValue: snap.PositionsValue,
		NetContributed: snap.NetContributed,
		TotalPnL:       snap.TotalPnL,
		RealizedPnL:    snap.RealizedPnL,
		UnrealizedPnL:  snap.UnrealizedPnL,
		NumPositions:   snap.NumPositions,
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = l.timestamp()
	}
	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to save portfolio snapshot: %w", err)
	}
	l.logger.Debug("Saved portfolio snapshot",
		zap.Float64("total_equity", record.TotalEquity),
		zap.Int("num_positions", record.NumPositions))
	return record, nil
}

// GetSnapshots returns stored valuations from the last days days, oldest first.
// days <= 0 returns the full history.
func (l *Ledger) GetSnapshots(ctx context.Context, days int) ([]models.EquitySnapshot, error) {
	q := l.db.WithContext(ctx).Order("timestamp asc").Order("id asc")
	if days > 0 {
		q = q.Where("timestamp >= ?", l.since(days))
	}

	var snaps []models.EquitySnapshot
	if err := q.Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to get portfolio snapshots: %w", err)
	}
	return snaps, nil
}

func (l *Ledger) since(days int) time.Time {
	return l.timestamp().Add(-time.Duration(days) * 24 * time.Hour)
}
