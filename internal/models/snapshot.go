package models

import "time"

// EquitySnapshot is a point-in-time valuation of the portfolio kept for
// performance history. It is never used to derive holdings.
type EquitySnapshot struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time `gorm:"index;not null" json:"timestamp"`
	TotalEquity    float64   `json:"total_equity"`
	PositionsValue float64   `json:"positions_value"`
	NetContributed float64   `json:"net_contributed"`
	TotalPnL       float64   `gorm:"column:total_pnl" json:"total_pnl"`
	RealizedPnL    float64   `gorm:"column:realized_pnl" json:"realized_pnl"`
	UnrealizedPnL  float64   `gorm:"column:unrealized_pnl" json:"unrealized_pnl"`
	NumPositions   int       `json:"num_positions"`
}

// TableName keeps the historical table name.
func (EquitySnapshot) TableName() string {
	return "portfolio_snapshots"
}
