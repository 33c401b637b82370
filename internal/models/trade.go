package models

import "time"

const (
	TradeActionBuy  = "BUY"
	TradeActionSell = "SELL"
)

// Trade is an immutable record of a single buy or sell.
// TradeID is the idempotency key; RealizedPnL is only set for sells.
type Trade struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	TradeID     string    `gorm:"uniqueIndex;not null" json:"trade_id"`
	Timestamp   time.Time `gorm:"index;not null" json:"timestamp"`
	Symbol      string    `gorm:"index;not null" json:"symbol"`
	Action      string    `gorm:"not null" json:"action"` // "BUY" or "SELL"
	Quantity    float64   `gorm:"not null" json:"quantity"`
	Price       float64   `gorm:"not null" json:"price"`
	TotalValue  float64   `json:"total_value"`
	Fees        float64   `json:"fees"`
	NetAmount   float64   `json:"net_amount"`
	RealizedPnL *float64  `gorm:"column:realized_pnl" json:"realized_pnl,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}
