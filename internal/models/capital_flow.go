package models

import "time"

const (
	FlowDeposit    = "DEPOSIT"
	FlowWithdrawal = "WITHDRAWAL"
)

// CapitalFlow is a deposit into or withdrawal out of the tracked portfolio.
type CapitalFlow struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	Type      string    `gorm:"not null" json:"type"` // "DEPOSIT" or "WITHDRAWAL"
	Amount    float64   `gorm:"not null" json:"amount"`
	Notes     string    `json:"notes,omitempty"`
}
