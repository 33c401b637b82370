package models

import "time"

// Holding is the open long position in a symbol, tracked at weighted-average cost.
// The row only exists while Quantity > 0; an exhausting sell deletes it.
type Holding struct {
	Symbol        string    `gorm:"primaryKey" json:"symbol"`
	Quantity      float64   `gorm:"not null" json:"quantity"`
	AvgEntryPrice float64   `gorm:"not null" json:"avg_entry_price"`
	Notes         string    `json:"notes,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CostBasis returns the capital committed to the holding at average cost.
func (h Holding) CostBasis() float64 {
	return h.Quantity * h.AvgEntryPrice
}
