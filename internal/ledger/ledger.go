// Package ledger is the system of record for holdings, trades and capital flows.
//
// Every buy and sell is applied in a single database transaction while holding
// a per-symbol lock, so the quantity check and the holding update can never
// interleave with another trade on the same symbol.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"portfolio-ledger/internal/metrics"
	"portfolio-ledger/internal/models"
)

// quantityEpsilon absorbs float rounding when a sell exhausts a holding.
const quantityEpsilon = 1e-9

// TradeRequest describes a buy or sell to record.
// An empty TradeID gets a fresh one; a TradeID seen before is replayed without effect.
type TradeRequest struct {
	TradeID  string  `json:"trade_id,omitempty"`
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Fees     float64 `json:"fees"`
	Reason   string  `json:"reason,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

func (r *TradeRequest) normalize() {
	r.Symbol = NormalizeSymbol(r.Symbol)
	r.TradeID = strings.TrimSpace(r.TradeID)
}

func (r TradeRequest) validate() error {
	switch {
	case r.Symbol == "":
		return ErrInvalidSymbol
	case !(r.Quantity > 0) || math.IsInf(r.Quantity, 0):
		return fmt.Errorf("%w: got %v", ErrInvalidQuantity, r.Quantity)
	case !(r.Price > 0) || math.IsInf(r.Price, 0):
		return fmt.Errorf("%w: got %v", ErrInvalidPrice, r.Price)
	case !(r.Fees >= 0) || math.IsInf(r.Fees, 0):
		return fmt.Errorf("%w: got %v", ErrInvalidFees, r.Fees)
	}
	return nil
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Ledger owns the persisted portfolio records. It is safe for concurrent use.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger on top of an open, migrated database handle.
func New(db *gorm.DB, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		db:     db,
		logger: logger.Named("ledger"),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// lockSymbol serialises mutations of one symbol and returns the unlock func.
func (l *Ledger) lockSymbol(symbol string) func() {
	l.mu.Lock()
	m, ok := l.locks[symbol]
	if !ok {
		m = &sync.Mutex{}
		l.locks[symbol] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (l *Ledger) timestamp() time.Time {
	return l.now().UTC()
}

// RecordDeposit records capital moving into the portfolio.
func (l *Ledger) RecordDeposit(ctx context.Context, amount float64, notes string) (*models.CapitalFlow, error) {
	return l.recordFlow(ctx, models.FlowDeposit, amount, notes)
}

// RecordWithdrawal records capital leaving the portfolio. Net contributed
// capital is allowed to go negative.
func (l *Ledger) RecordWithdrawal(ctx context.Context, amount float64, notes string) (*models.CapitalFlow, error) {
	return l.recordFlow(ctx, models.FlowWithdrawal, amount, notes)
}

func (l *Ledger) recordFlow(ctx context.Context, flowType string, amount float64, notes string) (*models.CapitalFlow, error) {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAmount, amount)
	}

	flow := &models.CapitalFlow{
		Timestamp: l.timestamp(),
		Type:      flowType,
		Amount:    amount,
		Notes:     notes,
	}
	if err := l.db.WithContext(ctx).Create(flow).Error; err != nil {
		return nil, fmt.Errorf("failed to save capital flow: %w", err)
	}

	metrics.CapitalFlowsTotal.WithLabelValues(flowType).Inc()
	l.logger.Info("Recorded capital flow",
		zap.String("type", flowType),
		zap.Float64("amount", amount),
		zap.Uint("flow_id", flow.ID))
	return flow, nil
}

// RecordBuy records a purchase and folds it into the symbol's weighted-average cost.
func (l *Ledger) RecordBuy(ctx context.Context, req TradeRequest) (*models.Trade, error) {
	return l.recordTrade(ctx, models.TradeActionBuy, req, l.applyBuy)
}

// RecordSell records a sale against an existing holding and realizes its P&L
// at the holding's current average cost.
func (l *Ledger) RecordSell(ctx context.Context, req TradeRequest) (*models.Trade, error) {
	return l.recordTrade(ctx, models.TradeActionSell, req, l.applySell)
}

type applyFunc func(tx *gorm.DB, req TradeRequest, trade *models.Trade) error

func (l *Ledger) recordTrade(ctx context.Context, action string, req TradeRequest, apply applyFunc) (*models.Trade, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.TradeID == "" {
		req.TradeID = uuid.NewString()
	}

	log := l.logger.With(
		zap.String("trade_id", req.TradeID),
		zap.String("symbol", req.Symbol),
		zap.String("action", action),
		zap.Float64("quantity", req.Quantity),
		zap.Float64("price", req.Price),
	)

	unlock := l.lockSymbol(req.Symbol)
	defer unlock()

	var (
		trade    *models.Trade
		replayed bool
	)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findTrade(tx, req.TradeID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Action != action || existing.Symbol != req.Symbol {
				return fmt.Errorf("%w: %s is a %s of %s", ErrTradeIDConflict, existing.TradeID, existing.Action, existing.Symbol)
			}
			trade, replayed = existing, true
			return nil
		}

		totalValue := req.Quantity * req.Price
		trade = &models.Trade{
			TradeID:    req.TradeID,
			Timestamp:  l.timestamp(),
			Symbol:     req.Symbol,
			Action:     action,
			Quantity:   req.Quantity,
			Price:      req.Price,
			TotalValue: totalValue,
			Fees:       req.Fees,
			Reason:     req.Reason,
			Notes:      req.Notes,
		}
		if err := apply(tx, req, trade); err != nil {
			return err
		}
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to save trade record: %w", err)
		}
		return nil
	})
	if err != nil {
		metrics.LedgerRejectionsTotal.WithLabelValues(action, rejectionKind(err)).Inc()
		log.Warn("Trade not recorded", zap.Error(err))
		return nil, err
	}

	if replayed {
		log.Info("Trade id already recorded, returning stored trade")
		return trade, nil
	}

	metrics.TradesRecordedTotal.WithLabelValues(action).Inc()
	if trade.RealizedPnL != nil {
		log = log.With(zap.Float64("realized_pnl", *trade.RealizedPnL))
	}
	log.Info("Recorded trade")
	return trade, nil
}

func (l *Ledger) applyBuy(tx *gorm.DB, req TradeRequest, trade *models.Trade) error {
	trade.NetAmount = trade.TotalValue + req.Fees

	holding, err := findHolding(tx, req.Symbol)
	if err != nil {
		return err
	}

	if holding == nil {
		holding = &models.Holding{
			Symbol:        req.Symbol,
			Quantity:      req.Quantity,
			AvgEntryPrice: req.Price,
			Notes:         req.Notes,
			UpdatedAt:     trade.Timestamp,
		}
		if err := tx.Create(holding).Error; err != nil {
			return fmt.Errorf("failed to create holding %s: %w", req.Symbol, err)
		}
		return nil
	}

	newQty := holding.Quantity + req.Quantity
	newAvg := (holding.Quantity*holding.AvgEntryPrice + req.Quantity*req.Price) / newQty
	updates := map[string]interface{}{
		"quantity":        newQty,
		"avg_entry_price": newAvg,
		"updated_at":      trade.Timestamp,
	}
	if req.Notes != "" {
		updates["notes"] = req.Notes
	}
	if err := tx.Model(&models.Holding{}).Where("symbol = ?", req.Symbol).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update holding %s: %w", req.Symbol, err)
	}
	return nil
}

func (l *Ledger) applySell(tx *gorm.DB, req TradeRequest, trade *models.Trade) error {
	trade.NetAmount = trade.TotalValue - req.Fees

	holding, err := findHolding(tx, req.Symbol)
	if err != nil {
		return err
	}
	if holding == nil {
		return fmt.Errorf("%w: %s", ErrNoSuchHolding, req.Symbol)
	}
	if req.Quantity > holding.Quantity+quantityEpsilon {
		return fmt.Errorf("%w: %s holds %g, requested %g", ErrInsufficientQuantity, req.Symbol, holding.Quantity, req.Quantity)
	}

	realized := req.Quantity*req.Price - req.Quantity*holding.AvgEntryPrice - req.Fees
	trade.RealizedPnL = &realized

	remaining := holding.Quantity - req.Quantity
	if remaining <= quantityEpsilon {
		if err := tx.Where("symbol = ?", req.Symbol).Delete(&models.Holding{}).Error; err != nil {
			return fmt.Errorf("failed to close holding %s: %w", req.Symbol, err)
		}
		return nil
	}

	updates := map[string]interface{}{
		"quantity":   remaining,
		"updated_at": trade.Timestamp,
	}
	if err := tx.Model(&models.Holding{}).Where("symbol = ?", req.Symbol).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update holding %s: %w", req.Symbol, err)
	}
	return nil
}

func findTrade(tx *gorm.DB, tradeID string) (*models.Trade, error) {
	var t models.Trade
	err := tx.Where("trade_id = ?", tradeID).Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up trade %s: %w", tradeID, err)
	}
	return &t, nil
}

func findHolding(tx *gorm.DB, symbol string) (*models.Holding, error) {
	var h models.Holding
	err := tx.Where("symbol = ?", symbol).Take(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load holding %s: %w", symbol, err)
	}
	return &h, nil
}

func rejectionKind(err error) string {
	switch {
	case IsValidationError(err):
		return "validation"
	case IsStateError(err):
		return "state"
	default:
		return "storage"
	}
}

// GetHoldings returns every open holding ordered by symbol.
func (l *Ledger) GetHoldings(ctx context.Context) ([]models.Holding, error) {
	var holdings []models.Holding
	if err := l.db.WithContext(ctx).Order("symbol asc").Find(&holdings).Error; err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	return holdings, nil
}

// GetHolding returns the holding for symbol or ErrNoSuchHolding.
func (l *Ledger) GetHolding(ctx context.Context, symbol string) (*models.Holding, error) {
	symbol = NormalizeSymbol(symbol)
	h, err := findHolding(l.db.WithContext(ctx), symbol)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchHolding, symbol)
	}
	return h, nil
}
