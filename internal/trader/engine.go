package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"portfolio-ledger/internal/config"
	"portfolio-ledger/internal/decision"
	"portfolio-ledger/internal/ledger"
	"portfolio-ledger/internal/metrics"
	"portfolio-ledger/internal/models"
	"portfolio-ledger/internal/quotes"
	"portfolio-ledger/internal/risk"
)

// Book is the part of the ledger the engine reads and commits to.
type Book interface {
	decision.Book
	GetHoldings(ctx context.Context) ([]models.Holding, error)
	RecordBuy(ctx context.Context, req ledger.TradeRequest) (*models.Trade, error)
	RecordSell(ctx context.Context, req ledger.TradeRequest) (*models.Trade, error)
	SaveSnapshot(ctx context.Context, snap *ledger.PortfolioSnapshot) (*models.EquitySnapshot, error)
}

// Engine polls prices and bias signals for the watched symbols, asks the
// decision engine what to do and commits the result to the ledger.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger  *zap.Logger
	cfg     *config.Config
	book    Book
	source  quotes.Source
	decider *decision.Engine
	gate    *risk.Gate
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, book Book, source quotes.Source, decider *decision.Engine, gate *risk.Gate) *Engine {
	return &Engine{
		UUID:      uuid.NewString(),
		Name:      "portfolio-trader",
		StartTime: time.Now(),
		logger:    logger.Named("trader"),
		cfg:       cfg,
		book:      book,
		source:    source,
		decider:   decider,
		gate:      gate,
	}
}

const defaultTickInterval = 60 * time.Second

// tickInterval returns the configured polling interval, or the default when
// the configured value is not positive.
func (e *Engine) tickInterval() time.Duration {
	if e.cfg.Trading.TickInterval <= 0 {
		e.logger.Warn("Invalid tick interval, using default",
			zap.Int("tick_interval", e.cfg.Trading.TickInterval),
			zap.Duration("default", defaultTickInterval))
		return defaultTickInterval
	}
	return time.Duration(e.cfg.Trading.TickInterval) * time.Second
}

// Run starts the engine's main loop and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := e.tickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting decision loop",
		zap.Duration("interval", interval),
		zap.Strings("symbols", e.cfg.Trading.Symbols),
		zap.Bool("dry_run", e.cfg.Trading.DryRun))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				e.logger.Error("Tick failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one round: price every relevant symbol, enforce exits on held
// positions, decide on each symbol and record an equity snapshot.
func (e *Engine) Tick(ctx context.Context) error {
	holdings, err := e.book.GetHoldings(ctx)
	if err != nil {
		return fmt.Errorf("could not load holdings: %w", err)
	}

	symbols := e.symbols(holdings)
	prices := e.fetchPrices(ctx, symbols)

	snap, err := e.book.GetPortfolioValue(ctx, prices)
	if err != nil {
		return fmt.Errorf("could not value portfolio: %w", err)
	}

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		price, ok := prices[symbol]
		if !ok {
			continue
		}

		committed := e.evaluate(ctx, symbol, price, snap)
		if committed {
			if snap, err = e.book.GetPortfolioValue(ctx, prices); err != nil {
				return fmt.Errorf("could not revalue portfolio: %w", err)
			}
		}
	}

	metrics.PortfolioEquity.Set(snap.TotalEquity)
	if _, err := e.book.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("could not save snapshot: %w", err)
	}
	e.logger.Info("Tick complete",
		zap.Float64("total_equity", snap.TotalEquity),
		zap.Int("num_positions", snap.NumPositions))
	return nil
}

// symbols returns the watched symbols followed by any other held symbol.
func (e *Engine) symbols(holdings []models.Holding) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = ledger.NormalizeSymbol(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range e.cfg.Trading.Symbols {
		add(s)
	}
	for _, h := range holdings {
		add(h.Symbol)
	}
	return out
}

func (e *Engine) fetchPrices(ctx context.Context, symbols []string) ledger.PriceMap {
	prices := make(ledger.PriceMap, len(symbols))
	for _, s := range symbols {
		price, err := e.source.GetPrice(ctx, s)
		if err != nil {
			e.logger.Warn("Could not get price, skipping symbol this tick", zap.String("symbol", s), zap.Error(err))
			continue
		}
		prices[s] = price
	}
	return prices
}

// evaluate handles one symbol and reports whether a trade was recorded.
func (e *Engine) evaluate(ctx context.Context, symbol string, price float64, snap *ledger.PortfolioSnapshot) bool {
	l := e.logger.With(zap.String("symbol", symbol), zap.Float64("price", price))
	pos := decision.PositionFor(snap, symbol)

	if pos != nil {
		reason := ""
		switch {
		case e.gate.CheckStopLoss(*pos, price):
			reason = "stop loss triggered"
		case e.gate.CheckTakeProfit(*pos, price):
			reason = "take profit triggered"
		}
		if reason != "" {
			l.Info("Exit rule hit, closing position", zap.String("reason", reason), zap.Float64("entry_price", pos.EntryPrice))
			return e.closeLong(ctx, l, pos, price, reason)
		}
	}

	if !isWatched(e.cfg.Trading.Symbols, symbol) {
		return false
	}

	bias, err := e.source.GetBias(ctx, symbol)
	if err != nil {
		l.Warn("Could not get bias signal", zap.Error(err))
		return false
	}

	d := e.decider.Decide(bias, pos, decision.Status(snap, e.cfg.Trading.InitialCapital))
	d.Symbol = symbol
	l = l.With(zap.String("action", d.Action), zap.Float64("bias", d.Bias), zap.String("reason", d.Reason))

	switch d.Action {
	case decision.ActionBuy:
		return e.buy(ctx, l, d, price)
	case decision.ActionCloseLong:
		return e.closeLong(ctx, l, pos, price, d.Reason)
	case decision.ActionSell, decision.ActionCloseShort:
		l.Info("Short positions are not tracked by the ledger, skipping")
	default:
		l.Debug("Holding")
	}
	return false
}

func (e *Engine) buy(ctx context.Context, l *zap.Logger, d decision.Decision, price float64) bool {
	quantity := d.Size / price
	l = l.With(zap.Float64("size", d.Size), zap.Float64("quantity", quantity))
	if quantity <= 0 {
		l.Warn("Computed quantity is zero or less, skipping trade")
		return false
	}
	if e.cfg.Trading.DryRun {
		l.Warn("Dry run enabled. No trade will be recorded.")
		return false
	}

	trade, err := e.book.RecordBuy(ctx, ledger.TradeRequest{
		Symbol:   d.Symbol,
		Quantity: quantity,
		Price:    price,
		Reason:   d.Reason,
	})
	if err != nil {
		l.Error("Failed to record buy", zap.Error(err))
		return false
	}
	l.Info("Recorded buy", zap.String("trade_id", trade.TradeID))
	return true
}

func (e *Engine) closeLong(ctx context.Context, l *zap.Logger, pos *risk.Position, price float64, reason string) bool {
	l = l.With(zap.Float64("quantity", pos.Quantity))
	if e.cfg.Trading.DryRun {
		l.Warn("Dry run enabled. No trade will be recorded.")
		return false
	}

	trade, err := e.book.RecordSell(ctx, ledger.TradeRequest{
		Symbol:   pos.Symbol,
		Quantity: pos.Quantity,
		Price:    price,
		Reason:   reason,
	})
	if err != nil {
		l.Error("Failed to record sell", zap.Error(err))
		return false
	}
	if trade.RealizedPnL != nil {
		l = l.With(zap.Float64("realized_pnl", *trade.RealizedPnL))
	}
	l.Info("Closed position", zap.String("trade_id", trade.TradeID))
	return true
}

func isWatched(watched []string, symbol string) bool {
	for _, s := range watched {
		if ledger.NormalizeSymbol(s) == symbol {
			return true
		}
	}
	return false
}
