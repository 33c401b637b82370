package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"portfolio-ledger/internal/config"
	"portfolio-ledger/internal/database"
	"portfolio-ledger/internal/decision"
	"portfolio-ledger/internal/ledger"
	"portfolio-ledger/internal/logger"
	"portfolio-ledger/internal/quotes"
	"portfolio-ledger/internal/risk"
)

// app carries what every subcommand needs. The ledger is opened lazily on
// first use unless it was provided up front.
type app struct {
	out    io.Writer
	cfgDir string
	dsn    string

	cfg    config.Config
	log    *zap.Logger
	db     *gorm.DB
	ledger *ledger.Ledger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "portfolio",
		Short: "Record trades and capital flows and inspect the portfolio",
		Long: `portfolio is the manual-entry front end of the portfolio ledger.

It records buys, sells, deposits and withdrawals, and reports holdings,
valuation, history and performance from the same database the trader uses.

Examples:
  portfolio deposit 10000 --notes "initial funding"
  portfolio trade BUY AAPL 10 187.50 --fees 1
  portfolio show --price AAPL=190
  portfolio history --symbol AAPL --days 30`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringVar(&a.cfgDir, "config", "./configs", "directory containing config.yml")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "database DSN (overrides config)")

	root.AddCommand(
		newTradeCmd(a),
		newFlowCmd(a, "deposit"),
		newFlowCmd(a, "withdraw"),
		newShowCmd(a),
		newHistoryCmd(a),
		newFlowsCmd(a),
		newSnapshotCmd(a),
		newPerformanceCmd(a),
		newExportCmd(a),
		newDecideCmd(a),
	)
	return root
}

func (a *app) setup() error {
	if a.ledger != nil {
		return nil
	}

	cfg, err := config.LoadConfig(a.cfgDir)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}
	a.cfg = cfg
	if a.dsn != "" {
		a.cfg.Database.DSN = a.dsn
	}

	if a.log, err = logger.NewLogger(a.cfg.Logger); err != nil {
		return fmt.Errorf("could not initialize logger: %w", err)
	}
	if a.db, err = database.NewDatabase(a.cfg.Database.DSN); err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}
	a.ledger = ledger.New(a.db, a.log)
	return nil
}

func (a *app) close() error {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.db == nil {
		return nil
	}
	err := database.Close(a.db)
	a.db, a.ledger = nil, nil
	return err
}

// prices resolves valuation prices from --price flags, falling back to the
// market-data service when live is set.
func (a *app) prices(manual map[string]string, live bool) (ledger.PriceLookup, error) {
	fixed, err := parsePrices(manual)
	if err != nil {
		return nil, err
	}
	if !live {
		return fixed, nil
	}

	remote := quotes.Lookup(quotes.NewClient(a.cfg.Quotes, a.log), a.log)
	return ledger.PriceFunc(func(ctx context.Context, symbol string) (float64, bool) {
		if p, ok := fixed.Price(ctx, symbol); ok {
			return p, true
		}
		return remote.Price(ctx, symbol)
	}), nil
}

func (a *app) decider() *decision.Engine {
	gate := risk.NewGate(a.cfg.Risk, a.log)
	return decision.NewEngine(gate, risk.NewAllocator(a.cfg.Trading, a.cfg.Risk), a.log)
}

func parsePrices(raw map[string]string) (ledger.PriceMap, error) {
	prices := make(ledger.PriceMap, len(raw))
	for symbol, v := range raw {
		p, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || p <= 0 {
			return nil, fmt.Errorf("invalid price %q for %s", v, symbol)
		}
		prices[ledger.NormalizeSymbol(symbol)] = p
	}
	return prices, nil
}

func parseAmount(name, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", name, v)
	}
	return f, nil
}
