package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"portfolio-ledger/internal/ledger"
	"portfolio-ledger/internal/models"
)

func newTradeCmd(a *app) *cobra.Command {
	var req ledger.TradeRequest

	cmd := &cobra.Command{
		Use:   "trade <BUY|SELL> <symbol> <quantity> <price>",
		Short: "Record a buy or sell",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Symbol = args[1]
			var err error
			if req.Quantity, err = parseAmount("quantity", args[2]); err != nil {
				return err
			}
			if req.Price, err = parseAmount("price", args[3]); err != nil {
				return err
			}

			var trade *models.Trade
			switch strings.ToUpper(args[0]) {
			case models.TradeActionBuy:
				trade, err = a.ledger.RecordBuy(cmd.Context(), req)
			case models.TradeActionSell:
				trade, err = a.ledger.RecordSell(cmd.Context(), req)
			default:
				return fmt.Errorf("action must be BUY or SELL, got %q", args[0])
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Recorded %s %g %s @ %.2f (trade %s)\n",
				trade.Action, trade.Quantity, trade.Symbol, trade.Price, trade.TradeID)
			if trade.RealizedPnL != nil {
				fmt.Fprintf(a.out, "Realized P&L: %.2f\n", *trade.RealizedPnL)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&req.Fees, "fees", 0, "fees paid on the trade")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&req.Reason, "reason", "manual", "reason recorded with the trade")
	cmd.Flags().StringVar(&req.TradeID, "id", "", "trade id; reusing an id replays the original trade")
	return cmd
}

func newFlowCmd(a *app, kind string) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   kind + " <amount>",
		Short: "Record a " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount("amount", args[0])
			if err != nil {
				return err
			}

			var flow *models.CapitalFlow
			if kind == "deposit" {
				flow, err = a.ledger.RecordDeposit(cmd.Context(), amount, notes)
			} else {
				flow, err = a.ledger.RecordWithdrawal(cmd.Context(), amount, notes)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Recorded %s of %.2f\n", strings.ToLower(flow.Type), flow.Amount)
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var (
		manual map[string]string
		live   bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show holdings valued at current prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prices, err := a.prices(manual, live)
			if err != nil {
				return err
			}
			snap, err := a.ledger.GetPortfolioValue(cmd.Context(), prices)
			if err != nil {
				return err
			}
			printSnapshot(a.out, snap)
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&manual, "price", nil, "current price per symbol, e.g. --price AAPL=190")
	cmd.Flags().BoolVar(&live, "live", false, "fetch missing prices from the market-data service")
	return cmd
}

func printSnapshot(out io.Writer, snap *ledger.PortfolioSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tQTY\tAVG COST\tPRICE\tVALUE\tUNREALIZED\tWEIGHT")
	for _, p := range snap.Positions {
		price := "n/a"
		if p.Priced {
			price = fmt.Sprintf("%.2f", p.CurrentPrice)
		}
		fmt.Fprintf(w, "%s\t%g\t%.2f\t%s\t%.2f\t%.2f (%.2f%%)\t%.1f%%\n",
			p.Symbol, p.Quantity, p.AvgEntryPrice, price, p.MarketValue, p.UnrealizedPnL, p.UnrealizedPnLPct, p.WeightPct)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal equity:     %.2f\n", snap.TotalEquity)
	fmt.Fprintf(out, "Net contributed:  %.2f (deposits %.2f, withdrawals %.2f)\n",
		snap.NetContributed, snap.TotalDeposits, snap.TotalWithdrawals)
	fmt.Fprintf(out, "Total P&L:        %.2f (%.2f%%)\n", snap.TotalPnL, snap.TotalPnLPct)
	fmt.Fprintf(out, "Realized P&L:     %.2f\n", snap.RealizedPnL)
	fmt.Fprintf(out, "Unrealized P&L:   %.2f\n", snap.UnrealizedPnL)
	if len(snap.Unpriced) > 0 {
		fmt.Fprintf(out, "No price for: %s (valued at 0)\n", strings.Join(snap.Unpriced, ", "))
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		symbol string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded trades, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			trades, err := a.ledger.GetTradeHistory(cmd.Context(), days, symbol)
			if err != nil {
				return err
			}
			if len(trades) == 0 {
				fmt.Fprintln(a.out, "No trades.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tSYMBOL\tQTY\tPRICE\tFEES\tREALIZED\tREASON")
			for _, t := range trades {
				realized := "-"
				if t.RealizedPnL != nil {
					realized = strconv.FormatFloat(*t.RealizedPnL, 'f', 2, 64)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%.2f\t%.2f\t%s\t%s\n",
					t.Timestamp.Format("2006-01-02 15:04"), t.Action, t.Symbol, t.Quantity, t.Price, t.Fees, realized, t.Reason)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "only trades in this symbol")
	cmd.Flags().IntVar(&days, "days", 0, "only trades from the last N days (0 for all)")
	return cmd
}

func newFlowsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "flows",
		Short: "List deposits and withdrawals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flows, err := a.ledger.GetCapitalFlows(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tAMOUNT\tNOTES")
			for _, f := range flows {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", f.Timestamp.Format("2006-01-02 15:04"), f.Type, f.Amount, f.Notes)
			}
			return w.Flush()
		},
	}
}

func newSnapshotCmd(a *app) *cobra.Command {
	var (
		manual map[string]string
		live   bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Store the current valuation in the equity history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prices, err := a.prices(manual, live)
			if err != nil {
				return err
			}
			snap, err := a.ledger.GetPortfolioValue(cmd.Context(), prices)
			if err != nil {
				return err
			}
			rec, err := a.ledger.SaveSnapshot(cmd.Context(), snap)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Saved snapshot: equity %.2f across %d positions\n", rec.TotalEquity, rec.NumPositions)
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&manual, "price", nil, "current price per symbol, e.g. --price AAPL=190")
	cmd.Flags().BoolVar(&live, "live", false, "fetch missing prices from the market-data service")
	return cmd
}

func newPerformanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "performance",
		Short: "Show return and trade statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			perf, err := a.ledger.Performance(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Snapshots\t%d\n", perf.Snapshots)
			fmt.Fprintf(w, "Total return\t%.2f%%\n", perf.TotalReturnPct)
			fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", perf.MaxDrawdown*100)
			fmt.Fprintf(w, "Sharpe ratio\t%.2f\n", perf.SharpeRatio)
			fmt.Fprintf(w, "Volatility\t%.2f%%\n", perf.Volatility*100)
			fmt.Fprintf(w, "Closed trades\t%d\n", perf.ClosedTrades)
			fmt.Fprintf(w, "Win rate\t%.1f%%\n", perf.WinRate*100)
			fmt.Fprintf(w, "Avg win / loss\t%.2f / %.2f\n", perf.AvgWin, perf.AvgLoss)
			fmt.Fprintf(w, "Profit factor\t%.2f\n", perf.ProfitFactor)
			return w.Flush()
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every ledger record as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" || path == "-" {
				return a.ledger.Export(cmd.Context(), a.out)
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("could not create %s: %w", path, err)
			}
			defer f.Close()
			if err := a.ledger.Export(cmd.Context(), f); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Exported ledger to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newDecideCmd(a *app) *cobra.Command {
	var (
		manual map[string]string
		live   bool
	)

	cmd := &cobra.Command{
		Use:   "decide <symbol> <bias>",
		Short: "Ask the decision engine what to do for a symbol at a given bias",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bias, err := parseAmount("bias", args[1])
			if err != nil {
				return err
			}
			prices, err := a.prices(manual, live)
			if err != nil {
				return err
			}

			d, err := a.decider().DecideFor(cmd.Context(), a.ledger, args[0], bias, prices)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}

	cmd.Flags().StringToStringVar(&manual, "price", nil, "current price per symbol, e.g. --price AAPL=190")
	cmd.Flags().BoolVar(&live, "live", false, "fetch missing prices from the market-data service")
	return cmd
}
