package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"portfolio-ledger/internal/decision"
	"portfolio-ledger/internal/ledger"
	"portfolio-ledger/internal/models"
	"portfolio-ledger/internal/quotes"
	"portfolio-ledger/internal/risk"
)

type handler struct {
	deps   Deps
	prices ledger.PriceLookup
	logger *zap.Logger
}

func newHandler(deps Deps, logger *zap.Logger) *handler {
	logger = logger.Named("api")
	var prices ledger.PriceLookup = ledger.PriceMap{}
	if deps.Source != nil {
		prices = quotes.Lookup(deps.Source, logger)
	}
	return &handler{deps: deps, prices: prices, logger: logger}
}

// TradeInput is the body of POST /api/trades.
type TradeInput struct {
	Action string `json:"action"`
	ledger.TradeRequest
}

// FlowInput is the body of POST /api/deposit and POST /api/withdraw.
type FlowInput struct {
	Amount float64 `json:"amount"`
	Notes  string  `json:"notes"`
}

// DecideInput is the body of POST /api/decide. A missing bias is fetched
// from the market-data service.
type DecideInput struct {
	Symbol string   `json:"symbol"`
	Bias   *float64 `json:"bias,omitempty"`
}

// RiskResponse is the body of GET /api/risk.
type RiskResponse struct {
	Status      risk.PortfolioStatus       `json:"status"`
	Risk        risk.PortfolioRisk         `json:"risk"`
	Regime      string                     `json:"regime"`
	Adjustments map[string]risk.Adjustment `json:"adjustments"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "portfolio-ledger"})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	e := h.deps.Engine
	if e == nil {
		writeError(w, "decision loop is not running in this process", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		UUID      string `json:"uuid"`
		Name      string `json:"name"`
		StartTime string `json:"start_time"`
		Uptime    string `json:"uptime"`
	}{
		UUID:      e.UUID,
		Name:      e.Name,
		StartTime: e.StartTime.Format(time.RFC3339),
		Uptime:    time.Since(e.StartTime).Round(time.Second).String(),
	})
}

func (h *handler) portfolioSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Ledger.GetPortfolioValue(r.Context(), h.prices)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.deps.Ledger.GetOpenPositions(r.Context(), h.prices)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *handler) trades(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, "days must be an integer", http.StatusBadRequest)
			return
		}
		days = n
	}

	trades, err := h.deps.Ledger.GetTradeHistory(r.Context(), days, r.URL.Query().Get("symbol"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *handler) recordTrade(w http.ResponseWriter, r *http.Request) {
	var in TradeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var (
		trade *models.Trade
		err   error
	)
	switch strings.ToUpper(in.Action) {
	case models.TradeActionBuy:
		trade, err = h.deps.Ledger.RecordBuy(r.Context(), in.TradeRequest)
	case models.TradeActionSell:
		trade, err = h.deps.Ledger.RecordSell(r.Context(), in.TradeRequest)
	default:
		writeError(w, "action must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

func (h *handler) flows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.deps.Ledger.GetCapitalFlows(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	var in FlowInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	flow, err := h.deps.Ledger.RecordDeposit(r.Context(), in.Amount, in.Notes)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, flow)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var in FlowInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	flow, err := h.deps.Ledger.RecordWithdrawal(r.Context(), in.Amount, in.Notes)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, flow)
}

func (h *handler) decide(w http.ResponseWriter, r *http.Request) {
	var in DecideInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ledger.NormalizeSymbol(in.Symbol) == "" {
		writeError(w, "symbol is required", http.StatusBadRequest)
		return
	}

	var bias float64
	switch {
	case in.Bias != nil:
		bias = *in.Bias
	case h.deps.Source != nil:
		b, err := h.deps.Source.GetBias(r.Context(), in.Symbol)
		if err != nil {
			h.logger.Warn("Failed to fetch bias", zap.String("symbol", in.Symbol), zap.Error(err))
			writeError(w, "could not fetch bias signal", http.StatusBadGateway)
			return
		}
		bias = b
	default:
		writeError(w, "bias is required", http.StatusBadRequest)
		return
	}

	d, err := h.deps.Decider.DecideFor(r.Context(), h.deps.Ledger, in.Symbol, bias, h.prices)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *handler) portfolioRisk(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Ledger.GetPortfolioValue(r.Context(), h.prices)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	regime := r.URL.Query().Get("regime")
	if regime == "" {
		regime = risk.RegimeNormal
	}
	status := decision.Status(snap, h.deps.Allocator.InitialCapital())
	writeJSON(w, http.StatusOK, RiskResponse{
		Status:      status,
		Risk:        h.deps.Allocator.ValidatePortfolioRisk(status),
		Regime:      regime,
		Adjustments: h.deps.Allocator.AdjustPositionSizes(status.Positions, regime),
	})
}

func (h *handler) performance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.deps.Ledger.Performance(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="portfolio_export.json"`)
	if err := h.deps.Ledger.Export(r.Context(), w); err != nil {
		h.logger.Error("Failed to export ledger", zap.Error(err))
	}
}

// writeLedgerError maps ledger errors onto HTTP status codes.
func (h *handler) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsValidationError(err):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrNoSuchHolding):
		writeError(w, err.Error(), http.StatusNotFound)
	case ledger.IsStateError(err):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("Request failed", zap.Error(err))
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
