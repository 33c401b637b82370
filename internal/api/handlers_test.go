package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"portfolio-ledger/internal/config"
	"portfolio-ledger/internal/database"
	"portfolio-ledger/internal/decision"
	"portfolio-ledger/internal/ledger"
	"portfolio-ledger/internal/risk"
)

// MockSource is a mock implementation of quotes.Source.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSource) GetBias(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func setupTestServer(t *testing.T, source *MockSource) (*httptest.Server, *ledger.Ledger) {
	t.Helper()
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	logger := zap.NewNop()
	trading := config.Trading{InitialCapital: 10000, RiskPerTrade: 0.02, MaxPositionSize: 100}
	limits := config.Risk{MaxDrawdown: 0.2, StopLoss: 0.05, TakeProfit: 0.1}
	gate := risk.NewGate(limits, logger)
	alloc := risk.NewAllocator(trading, limits)
	book := ledger.New(db, logger)

	deps := Deps{
		Ledger:    book,
		Decider:   decision.NewEngine(gate, alloc, logger),
		Allocator: alloc,
	}
	if source != nil {
		deps.Source = source
	}

	server := httptest.NewServer(NewRouter(deps, logger))
	t.Cleanup(server.Close)
	return server, book
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	resp, body := do(t, http.MethodGet, server.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = do(t, http.MethodGet, server.URL+"/status", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecordTrade_StatusCodes(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	testCases := []struct {
		name     string
		body     string
		expected int
	}{
		{name: "Buy", body: `{"action": "buy", "symbol": "AAPL", "quantity": 2, "price": 100}`, expected: http.StatusCreated},
		{name: "Malformed body", body: `{"action":`, expected: http.StatusBadRequest},
		{name: "Unknown action", body: `{"action": "HODL", "symbol": "AAPL", "quantity": 1, "price": 1}`, expected: http.StatusBadRequest},
		{name: "Invalid quantity", body: `{"action": "BUY", "symbol": "AAPL", "quantity": 0, "price": 1}`, expected: http.StatusBadRequest},
		{name: "Oversell", body: `{"action": "SELL", "symbol": "AAPL", "quantity": 5, "price": 1}`, expected: http.StatusConflict},
		{name: "No holding", body: `{"action": "SELL", "symbol": "TSLA", "quantity": 1, "price": 1}`, expected: http.StatusNotFound},
		{name: "Sell", body: `{"action": "SELL", "symbol": "AAPL", "quantity": 1, "price": 120}`, expected: http.StatusCreated},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := do(t, http.MethodPost, server.URL+"/api/trades", tc.body)
			assert.Equal(t, tc.expected, resp.StatusCode)
		})
	}

	req, err := http.Get(server.URL + "/api/trades?symbol=aapl")
	require.NoError(t, err)
	defer req.Body.Close()
	var trades []map[string]interface{}
	require.NoError(t, json.NewDecoder(req.Body).Decode(&trades))
	assert.Len(t, trades, 2)

	resp, _ := do(t, http.MethodGet, server.URL+"/api/trades?days=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCapitalFlowsAndSummary(t *testing.T) {
	source := new(MockSource)
	source.On("GetPrice", "AAPL").Return(110.0, nil)
	server, book := setupTestServer(t, source)

	resp, _ := do(t, http.MethodPost, server.URL+"/api/deposit", `{"amount": 1000, "notes": "seed"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, server.URL+"/api/withdraw", `{"amount": -5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err := book.RecordBuy(context.Background(), ledger.TradeRequest{Symbol: "AAPL", Quantity: 2, Price: 100})
	require.NoError(t, err)

	resp, body := do(t, http.MethodGet, server.URL+"/api/portfolio/summary", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 220.0, body["total_equity"])
	assert.Equal(t, 1000.0, body["net_contributed"])
	assert.Equal(t, 20.0, body["unrealized_pnl"])

	positionsResp, err := http.Get(server.URL + "/api/positions")
	require.NoError(t, err)
	defer positionsResp.Body.Close()
	var positions []ledger.PositionValue
	require.NoError(t, json.NewDecoder(positionsResp.Body).Decode(&positions))
	require.Len(t, positions, 1)
	assert.Equal(t, 110.0, positions[0].CurrentPrice)
}

func TestDecide(t *testing.T) {
	source := new(MockSource)
	source.On("GetPrice", "AAPL").Return(100.0, nil)
	source.On("GetBias", "AAPL").Return(-0.5, nil).Once()
	server, book := setupTestServer(t, source)

	_, err := book.RecordDeposit(context.Background(), 1000, "")
	require.NoError(t, err)

	resp, body := do(t, http.MethodPost, server.URL+"/api/decide", `{"symbol": "AAPL", "bias": 0.5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, decision.ActionBuy, body["action"])
	assert.Equal(t, 0.5, body["confidence"])
	assert.Equal(t, "AAPL", body["symbol"])

	_, err = book.RecordBuy(context.Background(), ledger.TradeRequest{Symbol: "AAPL", Quantity: 2, Price: 100})
	require.NoError(t, err)

	// bias fetched from the market-data service
	resp, body = do(t, http.MethodPost, server.URL+"/api/decide", `{"symbol": "AAPL"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, decision.ActionCloseLong, body["action"])

	resp, _ = do(t, http.MethodPost, server.URL+"/api/decide", `{"bias": 0.5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	source.AssertExpectations(t)
}

func TestDecide_DrawdownBreaker(t *testing.T) {
	source := new(MockSource)
	source.On("GetPrice", "AAPL").Return(50.0, nil)
	server, book := setupTestServer(t, source)

	ctx := context.Background()
	_, err := book.RecordDeposit(ctx, 1000, "")
	require.NoError(t, err)
	_, err = book.RecordBuy(ctx, ledger.TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 100})
	require.NoError(t, err)

	// equity 1000 - 500 unrealized = 500, a 50% drawdown
	resp, body := do(t, http.MethodPost, server.URL+"/api/decide", `{"symbol": "MSFT", "bias": 0.9}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, decision.ActionHold, body["action"])
	assert.Equal(t, true, body["risk_rejected"])
	assert.Equal(t, "maximum drawdown of 20% exceeded", body["reason"])

	resp, body = do(t, http.MethodGet, server.URL+"/api/risk?regime=highly_volatile", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	riskBody := body["risk"].(map[string]interface{})
	assert.Equal(t, false, riskBody["within_limits"])
	adjustments := body["adjustments"].(map[string]interface{})
	assert.Equal(t, 5.0, adjustments["AAPL"].(map[string]interface{})["adjusted_size"])
}

func TestDecide_WithoutSource(t *testing.T) {
	server, _ := setupTestServer(t, nil)

	resp, _ := do(t, http.MethodPost, server.URL+"/api/decide", `{"symbol": "AAPL"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPerformanceAndExport(t *testing.T) {
	server, book := setupTestServer(t, nil)
	_, err := book.RecordDeposit(context.Background(), 500, "")
	require.NoError(t, err)

	resp, body := do(t, http.MethodGet, server.URL+"/api/performance", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.0, body["total_trades"])

	resp, body = do(t, http.MethodGet, server.URL+"/api/export", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "portfolio_export.json")
	assert.Len(t, body["capital_flows"], 1)

	resp, _ = do(t, http.MethodGet, server.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
