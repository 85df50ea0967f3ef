package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"autotrader/internal/auth"
	"autotrader/internal/execution"
	"autotrader/internal/health"
	"autotrader/internal/httpserver"
	"autotrader/internal/ledger"
	"autotrader/internal/marketdata"
	"autotrader/internal/metrics"
	"autotrader/internal/orders"
	"autotrader/internal/risk"
	"autotrader/internal/signal"
	"autotrader/internal/store/memory"
)

const (
	testPassword      = "hunter2"
	testInternalToken = "internal-test-token"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := memory.NewStore(decimal.NewFromInt(100000))
	board := marketdata.NewBoard()
	bus := marketdata.NewBus()
	l := ledger.New(store, board)
	orderSvc := orders.NewService(l, risk.NewGate(decimal.RequireFromString("0.1")), execution.NewEngine(decimal.RequireFromString("0.001")), board, bus, m)
	adapter := signal.NewAdapter(orderSvc, l, board, signal.Config{
		MinConfidence:       decimal.RequireFromString("0.7"),
		MaxPositionFraction: decimal.RequireFromString("0.1"),
		StopLossPct:         decimal.RequireFromString("0.02"),
		TakeProfitPct:       decimal.RequireFromString("0.05"),
	}, m)
	marketSvc := marketdata.NewService(board, bus)
	marketSvc.Register(orderSvc)
	marketSvc.Register(adapter)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	authSvc := auth.NewService("autotrader", []byte("test-secret"), time.Hour, string(hash))

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:   auth.NewHandler(authSvc),
		OrderHandler:  orders.NewHandler(orderSvc),
		MarketHandler: marketdata.NewHandler(marketSvc, board),
		SignalHandler: signal.NewHandler(adapter),
		HealthHandler: health.NewHandler(nil, time.Now(), ":0"),
		AuthService:   authSvc,
		InternalToken: testInternalToken,
		WSHandler:     httpserver.NewWSHandler(bus, authSvc, "*"),
		MetricsHTTP:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"password": testPassword})
	resp, err := http.Post(srv.URL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out["access_token"])
	return out["access_token"]
}

func doJSON(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func ingestQuote(t *testing.T, srv *httptest.Server, symbol, price string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"symbol": symbol, "price": price})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/internal/quotes", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", testInternalToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOrdersRequireAuth(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/orders", "", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInternalEndpointsRequireToken(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"symbol": "AAPL", "price": "100"})
	resp, err := http.Post(srv.URL+"/v1/internal/quotes", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPlaceOrderFlow(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	token := login(t, srv)
	ingestQuote(t, srv, "AAPL", "100")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/orders", token, map[string]string{
		"symbol":     "AAPL",
		"side":       "BUY",
		"order_type": "MARKET",
		"quantity":   "50",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var placed struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&placed))
	assert.Equal(t, "FILLED", placed.Status)
	require.NotEmpty(t, placed.OrderID)

	got := doJSON(t, http.MethodGet, srv.URL+"/v1/orders/"+placed.OrderID, token, nil)
	defer got.Body.Close()
	assert.Equal(t, http.StatusOK, got.StatusCode)

	portfolio := doJSON(t, http.MethodGet, srv.URL+"/v1/portfolio", token, nil)
	defer portfolio.Body.Close()
	require.Equal(t, http.StatusOK, portfolio.StatusCode)
	var view struct {
		Cash      string `json:"cash"`
		Positions []struct {
			Symbol string `json:"symbol"`
		} `json:"positions"`
	}
	require.NoError(t, json.NewDecoder(portfolio.Body).Decode(&view))
	require.Len(t, view.Positions, 1)
	assert.Equal(t, "AAPL", view.Positions[0].Symbol)

	snapshots := doJSON(t, http.MethodGet, srv.URL+"/v1/snapshots", token, nil)
	defer snapshots.Body.Close()
	require.Equal(t, http.StatusOK, snapshots.StatusCode)
	var history []struct {
		TotalValue string `json:"total_value"`
	}
	require.NoError(t, json.NewDecoder(snapshots.Body).Decode(&history))
	assert.NotEmpty(t, history)
}

func TestPlaceOrderRejectedReturns422(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	token := login(t, srv)
	ingestQuote(t, srv, "AAPL", "100")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/orders", token, map[string]string{
		"symbol":     "AAPL",
		"side":       "SELL",
		"order_type": "MARKET",
		"quantity":   "10",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out struct {
		Status       string `json:"status"`
		RejectReason string `json:"reject_reason"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "REJECTED", out.Status)
	assert.Equal(t, "INSUFFICIENT_POSITION", out.RejectReason)
}

func TestSignalIngestPlacesOrder(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	token := login(t, srv)
	ingestQuote(t, srv, "AAPL", "100")

	body, _ := json.Marshal(map[string]any{
		"symbol":     "AAPL",
		"action":     "BUY",
		"confidence": "0.8",
	})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/internal/signals", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", testInternalToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	trades := doJSON(t, http.MethodGet, srv.URL+"/v1/trades", token, nil)
	defer trades.Body.Close()
	require.Equal(t, http.StatusOK, trades.StatusCode)
	var out []struct {
		Symbol   string `json:"symbol"`
		Quantity string `json:"quantity"`
	}
	require.NoError(t, json.NewDecoder(trades.Body).Decode(&out))
	require.Len(t, out, 1)
	// 100000 * 0.1 * 0.8 / 100 = 80 shares.
	qty, err := decimal.NewFromString(out[0].Quantity)
	require.NoError(t, err)
	assert.True(t, qty.Equal(decimal.NewFromInt(80)), "qty %s", qty)
}
