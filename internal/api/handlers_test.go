package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dai-trader/config"
	"dai-trader/internal/auth"
	"dai-trader/internal/engine"
	"dai-trader/internal/errs"
	"dai-trader/internal/events"
	"dai-trader/internal/storage"
)

type fakeTrader struct {
	mu            sync.Mutex
	report        *engine.Report
	trades        []storage.TradeRecord
	distributions []float64
	distErr       error
	resets        int
	cycles        int
	lastLimit     int
}

func (f *fakeTrader) Status() engine.Status {
	return engine.Status{Running: true, Mode: "paper", Strategy: "momentum"}
}

func (f *fakeTrader) LastReport() *engine.Report { return f.report }

func (f *fakeTrader) OpenTrades() []engine.OpenTrade {
	return []engine.OpenTrade{{Symbol: "SOLUSDT", Shares: 10, EntryPrice: 100}}
}

func (f *fakeTrader) RecentTrades(_ context.Context, limit int) ([]storage.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	return f.trades, nil
}

func (f *fakeTrader) RecordDistribution(_ context.Context, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.distErr != nil {
		return f.distErr
	}
	f.distributions = append(f.distributions, amount)
	return nil
}

func (f *fakeTrader) ResetBreaker() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeTrader) RunCycle(context.Context) (*engine.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles++
	return &engine.Report{MarketOpen: true, Strategy: "momentum"}, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestReadEndpoints(t *testing.T) {
	trader := &fakeTrader{trades: []storage.TradeRecord{{Symbol: "SOLUSDT", PnL: 12}}}
	s := NewServer(config.ServerConfig{AllowedOrigins: "*"}, trader)
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/api/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "paper", data["mode"])
	assert.Equal(t, true, data["running"])

	w = do(t, h, http.MethodGet, "/api/report", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	trader.report = &engine.Report{Strategy: "momentum"}
	w = do(t, h, http.MethodGet, "/api/report", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/positions", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	positions := decode(t, w)["data"].([]interface{})
	assert.Len(t, positions, 1)

	w = do(t, h, http.MethodGet, "/api/trades?limit=5000", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500, trader.lastLimit)

	w = do(t, h, http.MethodGet, "/api/trades?limit=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, path := range []string{"/api/ledger", "/api/circuit-breaker", "/health", "/api/auth/status"} {
		w = do(t, h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestDistributionEndpoint(t *testing.T) {
	trader := &fakeTrader{}
	h := NewServer(config.ServerConfig{}, trader).Handler()

	w := do(t, h, http.MethodPost, "/api/ledger/distributions", `{"amount": 250}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []float64{250}, trader.distributions)

	w = do(t, h, http.MethodPost, "/api/ledger/distributions", `{"amount": -5}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	trader.distErr = errs.Risk("ledger.RecordDistribution", "in recovery mode")
	w = do(t, h, http.MethodPost, "/api/ledger/distributions", `{"amount": 10}`, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w)["message"], "in recovery mode")

	trader.distErr = errors.New("disk full")
	w = do(t, h, http.MethodPost, "/api/ledger/distributions", `{"amount": 10}`, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdminActions(t *testing.T) {
	trader := &fakeTrader{}
	h := NewServer(config.ServerConfig{}, trader).Handler()

	w := do(t, h, http.MethodPost, "/api/circuit-breaker/reset", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, trader.resets)

	w = do(t, h, http.MethodPost, "/api/cycle", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, trader.cycles)
}

func TestAuthScopes(t *testing.T) {
	jwt := auth.NewJWTManager(strings.Repeat("k", 32), "dai-trader")
	trader := &fakeTrader{}
	h := NewServer(config.ServerConfig{}, trader, WithAuth(jwt)).Handler()

	read, err := jwt.GenerateAccessToken("dashboard", auth.ScopeRead, time.Hour)
	require.NoError(t, err)
	admin, err := jwt.GenerateAccessToken("ops", auth.ScopeAdmin, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", "", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", "", read).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/auth/status", "", "").Code)

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/api/circuit-breaker/reset", "", read).Code)
	assert.Equal(t, 0, trader.resets)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/circuit-breaker/reset", "", admin).Code)
	assert.Equal(t, 1, trader.resets)
}

func TestAdminRateLimit(t *testing.T) {
	trader := &fakeTrader{}
	h := NewServer(config.ServerConfig{}, trader, WithRateLimit(2, time.Minute)).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/cycle", "", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/cycle", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/api/cycle", "", "").Code)
	assert.Equal(t, 2, trader.cycles)

	// reads are not limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", "", "").Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"))
}

func TestHealthReportsFailingDependency(t *testing.T) {
	h := NewServer(config.ServerConfig{}, &fakeTrader{},
		WithHealthCheck("vault", func(context.Context) error { return nil }),
		WithHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
	).Handler()

	w := do(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	deps := decode(t, w)["dependencies"].(map[string]interface{})
	assert.Equal(t, "healthy", deps["vault"])
	assert.Contains(t, deps["redis"], "connection refused")
}

func TestWebSocketStreamsEvents(t *testing.T) {
	bus := events.NewEventBus()
	s := NewServer(config.ServerConfig{}, &fakeTrader{}, WithEventBus(bus))
	defer s.Hub().Stop()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "CONNECTED", msg["type"])

	require.Eventually(t, func() bool { return s.Hub().GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	bus.PublishRiskHalt("daily loss limit reached")

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, string(events.EventRiskHalt), msg["type"])
}
