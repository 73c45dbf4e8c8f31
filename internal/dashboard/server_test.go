package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stratflow/config"
	"stratflow/logger"
	"stratflow/models"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                               "0.0.0.0:8080",
		"  :9090  ":                      "0.0.0.0:9090",
		"localhost":                      "localhost:8080",
		"0.0.0.0:80":                     "0.0.0.0:80",
		"[::1]:443":                      "[::1]:443",
		"::1":                            "[::1]:8080",
		"*:8080":                         "0.0.0.0:8080",
		"http://13.200.112.203:8080":     "13.200.112.203:8080",
		"https://13.200.112.203":         "13.200.112.203:8080",
		"http://:7070":                   "0.0.0.0:7070",
		"tcp://localhost:5050":           "localhost:5050",
		"https://dashboard.example.com/": "dashboard.example.com:8080",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerDisabled(t *testing.T) {
	srv, err := NewServer(config.DashboardConfig{}, "", nil, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if srv != nil {
		t.Fatal("disabled dashboard must yield a nil server")
	}
	if got := srv.Address(); got != "" {
		t.Fatalf("nil server address = %q, want empty", got)
	}
}

func TestNewServerNormalizesConfiguredAddress(t *testing.T) {
	cfg := config.DashboardConfig{Enabled: true, Address: ":9000"}

	srv, err := NewServer(cfg, t.TempDir(), nil, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if srv == nil {
		t.Fatal("expected dashboard server, got nil")
	}
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}
	srv.cleanup()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DashboardConfig{
		Enabled:         true,
		Address:         ":0",
		RefreshInterval: time.Second,
		LogHistory:      50,
		ChartHistory:    50,
	}
	srv, err := NewServer(cfg, t.TempDir(), nil, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	t.Cleanup(srv.cleanup)
	return srv
}

func TestAPIEndpointsServeRunState(t *testing.T) {
	srv := newTestServer(t)

	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	srv.state.apply(models.DashboardUpdate{
		Timestamp: stamp,
		Pair:      "BTCUSDT",
		Price:     101.5,
		Equity:    10101,
		Stats:     models.PerformanceStats{TotalTrades: 2, WinningTrades: 1, WinRate: 50},
		LastTrade: &models.TradeRecord{ID: "t1", Symbol: "BTCUSDT", PnL: 101},
	})

	router, err := srv.buildRouter("stratflow")
	if err != nil {
		t.Fatalf("buildRouter returned error: %v", err)
	}

	get := func(t *testing.T, path string) *httptest.ResponseRecorder {
		t.Helper()
		res := httptest.NewRecorder()
		router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		if res.Code != http.StatusOK {
			t.Fatalf("GET %s returned status %d", path, res.Code)
		}
		return res
	}

	t.Run("index", func(t *testing.T) {
		res := get(t, "/")
		if !strings.Contains(res.Body.String(), "stratflow") {
			t.Error("index page does not mention the application name")
		}
	})

	t.Run("status", func(t *testing.T) {
		res := get(t, "/api/status")
		var payload struct {
			Ready  bool                   `json:"ready"`
			Status models.DashboardUpdate `json:"status"`
		}
		if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode status payload: %v", err)
		}
		if !payload.Ready {
			t.Fatal("status endpoint reports not ready after an update")
		}
		if payload.Status.Pair != "BTCUSDT" || payload.Status.Equity != 10101 {
			t.Fatalf("unexpected status payload: %+v", payload.Status)
		}
	})

	t.Run("stats", func(t *testing.T) {
		res := get(t, "/api/stats")
		var payload struct {
			Ready bool                    `json:"ready"`
			Stats models.PerformanceStats `json:"stats"`
		}
		if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode stats payload: %v", err)
		}
		if !payload.Ready || payload.Stats.TotalTrades != 2 {
			t.Fatalf("unexpected stats payload: %+v", payload)
		}
	})

	t.Run("trades", func(t *testing.T) {
		res := get(t, "/api/trades")
		var payload struct {
			Trades []models.TradeRecord `json:"trades"`
		}
		if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode trades payload: %v", err)
		}
		if len(payload.Trades) != 1 || payload.Trades[0].ID != "t1" {
			t.Fatalf("unexpected trades payload: %+v", payload.Trades)
		}
	})

	t.Run("equity", func(t *testing.T) {
		res := get(t, "/api/equity")
		var payload struct {
			Equity []models.EquityPoint `json:"equity"`
		}
		if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode equity payload: %v", err)
		}
		if len(payload.Equity) != 1 || payload.Equity[0].Equity != 10101 {
			t.Fatalf("unexpected equity payload: %+v", payload.Equity)
		}
	})

	t.Run("prometheus", func(t *testing.T) {
		get(t, "/metrics")
	})
}

func TestWebsocketReceivesBroadcasts(t *testing.T) {
	srv := newTestServer(t)

	router, err := srv.buildRouter("stratflow")
	if err != nil {
		t.Fatalf("buildRouter returned error: %v", err)
	}

	web := httptest.NewServer(router)
	defer web.Close()

	wsURL := "ws" + strings.TrimPrefix(web.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	// The handler registers the connection after the handshake completes,
	// so wait until the hub sees it before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.hub.mu.Lock()
		registered := len(srv.hub.clients)
		srv.hub.mu.Unlock()
		if registered > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := models.DashboardUpdate{Pair: "BTCUSDT", Price: 100.5, Equity: 9990}
	srv.hub.broadcast(want)

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var got models.DashboardUpdate
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if got.Pair != want.Pair || got.Equity != want.Equity {
		t.Fatalf("broadcast payload = %+v, want %+v", got, want)
	}
}
