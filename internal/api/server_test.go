package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theta_watcher/internal/config"
	"theta_watcher/internal/market"
	"theta_watcher/internal/metrics"
	"theta_watcher/internal/models"
	"theta_watcher/internal/storage"
	"theta_watcher/internal/watcher"
)

func newTestServer(t *testing.T) (*Server, *watcher.Watcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	metrics.Init()

	dir := t.TempDir()
	cfg := &config.Config{
		Engine: config.EngineConfig{
			AlwaysDryRun:    true,
			StartingBalance: 5000,
			Watchlist:       []string{"AAPL", "SPY"},
			DeltaMin:        0.20,
			DeltaMax:        0.30,
			DTEMin:          7,
			DTEMax:          14,
			BaseTarget:      55,
			EfficiencyCap:   2.0,
			PriceMoveSD:     0.0035,
			DTEDecay:        0.2,
			ActionLogMax:    60,
			ScanHistoryMax:  50,
			DailyProfitGoal: 100,
			NetworkTimeout:  5,
		},
		Paper: config.PaperConfig{SettingsPath: filepath.Join(dir, "settings.yaml")},
	}
	w, err := watcher.New(watcher.Options{
		Config:   cfg,
		Settings: config.Settings{AutoClose: true, PartialAtPct: 50, EarlyLockDiffPct: 5, IVRAlertThreshold: 50},
		Store:    storage.New(filepath.Join(dir, "state.json"), filepath.Join(dir, "backups")),
		Source:   market.NewSimulated(3),
		Sim:      market.NewSimulated(3),
	})
	require.NoError(t, err)

	s := New("127.0.0.1:0", "info", w)
	gin.SetMode(gin.TestMode)
	return s, w
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "theta_positions_open")
}

func TestScanAddAndClose(t *testing.T) {
	s, w := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res watcher.ScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Candidates, 2)
	assert.False(t, res.Live)

	rec = do(t, s, http.MethodGet, "/api/candidates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cands []models.Candidate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cands))
	require.Len(t, cands, 2)

	rec = do(t, s, http.MethodPost, "/api/candidates/"+cands[0].ID, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var pos models.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, cands[0].Symbol, pos.Symbol)
	require.Len(t, w.Rows(), 1)

	rec = do(t, s, http.MethodGet, "/api/rows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []watcher.Row
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "0% | 0%", rows[0].CaptureProgress)

	rec = do(t, s, http.MethodPost, "/api/trades/"+pos.ID+"/half", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, 0.0, pos.RealizedPnL)
	assert.False(t, pos.Closed)

	rec = do(t, s, http.MethodPost, "/api/trades/"+pos.ID+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.True(t, pos.Closed)

	rec = do(t, s, http.MethodPost, "/api/trades/"+pos.ID+"/close", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, w.Rows())
}

func TestErrorStatuses(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/trades/missing/close", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/candidates/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/positions",
		models.Candidate{Symbol: "AAPL"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/autolog?n=zero", nil).Code)
}

func TestAddPositionAndOrderWithoutBroker(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/positions", models.Candidate{
		Symbol: "AAPL", Strike: 180, DTE: 10, Delta: 0.25, IVRank: 40, Credit: 1.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var pos models.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, models.StrategyIncome, pos.Strategy)

	rec = do(t, s, http.MethodPost, "/api/trades/"+pos.ID+"/order", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Broker error: broker not configured", body["message"])

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/trades/"+pos.ID+"/order", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodDelete, "/api/trades/"+pos.ID+"/order", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/trades/missing/order", nil).Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	s, w := newTestServer(t)

	rec := do(t, s, http.MethodPut, "/api/settings", map[string]any{"partial_at": 60, "ivr_threshold": 70})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auto=on, partial≥60%, early-lock+5, IVR≥70")
	assert.Equal(t, 60.0, w.Settings().PartialAtPct)

	rec = do(t, s, http.MethodPut, "/api/settings", map[string]any{"partial_at": 120})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 60.0, w.Settings().PartialAtPct)

	rec = do(t, s, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got config.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 70.0, got.IVRAlertThreshold)
}

func TestPanelsAndAutoLog(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/panels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p watcher.Panels
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Sandbox", p.Mode)
	assert.Equal(t, []string{"No urgent actions."}, p.Actions)

	rec = do(t, s, http.MethodGet, "/api/autolog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":[]}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No open positions.")
}
