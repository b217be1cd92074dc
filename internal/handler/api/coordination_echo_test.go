package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCoord/internal/domain/models"
	"FinCoord/internal/services/coordination"
	"FinCoord/internal/usecase"
	pkgcache "FinCoord/pkg/cache"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type listData struct {
	Rows  json.RawMessage `json:"rows"`
	Total int64           `json:"total"`
}

func newTestServer(t *testing.T, limit RateLimit) *echo.Echo {
	t.Helper()
	engine := coordination.New(coordination.DefaultConfig())
	mc := pkgcache.NewMemoryCache()
	t.Cleanup(func() {
		_ = engine.Close()
		_ = mc.Close()
	})
	uc := usecase.NewCoordinationUseCase(engine, usecase.WithResultCache(mc, time.Hour))
	e := echo.New()
	NewCoordinationEchoHandler(nil, uc, limit).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func pairRequest() map[string]interface{} {
	at := time.Now().Add(time.Hour).UTC()
	return map[string]interface{}{
		"events": []map[string]interface{}{
			{"id": "A", "severity": "HIGH", "direction": "BULLISH", "event_time": at.Format(time.RFC3339),
				"confidence": 0.8, "expected_impact": 0.5, "affected_symbols": []string{"BTC"}},
			{"id": "B", "severity": "MEDIUM", "direction": "BEARISH", "event_time": at.Add(15 * time.Minute).Unix(),
				"confidence": 0.7, "expected_impact": 0.4, "affected_symbols": []string{"btc"}},
		},
	}
}

func TestCoordinateEndpoint(t *testing.T) {
	e := newTestServer(t, RateLimit{})

	rec, env := do(t, e, http.MethodPost, "/coordinate", pairRequest())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, env.Status)

	var res models.CoordinationResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.ModeBalanced, res.CoordinationMode)
	assert.Len(t, res.ConflictsDetected, 3)
	require.NotNil(t, res.Schedule)

	rec, env = do(t, e, http.MethodGet, "/coordination-results/"+res.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cached models.CoordinationResult
	require.NoError(t, json.Unmarshal(env.Data, &cached))
	assert.Equal(t, res.ID, cached.ID)

	rec, _ = do(t, e, http.MethodGet, "/coordination-results/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCoordinateMalformedJSON(t *testing.T) {
	e := newTestServer(t, RateLimit{})
	rec, env := do(t, e, http.MethodPost, "/coordinate", `{"events": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestCoordinateUnparseableTimeRejectsOnlyThatEvent(t *testing.T) {
	e := newTestServer(t, RateLimit{})
	at := time.Now().Add(time.Hour).UTC()
	body := map[string]interface{}{
		"events": []map[string]interface{}{
			{"id": "good", "severity": "LOW", "direction": "BULLISH", "event_time": at.Format(time.RFC3339),
				"confidence": 0.6, "expected_impact": 0.3, "affected_symbols": []string{"ETH"}},
			{"id": "bad", "severity": "LOW", "direction": "BULLISH", "event_time": "not-a-time",
				"confidence": 0.6, "expected_impact": 0.3, "affected_symbols": []string{"ETH"}},
		},
	}

	rec, env := do(t, e, http.MethodPost, "/coordinate", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.CoordinationResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, []string{"good"}, res.ProcessedEventIDs)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `"bad" rejected: event_time cannot parse "not-a-time"`)
}

func TestCoordinateUnknownModeFallsBack(t *testing.T) {
	e := newTestServer(t, RateLimit{})
	body := pairRequest()
	body["coordination_mode"] = "turbo"

	rec, env := do(t, e, http.MethodPost, "/coordinate", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.CoordinationResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.ModeBalanced, res.CoordinationMode)
	assert.NotEmpty(t, res.Warnings)
}

func TestCoordinateRateLimited(t *testing.T) {
	e := newTestServer(t, RateLimit{Enabled: true, Capacity: 1, RefillPerSec: 0.001})

	rec, _ := do(t, e, http.MethodPost, "/coordinate", map[string]interface{}{"events": []interface{}{}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, e, http.MethodPost, "/coordinate", map[string]interface{}{"events": []interface{}{}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_RATE_LIMITED")
}

func TestModeEndpoints(t *testing.T) {
	e := newTestServer(t, RateLimit{})

	rec, env := do(t, e, http.MethodGet, "/coordination-mode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mode":"BALANCED"}`, string(env.Data))

	rec, _ = do(t, e, http.MethodPut, "/coordination-mode", map[string]string{"mode": "ADAPTIVE"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, e, http.MethodGet, "/coordination-mode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mode":"ADAPTIVE"}`, string(env.Data))

	rec, _ = do(t, e, http.MethodPut, "/coordination-mode", map[string]string{"mode": "TURBO"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryAndClear(t *testing.T) {
	e := newTestServer(t, RateLimit{})
	for i := 0; i < 3; i++ {
		rec, _ := do(t, e, http.MethodPost, "/coordinate", pairRequest())
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, env := do(t, e, http.MethodGet, "/coordination-history?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listData
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)
	var summaries []models.ResultSummary
	require.NoError(t, json.Unmarshal(list.Rows, &summaries))
	assert.Equal(t, 2, summaries[0].EventsProcessed)

	rec, _ = do(t, e, http.MethodGet, "/coordination-history?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/coordination-history?source=archive", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, e, http.MethodGet, "/active-schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Positive(t, list.Total)

	rec, _ = do(t, e, http.MethodDelete, "/coordination-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, e, http.MethodGet, "/coordination-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st models.CoordinationStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 0, st.HistorySize)
	assert.Equal(t, 0, st.ActiveSchedules)
	assert.EqualValues(t, 3, st.TotalRequests)
}

func TestConflictTypesAndHealth(t *testing.T) {
	e := newTestServer(t, RateLimit{})

	rec, env := do(t, e, http.MethodGet, "/conflict-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cat models.Catalog
	require.NoError(t, json.Unmarshal(env.Data, &cat))
	assert.Len(t, cat.ConflictTypes, 5)
	assert.Len(t, cat.ResolutionStrategies, 5)
	assert.Len(t, cat.CoordinationModes, 4)

	rec, _ = do(t, e, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestToAppError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, toAppError(fmt.Errorf("x: %w", usecase.ErrResultNotFound)).Status)
	assert.Equal(t, http.StatusServiceUnavailable, toAppError(coordination.ErrEngineClosed).Status)
	assert.Equal(t, http.StatusInternalServerError, toAppError(fmt.Errorf("boom")).Status)
}
