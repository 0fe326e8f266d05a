package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/disaster-sentinel/internal/alerting"
	"github.com/mr1hm/disaster-sentinel/internal/classifier"
	"github.com/mr1hm/disaster-sentinel/internal/config"
	"github.com/mr1hm/disaster-sentinel/internal/ingestion"
	"github.com/mr1hm/disaster-sentinel/internal/models"
	"github.com/mr1hm/disaster-sentinel/internal/notify"
	"github.com/mr1hm/disaster-sentinel/internal/realtime"
	"github.com/mr1hm/disaster-sentinel/internal/repository"
)

type testEnv struct {
	router  *gin.Engine
	handler *Handler
	db      *repository.SQLiteDB
	hub     *realtime.Hub
	clock   *clockwork.FakeClock
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Count   int             `json:"count"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	hub := realtime.NewHub()
	t.Cleanup(hub.Close)

	dispatcher := notify.NewDispatcher(hub, nil, notify.WithDispatchLog(db), notify.WithClock(clock))
	engine := alerting.NewEngine(db, db, dispatcher, alerting.Options{AtomicGuards: true}, clock, nil)
	svc := ingestion.NewService(db, classifier.New(nil, clock), hub, nil, clock, nil)

	h := NewHandler(Deps{
		Disasters:  svc,
		Configs:    db,
		Dispatches: db,
		Matcher:    engine,
		Stream:     hub,
		DB:         db,
		Clock:      clock,
	})
	return &testEnv{
		router:  NewRouter(config.ServerConfig{}, h),
		handler: h,
		db:      db,
		hub:     hub,
		clock:   clock,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealth(t *testing.T) {
	e := setupTestEnv(t)

	w, _ := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "ok", resp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	e := setupTestEnv(t)

	w, _ := e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSimulate(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       map[string]any
		wantStatus int
		wantData   bool
	}{
		{
			name:       "earthquake above threshold",
			path:       "/api/simulate/earthquake",
			body:       map[string]any{"magnitude": 6.2, "latitude": 35.68, "longitude": 139.69, "location": "Tokyo"},
			wantStatus: http.StatusCreated,
			wantData:   true,
		},
		{
			name:       "earthquake below threshold",
			path:       "/api/simulate/earthquake",
			body:       map[string]any{"magnitude": 3.9, "latitude": 35.68, "longitude": 139.69},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing coordinates",
			path:       "/api/simulate/flood",
			body:       map[string]any{"waterLevel": 4},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported type",
			path:       "/api/simulate/tsunami",
			body:       map[string]any{"latitude": 1, "longitude": 1},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "storm without severity formula",
			path:       "/api/simulate/storm",
			body:       map[string]any{"windSpeed": 120, "latitude": 25.76, "longitude": -80.19},
			wantStatus: http.StatusNotImplemented,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setupTestEnv(t)

			w, env := e.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantData {
				d := decodeData[models.DisasterEvent](t, env)
				assert.Equal(t, models.DisasterTypeEarthquake, d.Type)
				assert.Equal(t, 7, d.Severity)
				assert.Equal(t, "Earthquake simulation processed successfully", env.Message)
			} else if w.Code == http.StatusOK {
				assert.True(t, env.Success)
				assert.Contains(t, env.Message, "below threshold")
				assert.Nil(t, env.Data)
			} else {
				assert.False(t, env.Success)
				assert.NotEmpty(t, env.Error)
			}
		})
	}
}

func TestDisasterCRUD(t *testing.T) {
	e := setupTestEnv(t)

	w, env := e.do(t, http.MethodPost, "/api/disasters", map[string]any{
		"type":        "flood",
		"location":    map[string]any{"type": "Point", "coordinates": []float64{90.41, 23.81}},
		"severity":    6,
		"description": "River overflow",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeData[models.DisasterEvent](t, env)
	assert.Equal(t, models.StatusDetected, created.Status)
	assert.False(t, created.AlertsSent)

	w, env = e.do(t, http.MethodGet, "/api/disasters/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decodeData[models.DisasterEvent](t, env).ID)

	w, env = e.do(t, http.MethodPut, "/api/disasters/"+created.ID, map[string]any{"severity": 8, "status": "responding"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeData[models.DisasterEvent](t, env)
	assert.Equal(t, 8, updated.Severity)
	assert.Equal(t, models.StatusResponding, updated.Status)

	w, env = e.do(t, http.MethodPost, "/api/disasters/"+created.ID+"/readings", map[string]any{"sensorId": "FLOOD-2", "value": 4.2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decodeData[models.DisasterEvent](t, env).Readings, 1)

	w, _ = e.do(t, http.MethodDelete, "/api/disasters/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = e.do(t, http.MethodGet, "/api/disasters/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
}

func TestCreateDisaster_Validation(t *testing.T) {
	e := setupTestEnv(t)

	cases := map[string]map[string]any{
		"unknown type":   {"type": "meteor", "location": map[string]any{"type": "Point", "coordinates": []float64{1, 1}}, "severity": 5, "description": "x"},
		"no location":    {"type": "fire", "severity": 5, "description": "x"},
		"bad severity":   {"type": "fire", "location": map[string]any{"type": "Point", "coordinates": []float64{1, 1}}, "severity": 0, "description": "x"},
		"no description": {"type": "fire", "location": map[string]any{"type": "Point", "coordinates": []float64{1, 1}}, "severity": 5},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w, _ := e.do(t, http.MethodPost, "/api/disasters", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestListDisasters(t *testing.T) {
	e := setupTestEnv(t)

	for _, body := range []map[string]any{
		{"magnitude": 5.0, "latitude": 35.0, "longitude": 139.0},
		{"magnitude": 7.5, "latitude": 36.0, "longitude": 140.0},
	} {
		w, _ := e.do(t, http.MethodPost, "/api/simulate/earthquake", body)
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w, _ := e.do(t, http.MethodPost, "/api/simulate/fire", map[string]any{"temperature": 95, "latitude": 34.05, "longitude": -118.24})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := e.do(t, http.MethodGet, "/api/disasters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, env.Count)

	_, env = e.do(t, http.MethodGet, "/api/disasters?type=earthquake", nil)
	assert.Equal(t, 2, env.Count)

	_, env = e.do(t, http.MethodGet, "/api/disasters?severity=7", nil)
	assert.Equal(t, 1, env.Count)

	_, env = e.do(t, http.MethodGet, "/api/disasters?limit=1", nil)
	assert.Equal(t, 1, env.Count)

	w, _ = e.do(t, http.MethodGet, "/api/disasters?type=meteor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDisasters_InvalidQuery(t *testing.T) {
	e := setupTestEnv(t)

	cases := map[string]string{
		"alertsSent=maybe": "alertsSent",
		"limit=abc":        "limit",
		"limit=0":          "limit",
		"limit=501":        "limit",
		"offset=-1":        "offset",
		"offset=two":       "offset",
	}
	for query, field := range cases {
		t.Run(query, func(t *testing.T) {
			w, env := e.do(t, http.MethodGet, "/api/disasters?"+query, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.False(t, env.Success)
			assert.Contains(t, env.Error, field)
		})
	}

	w, env := e.do(t, http.MethodGet, "/api/disasters?alertsSent=false&limit=500&offset=0", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, env.Count)

	w, _ = e.do(t, http.MethodGet, "/api/alerts?isActive=yes", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDisasters_GeoJSON(t *testing.T) {
	e := setupTestEnv(t)

	e.do(t, http.MethodPost, "/api/simulate/earthquake", map[string]any{"magnitude": 5.5, "latitude": 35.0, "longitude": 139.0})

	w, _ := e.do(t, http.MethodGet, "/api/disasters?format=geojson", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	var fc FeatureCollection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, []float64{139.0, 35.0}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "earthquake", fc.Features[0].Properties["type"])
}

func TestNearbyDisasters(t *testing.T) {
	e := setupTestEnv(t)

	// Tokyo and Osaka are roughly 400 km apart
	e.do(t, http.MethodPost, "/api/simulate/earthquake", map[string]any{"magnitude": 5, "latitude": 35.68, "longitude": 139.69})
	e.do(t, http.MethodPost, "/api/simulate/earthquake", map[string]any{"magnitude": 5, "latitude": 34.69, "longitude": 135.50})

	_, env := e.do(t, http.MethodGet, "/api/disasters/nearby?longitude=139.7&latitude=35.7", nil)
	assert.Equal(t, 1, env.Count)

	_, env = e.do(t, http.MethodGet, "/api/disasters/nearby?longitude=139.7&latitude=35.7&radius=300&unit=mi", nil)
	assert.Equal(t, 2, env.Count)

	_, env = e.do(t, http.MethodGet, "/api/disasters/nearby?longitude=139.7&latitude=35.7&radius=300&unit=km", nil)
	assert.Equal(t, 1, env.Count)

	w, _ := e.do(t, http.MethodGet, "/api/disasters/nearby?longitude=abc&latitude=35.7", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = e.do(t, http.MethodGet, "/api/disasters/nearby?longitude=139.7&latitude=35.7&unit=furlong", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error, "unit")
}

func TestAlertConfigCRUD(t *testing.T) {
	e := setupTestEnv(t)

	w, env := e.do(t, http.MethodPost, "/api/alerts", map[string]any{"name": "All hazards", "disasterType": "all"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cfg := decodeData[models.AlertConfig](t, env)
	assert.Equal(t, models.DisasterTypeAll, cfg.DisasterType)
	assert.Equal(t, 5, cfg.SeverityThreshold)
	assert.Equal(t, 30, cfg.CooldownPeriod)
	assert.True(t, cfg.Channels.Push.Enabled)
	assert.True(t, cfg.IsActive)
	assert.Nil(t, cfg.LastTriggered)

	w, env = e.do(t, http.MethodPut, "/api/alerts/"+cfg.ID, map[string]any{
		"severityThreshold": 8,
		"channels":          map[string]any{"sms": map[string]any{"enabled": true, "recipients": []string{"+15550100"}}},
		"lastTriggered":     "2020-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeData[models.AlertConfig](t, env)
	assert.Equal(t, 8, updated.SeverityThreshold)
	assert.Equal(t, "All hazards", updated.Name)
	assert.True(t, updated.Channels.SMS.Enabled)
	assert.True(t, updated.Channels.Push.Enabled, "absent channels keep their values")
	assert.Nil(t, updated.LastTriggered, "lastTriggered is server-owned")

	e.do(t, http.MethodPost, "/api/alerts", map[string]any{"name": "Fires", "disasterType": "FIRE", "isActive": false})

	_, env = e.do(t, http.MethodGet, "/api/alerts", nil)
	assert.Equal(t, 2, env.Count)
	_, env = e.do(t, http.MethodGet, "/api/alerts?isActive=true", nil)
	assert.Equal(t, 1, env.Count)
	_, env = e.do(t, http.MethodGet, "/api/alerts?disasterType=fire", nil)
	assert.Equal(t, 1, env.Count)

	w, _ = e.do(t, http.MethodDelete, "/api/alerts/"+cfg.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/alerts/"+cfg.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = e.do(t, http.MethodDelete, "/api/alerts/"+cfg.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlertConfig_Validation(t *testing.T) {
	e := setupTestEnv(t)

	cases := map[string]map[string]any{
		"missing name":      {"disasterType": "FIRE"},
		"other type":        {"name": "x", "disasterType": "OTHER"},
		"threshold too big": {"name": "x", "disasterType": "FIRE", "severityThreshold": 11},
		"bad region":        {"name": "x", "disasterType": "FIRE", "region": map[string]any{"type": "Point"}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w, _ := e.do(t, http.MethodPost, "/api/alerts", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestTriggerAlerts(t *testing.T) {
	e := setupTestEnv(t)

	_, env := e.do(t, http.MethodPost, "/api/alerts", map[string]any{"name": "All hazards", "disasterType": "ALL"})
	cfg := decodeData[models.AlertConfig](t, env)

	_, env = e.do(t, http.MethodPost, "/api/simulate/fire", map[string]any{"temperature": 110, "latitude": 34.05, "longitude": -118.24})
	d := decodeData[models.DisasterEvent](t, env)
	require.Equal(t, 7, d.Severity)

	_, alerts := e.hub.Subscribe("FIRE")

	w, env := e.do(t, http.MethodPost, "/api/alerts/trigger/"+d.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Alert processing triggered successfully", env.Message)
	res := decodeData[map[string]any](t, env)
	assert.EqualValues(t, 1, res["dispatched"])

	select {
	case msg := <-alerts:
		assert.Equal(t, realtime.EventDisasterAlert, msg.Event)
		p := msg.Data.(models.AlertPayload)
		assert.Equal(t, cfg.ID, p.AlertConfigID)
		assert.Equal(t, d.ID, p.DisasterID)
	case <-time.After(time.Second):
		t.Fatal("expected disaster-alert")
	}

	_, env = e.do(t, http.MethodGet, "/api/alerts/dispatches/"+d.ID, nil)
	assert.Equal(t, 1, env.Count)

	// Second trigger is a no-op
	_, env = e.do(t, http.MethodPost, "/api/alerts/trigger/"+d.ID, nil)
	res = decodeData[map[string]any](t, env)
	assert.Equal(t, true, res["alreadyProcessed"])
	assert.EqualValues(t, 0, res["dispatched"])

	w, _ = e.do(t, http.MethodPost, "/api/alerts/trigger/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamEvents(t *testing.T) {
	e := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stream?types=fire", nil)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.router.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return e.hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	e.hub.Publish("FLOOD", realtime.EventNewDisaster, map[string]string{"id": "flood-1"})
	e.hub.Publish("FIRE", realtime.EventNewDisaster, map[string]string{"id": "fire-1"})
	// Closing the hub ends the stream after buffered messages are written
	e.hub.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end")
	}

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, body, "event:new-disaster")
	assert.Contains(t, body, "fire-1")
	assert.NotContains(t, body, "flood-1")
}

func TestStreamEvents_ClientDisconnect(t *testing.T) {
	e := setupTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.router.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return e.hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end on disconnect")
	}
	assert.Equal(t, 0, e.hub.SubscriberCount())
}

func TestStreamEvents_BadType(t *testing.T) {
	e := setupTestEnv(t)

	w, _ := e.do(t, http.MethodGet, "/api/stream?types=meteor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	e := setupTestEnv(t)
	router := NewRouter(config.ServerConfig{RateLimit: 1, RateBurst: 2}, e.handler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestUnknownRoute(t *testing.T) {
	e := setupTestEnv(t)

	w, env := e.do(t, http.MethodGet, "/api/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route not found", env.Error)
}
