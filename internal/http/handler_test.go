package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking-service/internal/config"
	"parking-service/internal/domain/parking"
	"parking-service/internal/health"
	"parking-service/internal/realtime"
	"parking-service/internal/repository"
	"parking-service/internal/service"
)

const testSecret = "test-secret"

type testServer struct {
	router  *gin.Engine
	store   *repository.MemoryStore
	monitor *service.Monitor
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zerolog.Nop()
	store := repository.NewMemoryStore()

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode, CORSOrigins: []string{"*"}},
		Auth:   config.AuthConfig{JWTSecret: testSecret, Issuer: "parking-service"},
	}

	configSvc := service.NewConfigService(store, parking.DefaultConfig(), log)
	registry := service.NewSpecialPlateRegistry(store, log)
	capacity := service.NewCapacityAccountant(store, configSvc)
	ledger := service.NewSessionLedger(store, configSvc, registry, capacity, log)
	hub := realtime.NewHub(log, nil)
	monitor := service.NewMonitor(service.NewGateDispatcher(ledger, log), service.MonitorOptions{CameraID: "gate-1"}, log).
		WithRecorder(store).
		WithPublisher(hub)

	checks := health.NewRegistry()
	checks.Register("store", health.PingCheck("store", store))

	handler := NewHandler(Deps{
		Ledger:   ledger,
		Monitor:  monitor,
		Registry: registry,
		Config:   configSvc,
		Capacity: capacity,
		Audit:    service.NewAuditLog(store, log),
		Hub:      hub,
		Health:   checks,
	}, log)

	token, err := IssueToken(testSecret, "parking-service", "operator-1", time.Hour)
	require.NoError(t, err)

	return &testServer{
		router:  NewRouter(cfg, handler, log),
		store:   store,
		monitor: monitor,
		token:   token,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, auth bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func detectionBody(plate string, trackingID int64) map[string]interface{} {
	return map[string]interface{}{
		"plate_text":    plate,
		"vehicle_class": "car",
		"tracking_id":   trackingID,
		"confidence":    0.92,
	}
}

func TestDetections_RequireRunningMonitor(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/detections", detectionBody("MH12AB1234", 1), false)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDetections_AutoGateFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/monitoring/start", map[string]string{"role": "auto", "source": "rtsp://gate-1"}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/detections", detectionBody("mh12 ab 1234", 1), false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "processed", data["status"])
	assert.Equal(t, "MH12AB1234", data["plate"])

	rec = s.do(t, http.MethodPost, "/api/v1/detections", detectionBody("MH12AB1234", 1), false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate", decode(t, rec)["data"].(map[string]interface{})["status"])

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/active", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)

	rec = s.do(t, http.MethodPost, "/api/v1/detections", detectionBody("MH12AB1234", 2), false)
	require.Equal(t, http.StatusCreated, rec.Code)
	outcome := decode(t, rec)["data"].(map[string]interface{})["decision"].(map[string]interface{})["outcome"].(map[string]interface{})
	assert.Equal(t, "exited", outcome["kind"])
	assert.Equal(t, 20.0, outcome["fee"])

	rec = s.do(t, http.MethodGet, "/api/v1/revenue", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20.0, decode(t, rec)["data"].(map[string]interface{})["total_revenue"])

	assert.Len(t, s.store.GateEvents(), 2)
}

func TestDetections_BlacklistedIsForbidden(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/special-plates/BAD0001", map[string]string{"category": "blacklist", "note": "stolen"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := s.monitor.Start("", parking.RoleEntryOnly)
	require.NoError(t, err)

	rec = s.do(t, http.MethodPost, "/api/v1/detections", detectionBody("BAD0001", 1), false)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body["error"], "blacklisted")
	decision := body["data"].(map[string]interface{})["decision"].(map[string]interface{})
	assert.Equal(t, true, decision["security_alert"])
}

func TestDetections_InvalidPayload(t *testing.T) {
	s := newTestServer(t)
	_, err := s.monitor.Start("", parking.RoleAuto)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detections", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := detectionBody("MH12AB1234", 1)
	body["vehicle_class"] = "truck"
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/detections", body, false).Code)
}

func TestDetections_MissingTrackingID(t *testing.T) {
	s := newTestServer(t)
	_, err := s.monitor.Start("", parking.RoleEntryOnly)
	require.NoError(t, err)

	for _, plate := range []string{"AA11", "BB22"} {
		body := detectionBody(plate, 1)
		delete(body, "tracking_id")
		rec := s.do(t, http.MethodPost, "/api/v1/detections", body, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodPost, "/api/v1/detections", detectionBody("BB22", 7), false)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestOperatorEndpointsRequireToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/admit", map[string]string{"plate": "KA01", "vehicle_class": "car"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reset", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongIssuer, err := IssueToken(testSecret, "someone-else", "op", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/reset", nil)
	req.Header.Set("Authorization", "Bearer "+wrongIssuer)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestManualAdmitAndRelease(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/admit", map[string]string{"plate": "KA01AB0001", "vehicle_class": "bike"}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/admit", map[string]string{"plate": "KA01AB0001", "vehicle_class": "bike"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admit", map[string]string{"plate": "KA01AB0002", "vehicle_class": "bus"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/active/ka01ab0001", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "KA01AB0001", session["plate"])
	assert.Equal(t, "bike", session["vehicle_class"])

	rec = s.do(t, http.MethodPost, "/api/v1/release", map[string]string{"plate": "KA01AB0001"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10.0, decode(t, rec)["data"].(map[string]interface{})["fee"])

	rec = s.do(t, http.MethodPost, "/api/v1/release", map[string]string{"plate": "KA01AB0001"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/active/KA01AB0001", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailability(t *testing.T) {
	s := newTestServer(t)

	for _, plate := range []string{"CAR1", "CAR2", "CAR3"} {
		rec := s.do(t, http.MethodPost, "/api/v1/admit", map[string]string{"plate": plate, "vehicle_class": "car"}, true)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/availability", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	classes := decode(t, rec)["data"].([]interface{})
	require.Len(t, classes, 2)
	car := classes[0].(map[string]interface{})
	assert.Equal(t, "car", car["vehicle_class"])
	assert.Equal(t, 13.0, car["free"])

	rec = s.do(t, http.MethodGet, "/api/v1/availability/floors?class=car", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	floors := decode(t, rec)["data"].([]interface{})
	require.Len(t, floors, 2)
	assert.Equal(t, 3.0, floors[0].(map[string]interface{})["occupied"])

	rec = s.do(t, http.MethodGet, "/api/v1/availability/floors?class=plane", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/config", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 16.0, decode(t, rec)["data"].(map[string]interface{})["car_capacity"])

	rec = s.do(t, http.MethodPut, "/api/v1/config", map[string]interface{}{"car_rate": 25.5}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25.5, decode(t, rec)["data"].(map[string]interface{})["car_rate"])

	rec = s.do(t, http.MethodPut, "/api/v1/config", map[string]interface{}{"grace_minutes": -1}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpecialPlates(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/special-plates/vip-001", map[string]string{"category": "VIP"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "VIP001", decode(t, rec)["data"].(map[string]interface{})["plate"])

	rec = s.do(t, http.MethodPut, "/api/v1/special-plates/X1", map[string]string{"category": "GOLD"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/special-plates", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)

	rec = s.do(t, http.MethodDelete, "/api/v1/special-plates/VIP001", nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/special-plates/VIP001", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryListingAndExport(t *testing.T) {
	s := newTestServer(t)

	for _, plate := range []string{"MH01AA1111", "KA02BB2222"} {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/admit", map[string]string{"plate": plate, "vehicle_class": "car"}, true).Code)
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/release", map[string]string{"plate": plate}, true).Code)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/history?plate=mh01&limit=10", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode(t, rec)["data"].([]interface{})
	require.Len(t, records, 1)
	assert.Equal(t, "MH01AA1111", records[0].(map[string]interface{})["plate"])

	rec = s.do(t, http.MethodGet, "/api/v1/history/export", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, historyCSVHeader, rows[0])
	assert.Equal(t, "KA02BB2222", rows[1][1])
	assert.Equal(t, "20.00", rows[1][6])
}

func TestMonitoringLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/monitoring", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["data"].(map[string]interface{})["running"])

	rec = s.do(t, http.MethodPost, "/api/v1/monitoring/start", map[string]string{"role": "sideways"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/monitoring/start", map[string]string{"role": "exit"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/monitoring", nil, false)
	run := decode(t, rec)["data"].(map[string]interface{})["run"].(map[string]interface{})
	assert.Equal(t, "exit", run["role"])
	assert.Equal(t, "gate-1", run["source"])

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/monitoring/stop", nil, true).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/v1/monitoring/stop", nil, true).Code)
}

func TestResetAndHealth(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/admit", map[string]string{"plate": "A1", "vehicle_class": "car"}, true).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/reset", nil, true).Code)

	sessions, err := s.store.ListActiveSessions(context.Background(), parking.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)

	rec := s.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.store.SetPingError(errors.New("connection refused"))
	rec = s.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, decode(t, rec)["healthy"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "parking_")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestGateEventsListing(t *testing.T) {
	s := newTestServer(t)
	_, err := s.monitor.Start("", parking.RoleAuto)
	require.NoError(t, err)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/detections", detectionBody("MH12AB1234", 1), false).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/detections", detectionBody("KA01AB0001", 2), false).Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/gate-events", nil, false).Code)

	rec := s.do(t, http.MethodGet, "/api/v1/gate-events?plate=ka01", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode(t, rec)["data"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "entered", events[0].(map[string]interface{})["result"])

	rec = s.do(t, http.MethodGet, "/api/v1/gate-events?from=yesterday", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
