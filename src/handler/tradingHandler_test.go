package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"strangleexecutor/src/executors"
	"strangleexecutor/src/model"
	"strangleexecutor/src/repository"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type mockEngine struct {
	startID  string
	startErr error
	stopErr  error
	panicID  string
	panicErr error
	status   map[string]any
	snapshot map[string]any

	startConfigs []*model.TradingConfiguration
	stopCalls    int
	panicCalls   int
}

func (m *mockEngine) Start(ctx context.Context, config *model.TradingConfiguration) (string, error) {
	m.startConfigs = append(m.startConfigs, config)
	if m.startErr != nil {
		return "", m.startErr
	}
	return m.startID, nil
}

func (m *mockEngine) Stop(ctx context.Context) error {
	m.stopCalls++
	return m.stopErr
}

func (m *mockEngine) Panic(ctx context.Context) (string, error) {
	m.panicCalls++
	if m.panicErr != nil {
		return "", m.panicErr
	}
	return m.panicID, nil
}

func (m *mockEngine) Status() map[string]any {
	if m.status == nil {
		return map[string]any{"status": executors.StatusIdle}
	}
	return m.status
}

func (m *mockEngine) RuntimeSnapshot() map[string]any {
	if m.snapshot == nil {
		return map[string]any{"status": executors.StatusIdle}
	}
	return m.snapshot
}

type mockConfigurationFinder struct {
	byID   map[uint]*model.TradingConfiguration
	active *model.TradingConfiguration
	err    error
}

func (m *mockConfigurationFinder) FindByID(ctx context.Context, id uint) (*model.TradingConfiguration, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byID[id], nil
}

func (m *mockConfigurationFinder) FindActive(ctx context.Context) (*model.TradingConfiguration, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.active, nil
}

type mockSessionReader struct {
	byID      map[uint]*model.StrategySession
	latest    *model.StrategySession
	latestErr error
	sessions  []model.StrategySession
	listErr   error

	latestCalls int
	listOptions repository.SessionSearchOptions
}

func (m *mockSessionReader) FindByID(ctx context.Context, id uint) (*model.StrategySession, error) {
	return m.byID[id], nil
}

func (m *mockSessionReader) FindLatest(ctx context.Context) (*model.StrategySession, error) {
	m.latestCalls++
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return m.latest, nil
}

func (m *mockSessionReader) List(ctx context.Context, options repository.SessionSearchOptions) ([]model.StrategySession, error) {
	m.listOptions = options
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sessions, nil
}

func controlRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/trading/control", strings.NewReader(body))
}

func decodeControlResponse(t *testing.T, rr *httptest.ResponseRecorder) ControlResponse {
	t.Helper()
	var resp ControlResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode control response: %v", err)
	}
	return resp
}

func TestControlHandler_StartByConfigurationID(t *testing.T) {
	engine := &mockEngine{startID: "delta-strangle-1"}
	finder := &mockConfigurationFinder{
		byID: map[uint]*model.TradingConfiguration{5: {ID: 5, Name: "btc"}},
	}
	handler := ControlHandler(engine, finder)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"start","configuration_id":5}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeControlResponse(t, rr)
	if resp.Status != "started" || resp.StrategyID != "delta-strangle-1" {
		t.Fatalf("unexpected control response: %+v", resp)
	}
	if len(engine.startConfigs) != 1 || engine.startConfigs[0].ID != 5 {
		t.Fatalf("expected the engine to start configuration 5, got %+v", engine.startConfigs)
	}
}

func TestControlHandler_StartUsesActiveConfiguration(t *testing.T) {
	engine := &mockEngine{startID: "delta-strangle-2"}
	finder := &mockConfigurationFinder{active: &model.TradingConfiguration{ID: 9, Name: "active"}}
	handler := ControlHandler(engine, finder)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"start"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(engine.startConfigs) != 1 || engine.startConfigs[0].ID != 9 {
		t.Fatalf("expected the engine to start the active configuration, got %+v", engine.startConfigs)
	}
}

func TestControlHandler_StartUnknownConfiguration(t *testing.T) {
	engine := &mockEngine{}
	handler := ControlHandler(engine, &mockConfigurationFinder{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"start","configuration_id":404}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if len(engine.startConfigs) != 0 {
		t.Fatalf("expected the engine not to be started")
	}
}

func TestControlHandler_StartWithoutActiveConfiguration(t *testing.T) {
	handler := ControlHandler(&mockEngine{}, &mockConfigurationFinder{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"start"}`))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestControlHandler_StartAlreadyRunning(t *testing.T) {
	engine := &mockEngine{startErr: executors.ErrAlreadyRunning}
	finder := &mockConfigurationFinder{active: &model.TradingConfiguration{ID: 1}}
	handler := ControlHandler(engine, finder)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"start"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestControlHandler_StartInvalidConfiguration(t *testing.T) {
	engine := &mockEngine{startErr: executors.ErrInvalidConfiguration}
	finder := &mockConfigurationFinder{active: &model.TradingConfiguration{ID: 1}}
	handler := ControlHandler(engine, finder)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"start"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestControlHandler_StopNotRunning(t *testing.T) {
	engine := &mockEngine{stopErr: executors.ErrNotRunning}
	handler := ControlHandler(engine, &mockConfigurationFinder{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"stop"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestControlHandler_StopSuccess(t *testing.T) {
	engine := &mockEngine{status: map[string]any{"status": "running", "strategy_id": "delta-strangle-3"}}
	handler := ControlHandler(engine, &mockConfigurationFinder{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"stop"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	resp := decodeControlResponse(t, rr)
	if resp.Status != "stopped" || resp.StrategyID != "delta-strangle-3" {
		t.Fatalf("unexpected control response: %+v", resp)
	}
	if engine.stopCalls != 1 {
		t.Fatalf("expected one stop call, got %d", engine.stopCalls)
	}
}

func TestControlHandler_RestartWhileIdle(t *testing.T) {
	engine := &mockEngine{startID: "delta-strangle-4", stopErr: executors.ErrNotRunning}
	finder := &mockConfigurationFinder{active: &model.TradingConfiguration{ID: 2}}
	handler := ControlHandler(engine, finder)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"restart"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeControlResponse(t, rr)
	if resp.Status != "restarted" || resp.StrategyID != "delta-strangle-4" {
		t.Fatalf("unexpected control response: %+v", resp)
	}
	if engine.stopCalls != 1 || len(engine.startConfigs) != 1 {
		t.Fatalf("expected stop then start, got stops=%d starts=%d",
			engine.stopCalls, len(engine.startConfigs))
	}
}

func TestControlHandler_Panic(t *testing.T) {
	engine := &mockEngine{panicID: "delta-strangle-5"}
	handler := ControlHandler(engine, &mockConfigurationFinder{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"panic"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	resp := decodeControlResponse(t, rr)
	if resp.Status != "panic_closed" || resp.StrategyID != "delta-strangle-5" {
		t.Fatalf("unexpected control response: %+v", resp)
	}
	if engine.panicCalls != 1 {
		t.Fatalf("expected one panic call, got %d", engine.panicCalls)
	}
}

func TestControlHandler_UnknownAction(t *testing.T) {
	handler := ControlHandler(&mockEngine{}, &mockConfigurationFinder{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":"pause"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestControlHandler_InvalidPayload(t *testing.T) {
	handler := ControlHandler(&mockEngine{}, &mockConfigurationFinder{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, controlRequest(`{"action":`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestHeartbeatHandler_AttachesActiveConfiguration(t *testing.T) {
	engine := &mockEngine{status: map[string]any{"status": "running", "strategy_id": "delta-strangle-6"}}
	finder := &mockConfigurationFinder{active: &model.TradingConfiguration{ID: 3}}
	handler := HeartbeatHandler(engine, finder)

	req := httptest.NewRequest(http.MethodGet, "/api/trading/heartbeat", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if body["status"] != "running" {
		t.Fatalf("expected running status, got %v", body["status"])
	}
	if body["active_configuration_id"] != float64(3) {
		t.Fatalf("expected active configuration 3, got %v", body["active_configuration_id"])
	}
}

func TestHeartbeatHandler_DegradesOnLookupError(t *testing.T) {
	engine := &mockEngine{}
	finder := &mockConfigurationFinder{err: assert.AnError}
	handler := HeartbeatHandler(engine, finder)

	req := httptest.NewRequest(http.MethodGet, "/api/trading/heartbeat", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if body["active_configuration_id"] != nil {
		t.Fatalf("expected null active configuration, got %v", body["active_configuration_id"])
	}
}

func TestRuntimeHandler_PassesThroughWhileRunning(t *testing.T) {
	engine := &mockEngine{snapshot: map[string]any{"status": executors.StatusLive, "mode": "simulation"}}
	sessions := &mockSessionReader{}
	handler := RuntimeHandler(engine, sessions)

	req := httptest.NewRequest(http.MethodGet, "/api/trading/runtime", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if sessions.latestCalls != 0 {
		t.Fatalf("expected no session lookup while running, got %d", sessions.latestCalls)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode runtime: %v", err)
	}
	if body["status"] != executors.StatusLive {
		t.Fatalf("expected live status, got %v", body["status"])
	}
}

func TestRuntimeHandler_IdleReplaysLatestSession(t *testing.T) {
	engine := &mockEngine{snapshot: map[string]any{
		"status":   executors.StatusIdle,
		"schedule": map[string]any{},
	}}
	sessions := &mockSessionReader{latest: &model.StrategySession{
		ID:         11,
		StrategyID: "delta-strangle-7",
		Status:     model.SessionStatusStopped,
		SessionMetadata: map[string]any{
			"runtime": map[string]any{
				"status":             executors.StatusLive,
				"mode":               "simulation",
				"exit_reason":        "max_loss",
				"scheduled_entry_at": "2026-02-10T04:00:00Z",
				"planned_exit_at":    "2026-02-10T09:50:00Z",
				"monitor": map[string]any{
					"totals": map[string]any{"total_pnl": -1.5},
				},
			},
		},
	}}
	handler := RuntimeHandler(engine, sessions)

	req := httptest.NewRequest(http.MethodGet, "/api/trading/runtime", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode runtime: %v", err)
	}
	// A dead session must not present itself as live.
	if body["status"] != executors.StatusCooldown {
		t.Fatalf("expected cooldown status, got %v", body["status"])
	}
	if body["strategy_id"] != "delta-strangle-7" {
		t.Fatalf("expected replayed strategy id, got %v", body["strategy_id"])
	}
	if body["exit_reason"] != "max_loss" {
		t.Fatalf("expected replayed exit reason, got %v", body["exit_reason"])
	}
	totals, _ := body["totals"].(map[string]any)
	if totals["total_pnl"] != float64(-1.5) {
		t.Fatalf("expected replayed totals, got %v", body["totals"])
	}
	schedule, _ := body["schedule"].(map[string]any)
	if schedule["scheduled_entry_at"] != "2026-02-10T04:00:00Z" {
		t.Fatalf("expected replayed schedule, got %v", body["schedule"])
	}
}

func TestRuntimeHandler_IdleWithoutSessions(t *testing.T) {
	engine := &mockEngine{snapshot: map[string]any{"status": executors.StatusIdle}}
	handler := RuntimeHandler(engine, &mockSessionReader{})

	req := httptest.NewRequest(http.MethodGet, "/api/trading/runtime", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode runtime: %v", err)
	}
	if body["status"] != executors.StatusIdle {
		t.Fatalf("expected idle status, got %v", body["status"])
	}
}

func TestSessionsHandler_Success(t *testing.T) {
	activated := time.Date(2026, time.February, 10, 4, 0, 0, 0, time.UTC)
	deactivated := activated.Add(30 * time.Minute)
	sessions := &mockSessionReader{sessions: []model.StrategySession{{
		ID:            11,
		StrategyID:    "delta-strangle-8",
		Status:        model.SessionStatusStopped,
		ActivatedAt:   &activated,
		DeactivatedAt: &deactivated,
		PnlSummary:    map[string]any{"total_pnl": 2.5},
		SessionMetadata: map[string]any{
			"runtime":      map[string]any{"exit_reason": "scheduled_exit"},
			"legs_summary": []any{map[string]any{"symbol": "C-BTC-64000-100226"}},
		},
	}}}
	handler := SessionsHandler(sessions)

	req := httptest.NewRequest(http.MethodGet, "/api/trading/sessions?status=stopped&page=2&pageSize=10", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if sessions.listOptions.Status != "stopped" ||
		sessions.listOptions.Limit != 10 || sessions.listOptions.Offset != 10 {
		t.Fatalf("unexpected list options: %+v", sessions.listOptions)
	}

	var body []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("expected one summary, got %d", len(body))
	}
	summary := body[0]
	if summary["exit_reason"] != "scheduled_exit" {
		t.Fatalf("expected exit reason scheduled_exit, got %v", summary["exit_reason"])
	}
	if summary["duration_seconds"] != float64(1800) {
		t.Fatalf("expected 1800s duration, got %v", summary["duration_seconds"])
	}
	legs, _ := summary["legs_summary"].([]any)
	if len(legs) != 1 {
		t.Fatalf("expected one leg in the summary, got %v", summary["legs_summary"])
	}
}

func TestSessionsHandler_InvalidPage(t *testing.T) {
	handler := SessionsHandler(&mockSessionReader{})

	req := httptest.NewRequest(http.MethodGet, "/api/trading/sessions?page=0", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func sessionDetailRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/trading/sessions/"+id, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestSessionDetailHandler_NotFound(t *testing.T) {
	handler := SessionDetailHandler(&mockSessionReader{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionDetailRequest("12"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestSessionDetailHandler_Success(t *testing.T) {
	sessions := &mockSessionReader{byID: map[uint]*model.StrategySession{
		12: {ID: 12, StrategyID: "delta-strangle-9", Orders: []model.OrderLedger{{ID: 1}}},
	}}
	handler := SessionDetailHandler(sessions)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, sessionDetailRequest("12"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body model.StrategySession
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if body.ID != 12 || len(body.Orders) != 1 {
		t.Fatalf("unexpected session detail: %+v", body)
	}
}
