package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"strangleexecutor/src/executors"
	"strangleexecutor/src/model"
	"strangleexecutor/src/repository"

	logger "github.com/sirupsen/logrus"
)

// strategyEngine is the slice of executors.StrategyEngine the trading
// endpoints drive.
type strategyEngine interface {
	Start(ctx context.Context, config *model.TradingConfiguration) (string, error)
	Stop(ctx context.Context) error
	Panic(ctx context.Context) (string, error)
	Status() map[string]any
	RuntimeSnapshot() map[string]any
}

type configurationFinder interface {
	FindByID(ctx context.Context, id uint) (*model.TradingConfiguration, error)
	FindActive(ctx context.Context) (*model.TradingConfiguration, error)
}

type sessionReader interface {
	FindByID(ctx context.Context, id uint) (*model.StrategySession, error)
	FindLatest(ctx context.Context) (*model.StrategySession, error)
	List(ctx context.Context, options repository.SessionSearchOptions) ([]model.StrategySession, error)
}

// ControlPayload is the body of the trading control endpoint.
type ControlPayload struct {
	Action          string `json:"action"`
	ConfigurationID uint   `json:"configuration_id,omitempty"`
}

// ControlResponse reports the outcome of a control action.
type ControlResponse struct {
	Status     string `json:"status"`
	StrategyID string `json:"strategy_id,omitempty"`
	Message    string `json:"message"`
}

// ControlHandler starts, stops, restarts or panic-closes the strategy engine.
// start/restart resolve the configuration by id when one is given, otherwise
// the active configuration is used.
func ControlHandler(engine strategyEngine, configs configurationFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload ControlPayload
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&payload); err != nil {
			logger.WithError(err).Warn("invalid control payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		switch payload.Action {
		case "start":
			config, ok := resolveControlConfiguration(w, r, configs, payload.ConfigurationID)
			if !ok {
				return
			}
			strategyID, err := engine.Start(r.Context(), config)
			if !writeStartErr(w, err) {
				return
			}
			writeControlResponse(w, ControlResponse{
				Status:     "started",
				StrategyID: strategyID,
				Message:    "strategy engine started",
			})

		case "stop":
			strategyID := runningStrategyID(engine)
			if err := engine.Stop(r.Context()); err != nil {
				if errors.Is(err, executors.ErrNotRunning) {
					http.Error(w, err.Error(), http.StatusConflict)
					return
				}
				logger.WithError(err).Error("failed to stop strategy engine")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			writeControlResponse(w, ControlResponse{
				Status:     "stopped",
				StrategyID: strategyID,
				Message:    "strategy engine stopped",
			})

		case "restart":
			config, ok := resolveControlConfiguration(w, r, configs, payload.ConfigurationID)
			if !ok {
				return
			}
			if err := engine.Stop(r.Context()); err != nil && !errors.Is(err, executors.ErrNotRunning) {
				logger.WithError(err).Error("failed to stop strategy engine during restart")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			strategyID, err := engine.Start(r.Context(), config)
			if !writeStartErr(w, err) {
				return
			}
			writeControlResponse(w, ControlResponse{
				Status:     "restarted",
				StrategyID: strategyID,
				Message:    "strategy engine restarted",
			})

		case "panic":
			strategyID, err := engine.Panic(r.Context())
			if err != nil {
				if errors.Is(err, executors.ErrNotRunning) {
					http.Error(w, err.Error(), http.StatusConflict)
					return
				}
				logger.WithError(err).Error("failed to panic close strategy engine")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			writeControlResponse(w, ControlResponse{
				Status:     "panic_closed",
				StrategyID: strategyID,
				Message:    "all positions flattened at market",
			})

		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
		}
	}
}

func resolveControlConfiguration(
	w http.ResponseWriter,
	r *http.Request,
	configs configurationFinder,
	id uint,
) (*model.TradingConfiguration, bool) {

	var config *model.TradingConfiguration
	var err error
	if id > 0 {
		config, err = configs.FindByID(r.Context(), id)
	} else {
		config, err = configs.FindActive(r.Context())
	}
	if err != nil {
		logger.WithError(err).Error("failed to resolve trading configuration")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	if config == nil {
		if id > 0 {
			http.Error(w, "configuration not found", http.StatusNotFound)
		} else {
			http.Error(w, "no active configuration", http.StatusNotFound)
		}
		return nil, false
	}
	return config, true
}

// writeStartErr maps engine start failures to status codes. Returns true
// when the start succeeded.
func writeStartErr(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, executors.ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, executors.ErrInvalidConfiguration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.WithError(err).Error("failed to start strategy engine")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
	return false
}

func runningStrategyID(engine strategyEngine) string {
	id, _ := engine.Status()["strategy_id"].(string)
	return id
}

func writeControlResponse(w http.ResponseWriter, resp ControlResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.WithError(err).Error("failed to encode control response")
	}
}

// HeartbeatHandler returns the compact engine status plus the id of the
// currently active configuration. A configuration lookup failure degrades to
// a null id rather than failing the probe; the engine state is in memory.
func HeartbeatHandler(engine strategyEngine, configs configurationFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := engine.Status()

		var activeID any
		config, err := configs.FindActive(r.Context())
		if err != nil {
			logger.WithError(err).Warn("failed to resolve active configuration for heartbeat")
		} else if config != nil {
			activeID = config.ID
		}
		status["active_configuration_id"] = activeID

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.WithError(err).Error("failed to encode heartbeat response")
		}
	}
}

// RuntimeHandler returns the full runtime snapshot. While the engine is idle
// it replays the latest persisted session's mirrored runtime state so the
// dashboard still shows the last run.
func RuntimeHandler(engine strategyEngine, sessions sessionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := engine.RuntimeSnapshot()

		if status, ok := snapshot["status"].(string); ok && status == executors.StatusIdle {
			latest, err := sessions.FindLatest(r.Context())
			if err != nil {
				logger.WithError(err).Error("failed to load latest session for runtime view")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			snapshot = overlayPersistedRuntime(snapshot, latest)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			logger.WithError(err).Error("failed to encode runtime response")
		}
	}
}

// overlayPersistedRuntime folds a stopped session's mirrored runtime state
// into the idle snapshot. A persisted "live" status means the process died
// mid-run; the engine is not running now, so the closest truthful state is
// cooldown.
func overlayPersistedRuntime(snapshot map[string]any, session *model.StrategySession) map[string]any {
	if session == nil {
		return snapshot
	}
	runtime, _ := session.SessionMetadata["runtime"].(map[string]any)
	if runtime == nil {
		return snapshot
	}

	snapshot["strategy_id"] = session.StrategyID
	snapshot["session_id"] = session.ID
	if session.ConfigSnapshot != nil {
		snapshot["config"] = session.ConfigSnapshot
	}

	if mode, ok := runtime["mode"].(string); ok && mode != "" {
		snapshot["mode"] = mode
	}

	status := executors.StatusIdle
	switch s, _ := runtime["status"].(string); s {
	case executors.StatusWaiting, executors.StatusEntering, executors.StatusCooldown:
		status = s
	case executors.StatusLive:
		status = executors.StatusCooldown
	}
	snapshot["status"] = status

	schedule, _ := snapshot["schedule"].(map[string]any)
	if schedule == nil {
		schedule = map[string]any{}
	}
	if v, ok := runtime["scheduled_entry_at"]; ok {
		schedule["scheduled_entry_at"] = v
	}
	if v, ok := runtime["planned_exit_at"]; ok {
		schedule["planned_exit_at"] = v
	}
	snapshot["schedule"] = schedule

	if entry, ok := runtime["entry"].(map[string]any); ok {
		snapshot["entry"] = entry
	}

	monitor, _ := runtime["monitor"].(map[string]any)
	for _, key := range []string{"positions", "totals", "limits", "generated_at"} {
		if v, ok := monitor[key]; ok {
			snapshot[key] = v
		}
	}
	for _, key := range []string{"trailing", "spot", "exit_reason"} {
		if v, ok := runtime[key]; ok {
			snapshot[key] = v
		} else if v, ok := monitor[key]; ok {
			snapshot[key] = v
		}
	}

	return snapshot
}

// SessionsHandler lists session summaries, newest first. Supports status,
// page and pageSize query parameters.
func SessionsHandler(sessions sessionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		rows, err := sessions.List(r.Context(), repository.SessionSearchOptions{
			Status: status,
			Limit:  pageSize,
			Offset: (page - 1) * pageSize,
		})
		if err != nil {
			logger.WithError(err).Error("failed to list sessions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		now := time.Now().UTC()
		summaries := make([]map[string]any, 0, len(rows))
		for i := range rows {
			summaries = append(summaries, sessionSummary(&rows[i], now))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summaries); err != nil {
			logger.WithError(err).Error("failed to encode session list")
		}
	}
}

func sessionSummary(session *model.StrategySession, now time.Time) map[string]any {
	var exitReason any
	if runtime, ok := session.SessionMetadata["runtime"].(map[string]any); ok {
		if reason, ok := runtime["exit_reason"].(string); ok && reason != "" {
			exitReason = reason
		}
	}

	return map[string]any{
		"id":               session.ID,
		"strategy_id":      session.StrategyID,
		"status":           session.Status,
		"activated_at":     session.ActivatedAt,
		"deactivated_at":   session.DeactivatedAt,
		"duration_seconds": session.DurationSeconds(now),
		"exit_reason":      exitReason,
		"pnl_summary":      session.PnlSummary,
		"legs_summary":     session.SessionMetadata["legs_summary"],
		"created_at":       session.CreatedAt,
	}
}

// SessionDetailHandler returns one session with its orders and positions.
func SessionDetailHandler(sessions sessionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idPathParam(r)
		if !ok {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}

		session, err := sessions.FindByID(r.Context(), id)
		if err != nil {
			logger.WithError(err).Error("failed to load session")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if session == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(session); err != nil {
			logger.WithError(err).Error("failed to encode session response")
		}
	}
}

// The Default* constructors wire the trading handlers to the engine instance
// and the production repositories.

func DefaultControlHandler(engine *executors.StrategyEngine) http.HandlerFunc {
	return ControlHandler(engine, repository.NewConfigurationRepository())
}

func DefaultHeartbeatHandler(engine *executors.StrategyEngine) http.HandlerFunc {
	return HeartbeatHandler(engine, repository.NewConfigurationRepository())
}

func DefaultRuntimeHandler(engine *executors.StrategyEngine) http.HandlerFunc {
	return RuntimeHandler(engine, repository.NewSessionRepository())
}

func DefaultSessionsHandler() http.HandlerFunc {
	return SessionsHandler(repository.NewSessionRepository())
}

func DefaultSessionDetailHandler() http.HandlerFunc {
	return SessionDetailHandler(repository.NewSessionRepository())
}
