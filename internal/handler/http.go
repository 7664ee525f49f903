// Package handler serves the record page and the JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedrun-record/internal/domain"
	"github.com/speedrun-record/internal/service"
	"github.com/speedrun-record/internal/websocket"
)

// Record states reported to pages and API clients
const (
	StateLoading = "loading"
	StateEmpty   = "empty"
	StateReady   = "ready"
)

// Handler provides HTTP handlers for the record page and API
type Handler struct {
	service *service.RecordService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.RecordService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RecordState is the body of GET /api/v1/record
type RecordState struct {
	State  string         `json:"state"`
	Board  string         `json:"board"`
	Record *domain.Record `json:"record,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/", h.Page)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/record", h.GetRecord)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/archive", h.ListArchive)
		r.Get("/archive/latest", h.GetLatestArchive)
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HealthCheck reports that the process is serving
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether the record has been loaded
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready(r.Context()) {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Error:   domain.ErrRecordLoading.Error(),
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// state resolves what the page and API should show right now
func (h *Handler) state(r *http.Request) (RecordState, error) {
	state := RecordState{Board: h.service.Board()}

	rec, err := h.service.Current(r.Context())
	switch {
	case err == nil:
		state.State = StateReady
		state.Record = rec
	case errors.Is(err, domain.ErrNoRecord):
		state.State = StateEmpty
	case errors.Is(err, domain.ErrRecordLoading):
		state.State = StateLoading
		if loadErr := h.service.LoadError(); loadErr != nil {
			state.Error = loadErr.Error()
		}
	default:
		return state, err
	}
	return state, nil
}

// GetRecord returns the displayed record and its load state
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	state, err := h.state(r)
	if err != nil {
		h.logger.Error("failed to get record", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, state)
}

// GetLeaderboard returns the published leaderboard snapshot
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Leaderboard(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRecordLoading) {
			h.writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		h.logger.Error("failed to get leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, snapshot)
}

// ListArchive returns archived snapshots, newest first
func (h *Handler) ListArchive(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	snapshots, err := h.service.ListArchive(r.Context(), limit)
	if err != nil {
		if errors.Is(err, domain.ErrArchiveDisabled) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to list archive", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, snapshots)
}

// GetLatestArchive returns the newest archived snapshot
func (h *Handler) GetLatestArchive(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.LatestArchived(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrArchiveDisabled) || errors.Is(err, domain.ErrSnapshotNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to read latest archive", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, snapshot)
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	board := h.service.Board()
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
		"board":             board,
		"subscribers":       h.hub.GetSubscriberCount(board),
	})
}
