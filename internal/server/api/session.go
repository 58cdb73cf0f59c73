package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/handsignal/internal/capture"
	"github.com/ayusman/handsignal/internal/movement"
	"github.com/ayusman/handsignal/internal/session"
	"github.com/ayusman/handsignal/internal/store"
)

// SessionController is the part of the tracking session the API drives.
type SessionController interface {
	Readings() session.Readings
	History() []movement.Movement
	Initialize(ctx context.Context) error
	StartTracking(ctx context.Context) (*capture.Subscription, error)
	StopTracking()
}

// SessionHandler serves /api/session and its sub-resources.
type SessionHandler struct {
	ctrl  SessionController
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler. The session log endpoint
// is only served when s is non-nil.
func NewSessionHandler(ctrl SessionController, s *store.Store) *SessionHandler {
	return &SessionHandler{ctrl: ctrl, store: s}
}

type historyResponse struct {
	Movements []movement.Movement `json:"movements"`
	Dominant  movement.Direction  `json:"dominant_direction"`
	Command   string              `json:"command"`
}

type sessionRecordResponse struct {
	ID          string  `json:"id"`
	StartedAt   string  `json:"started_at"`
	StoppedAt   string  `json:"stopped_at,omitempty"`
	Threshold   float64 `json:"threshold"`
	HistorySize int     `json:"history_size"`
	VoteWindow  int     `json:"vote_window"`
	Frames      uint64  `json:"frames"`
	LastError   string  `json:"last_error,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionRecordResponse `json:"sessions"`
}

func toSessionRecordResponse(rec *store.SessionRecord) sessionRecordResponse {
	resp := sessionRecordResponse{
		ID:          rec.ID,
		StartedAt:   formatTime(rec.StartedAt),
		Threshold:   rec.Threshold,
		HistorySize: rec.HistorySize,
		VoteWindow:  rec.VoteWindow,
		Frames:      rec.Frames,
		LastError:   rec.LastError,
	}
	if rec.StoppedAt != nil {
		resp.StoppedAt = formatTime(*rec.StoppedAt)
	}
	return resp
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/session")
	path = strings.TrimPrefix(path, "/")

	switch path {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.ctrl.Readings())
	case "initialize", "start", "stop":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.command(w, r, path)
	case "history":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.history(w, r)
	case "log":
		if h.store == nil {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.sessionLog(w, r)
	default:
		http.NotFound(w, r)
	}
}

// command handles POST /api/session/{initialize,start,stop} and answers
// with the readings after the transition.
func (h *SessionHandler) command(w http.ResponseWriter, r *http.Request, cmd string) {
	var err error
	switch cmd {
	case "initialize":
		err = h.ctrl.Initialize(r.Context())
	case "start":
		_, err = h.ctrl.StartTracking(r.Context())
	case "stop":
		h.ctrl.StopTracking()
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.ctrl.Readings())
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// history handles GET /api/session/history.
func (h *SessionHandler) history(w http.ResponseWriter, r *http.Request) {
	readings := h.ctrl.Readings()
	movements := h.ctrl.History()
	if movements == nil {
		movements = []movement.Movement{}
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Movements: movements,
		Dominant:  readings.Dominant,
		Command:   readings.Command(),
	})
}

// sessionLog handles GET /api/session/log?limit=N.
func (h *SessionHandler) sessionLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	records, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]sessionRecordResponse, 0, len(records)),
	}
	for _, rec := range records {
		response.Sessions = append(response.Sessions, toSessionRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, response)
}
