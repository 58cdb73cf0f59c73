package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/handsignal/internal/movement"
)

// MovementSettings reads and applies the movement tunables.
type MovementSettings interface {
	MovementConfig() movement.Config
	ApplyMovementConfig(cfg movement.Config) error
}

// SettingsHandler serves /api/settings.
type SettingsHandler struct {
	settings MovementSettings
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(s MovementSettings) *SettingsHandler {
	return &SettingsHandler{settings: s}
}

type settingsResponse struct {
	Threshold   float64 `json:"threshold"`
	HistorySize int     `json:"history_size"`
	VoteWindow  int     `json:"vote_window"`
}

// updateSettingsRequest leaves fields that are absent unchanged.
type updateSettingsRequest struct {
	Threshold   *float64 `json:"threshold"`
	HistorySize *int     `json:"history_size"`
	VoteWindow  *int     `json:"vote_window"`
}

func toSettingsResponse(cfg movement.Config) settingsResponse {
	return settingsResponse{
		Threshold:   cfg.Threshold,
		HistorySize: cfg.HistorySize,
		VoteWindow:  cfg.VoteWindow,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toSettingsResponse(h.settings.MovementConfig()))
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// update handles PUT /api/settings. Changes apply from the next session.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	cfg := h.settings.MovementConfig()
	if req.Threshold != nil {
		cfg.Threshold = *req.Threshold
	}
	if req.HistorySize != nil {
		cfg.HistorySize = *req.HistorySize
	}
	if req.VoteWindow != nil {
		cfg.VoteWindow = *req.VoteWindow
	}

	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.settings.ApplyMovementConfig(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	writeJSON(w, http.StatusOK, toSettingsResponse(cfg))
}
