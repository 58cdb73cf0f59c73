package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ayusman/handsignal/internal/capture"
	"github.com/ayusman/handsignal/internal/movement"
	"github.com/ayusman/handsignal/internal/session"
)

type fakeController struct {
	readings session.Readings
	history  []movement.Movement
	startErr error
	stopped  int
}

func (f *fakeController) Readings() session.Readings   { return f.readings }
func (f *fakeController) History() []movement.Movement { return f.history }

func (f *fakeController) Initialize(ctx context.Context) error {
	f.readings.State = session.Ready
	f.readings.IsLoaded = true
	return nil
}

func (f *fakeController) StartTracking(ctx context.Context) (*capture.Subscription, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.readings.State = session.Tracking
	f.readings.IsTracking = true
	return nil, nil
}

func (f *fakeController) StopTracking() {
	f.stopped++
	f.readings.State = session.Ready
	f.readings.IsTracking = false
}

func TestSessionHandler_Lifecycle(t *testing.T) {
	ctrl := &fakeController{}
	handler := NewSessionHandler(ctrl, nil)

	rec := doJSON(t, handler, http.MethodGet, "/api/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var readings session.Readings
	if err := json.NewDecoder(rec.Body).Decode(&readings); err != nil {
		t.Fatalf("failed to decode readings: %v", err)
	}
	if readings.State != session.Idle {
		t.Errorf("expected idle, got %v", readings.State)
	}

	for _, step := range []struct {
		path  string
		state session.State
	}{
		{"/api/session/initialize", session.Ready},
		{"/api/session/start", session.Tracking},
		{"/api/session/stop", session.Ready},
	} {
		rec := doJSON(t, handler, http.MethodPost, step.path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", step.path, http.StatusOK, rec.Code)
		}
		var got session.Readings
		json.NewDecoder(rec.Body).Decode(&got)
		if got.State != step.state {
			t.Errorf("%s: expected state %v, got %v", step.path, step.state, got.State)
		}
	}

	if rec := doJSON(t, handler, http.MethodGet, "/api/session/start", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET start: expected %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/session/bogus", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSessionHandler_StartErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{session.ErrBusy, http.StatusConflict},
		{session.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("start camera: device busy"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		handler := NewSessionHandler(&fakeController{startErr: tt.err}, nil)
		rec := doJSON(t, handler, http.MethodPost, "/api/session/start", "")
		if rec.Code != tt.status {
			t.Errorf("%v: expected status %d, got %d", tt.err, tt.status, rec.Code)
		}
	}
}

func TestSessionHandler_History(t *testing.T) {
	ctrl := &fakeController{
		readings: session.Readings{Dominant: movement.Up},
		history: []movement.Movement{
			{Direction: movement.Up, Magnitude: 0.05, Timestamp: time.Now()},
		},
	}
	handler := NewSessionHandler(ctrl, nil)

	rec := doJSON(t, handler, http.MethodGet, "/api/session/history", "")
	var response historyResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(response.Movements) != 1 || response.Dominant != movement.Up || response.Command != "UP" {
		t.Errorf("unexpected history: %+v", response)
	}

	ctrl.history = nil
	rec = doJSON(t, handler, http.MethodGet, "/api/session/history", "")
	if body := rec.Body.String(); !json.Valid([]byte(body)) || !containsEmptyMovements(body) {
		t.Errorf("expected empty movements array, got %s", body)
	}
}

func containsEmptyMovements(body string) bool {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return false
	}
	return string(raw["movements"]) == "[]"
}

func TestSessionHandler_Log(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(&fakeController{}, s)

	start := time.Now().Add(-time.Minute)
	sessions := s.Sessions()
	if err := sessions.RecordStart("s1", start, movement.DefaultConfig()); err != nil {
		t.Fatalf("RecordStart() error = %v", err)
	}
	if err := sessions.RecordStop("s1", start.Add(30*time.Second), 120, ""); err != nil {
		t.Fatalf("RecordStop() error = %v", err)
	}
	if err := sessions.RecordStart("s2", start.Add(40*time.Second), movement.DefaultConfig()); err != nil {
		t.Fatalf("RecordStart() error = %v", err)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/session/log", "")
	var response listSessionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode log: %v", err)
	}
	if len(response.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(response.Sessions))
	}
	if response.Sessions[0].ID != "s2" || response.Sessions[0].StoppedAt != "" {
		t.Errorf("expected running s2 first, got %+v", response.Sessions[0])
	}
	if response.Sessions[1].Frames != 120 {
		t.Errorf("expected 120 frames, got %d", response.Sessions[1].Frames)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/session/log?limit=1", "")
	json.NewDecoder(rec.Body).Decode(&response)
	if len(response.Sessions) != 1 {
		t.Errorf("expected 1 session with limit, got %d", len(response.Sessions))
	}

	if rec := doJSON(t, handler, http.MethodGet, "/api/session/log?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
