package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/handsignal/internal/movement"
	"github.com/ayusman/handsignal/internal/plugin"
	"github.com/ayusman/handsignal/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// stubPlugins knows a single "keyboard" plugin with a "press" action.
type stubPlugins struct{}

func (stubPlugins) Resolve(name, action string) (*plugin.Plugin, error) {
	if name != "keyboard" {
		return nil, plugin.ErrPluginNotFound
	}
	m := plugin.Manifest{Name: name, Actions: []string{"press"}}
	if !m.HasAction(action) {
		return nil, plugin.ErrPluginNotFound
	}
	return &plugin.Plugin{Manifest: m}, nil
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBindingHandler_Create(t *testing.T) {
	s := newTestStore(t)
	handler := NewBindingHandler(s, stubPlugins{})

	rec := doJSON(t, handler, http.MethodPost, "/api/bindings",
		`{"direction":"left","plugin_name":"keyboard","action_name":"press","config":{"key":"a"}}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var response bindingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.ID == "" {
		t.Error("expected generated ID")
	}
	if response.Direction != "left" || response.Command != "LEFT" {
		t.Errorf("unexpected direction %q / command %q", response.Direction, response.Command)
	}
	if !response.Enabled {
		t.Error("expected new binding to be enabled")
	}

	stored, err := s.Bindings().GetByDirection(movement.Left)
	if err != nil || stored == nil {
		t.Fatalf("binding not stored: %v", err)
	}
	if string(stored.Config) != `{"key":"a"}` {
		t.Errorf("expected config to be stored, got %s", stored.Config)
	}
}

func TestBindingHandler_CreateValidation(t *testing.T) {
	s := newTestStore(t)
	handler := NewBindingHandler(s, stubPlugins{})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"bad direction", `{"direction":"sideways","plugin_name":"keyboard","action_name":"press"}`, http.StatusBadRequest},
		{"missing plugin", `{"direction":"up","action_name":"press"}`, http.StatusBadRequest},
		{"missing action", `{"direction":"up","plugin_name":"keyboard"}`, http.StatusBadRequest},
		{"unknown plugin", `{"direction":"up","plugin_name":"mouse","action_name":"press"}`, http.StatusBadRequest},
		{"unknown action", `{"direction":"up","plugin_name":"keyboard","action_name":"type"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, "/api/bindings", tt.body)
			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestBindingHandler_CreateDuplicateDirection(t *testing.T) {
	s := newTestStore(t)
	handler := NewBindingHandler(s, nil)

	body := `{"direction":"none","plugin_name":"keyboard","action_name":"press"}`
	if rec := doJSON(t, handler, http.MethodPost, "/api/bindings", body); rec.Code != http.StatusCreated {
		t.Fatalf("first create: expected %d, got %d", http.StatusCreated, rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPost, "/api/bindings", body); rec.Code != http.StatusConflict {
		t.Errorf("second create: expected %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestBindingHandler_ListGetUpdateDelete(t *testing.T) {
	s := newTestStore(t)
	handler := NewBindingHandler(s, stubPlugins{})

	for _, d := range []movement.Direction{movement.Up, movement.Down} {
		if err := s.Bindings().Create(&store.Binding{
			ID: "b-" + string(d), Direction: d, PluginName: "keyboard", ActionName: "press", Enabled: true,
		}); err != nil {
			t.Fatalf("failed to create binding: %v", err)
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/bindings", "")
	var listed listBindingsResponse
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(listed.Bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(listed.Bindings))
	}

	if rec := doJSON(t, handler, http.MethodGet, "/api/bindings/b-up", ""); rec.Code != http.StatusOK {
		t.Errorf("get: expected %d, got %d", http.StatusOK, rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/api/bindings/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get missing: expected %d, got %d", http.StatusNotFound, rec.Code)
	}

	// Moving b-up onto down collides with b-down.
	if rec := doJSON(t, handler, http.MethodPut, "/api/bindings/b-up", `{"direction":"down"}`); rec.Code != http.StatusConflict {
		t.Errorf("update collision: expected %d, got %d", http.StatusConflict, rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/bindings/b-up", `{"direction":"right","enabled":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var updated bindingResponse
	json.NewDecoder(rec.Body).Decode(&updated)
	if updated.Direction != "right" || updated.Enabled {
		t.Errorf("unexpected update result: %+v", updated)
	}

	if rec := doJSON(t, handler, http.MethodPut, "/api/bindings/b-up", `{"action_name":"type"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("update unknown action: expected %d, got %d", http.StatusBadRequest, rec.Code)
	}

	if rec := doJSON(t, handler, http.MethodDelete, "/api/bindings/b-up", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodDelete, "/api/bindings/b-up", ""); rec.Code != http.StatusNotFound {
		t.Errorf("delete again: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestBindingHandler_MethodNotAllowed(t *testing.T) {
	handler := NewBindingHandler(newTestStore(t), nil)

	if rec := doJSON(t, handler, http.MethodDelete, "/api/bindings", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodPatch, "/api/bindings/x", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
