package app

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/handsignal/internal/capture"
	"github.com/ayusman/handsignal/internal/detector"
	"github.com/ayusman/handsignal/internal/movement"
	"github.com/ayusman/handsignal/internal/session"
	"github.com/ayusman/handsignal/internal/store"
)

// writeRecorderPlugin installs a plugin whose "record" action appends the
// received command to marker.
func writeRecorderPlugin(t *testing.T, pluginDir, marker string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := filepath.Join(pluginDir, "recorder")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	manifest := `{"name":"recorder","version":"1.0.0","executable":"run.sh","actions":["record"]}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	script := "#!/bin/sh\n" +
		"input=$(cat)\n" +
		"case \"$input\" in *'\"command\":\"LEFT\"'*) echo LEFT >> '" + marker + "';; esac\n" +
		"echo '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func newTestApp(t *testing.T, landmarks detector.Detector) (*App, *store.Store, string) {
	t.Helper()
	tmpDir := t.TempDir()

	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	pluginDir := filepath.Join(tmpDir, "plugins")
	marker := filepath.Join(tmpDir, "fired.txt")
	writeRecorderPlugin(t, pluginDir, marker)

	sessionCfg := session.DefaultConfig()
	sessionCfg.Feeder = capture.FeederConfig{FixedFPS: 100}

	a, err := New(Config{
		Store:     s,
		PluginDir: pluginDir,
		Session:   sessionCfg,
		Camera:    capture.NewMockCamera(nil, true),
		Landmarks: landmarks,
		Cooldown:  time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })

	if err := a.DiscoverPlugins(); err != nil {
		t.Fatalf("DiscoverPlugins() error = %v", err)
	}
	return a, s, marker
}

func TestApp_RequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestApp_StoredSettingsApply(t *testing.T) {
	landmarks := detector.NewMockDetector()
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	stored := movement.Config{Threshold: 0.05, HistorySize: 6, VoteWindow: 3}
	if err := s.Settings().SaveMovementConfig(stored); err != nil {
		t.Fatalf("SaveMovementConfig() error = %v", err)
	}

	a, err := New(Config{
		Store:     s,
		PluginDir: tmpDir,
		Session:   session.DefaultConfig(),
		Camera:    capture.NewMockCamera(nil, true),
		Landmarks: landmarks,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if got := a.Controller().MovementConfig(); got != stored {
		t.Errorf("MovementConfig() = %+v, want %+v", got, stored)
	}

	updated := movement.Config{Threshold: 0.03, HistorySize: 8, VoteWindow: 4}
	if err := a.ApplyMovementConfig(updated); err != nil {
		t.Fatalf("ApplyMovementConfig() error = %v", err)
	}
	if got := a.Controller().MovementConfig(); got != updated {
		t.Errorf("MovementConfig() after apply = %+v, want %+v", got, updated)
	}
	reloaded, err := s.Settings().MovementConfig(movement.DefaultConfig())
	if err != nil {
		t.Fatalf("MovementConfig() error = %v", err)
	}
	if reloaded != updated {
		t.Errorf("stored config = %+v, want %+v", reloaded, updated)
	}

	if err := a.ApplyMovementConfig(movement.Config{Threshold: -1, HistorySize: 5, VoteWindow: 5}); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestApp_LeftMovementFiresBinding(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	landmarks := detector.NewMockDetector()
	// Increasing x is a leftward move for the user facing the camera.
	for i := 0; i < 8; i++ {
		x := 0.3 + float64(i)*0.05
		landmarks.Queue([]detector.HandLandmarks{detector.PointingAt(x, 0.5)})
	}
	landmarks.SetHands([]detector.HandLandmarks{detector.PointingAt(0.65, 0.5)})

	a, s, marker := newTestApp(t, landmarks)

	if err := s.Bindings().Create(&store.Binding{
		ID:         "b-left",
		Direction:  movement.Left,
		PluginName: "recorder",
		ActionName: "record",
		Enabled:    true,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := a.Controller().StartTracking(ctx); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.Metrics().PluginsExecuted.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	a.Controller().StopTracking()

	if n := a.Metrics().PluginsExecuted.Load(); n != 1 {
		t.Fatalf("PluginsExecuted = %d, want 1", n)
	}
	fired, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.TrimSpace(string(fired)) != "LEFT" {
		t.Errorf("plugin output = %q, want LEFT", fired)
	}

	sessions, err := s.Sessions().List(10)
	if err != nil {
		t.Fatalf("Sessions().List() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].StoppedAt == nil {
		t.Fatalf("sessions = %+v, want one stopped session", sessions)
	}
}

func TestApp_StartReportsLoadFailure(t *testing.T) {
	landmarks := detector.NewMockDetector()
	landmarks.SetLoadError(detector.ErrNoScript)
	a, _, _ := newTestApp(t, landmarks)

	if err := a.Start(context.Background()); err == nil {
		t.Fatal("expected Start() to fail")
	}
	if got := a.Controller().State(); got != session.Error {
		t.Errorf("State() = %v, want error", got)
	}

	// The dispatcher keeps running so a retry can succeed.
	landmarks.SetLoadError(nil)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if got := a.Controller().State(); got != session.Ready {
		t.Errorf("State() = %v, want ready", got)
	}
}
