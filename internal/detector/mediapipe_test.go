package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

// stalledService writes a service script that reports ready and then never
// answers a frame.
func stalledService(t *testing.T) Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	script := filepath.Join(t.TempDir(), "stalled.sh")
	body := "#!/bin/sh\necho '{\"ready\":true}'\nexec sleep 60\n"
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg := DefaultConfig()
	cfg.PythonPath = "/bin/sh"
	cfg.ScriptPath = script
	cfg.FrameTimeout = 200 * time.Millisecond
	return cfg
}

func TestMediaPipeDetector_FrameTimeout(t *testing.T) {
	d, err := NewMediaPipeDetector(stalledService(t))
	if err != nil {
		t.Fatalf("NewMediaPipeDetector() error = %v", err)
	}
	defer d.Close()

	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	frame := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
	defer frame.Close()

	for i := 0; i < 2; i++ {
		start := time.Now()
		_, err := d.Detect(&frame)
		elapsed := time.Since(start)

		if !errors.Is(err, ErrDetectTimeout) {
			t.Fatalf("Detect() #%d error = %v, want ErrDetectTimeout", i+1, err)
		}
		// The second call restarts the stalled service before timing out.
		if elapsed > 5*time.Second {
			t.Errorf("Detect() #%d took %v", i+1, elapsed)
		}

		d.mu.Lock()
		loaded := d.loaded
		d.mu.Unlock()
		if loaded {
			t.Errorf("Detect() #%d left the stalled service running", i+1)
		}
	}
}

func TestMediaPipeDetector_CloseStalledService(t *testing.T) {
	d, err := NewMediaPipeDetector(stalledService(t))
	if err != nil {
		t.Fatalf("NewMediaPipeDetector() error = %v", err)
	}
	if err := d.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Close()
	}()

	select {
	case <-done:
	case <-time.After(exitGrace + 3*time.Second):
		t.Fatal("Close() did not return for a service that ignores stdin")
	}
}

func TestNewMediaPipeDetector_DefaultFrameTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptPath = "service.py"
	cfg.FrameTimeout = 0

	d, err := NewMediaPipeDetector(cfg)
	if err != nil {
		t.Fatalf("NewMediaPipeDetector() error = %v", err)
	}
	if d.config.FrameTimeout != DefaultFrameTimeout {
		t.Errorf("FrameTimeout = %v, want %v", d.config.FrameTimeout, DefaultFrameTimeout)
	}
}
