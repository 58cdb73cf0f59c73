package detector

import (
	"context"
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for hand landmark sources.
type Detector interface {
	// Load prepares the landmark pipeline (model, subprocess) so the first
	// Detect call does not pay the start-up cost. It is safe to call Load
	// again after a failure or after Close.
	Load(ctx context.Context) error

	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 1).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ScriptPath overrides the lookup of mediapipe_service.py.
	ScriptPath string

	// PythonPath overrides the lookup of the Python interpreter.
	PythonPath string

	// FrameTimeout bounds one Detect round-trip. A service that does not
	// answer in time is killed and restarted by the next Detect.
	FrameTimeout time.Duration
}

// DefaultConfig returns a Config tuned for single-hand fingertip tracking.
func DefaultConfig() Config {
	return Config{
		MaxHands:        1,
		MinConfidence:   0.7,
		MinTrackingConf: 0.5,
		FrameTimeout:    DefaultFrameTimeout,
	}
}
