// Package app wires the handsignal tracking session to its collaborators:
// persisted settings, the session log and direction-bound plugin actions.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/handsignal/internal/capture"
	"github.com/ayusman/handsignal/internal/detector"
	"github.com/ayusman/handsignal/internal/metrics"
	"github.com/ayusman/handsignal/internal/movement"
	"github.com/ayusman/handsignal/internal/plugin"
	"github.com/ayusman/handsignal/internal/session"
	"github.com/ayusman/handsignal/internal/store"
)

// readingsBuffer is the dispatcher's subscription buffer.
const readingsBuffer = 32

// Config holds configuration options for the application.
type Config struct {
	Store     *store.Store
	PluginDir string
	Session   session.Config

	// Camera and Landmarks default to the gocv device and MediaPipe.
	Camera       capture.Camera
	CameraConfig capture.CameraConfig
	Landmarks    detector.Detector
	Detector     detector.Config

	Metrics       *metrics.Metrics
	PluginTimeout time.Duration
	Cooldown      time.Duration
}

// App owns the tracking session and reacts to its readings.
type App struct {
	config     Config
	controller *session.Controller
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor
	dispatcher *Dispatcher
	metrics    *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an App. Stored movement settings override config.Session.
func New(config Config) (*App, error) {
	if config.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}

	movementCfg, err := config.Store.Settings().MovementConfig(config.Session.Movement)
	if err != nil {
		log.Printf("Ignoring stored movement settings: %v", err)
		movementCfg = config.Session.Movement
	}
	config.Session.Movement = movementCfg

	camera := config.Camera
	if camera == nil {
		camera = capture.NewCamera(config.CameraConfig)
	}

	landmarks := config.Landmarks
	if landmarks == nil {
		// Try MediaPipe first, fall back to mock detector
		if mp, err := detector.NewMediaPipeDetector(config.Detector); err == nil {
			landmarks = mp
			log.Println("Using MediaPipe hand detection")
		} else {
			log.Printf("MediaPipe not available (%v), using mock detector", err)
			landmarks = detector.NewMockDetector()
		}
	}

	a := &App{
		config:     config,
		pluginMgr:  plugin.NewManager(config.PluginDir),
		pluginExec: plugin.NewExecutor(config.PluginTimeout),
		metrics:    config.Metrics,
	}
	a.controller = session.New(config.Session, camera, landmarks,
		session.WithRecorder(config.Store.Sessions()),
		session.WithMetrics(config.Metrics),
	)
	a.dispatcher = NewDispatcher(config.Store.Bindings(), a.pluginMgr, a.pluginExec, config.Cooldown, config.Metrics)

	return a, nil
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	if err := a.pluginMgr.Discover(); err != nil {
		return err
	}
	log.Printf("Discovered %d plugins in %s", len(a.pluginMgr.List()), a.pluginMgr.PluginDir())
	return nil
}

// Start loads the landmark pipeline and starts dispatching actions. A
// pipeline failure is reported in the session readings and returned; the
// dispatcher runs regardless so a later retry works.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel == nil {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		readings, unsubscribe := a.controller.Subscribe(readingsBuffer)
		a.cancel = func() {
			cancel()
			unsubscribe()
		}
		a.done = make(chan struct{})
		go func() {
			defer close(a.done)
			a.dispatcher.Run(runCtx, readings)
		}()
	}
	a.mu.Unlock()

	return a.controller.Initialize(ctx)
}

// MovementConfig returns the movement tunables of the next session.
func (a *App) MovementConfig() movement.Config {
	return a.controller.MovementConfig()
}

// ApplyMovementConfig stores cfg and uses it from the next tracking session.
func (a *App) ApplyMovementConfig(cfg movement.Config) error {
	if err := a.config.Store.Settings().SaveMovementConfig(cfg); err != nil {
		return err
	}
	return a.controller.SetMovementConfig(cfg)
}

// Close stops tracking and dispatching and releases the landmark pipeline.
func (a *App) Close() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if err := a.controller.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	log.Println("Application stopped")
	return nil
}

// Controller returns the tracking session.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Dispatcher returns the direction dispatcher.
func (a *App) Dispatcher() *Dispatcher {
	return a.dispatcher
}

// Metrics returns the application metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Store returns the backing store.
func (a *App) Store() *store.Store {
	return a.config.Store
}
