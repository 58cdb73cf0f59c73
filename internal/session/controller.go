// Package session implements the tracking session: the state machine that owns
// the camera and the landmark pipeline, turns fingertip positions into
// movements and publishes the resulting readings.
package session

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
	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

var (
	// ErrBusy is returned while another lifecycle transition is running.
	ErrBusy = errors.New("session busy")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
	// ErrNotTracking is returned when landmarks arrive outside of tracking.
	ErrNotTracking = errors.New("session not tracking")
)

// frameErrorLogEvery rate-limits per-frame error logging.
const frameErrorLogEvery = 100

// Config configures a Controller.
type Config struct {
	Movement    movement.Config
	Feeder      capture.FeederConfig
	LoadTimeout time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Movement:    movement.DefaultConfig(),
		Feeder:      capture.DefaultFeederConfig(),
		LoadTimeout: detector.DefaultLoadTimeout,
	}
}

// Recorder keeps an audit log of tracking sessions.
type Recorder interface {
	RecordStart(id string, startedAt time.Time, config movement.Config) error
	RecordStop(id string, stoppedAt time.Time, frames uint64, lastErr string) error
}

// Option customizes a Controller.
type Option func(*Controller)

// WithRecorder logs every tracking session to r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithMetrics counts frames, movements and failures in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithFeeder replaces the frame feeder built from Config.Feeder.
func WithFeeder(f *capture.Feeder) Option {
	return func(c *Controller) { c.feeder = f }
}

// Controller is the tracking session state machine. It exclusively owns the
// camera, the landmark source and, while tracking, one movement detector.
type Controller struct {
	camera    capture.Camera
	landmarks detector.Detector
	feeder    *capture.Feeder
	recorder  Recorder
	metrics   *metrics.Metrics

	// lifecycle is held for the whole of Initialize, StartTracking and
	// StopTracking, so at most one transition touches the camera and the
	// landmark pipeline at a time.
	lifecycle sync.Mutex

	mu        sync.Mutex
	config    Config
	state     State
	loaded    bool
	closed    bool
	lastErr   string
	sessionID string
	sub       *capture.Subscription
	tracker   *movement.Detector
	fingertip *movement.Point
	current   *movement.Movement
	dominant  movement.Direction
	updatedAt time.Time
	seq       uint64
	frameErrs uint64
	frameErr  string

	subsMu      sync.Mutex
	subscribers map[int]chan Readings
	nextSub     int
	published   uint64
}

// New creates a Controller in the Idle state.
func New(config Config, camera capture.Camera, landmarks detector.Detector, opts ...Option) *Controller {
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = detector.DefaultLoadTimeout
	}
	c := &Controller{
		camera:      camera,
		landmarks:   landmarks,
		config:      config,
		state:       Idle,
		dominant:    movement.None,
		subscribers: make(map[int]chan Readings),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.feeder == nil {
		c.feeder = capture.NewFeeder(config.Feeder)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	c.metrics.State.Store(int64(Idle))
	return c
}

// MovementConfig returns the algorithm settings used for new sessions.
func (c *Controller) MovementConfig() movement.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Movement
}

// SetMovementConfig validates cfg and applies it from the next tracking
// session on.
func (c *Controller) SetMovementConfig(cfg movement.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Movement = cfg
	return nil
}

// Initialize loads the landmark pipeline. It is a no-op once loaded and
// returns ErrBusy while another transition is running.
func (c *Controller) Initialize(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if !c.lifecycle.TryLock() {
		return ErrBusy
	}
	defer c.lifecycle.Unlock()

	return c.initialize(ctx)
}

func (c *Controller) initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(Initializing)
	c.lastErr = ""
	r := c.bumpLocked()
	timeout := c.config.LoadTimeout
	c.mu.Unlock()
	c.publish(r)

	log.Println("Loading landmark pipeline")

	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	err := c.landmarks.Load(loadCtx)
	cancel()

	if err != nil {
		err = fmt.Errorf("initialize landmark pipeline: %w", err)
		// Nothing stays acquired after a failed load.
		if cerr := c.landmarks.Close(); cerr != nil {
			log.Printf("Error releasing landmark pipeline: %v", cerr)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if err == nil {
			c.landmarks.Close()
		}
		return ErrClosed
	}
	if err != nil {
		c.setStateLocked(Error)
		c.lastErr = err.Error()
		log.Printf("Session error: %v", err)
	} else {
		c.loaded = true
		c.setStateLocked(Ready)
		log.Println("Landmark pipeline ready")
	}
	r = c.bumpLocked()
	c.mu.Unlock()
	c.publish(r)

	return err
}

// StartTracking acquires the camera and starts the frame loop. It loads the
// landmark pipeline first if needed. While tracking it returns the live
// subscription, and while another transition is running it returns ErrBusy.
// The subscription's lifetime is not bound to ctx.
func (c *Controller) StartTracking(ctx context.Context) (*capture.Subscription, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if !c.lifecycle.TryLock() {
		return nil, ErrBusy
	}
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.sub != nil {
		sub := c.sub
		c.mu.Unlock()
		return sub, nil
	}
	c.mu.Unlock()

	if err := c.initialize(ctx); err != nil {
		return nil, err
	}

	id := uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	cfg := c.config.Movement
	c.tracker = movement.NewDetector(cfg)
	c.sessionID = id
	c.frameErrs = 0
	c.frameErr = ""
	c.mu.Unlock()

	sub, err := c.feeder.Start(context.WithoutCancel(ctx), c.camera, c.handleFrame(id))

	c.mu.Lock()
	if err != nil {
		c.tracker = nil
		c.sessionID = ""
		c.setStateLocked(Error)
		err = fmt.Errorf("start camera: %w", err)
		c.lastErr = err.Error()
		r := c.bumpLocked()
		c.mu.Unlock()

		c.metrics.StartFailures.Add(1)
		log.Printf("Session error: %v", err)
		c.publish(r)
		return nil, err
	}
	if c.closed {
		c.tracker = nil
		c.mu.Unlock()
		if serr := sub.Stop(); serr != nil {
			log.Printf("Error releasing camera: %v", serr)
		}
		return nil, ErrClosed
	}

	c.sub = sub
	c.setStateLocked(Tracking)
	c.lastErr = ""
	c.fingertip = nil
	c.current = nil
	c.dominant = movement.None
	c.updatedAt = time.Now()
	r := c.bumpLocked()
	c.mu.Unlock()

	c.metrics.SessionsStarted.Add(1)
	if c.recorder != nil {
		if err := c.recorder.RecordStart(id, r.UpdatedAt, cfg); err != nil {
			log.Printf("Error recording session start: %v", err)
		}
	}
	log.Printf("Tracking started (session %s)", id)
	c.publish(r)

	return sub, nil
}

// StopTracking stops the frame loop, releases the camera and drops the
// movement detector, in that order. A transition already running finishes
// first, so a start that is still acquiring the camera is stopped too.
// StopTracking is idempotent and safe to call before any StartTracking. The
// session ends up Ready when the landmark pipeline is loaded and Idle
// otherwise.
func (c *Controller) StopTracking() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	sub := c.sub
	if sub == nil {
		c.mu.Unlock()
		return
	}
	c.sub = nil
	id := c.sessionID
	c.mu.Unlock()

	// Waits for the frame loop to exit; the loop releases the camera.
	if err := sub.Stop(); err != nil {
		log.Printf("Error releasing camera: %v", err)
	}

	c.mu.Lock()
	if c.tracker != nil {
		c.tracker.Reset()
		c.tracker = nil
	}
	c.sessionID = ""
	c.fingertip = nil
	c.current = nil
	c.dominant = movement.None
	c.updatedAt = time.Now()
	if c.loaded {
		c.setStateLocked(Ready)
	} else {
		c.setStateLocked(Idle)
	}
	lastFrameErr := c.frameErr
	r := c.bumpLocked()
	c.mu.Unlock()

	if c.recorder != nil {
		if err := c.recorder.RecordStop(id, r.UpdatedAt, sub.Frames(), lastFrameErr); err != nil {
			log.Printf("Error recording session stop: %v", err)
		}
	}
	log.Printf("Tracking stopped (session %s, %s)", id, sub.Stats())
	c.publish(r)
}

// Close stops tracking, releases the landmark pipeline and ends all readings
// subscriptions. The controller cannot be used afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.StopTracking()

	err := c.landmarks.Close()

	c.mu.Lock()
	c.loaded = false
	c.setStateLocked(Idle)
	r := c.bumpLocked()
	c.mu.Unlock()
	c.publish(r)

	c.subsMu.Lock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
		c.metrics.ActiveSubscribers.Add(-1)
	}
	c.subsMu.Unlock()

	if err != nil {
		return fmt.Errorf("close landmark pipeline: %w", err)
	}
	return nil
}

// handleFrame returns the frame handler of session id.
func (c *Controller) handleFrame(id string) capture.FrameHandler {
	return func(frame *gocv.Mat) {
		defer func() {
			if r := recover(); r != nil {
				c.metrics.HandlerPanics.Add(1)
				c.frameError(fmt.Errorf("frame handler panic: %v", r))
			}
		}()

		if !c.isActive(id) {
			c.metrics.FramesStale.Add(1)
			return
		}

		start := time.Now()
		hands, err := c.landmarks.Detect(frame)
		c.metrics.UpdateLandmarkLatency(time.Since(start))
		c.metrics.FramesHandled.Add(1)
		if err != nil {
			c.metrics.LandmarkErrors.Add(1)
			c.frameError(fmt.Errorf("detect landmarks: %w", err))
			return
		}

		if err := c.processHands(id, hands); err != nil && !errors.Is(err, ErrNotTracking) {
			c.metrics.MalformedHands.Add(1)
			c.frameError(err)
		}
	}
}

// ProcessHands feeds one frame's landmark result into the active session, as
// the frame loop does. Without a hand the position and movement are cleared
// and history is left untouched.
func (c *Controller) ProcessHands(hands []detector.HandLandmarks) error {
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()
	return c.processHands(id, hands)
}

func (c *Controller) processHands(id string, hands []detector.HandLandmarks) error {
	var tip detector.Point3D
	if len(hands) > 0 {
		var err error
		if tip, err = hands[0].Fingertip(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if !c.activeLocked(id) {
		c.mu.Unlock()
		c.metrics.FramesStale.Add(1)
		return ErrNotTracking
	}

	var m movement.Movement
	if len(hands) == 0 {
		c.fingertip = nil
		c.current = nil
	} else {
		p := movement.Point{X: tip.X, Y: tip.Y}
		m = c.tracker.Detect(p)
		c.fingertip = &p
		c.current = &m
		c.dominant = c.tracker.DominantDirection()
	}
	c.updatedAt = time.Now()
	r := c.bumpLocked()
	c.mu.Unlock()

	if len(hands) == 0 {
		c.metrics.FramesNoHand.Add(1)
	} else {
		c.metrics.ObserveMovement(m.Direction)
	}
	c.publish(r)
	return nil
}

// frameError logs a skipped frame, the first time and then every 100th.
func (c *Controller) frameError(err error) {
	c.mu.Lock()
	c.frameErrs++
	n := c.frameErrs
	c.frameErr = err.Error()
	c.mu.Unlock()

	if n == 1 || n%frameErrorLogEvery == 0 {
		log.Printf("Skipping frame (%d errors this session): %v", n, err)
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) isActive(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked(id)
}

func (c *Controller) activeLocked(id string) bool {
	return id != "" && c.state == Tracking && c.sessionID == id && c.tracker != nil
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	c.metrics.State.Store(int64(s))
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Readings returns the current readings.
func (c *Controller) Readings() Readings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// History returns a copy of the active session's movement history.
func (c *Controller) History() []movement.Movement {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracker == nil {
		return nil
	}
	return c.tracker.History()
}

// bumpLocked advances the readings sequence and returns the new snapshot.
func (c *Controller) bumpLocked() Readings {
	c.seq++
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Readings {
	r := Readings{
		Seq:        c.seq,
		SessionID:  c.sessionID,
		State:      c.state,
		IsLoaded:   c.loaded,
		IsTracking: c.state == Tracking,
		Error:      c.lastErr,
		Dominant:   c.dominant,
		UpdatedAt:  c.updatedAt,
	}
	if c.fingertip != nil {
		p := *c.fingertip
		r.Fingertip = &p
	}
	if c.current != nil {
		m := *c.current
		r.Movement = &m
		r.Speed = m.Magnitude * 100
	}
	return r
}
