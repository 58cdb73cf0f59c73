package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// FrameHandler receives every delivered frame, one call at a time and in
// capture order. The frame is closed after the handler returns.
type FrameHandler func(frame *gocv.Mat)

// FeederConfig configures a Feeder.
type FeederConfig struct {
	Pacer PacerConfig

	// FixedFPS disables motion pacing and delivers at this rate when > 0.
	FixedFPS int
}

// DefaultFeederConfig returns motion-paced delivery.
func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		Pacer: DefaultPacerConfig(),
	}
}

// Feeder acquires a camera and delivers its frames to a handler until the
// returned Subscription is stopped.
type Feeder struct {
	config FeederConfig
}

// NewFeeder creates a Feeder.
func NewFeeder(config FeederConfig) *Feeder {
	return &Feeder{config: config}
}

// Subscription is a running frame delivery loop. Stop is the only way to
// end it from the outside; it is also ended when the context given to Start
// is cancelled.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	camera Camera

	once     sync.Once
	closeErr error

	frames    atomic.Uint64
	readFails atomic.Uint64
	panics    atomic.Uint64
}

// Start opens camera and begins delivering frames to handle on a new
// goroutine. If the camera cannot be opened it is closed again, so nothing
// stays acquired, and the error is returned.
func (f *Feeder) Start(ctx context.Context, camera Camera, handle FrameHandler) (*Subscription, error) {
	if handle == nil {
		return nil, errors.New("nil frame handler")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := camera.Open(); err != nil {
		if cerr := camera.Close(); cerr != nil {
			log.Printf("Error releasing camera after failed open: %v", cerr)
		}
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
		camera: camera,
	}

	go f.run(loopCtx, sub, handle)

	return sub, nil
}

// run is the delivery loop. On exit it releases the camera before
// signalling done, so a returned Stop means both have happened.
func (f *Feeder) run(ctx context.Context, sub *Subscription, handle FrameHandler) {
	defer close(sub.done)
	defer func() {
		sub.closeErr = sub.camera.Close()
	}()

	var pacer *Pacer
	fps := f.config.FixedFPS
	if fps <= 0 {
		pacer = NewPacer(f.config.Pacer)
		defer pacer.Close()
		fps = pacer.FPS()
	}
	sub.camera.SetFPS(fps)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Stop may have landed while waiting on the ticker.
		if ctx.Err() != nil {
			return
		}

		frame, err := sub.camera.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrCameraNotOpen) {
				log.Printf("Frame feeder stopping: %v", err)
				return
			}
			if n := sub.readFails.Add(1); n == 1 || n%100 == 0 {
				log.Printf("Error reading frame (%d so far): %v", n, err)
			}
			continue
		}

		if pacer != nil {
			if next, changed := pacer.Observe(frame, time.Now()); changed {
				sub.camera.SetFPS(next)
				ticker.Reset(time.Second / time.Duration(next))
				if pacer.Active() {
					log.Printf("Frame feeder switched to active mode (%d fps)", next)
				} else {
					log.Printf("Frame feeder switched to idle mode (%d fps)", next)
				}
			}
		}

		sub.deliver(handle, frame)
		frame.Close()
	}
}

// deliver calls handle, containing a panic to the current frame.
func (s *Subscription) deliver(handle FrameHandler, frame *gocv.Mat) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			log.Printf("Frame handler panic, frame skipped: %v", r)
		}
	}()

	handle(frame)
	s.frames.Add(1)
}

// Stop halts delivery, waits for the loop to exit and releases the camera.
// It returns the camera's close error. Stop is idempotent and must not be
// called from inside the frame handler.
func (s *Subscription) Stop() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return s.closeErr
}

// Done is closed once the loop has exited and the camera is released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Frames returns the number of frames handled so far.
func (s *Subscription) Frames() uint64 {
	return s.frames.Load()
}

// Stats summarizes a subscription's delivery counters.
func (s *Subscription) Stats() string {
	return fmt.Sprintf("frames=%d read_failures=%d handler_panics=%d",
		s.frames.Load(), s.readFails.Load(), s.panics.Load())
}
