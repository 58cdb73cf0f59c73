package capture

import (
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Frame pacing defaults.
const (
	// IdleFPS is the delivery rate while the scene is static.
	IdleFPS = 5
	// ActiveFPS is the delivery rate after motion was seen.
	ActiveFPS = 15
	// IdleTimeout is how long without motion before dropping back to IdleFPS.
	IdleTimeout = 2 * time.Second
	// DefaultMotionThreshold is the percentage of changed pixels that counts
	// as motion.
	DefaultMotionThreshold = 1.0

	blurSize      = 21
	diffThreshold = 25
)

// PacerConfig configures motion-adaptive frame pacing.
type PacerConfig struct {
	IdleFPS         int
	ActiveFPS       int
	IdleTimeout     time.Duration
	MotionThreshold float64
}

// DefaultPacerConfig returns the 5/15 FPS pacing used by tracking sessions.
func DefaultPacerConfig() PacerConfig {
	return PacerConfig{
		IdleFPS:         IdleFPS,
		ActiveFPS:       ActiveFPS,
		IdleTimeout:     IdleTimeout,
		MotionThreshold: DefaultMotionThreshold,
	}
}

// Pacer picks the delivery rate from scene motion. It compares each frame
// with the previous one (grayscale, Gaussian blur, binary threshold on the
// absolute difference) and switches to the active rate when the share of
// changed pixels exceeds the threshold.
//
// A Pacer is used by a single feeder goroutine and is not safe for
// concurrent use.
type Pacer struct {
	config     PacerConfig
	prev       gocv.Mat
	hasPrev    bool
	active     bool
	lastMotion time.Time
}

// NewPacer creates a Pacer starting at the idle rate.
func NewPacer(config PacerConfig) *Pacer {
	if config.IdleFPS <= 0 {
		config.IdleFPS = IdleFPS
	}
	if config.ActiveFPS < config.IdleFPS {
		config.ActiveFPS = config.IdleFPS
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = IdleTimeout
	}
	if config.MotionThreshold <= 0 {
		config.MotionThreshold = DefaultMotionThreshold
	}

	return &Pacer{
		config: config,
		prev:   gocv.NewMat(),
	}
}

// FPS returns the current delivery rate.
func (p *Pacer) FPS() int {
	if p.active {
		return p.config.ActiveFPS
	}
	return p.config.IdleFPS
}

// Active reports whether the pacer is at the active rate.
func (p *Pacer) Active() bool {
	return p.active
}

// Observe feeds a frame taken at now and returns the rate to use from here
// on and whether it changed.
func (p *Pacer) Observe(frame *gocv.Mat, now time.Time) (int, bool) {
	if p.config.ActiveFPS == p.config.IdleFPS {
		return p.config.IdleFPS, false
	}

	before := p.active

	if p.changePercent(frame) > p.config.MotionThreshold {
		p.lastMotion = now
		p.active = true
	} else if p.active && now.Sub(p.lastMotion) > p.config.IdleTimeout {
		p.active = false
	}

	return p.FPS(), p.active != before
}

// changePercent returns the share of pixels, in percent, that changed
// since the previous frame. The first frame only sets the baseline.
func (p *Pacer) changePercent(frame *gocv.Mat) float64 {
	if frame == nil || frame.Empty() {
		return 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurSize, Y: blurSize}, 0, 0, gocv.BorderDefault)

	defer blurred.CopyTo(&p.prev)

	if !p.hasPrev {
		p.hasPrev = true
		return 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, p.prev, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, diffThreshold, 255, gocv.ThresholdBinary)

	total := thresh.Rows() * thresh.Cols()
	if total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(thresh)) / float64(total) * 100.0
}

// Close releases the baseline frame.
func (p *Pacer) Close() {
	p.prev.Close()
	p.prev = gocv.NewMat()
	p.hasPrev = false
	p.active = false
}
