package movement

import (
	"math"
	"time"
)

// Detector classifies fingertip steps and keeps a bounded history of them.
//
// A Detector is not safe for concurrent use. It is owned by a single tracking
// session which serializes access to it.
type Detector struct {
	config   Config
	previous *Point
	history  []Movement
	now      func() time.Time
}

// NewDetector creates a Detector. Non-positive config fields fall back to
// their defaults.
func NewDetector(config Config) *Detector {
	config = config.withDefaults()
	return &Detector{
		config:  config,
		history: make([]Movement, 0, config.HistorySize),
		now:     time.Now,
	}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Detect classifies the step from the previous position to p.
//
// The first call after construction or Reset only records p and returns a
// zero-magnitude None movement without touching the history. Every later call
// appends its result to the history and makes p the new previous position,
// whatever the classification.
func (d *Detector) Detect(p Point) Movement {
	ts := d.now()

	if d.previous == nil {
		d.previous = &p
		return Movement{Direction: None, Magnitude: 0, Timestamp: ts}
	}

	dx := p.X - d.previous.X
	dy := p.Y - d.previous.Y

	m := Movement{
		Direction: Classify(dx, dy, d.config.Threshold),
		Magnitude: math.Sqrt(dx*dx + dy*dy),
		Timestamp: ts,
	}

	if len(d.history) >= d.config.HistorySize {
		// Shift left by one, dropping the oldest entry
		copy(d.history, d.history[1:])
		d.history = d.history[:d.config.HistorySize-1]
	}
	d.history = append(d.history, m)

	d.previous = &p
	return m
}

// Classify maps a displacement onto a direction.
//
// Displacements whose length does not exceed threshold are None. Otherwise
// the dominant axis wins; ties between |dx| and |dy| go to the vertical axis.
// The horizontal sense is inverted to match a mirrored video presentation:
// positive dx (rightward in camera space) is Left.
func Classify(dx, dy, threshold float64) Direction {
	if math.Sqrt(dx*dx+dy*dy) <= threshold {
		return None
	}

	if math.Abs(dx) > math.Abs(dy) {
		if dx > 0 {
			return Left
		}
		return Right
	}

	if dy > 0 {
		return Down
	}
	return Up
}

// Reset forgets the previous position and clears the history.
func (d *Detector) Reset() {
	d.previous = nil
	d.history = d.history[:0]
}

// HasPrevious reports whether a position has been recorded since the last
// Reset.
func (d *Detector) HasPrevious() bool {
	return d.previous != nil
}

// History returns a copy of the movement history, oldest first.
func (d *Detector) History() []Movement {
	out := make([]Movement, len(d.history))
	copy(out, d.history)
	return out
}

// DominantDirection votes over the most recent VoteWindow movements.
func (d *Detector) DominantDirection() Direction {
	return Dominant(d.history, d.config.VoteWindow)
}
