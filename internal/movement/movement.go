// Package movement turns successive fingertip positions into classified
// directional movements and a vote-stabilized dominant direction.
package movement

import (
	"fmt"
	"time"
)

// Direction is the classified sense of a fingertip movement.
type Direction string

const (
	// None means the fingertip did not move past the threshold.
	None  Direction = "none"
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Directions lists every direction, None first.
var Directions = []Direction{None, Up, Down, Left, Right}

// ParseDirection converts a string into a Direction.
func ParseDirection(s string) (Direction, error) {
	for _, d := range Directions {
		if string(d) == s {
			return d, nil
		}
	}
	return None, fmt.Errorf("unknown direction %q", s)
}

// Command returns the downstream control command for the direction,
// e.g. "UP" or "LEFT". None maps to "STOP".
func (d Direction) Command() string {
	switch d {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	default:
		return "STOP"
	}
}

// Point is a fingertip position normalized to [0,1] of frame width and height.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Movement is one classified step between two consecutive fingertip positions.
type Movement struct {
	Direction Direction `json:"direction"`
	Magnitude float64   `json:"magnitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Default tuning values.
const (
	DefaultThreshold   = 0.02
	DefaultHistorySize = 10
	DefaultVoteWindow  = 5
)

// Config holds the tunables of a Detector.
type Config struct {
	// Threshold is the minimum Euclidean distance, in normalized frame
	// units, for a step to be classified as a direction.
	Threshold float64

	// HistorySize is the number of movements retained, oldest evicted first.
	HistorySize int

	// VoteWindow is the number of most recent movements considered by
	// DominantDirection.
	VoteWindow int
}

// DefaultConfig returns a Config with the default tuning values.
func DefaultConfig() Config {
	return Config{
		Threshold:   DefaultThreshold,
		HistorySize: DefaultHistorySize,
		VoteWindow:  DefaultVoteWindow,
	}
}

// Validate reports whether every field holds a usable value.
func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", c.Threshold)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("history size must be positive, got %d", c.HistorySize)
	}
	if c.VoteWindow <= 0 {
		return fmt.Errorf("vote window must be positive, got %d", c.VoteWindow)
	}
	if c.VoteWindow > c.HistorySize {
		return fmt.Errorf("vote window %d exceeds history size %d", c.VoteWindow, c.HistorySize)
	}
	return nil
}

// withDefaults replaces non-positive fields with defaults and clamps the
// vote window to the history size.
func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.VoteWindow <= 0 {
		c.VoteWindow = DefaultVoteWindow
	}
	if c.VoteWindow > c.HistorySize {
		c.VoteWindow = c.HistorySize
	}
	return c
}
