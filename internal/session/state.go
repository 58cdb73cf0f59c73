package session

import (
	"fmt"
	"time"

	"github.com/ayusman/handsignal/internal/movement"
)

// State is the lifecycle state of a tracking session.
type State int

// Session states.
const (
	Idle State = iota
	Initializing
	Ready
	Tracking
	Error
)

var stateNames = [...]string{
	Idle:         "idle",
	Initializing: "initializing",
	Ready:        "ready",
	Tracking:     "tracking",
	Error:        "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Readings is a snapshot of what a session currently publishes.
type Readings struct {
	Seq        uint64             `json:"seq"`
	SessionID  string             `json:"session_id,omitempty"`
	State      State              `json:"state"`
	IsLoaded   bool               `json:"is_loaded"`
	IsTracking bool               `json:"is_tracking"`
	Error      string             `json:"error,omitempty"`
	Fingertip  *movement.Point    `json:"fingertip,omitempty"`
	Movement   *movement.Movement `json:"movement,omitempty"`
	Speed      float64            `json:"speed"`
	Dominant   movement.Direction `json:"dominant_direction"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Command returns the control command for the dominant direction.
func (r Readings) Command() string {
	return r.Dominant.Command()
}
