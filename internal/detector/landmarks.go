// Package detector provides the hand landmark source used by tracking sessions.
package detector

import (
	"errors"
	"fmt"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// ErrMalformedLandmark is returned for landmark coordinates that are not
// finite numbers.
var ErrMalformedLandmark = errors.New("malformed landmark")

// Point3D is a landmark position. X and Y are normalized to the frame,
// Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Fingertip returns the index fingertip landmark, the tracked position.
// It fails with ErrMalformedLandmark if the X or Y coordinate is NaN or
// infinite.
func (h *HandLandmarks) Fingertip() (Point3D, error) {
	if h == nil {
		return Point3D{}, fmt.Errorf("%w: no hand", ErrMalformedLandmark)
	}

	tip := h.Points[IndexTip]
	if !finite(tip.X) || !finite(tip.Y) {
		return Point3D{}, fmt.Errorf("%w: index tip (%v, %v)", ErrMalformedLandmark, tip.X, tip.Y)
	}
	return tip, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
