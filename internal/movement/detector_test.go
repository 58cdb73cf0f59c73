package movement

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func newTestDetector(t *testing.T, config Config) *Detector {
	t.Helper()
	d := NewDetector(config)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	d.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 33 * time.Millisecond)
	}
	return d
}

func TestDetector_FirstCall(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())

	require.False(t, d.HasPrevious())

	m := d.Detect(Point{X: 0.4, Y: 0.6})
	assert.Equal(t, None, m.Direction)
	assert.Zero(t, m.Magnitude)
	assert.False(t, m.Timestamp.IsZero())
	assert.True(t, d.HasPrevious())
	assert.Empty(t, d.History(), "first call records the position only")
}

func TestDetector_Classification(t *testing.T) {
	tests := []struct {
		name string
		from Point
		to   Point
		want Direction
	}{
		{"raw rightward is mirrored to left", Point{0.3, 0.5}, Point{0.5, 0.5}, Left},
		{"raw leftward is mirrored to right", Point{0.5, 0.5}, Point{0.3, 0.5}, Right},
		{"downward", Point{0.5, 0.3}, Point{0.5, 0.55}, Down},
		{"upward", Point{0.5, 0.55}, Point{0.5, 0.3}, Up},
		{"diagonal mostly horizontal", Point{0.2, 0.2}, Point{0.3, 0.25}, Left},
		{"diagonal mostly vertical", Point{0.2, 0.2}, Point{0.23, 0.1}, Up},
		{"equal axes go vertical", Point{0.2, 0.2}, Point{0.25, 0.25}, Down},
		{"below threshold", Point{0.5, 0.5}, Point{0.51, 0.51}, None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(t, DefaultConfig())
			d.Detect(tt.from)

			m := d.Detect(tt.to)
			assert.Equal(t, tt.want, m.Direction)

			dx, dy := tt.to.X-tt.from.X, tt.to.Y-tt.from.Y
			assert.InDelta(t, math.Sqrt(dx*dx+dy*dy), m.Magnitude, epsilon)
		})
	}
}

func TestDetector_ThresholdBoundary(t *testing.T) {
	d := newTestDetector(t, Config{Threshold: 0.1, HistorySize: 10, VoteWindow: 5})

	d.Detect(Point{X: 0, Y: 0})
	// 0.1 exactly is not past the threshold.
	m := d.Detect(Point{X: 0, Y: 0.1})
	assert.Equal(t, None, m.Direction)

	m = d.Detect(Point{X: 0, Y: 0.2001})
	assert.Equal(t, Down, m.Direction)
}

func TestDetector_SmallStepsNeverClassify(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())

	p := Point{X: 0.5, Y: 0.5}
	d.Detect(p)
	steps := []Point{{0.015, 0}, {0, -0.019}, {-0.01, 0.01}, {0.014, 0.014}, {-0.0195, 0}}
	for _, s := range steps {
		p = Point{X: p.X + s.X, Y: p.Y + s.Y}
		m := d.Detect(p)
		assert.Equal(t, None, m.Direction, "step %+v", s)
	}

	assert.Len(t, d.History(), len(steps))
	assert.Equal(t, None, d.DominantDirection())
}

func TestDetector_PreviousUpdatedOnNone(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())

	d.Detect(Point{X: 0.5, Y: 0.5})
	d.Detect(Point{X: 0.51, Y: 0.5})
	// Measured from 0.51, not from the first point.
	m := d.Detect(Point{X: 0.525, Y: 0.5})
	assert.Equal(t, None, m.Direction)
	assert.InDelta(t, 0.015, m.Magnitude, epsilon)
}

func TestDetector_HistoryBounded(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())

	d.Detect(Point{X: 0, Y: 0})
	var first Movement
	for i := 1; i <= 11; i++ {
		m := d.Detect(Point{X: 0, Y: float64(i) * 0.05})
		if i == 1 {
			first = m
		}
		assert.LessOrEqual(t, len(d.History()), DefaultHistorySize)
	}

	history := d.History()
	require.Len(t, history, DefaultHistorySize)
	for _, m := range history {
		assert.NotEqual(t, first.Timestamp, m.Timestamp, "oldest entry must be evicted")
	}
	assert.True(t, history[0].Timestamp.Before(history[len(history)-1].Timestamp))
}

func TestDetector_HistoryIsCopy(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	d.Detect(Point{X: 0.1, Y: 0.1})
	d.Detect(Point{X: 0.1, Y: 0.5})

	history := d.History()
	require.Len(t, history, 1)
	history[0].Direction = Left

	assert.Equal(t, Down, d.History()[0].Direction)
}

func TestDetector_Reset(t *testing.T) {
	d := newTestDetector(t, DefaultConfig())
	d.Detect(Point{X: 0.1, Y: 0.1})
	d.Detect(Point{X: 0.1, Y: 0.5})
	d.Detect(Point{X: 0.5, Y: 0.5})

	d.Reset()

	assert.False(t, d.HasPrevious())
	assert.Empty(t, d.History())
	assert.Equal(t, None, d.DominantDirection())

	// Behaves like a fresh detector.
	m := d.Detect(Point{X: 0.9, Y: 0.9})
	assert.Equal(t, None, m.Direction)
	assert.Zero(t, m.Magnitude)
	assert.Empty(t, d.History())
}

func TestNewDetector_Defaults(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   Config
	}{
		{"zero config", Config{}, DefaultConfig()},
		{"negative values", Config{Threshold: -1, HistorySize: -2, VoteWindow: -3}, DefaultConfig()},
		{"window clamped to history", Config{Threshold: 0.05, HistorySize: 3, VoteWindow: 5}, Config{Threshold: 0.05, HistorySize: 3, VoteWindow: 3}},
		{"custom kept", Config{Threshold: 0.01, HistorySize: 20, VoteWindow: 7}, Config{Threshold: 0.01, HistorySize: 20, VoteWindow: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewDetector(tt.config).Config())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Threshold: 0, HistorySize: 10, VoteWindow: 5}.Validate())
	assert.Error(t, Config{Threshold: 0.02, HistorySize: 0, VoteWindow: 5}.Validate())
	assert.Error(t, Config{Threshold: 0.02, HistorySize: 10, VoteWindow: 0}.Validate())
	assert.Error(t, Config{Threshold: 0.02, HistorySize: 4, VoteWindow: 5}.Validate())
}

func TestDirection_Command(t *testing.T) {
	assert.Equal(t, "UP", Up.Command())
	assert.Equal(t, "DOWN", Down.Command())
	assert.Equal(t, "LEFT", Left.Command())
	assert.Equal(t, "RIGHT", Right.Command())
	assert.Equal(t, "STOP", None.Command())
}

func TestParseDirection(t *testing.T) {
	for _, d := range Directions {
		got, err := ParseDirection(string(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}

	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}
