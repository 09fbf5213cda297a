package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeStepClamp(t *testing.T) {
	t0 := time.Unix(0, 0)
	tests := []struct {
		name    string
		elapsed time.Duration
		want    float32
		clamped bool
	}{
		{"first frame", 0, 0, false},
		{"short frame", 5 * time.Millisecond, 0.005, false},
		{"exactly max", time.Second / 60, float32((time.Second / 60).Seconds()), false},
		{"stall", 2 * time.Second, float32((time.Second / 60).Seconds()), true},
		{"clock went back", -time.Second, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := NewTimeStep(t0)
			got := ts.Next(t0.Add(tt.elapsed))
			assert.InDelta(t, tt.want, got, 1e-7)
			assert.Equal(t, tt.clamped, ts.Clamped)
		})
	}
}

func TestTimeStepSequence(t *testing.T) {
	t0 := time.Unix(0, 0)
	ts := NewTimeStep(t0)

	ts.Next(t0.Add(10 * time.Millisecond))
	got := ts.Next(t0.Add(25 * time.Millisecond))
	assert.InDelta(t, 0.015, got, 1e-7)
	assert.False(t, ts.Clamped)

	got = ts.Next(t0.Add(time.Minute))
	assert.True(t, ts.Clamped)
	assert.InDelta(t, DefaultMaxStep.Seconds(), got, 1e-7)
}
