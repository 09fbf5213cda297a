package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBars(t *testing.T) {
	tests := []struct {
		name            string
		fps             float64
		step, maxStep   float32
		wantFPS, wantDT float32
	}{
		{"idle", 0, 0, 1.0 / 60, 0, 0},
		{"realtime", 60, 1.0 / 120, 1.0 / 60, 60, maxBar / 2},
		{"clamped", 500, 1.0 / 60, 1.0 / 60, maxBar, maxBar},
		{"no clamp", 30, 0.5, 0, 30, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fps, dt := bars(tt.fps, tt.step, tt.maxStep)
			assert.InDelta(t, tt.wantFPS, fps, 1e-4)
			assert.InDelta(t, tt.wantDT, dt, 1e-3)
		})
	}
}
