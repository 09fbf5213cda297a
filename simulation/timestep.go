package simulation

import "time"

// DefaultMaxStep keeps the solver stable after stalls: one frame at 60 Hz.
const DefaultMaxStep = time.Second / 60

// TimeStep turns wall-clock frame times into solver time steps
type TimeStep struct {
	MaxStep time.Duration
	Clamped bool // last step hit MaxStep

	last    time.Time
	started bool
}

// NewTimeStep creates a time stepper anchored at start
func NewTimeStep(start time.Time) *TimeStep {
	return &TimeStep{
		MaxStep: DefaultMaxStep,
		last:    start,
		started: true,
	}
}

// Next returns the seconds elapsed since the previous call, clamped to
// [0, MaxStep]. A clock that moves backwards yields zero.
func (ts *TimeStep) Next(now time.Time) float32 {
	if !ts.started {
		ts.last = now
		ts.started = true
	}

	step := now.Sub(ts.last)
	ts.last = now

	ts.Clamped = false
	switch {
	case step < 0:
		step = 0
	case step > ts.MaxStep:
		step = ts.MaxStep
		ts.Clamped = true
	}

	return float32(step.Seconds())
}
