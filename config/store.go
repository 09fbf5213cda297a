package config

import (
	"sync"
	"sync/atomic"
)

// Store publishes immutable SimulationConfig snapshots. Readers never block;
// writers copy the current snapshot, modify the copy and swap it in.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[SimulationConfig]
}

func NewStore(c SimulationConfig) *Store {
	s := &Store{}
	s.cur.Store(&c)
	return s
}

// Load returns the current snapshot. It must not be modified.
func (s *Store) Load() *SimulationConfig {
	return s.cur.Load()
}

// Update applies fn to a copy of the current snapshot and publishes it if fn
// succeeds and the result validates. On error the live snapshot is unchanged.
func (s *Store) Update(fn func(*SimulationConfig) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cur.Load()
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.cur.Store(&next)
	return nil
}

// Replace publishes c as a whole.
func (s *Store) Replace(c SimulationConfig) error {
	return s.Update(func(next *SimulationConfig) error {
		*next = c
		return nil
	})
}
