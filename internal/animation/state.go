package animation

import (
	"sync"
	"time"

	"libdb.so/barbatos/internal/metrics"
	"libdb.so/barbatos/internal/thruster"
)

// State is the mode and thruster palette shared between the controller and
// whichever animation is running. Only the running animation mutates it; the
// mutex exists so the controller can report a consistent snapshot.
type State struct {
	mu       sync.Mutex
	mode     Mode
	rotation thruster.Rotation
}

// NewState creates the state for a fresh process: startup mode, blue palette.
func NewState(colorDuration time.Duration, now time.Time) *State {
	return &State{
		mode: Startup,
		rotation: thruster.Rotation{
			Palette:    thruster.PaletteBlue,
			LastChange: now,
			Duration:   colorDuration,
		},
	}
}

// Snapshot returns the current mode and palette.
func (s *State) Snapshot() (Mode, thruster.Palette) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.rotation.Palette
}

// begin records that mode started at now. The palette carries over, but its
// timer restarts with every animation.
func (s *State) begin(mode Mode, now time.Time) {
	s.mu.Lock()
	s.mode = mode
	s.rotation.LastChange = now
	s.mu.Unlock()
}

// palette ticks the rotation and returns the palette to play.
func (s *State) palette(now time.Time) thruster.Palette {
	s.mu.Lock()
	changed := s.rotation.Tick(now)
	p := s.rotation.Palette
	s.mu.Unlock()

	if changed {
		metrics.RecordPaletteChange(p.String())
	}
	return p
}
