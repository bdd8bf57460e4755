package animation

import (
	"fmt"

	"github.com/pkg/errors"
)

// Mode is a lighting mode.
type Mode uint8

const (
	Startup Mode = iota
	Static
	Breathe
	Flicker
)

// Modes lists every mode in control-surface order.
var Modes = []Mode{Startup, Static, Breathe, Flicker}

// ErrUnknownMode is returned by ParseMode for unrecognized selectors.
var ErrUnknownMode = errors.New("unknown mode")

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Startup:
		return "startup"
	case Static:
		return "static"
	case Breathe:
		return "breathe"
	case Flicker:
		return "flicker"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Selector returns the control-surface value that selects m.
func (m Mode) Selector() string {
	if m == Startup {
		return "startup"
	}
	return fmt.Sprint(int(m))
}

// ParseMode returns the mode for a control-surface selector. Only the exact
// selectors "startup", "1", "2" and "3" are accepted.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if s == m.Selector() {
			return m, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownMode, "%q", s)
}
