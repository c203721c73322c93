package app

import (
	"github.com/Banz520/CNCETI/pkg/program"
)

// Keypad delivers key events from the front panel. PollKey must not block.
type Keypad interface {
	PollKey() (key byte, ok bool)
}

// Display renders the operator surface. Both calls must return promptly.
type Display interface {
	ShowContext(View)
	UpdateLive(Live)
}

// View describes a whole screen, sent on every context change and when a
// selection moves.
type View struct {
	Context  Context
	Title    string
	Items    []string
	Selected int // index into Items, or -1
	FileName string
	Message  string
}

// AxisLive is the origin, live position and destination of one axis.
type AxisLive struct {
	Name        string
	Origin      float64
	Position    float64
	Destination float64
}

// Live carries the fields refreshed every iteration while executing.
type Live struct {
	Axes     [3]AxisLive
	Line     string
	Progress int
	State    RunState
	Mode     PositioningMode
	Busy     bool
	FileName string
	Device   program.Device
}

// NoKeys is a Keypad that never has input.
type NoKeys struct{}

// PollKey implements Keypad.
func (NoKeys) PollKey() (byte, bool) { return 0, false }

// NullDisplay discards everything.
type NullDisplay struct{}

// ShowContext implements Display.
func (NullDisplay) ShowContext(View) {}

// UpdateLive implements Display.
func (NullDisplay) UpdateLive(Live) {}

// IsKey reports whether k belongs to the 4x4 keypad alphabet.
func IsKey(k byte) bool {
	switch {
	case k >= '0' && k <= '9', k >= 'A' && k <= 'D', k == '*', k == '#':
		return true
	}
	return false
}
