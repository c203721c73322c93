package app

// Context is the operator-facing screen the controller is in.
type Context int

const (
	MainMenu Context = iota
	BrowseDisk
	BrowseMassStorage
	Executing
	Settings
)

func (c Context) String() string {
	switch c {
	case MainMenu:
		return "MAIN_MENU"
	case BrowseDisk:
		return "BROWSE_DISK"
	case BrowseMassStorage:
		return "BROWSE_MASS_STORAGE"
	case Executing:
		return "EXECUTING"
	case Settings:
		return "SETTINGS"
	}
	return "UNKNOWN"
}

func (c Context) isBrowse() bool {
	return c == BrowseDisk || c == BrowseMassStorage
}

// RunState is the state of the program run shown while executing.
type RunState int

const (
	// RunIdle means no program is open.
	RunIdle RunState = iota
	RunActive
	RunPaused
	// RunComplete means the program was read to the end and its last
	// command has finished.
	RunComplete
	// RunStopped means the run was aborted by an emergency stop.
	RunStopped
)

func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunActive:
		return "running"
	case RunPaused:
		return "paused"
	case RunComplete:
		return "complete"
	case RunStopped:
		return "stopped"
	}
	return "unknown"
}

// PositioningMode is the last G90/G91 seen in the program. The motion
// controller treats axis words as move lengths either way; the mode is
// shown to the operator.
type PositioningMode int

const (
	ModeAbsolute PositioningMode = iota
	ModeRelative
)

func (m PositioningMode) String() string {
	if m == ModeRelative {
		return "REL"
	}
	return "ABS"
}
