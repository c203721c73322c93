package config

import (
	"fmt"
	"time"
)

// AxisNames are the section suffixes for the three axes, in axis order.
var AxisNames = [3]string{"x", "y", "z"}

// AxisConfig holds the wiring and calibration of one axis.
type AxisConfig struct {
	Name       string
	StepPin    Pin
	DirPin     Pin
	EnablePin  Pin
	StepsPerMM float64
}

// MotionConfig holds step timing parameters.
type MotionConfig struct {
	RapidStepInterval   time.Duration // per-step delay for G0
	DefaultStepInterval time.Duration // per-step delay for G1 without a usable feed rate
	MinStepInterval     time.Duration // floor for feed-derived delays
}

// StorageConfig holds both storage transports and the listing limits.
type StorageConfig struct {
	DiskRoot          string // directory mounted from the removable disk
	MassStorageDevice string // serial device wired to the mass-storage chip
	MassStorageBaud   int
	ChipTimeout       time.Duration
	ChunkSize         int // bytes read per loop iteration from the chip
	MaxFiles          int
	LineBuffer        int
	ScanPath          string
}

// ControllerConfig holds control loop pacing.
type ControllerConfig struct {
	LoopInterval        time.Duration
	DeviceCheckInterval time.Duration
}

// MachineConfig is the complete machine description.
type MachineConfig struct {
	Axes       [3]AxisConfig
	Motion     MotionConfig
	Storage    StorageConfig
	Controller ControllerConfig

	// Unused lists options present in the file that nothing read.
	Unused []string
}

// DefaultMachine returns the stock wiring of the reference board
// (step/dir/enable on 62/63/61, 60/59/58, 57/56/55) at 80 steps/mm.
func DefaultMachine() *MachineConfig {
	m := &MachineConfig{
		Motion: MotionConfig{
			RapidStepInterval:   1000 * time.Microsecond,
			DefaultStepInterval: 10000 * time.Microsecond,
			MinStepInterval:     50 * time.Microsecond,
		},
		Storage: StorageConfig{
			MassStorageBaud: 9600,
			ChipTimeout:     time.Second,
			ChunkSize:       8,
			MaxFiles:        16,
			LineBuffer:      256,
			ScanPath:        "/",
		},
		Controller: ControllerConfig{
			DeviceCheckInterval: time.Second,
		},
	}
	pins := [3][3]string{{"62", "63", "61"}, {"60", "59", "58"}, {"57", "56", "55"}}
	for i, name := range AxisNames {
		m.Axes[i] = AxisConfig{
			Name:       name,
			StepPin:    Pin{Name: pins[i][0]},
			DirPin:     Pin{Name: pins[i][1]},
			EnablePin:  Pin{Name: pins[i][2]},
			StepsPerMM: 80,
		}
	}
	return m
}

// LoadMachine reads a machine file and overlays it on DefaultMachine.
func LoadMachine(path string) (*MachineConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return FromConfig(cfg)
}

// FromConfig builds a MachineConfig from parsed sections. Missing sections
// and options keep their defaults.
func FromConfig(cfg *Config) (*MachineConfig, error) {
	m := DefaultMachine()

	for i, name := range AxisNames {
		sec := cfg.GetSectionOptional("axis_" + name)
		ax := &m.Axes[i]
		var err error
		if ax.StepPin, err = sec.GetPin("step_pin", ax.StepPin); err != nil {
			return nil, err
		}
		if ax.DirPin, err = sec.GetPin("dir_pin", ax.DirPin); err != nil {
			return nil, err
		}
		if ax.EnablePin, err = sec.GetPin("enable_pin", ax.EnablePin); err != nil {
			return nil, err
		}
		if ax.StepsPerMM, err = sec.GetFloatWithBounds("steps_per_mm", FloatBounds{Above: Float(0)}, ax.StepsPerMM); err != nil {
			return nil, err
		}
	}

	motion := cfg.GetSectionOptional("motion")
	var err error
	if m.Motion.RapidStepInterval, err = motion.GetMicros("rapid_step_interval_us", m.Motion.RapidStepInterval); err != nil {
		return nil, err
	}
	if m.Motion.DefaultStepInterval, err = motion.GetMicros("default_step_interval_us", m.Motion.DefaultStepInterval); err != nil {
		return nil, err
	}
	if m.Motion.MinStepInterval, err = motion.GetMicros("min_step_interval_us", m.Motion.MinStepInterval); err != nil {
		return nil, err
	}

	st := cfg.GetSectionOptional("storage")
	if m.Storage.DiskRoot, err = st.Get("disk_root", m.Storage.DiskRoot); err != nil {
		return nil, err
	}
	if m.Storage.MassStorageDevice, err = st.Get("mass_storage_device", m.Storage.MassStorageDevice); err != nil {
		return nil, err
	}
	if m.Storage.MassStorageBaud, err = st.GetIntWithBounds("mass_storage_baud", 9600, 921600, m.Storage.MassStorageBaud); err != nil {
		return nil, err
	}
	if m.Storage.ChipTimeout, err = st.GetMillis("chip_timeout_ms", m.Storage.ChipTimeout); err != nil {
		return nil, err
	}
	if m.Storage.ChunkSize, err = st.GetIntWithBounds("chunk_size", 1, 64, m.Storage.ChunkSize); err != nil {
		return nil, err
	}
	if m.Storage.MaxFiles, err = st.GetIntWithBounds("max_files", 16, 48, m.Storage.MaxFiles); err != nil {
		return nil, err
	}
	if m.Storage.LineBuffer, err = st.GetIntWithBounds("line_buffer", 32, 4096, m.Storage.LineBuffer); err != nil {
		return nil, err
	}
	if m.Storage.ScanPath, err = st.Get("scan_path", m.Storage.ScanPath); err != nil {
		return nil, err
	}

	ctl := cfg.GetSectionOptional("controller")
	if m.Controller.LoopInterval, err = ctl.GetMicros("loop_interval_us", m.Controller.LoopInterval); err != nil {
		return nil, err
	}
	if m.Controller.DeviceCheckInterval, err = ctl.GetMillis("device_check_interval_ms", m.Controller.DeviceCheckInterval); err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.Unused = cfg.UnusedOptions()
	return m, nil
}

// Validate checks constraints that span several options.
func (m *MachineConfig) Validate() error {
	if m.Motion.MinStepInterval <= 0 {
		return NewConfigError("motion", "min_step_interval_us", "must be above 0")
	}
	if m.Motion.RapidStepInterval < m.Motion.MinStepInterval {
		return NewConfigError("motion", "rapid_step_interval_us",
			fmt.Sprintf("must not be below min_step_interval_us (%v)", m.Motion.MinStepInterval))
	}
	if m.Motion.DefaultStepInterval < m.Motion.MinStepInterval {
		return NewConfigError("motion", "default_step_interval_us",
			fmt.Sprintf("must not be below min_step_interval_us (%v)", m.Motion.MinStepInterval))
	}
	seen := make(map[string]string)
	for _, ax := range m.Axes {
		roles := []struct {
			name string
			pin  Pin
		}{{"step_pin", ax.StepPin}, {"dir_pin", ax.DirPin}, {"enable_pin", ax.EnablePin}}
		for _, r := range roles {
			role, pin := r.name, r.pin
			if pin.IsZero() {
				continue
			}
			owner := "axis_" + ax.Name + "." + role
			if prev, ok := seen[pin.Name]; ok {
				return NewConfigError("axis_"+ax.Name, role, fmt.Sprintf("pin %s already used by %s", pin.Name, prev))
			}
			seen[pin.Name] = owner
		}
	}
	return nil
}
