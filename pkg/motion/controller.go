// Copyright (C) 2026  CNCETI contributors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package motion turns interpreted G-code commands into step pulses on
// three independent axes.
//
// The controller is polled: Tick is called from the control loop with
// the current monotonic time and emits at most one step per axis. Each
// axis keeps its own clock, so axes moving at different rates finish at
// different times and the command completes when the last one stops.
package motion

import (
	"math"
	"time"

	"github.com/Banz520/CNCETI/pkg/config"
	"github.com/Banz520/CNCETI/pkg/gcode"
	"github.com/Banz520/CNCETI/pkg/log"
)

// NumAxes is the number of axes driven.
const NumAxes = 3

// AxisConfig describes one axis.
type AxisConfig struct {
	Name       string
	StepPin    config.Pin
	DirPin     config.Pin
	EnablePin  config.Pin
	StepsPerMM float64
}

// Config holds the motion parameters.
type Config struct {
	Axes [NumAxes]AxisConfig

	// RapidInterval is the step interval for G0.
	RapidInterval time.Duration
	// DefaultInterval is used for G1 without a usable feed rate.
	DefaultInterval time.Duration
	// MinInterval bounds the step rate.
	MinInterval time.Duration
}

// DefaultConfig returns the stock machine parameters.
func DefaultConfig() Config {
	m := config.DefaultMachine()
	return FromMachine(m)
}

// FromMachine extracts the motion parameters from a machine config.
func FromMachine(m *config.MachineConfig) Config {
	var cfg Config
	for i, a := range m.Axes {
		cfg.Axes[i] = AxisConfig{
			Name:       a.Name,
			StepPin:    a.StepPin,
			DirPin:     a.DirPin,
			EnablePin:  a.EnablePin,
			StepsPerMM: a.StepsPerMM,
		}
	}
	cfg.RapidInterval = m.Motion.RapidStepInterval
	cfg.DefaultInterval = m.Motion.DefaultStepInterval
	cfg.MinInterval = m.Motion.MinStepInterval
	return cfg
}

// AxisState is a snapshot of one axis.
type AxisState struct {
	Name      string
	Target    int64
	Remaining int64
	Interval  time.Duration
	Negative  bool
	Running   bool
	LastStep  time.Duration
	// Position is the machine position in steps.
	Position int64
}

type axis struct {
	AxisState
	spm     float64
	primed  bool
	backend StepperBackend
	total   uint64
}

// Controller generates steps for three axes. It is not safe for
// concurrent use; the control loop owns it.
type Controller struct {
	cfg    Config
	axes   [NumAxes]axis
	busy   bool
	logger *log.Logger
}

// NewController returns a controller driving pins.
func NewController(cfg Config, pins PinWriter) *Controller {
	var backends [NumAxes]StepperBackend
	for i, a := range cfg.Axes {
		backends[i] = NewPinBackend(pins, a.StepPin, a.DirPin, a.EnablePin)
	}
	return NewControllerWithBackends(cfg, backends)
}

// NewControllerWithBackends returns a controller over explicit backends.
func NewControllerWithBackends(cfg Config, backends [NumAxes]StepperBackend) *Controller {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 50 * time.Microsecond
	}
	if cfg.RapidInterval <= 0 {
		cfg.RapidInterval = time.Millisecond
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 10 * time.Millisecond
	}
	c := &Controller{cfg: cfg, logger: log.GetLogger("motion")}
	for i := range c.axes {
		a := &c.axes[i]
		a.Name = cfg.Axes[i].Name
		a.spm = cfg.Axes[i].StepsPerMM
		a.backend = backends[i]
	}
	return c
}

// StepInterval returns the per-step interval for a G1 feed in length
// units per minute on an axis with spm steps per unit.
func (c *Controller) StepInterval(feed, spm float64) time.Duration {
	if feed <= 0 || spm <= 0 {
		return c.clamp(c.cfg.DefaultInterval)
	}
	stepsPerSec := feed / 60 * spm
	us := math.Trunc(1e6 / stepsPerSec)
	return c.clamp(time.Duration(us) * time.Microsecond)
}

func (c *Controller) clamp(d time.Duration) time.Duration {
	if d < c.cfg.MinInterval {
		return c.cfg.MinInterval
	}
	return d
}

// StepsFor converts a move length on axis i to a signed step count,
// truncating toward zero.
func (c *Controller) StepsFor(i int, length float64) int64 {
	return int64(length * c.axes[i].spm)
}

// Submit starts cmd. It returns false while a command is running, when
// the opcode is not executable or when a move does not fit a step count.
func (c *Controller) Submit(cmd gcode.Command) bool {
	if c.busy {
		c.logger.Debug("submit rejected: busy")
		return false
	}
	switch cmd.Opcode {
	case gcode.Rapid, gcode.Linear:
	case gcode.Dwell, gcode.Absolute, gcode.Relative, gcode.Inches, gcode.Millimeter:
		return true
	default:
		c.logger.Debug("submit rejected: G%d not executable", cmd.Opcode)
		return false
	}

	lengths := [NumAxes]float64{cmd.X, cmd.Y, cmd.Z}
	for i := range c.axes {
		if v := math.Abs(lengths[i] * c.axes[i].spm); math.IsNaN(v) || v >= math.MaxInt64 {
			c.logger.WithField("axis", c.axes[i].Name).Warn("submit rejected: %g mm out of range", lengths[i])
			return false
		}
	}
	for i := range c.axes {
		a := &c.axes[i]
		steps := c.StepsFor(i, lengths[i])
		var interval time.Duration
		if cmd.Opcode == gcode.Rapid {
			interval = c.clamp(c.cfg.RapidInterval)
		} else {
			interval = c.StepInterval(cmd.Feed, a.spm)
		}

		a.Negative = steps < 0
		if steps < 0 {
			steps = -steps
		}
		a.Target = steps
		a.Remaining = steps
		a.Interval = interval
		a.primed = false
		a.Running = steps > 0
		a.backend.SetDirection(a.Negative)
		if a.Running {
			a.backend.Enable(true)
			c.busy = true
		}
	}
	if c.busy {
		c.logger.WithFields(log.Fields{
			"x": c.axes[0].Target, "y": c.axes[1].Target, "z": c.axes[2].Target,
		}).Debug("G%d started", cmd.Opcode)
	}
	return true
}

// Tick emits due steps. now is a monotonic timestamp.
func (c *Controller) Tick(now time.Duration) {
	if !c.busy {
		return
	}
	running := false
	for i := range c.axes {
		a := &c.axes[i]
		if !a.Running {
			continue
		}
		if !a.primed {
			a.primed = true
			a.LastStep = now
			running = true
			continue
		}
		if now-a.LastStep >= a.Interval {
			a.backend.Step()
			a.LastStep = now
			a.Remaining--
			a.total++
			if a.Negative {
				a.Position--
			} else {
				a.Position++
			}
			if a.Remaining <= 0 {
				a.Remaining = 0
				a.Running = false
				a.backend.Enable(false)
				continue
			}
		}
		running = true
	}
	if !running {
		c.busy = false
		c.logger.Debug("command complete")
	}
}

// IsBusy reports whether a command is running.
func (c *Controller) IsBusy() bool { return c.busy }

// Axis returns a snapshot of axis i.
func (c *Controller) Axis(i int) AxisState {
	if i < 0 || i >= NumAxes {
		return AxisState{}
	}
	return c.axes[i].AxisState
}

// Position returns the machine position of every axis in length units.
func (c *Controller) Position() [NumAxes]float64 {
	var p [NumAxes]float64
	for i, a := range c.axes {
		if a.spm > 0 {
			p[i] = float64(a.Position) / a.spm
		}
	}
	return p
}

// StepsPerMM returns the scale of axis i.
func (c *Controller) StepsPerMM(i int) float64 {
	if i < 0 || i >= NumAxes {
		return 0
	}
	return c.axes[i].spm
}

// TotalSteps returns the number of steps axis i has emitted since start.
func (c *Controller) TotalSteps(i int) uint64 {
	if i < 0 || i >= NumAxes {
		return 0
	}
	return c.axes[i].total
}

// EmergencyStop halts every axis immediately and releases the enables.
func (c *Controller) EmergencyStop() {
	for i := range c.axes {
		a := &c.axes[i]
		a.backend.Stop()
		a.backend.Enable(false)
		a.Remaining = 0
		a.Running = false
	}
	c.busy = false
	c.logger.Warn("emergency stop")
}
