// Control core metrics
//
// Copyright (C) 2026  CNCETI contributors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"time"
)

// CoreMetrics holds the series exported by the control loop. A nil
// *CoreMetrics is valid and records nothing.
type CoreMetrics struct {
	LinesRead         *Counter
	LinesRejected     *Counter
	CommandsSubmitted *Counter
	CommandsRefused   *Counter
	ProgramsCompleted *Counter
	EmergencyStops    *Counter
	Steps             *Counter

	MotionBusy      *Gauge
	ProgramProgress *Gauge
	AxisPosition    *Gauge
	DevicePresent   *Gauge

	LoopDuration *Histogram

	registry *Registry
}

// NewCoreMetrics creates and registers the control loop series.
func NewCoreMetrics() *CoreMetrics {
	m := &CoreMetrics{
		LinesRead: NewCounter("cnceti_program_lines_total",
			"Program lines delivered to the interpreter"),
		LinesRejected: NewCounter("cnceti_program_lines_rejected_total",
			"Program lines the interpreter rejected"),
		CommandsSubmitted: NewCounter("cnceti_commands_submitted_total",
			"Commands accepted by the motion controller, by opcode"),
		CommandsRefused: NewCounter("cnceti_commands_refused_total",
			"Commands the motion controller refused, by opcode"),
		ProgramsCompleted: NewCounter("cnceti_programs_completed_total",
			"Programs run to end of file"),
		EmergencyStops: NewCounter("cnceti_emergency_stops_total",
			"Operator emergency stops"),
		Steps: NewCounter("cnceti_steps_total",
			"Step pulses emitted per axis"),
		MotionBusy: NewGauge("cnceti_motion_busy",
			"1 while a motion command is running"),
		ProgramProgress: NewGauge("cnceti_program_progress_percent",
			"Read position in the open program"),
		AxisPosition: NewGauge("cnceti_axis_position",
			"Machine position per axis in length units"),
		DevicePresent: NewGauge("cnceti_device_present",
			"1 when the storage device answered the last presence check"),
		LoopDuration: NewHistogram("cnceti_loop_iteration_seconds",
			"Duration of one control loop iteration", LoopBuckets()),
		registry: NewRegistry(),
	}
	m.registry.MustRegister(
		m.LinesRead, m.LinesRejected, m.CommandsSubmitted, m.CommandsRefused,
		m.ProgramsCompleted, m.EmergencyStops, m.Steps,
		m.MotionBusy, m.ProgramProgress, m.AxisPosition, m.DevicePresent,
		m.LoopDuration,
	)
	return m
}

// Registry returns the registry holding the core series.
func (m *CoreMetrics) Registry() *Registry {
	return m.registry
}

// Gather renders the core series.
func (m *CoreMetrics) Gather() string {
	if m == nil {
		return ""
	}
	return m.registry.Gather()
}

// LineRead records one line delivered by the program source.
func (m *CoreMetrics) LineRead(rejected bool) {
	if m == nil {
		return
	}
	m.LinesRead.Inc(nil)
	if rejected {
		m.LinesRejected.Inc(nil)
	}
}

// Submitted records the controller's answer to a command.
func (m *CoreMetrics) Submitted(opcode string, accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.CommandsSubmitted.Inc(Labels{"opcode": opcode})
	} else {
		m.CommandsRefused.Inc(Labels{"opcode": opcode})
	}
}

// ProgramDone records a program reaching end of file.
func (m *CoreMetrics) ProgramDone() {
	if m == nil {
		return
	}
	m.ProgramsCompleted.Inc(nil)
}

// EmergencyStop records an operator emergency stop.
func (m *CoreMetrics) EmergencyStop() {
	if m == nil {
		return
	}
	m.EmergencyStops.Inc(nil)
}

// SetDevicePresent records the outcome of a presence check.
func (m *CoreMetrics) SetDevicePresent(device string, present bool) {
	if m == nil {
		return
	}
	m.DevicePresent.SetBool(Labels{"device": device}, present)
}

// AxisSample is the per-axis state sampled each iteration.
type AxisSample struct {
	Name     string
	Position float64
	Steps    uint64
}

// Sample records the motion state after one loop iteration. Step totals
// are absolute; the counter is advanced by the difference.
func (m *CoreMetrics) Sample(busy bool, progress float64, axes []AxisSample, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.MotionBusy.SetBool(nil, busy)
	m.ProgramProgress.Set(nil, progress)
	for _, a := range axes {
		l := Labels{"axis": a.Name}
		m.AxisPosition.Set(l, a.Position)
		if prev := m.Steps.Get(l); a.Steps > prev {
			m.Steps.Add(l, a.Steps-prev)
		}
	}
	m.LoopDuration.Observe(nil, elapsed.Seconds())
}
