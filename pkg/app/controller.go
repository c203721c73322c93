// Copyright (C) 2026  CNCETI contributors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package app is the operator-facing state machine of the control core.
//
// A Controller owns the current screen (Context), dispatches keypad
// input, and while executing pulls one program line at a time into the
// motion controller. Update is called once per control loop iteration
// and never blocks: input is polled once, motion is ticked, and a new
// line is pulled only when the previous command has finished.
package app

import (
	"fmt"
	"time"

	"github.com/Banz520/CNCETI/pkg/config"
	"github.com/Banz520/CNCETI/pkg/gcode"
	"github.com/Banz520/CNCETI/pkg/log"
	"github.com/Banz520/CNCETI/pkg/metrics"
	"github.com/Banz520/CNCETI/pkg/motion"
	"github.com/Banz520/CNCETI/pkg/program"
)

// ProgramSource is the subset of *program.Source the controller drives.
type ProgramSource interface {
	Initialize() bool
	Present(program.Device) bool
	SelectDevice(program.Device) bool
	ActiveDevice() program.Device
	Scan(dir string) bool
	ClearListing()
	Names() []string
	Selected() int
	Navigate(dir int)
	OpenByIndex(i int) bool
	OpenByName(name string) bool
	Close()
	IsOpen() bool
	OpenName() string
	ReadLineNonBlocking() (string, bool)
	AtEOF() bool
	Restart() bool
	ProgressPercent() int
}

// Motion is the subset of *motion.Controller the controller drives.
type Motion interface {
	Submit(gcode.Command) bool
	Tick(now time.Duration)
	IsBusy() bool
	Position() [motion.NumAxes]float64
	StepsFor(i int, length float64) int64
	StepsPerMM(i int) float64
	TotalSteps(i int) uint64
	EmergencyStop()
}

// Options configures a Controller.
type Options struct {
	Keypad  Keypad
	Display Display
	// Machine is shown on the settings screen.
	Machine *config.MachineConfig
	// ScanPath is the directory listed when browsing.
	ScanPath string
	Metrics  *metrics.CoreMetrics
}

// Controller is the top-level state machine. It is driven from a single
// goroutine.
type Controller struct {
	src     ProgramSource
	motion  Motion
	keys    Keypad
	display Display
	machine *config.MachineConfig
	path    string
	metrics *metrics.CoreMetrics
	logger  *log.Logger

	ctx     Context
	present map[program.Device]bool
	message string

	// run state, valid while executing
	state    RunState
	awaiting bool
	mode     PositioningMode
	line     string
	lastName string
	lastDev  program.Device
	origin   [motion.NumAxes]float64
	dest     [motion.NumAxes]float64
}

// New returns a Controller in MAIN_MENU.
func New(src ProgramSource, m Motion, opts Options) *Controller {
	if opts.Keypad == nil {
		opts.Keypad = NoKeys{}
	}
	if opts.Display == nil {
		opts.Display = NullDisplay{}
	}
	if opts.Machine == nil {
		opts.Machine = config.DefaultMachine()
	}
	if opts.ScanPath == "" {
		opts.ScanPath = "/"
	}
	return &Controller{
		src:     src,
		motion:  m,
		keys:    opts.Keypad,
		display: opts.Display,
		machine: opts.Machine,
		path:    opts.ScanPath,
		metrics: opts.Metrics,
		logger:  log.GetLogger("app"),
		ctx:     MainMenu,
		present: make(map[program.Device]bool),
	}
}

// Start initializes storage, records which devices respond and shows the
// main menu. It returns false when no device is available; the menu is
// shown either way.
func (c *Controller) Start() bool {
	ok := c.src.Initialize()
	c.CheckDevices()
	if ok {
		c.logger.Info("started on %s", c.src.ActiveDevice())
	} else {
		c.message = "no storage device"
	}
	c.show()
	return ok
}

// Context returns the current context.
func (c *Controller) Context() Context { return c.ctx }

// RunState returns the state of the current run.
func (c *Controller) RunState() RunState { return c.state }

// Mode returns the positioning mode last set by the program.
func (c *Controller) Mode() PositioningMode { return c.mode }

// Finished reports whether the run has ended by completion or stop.
func (c *Controller) Finished() bool {
	return c.state == RunComplete || c.state == RunStopped
}

// DevicePresent reports the result of the last presence check for d.
func (c *Controller) DevicePresent(d program.Device) bool { return c.present[d] }

// CheckDevices probes both devices. Probing is skipped while executing so
// it never interleaves with program reads.
func (c *Controller) CheckDevices() {
	if c.ctx == Executing {
		return
	}
	changed := false
	for _, d := range []program.Device{program.DeviceDisk, program.DeviceMassStorage} {
		p := c.src.Present(d)
		if c.present[d] != p {
			changed = true
			c.logger.WithField("device", d.String()).Info("present: %v", p)
		}
		c.present[d] = p
		c.metrics.SetDevicePresent(d.String(), p)
	}
	if changed && c.ctx == MainMenu {
		c.show()
	}
}

// Update runs one control loop iteration at monotonic time now.
func (c *Controller) Update(now time.Duration) {
	start := time.Now()
	if key, ok := c.keys.PollKey(); ok {
		c.HandleKey(key)
	}
	c.motion.Tick(now)
	if c.ctx == Executing {
		c.pull()
		c.display.UpdateLive(c.Live())
	}
	if c.metrics != nil {
		c.sample(time.Since(start))
	}
}

func (c *Controller) sample(elapsed time.Duration) {
	pos := c.motion.Position()
	axes := make([]metrics.AxisSample, motion.NumAxes)
	for i := range axes {
		axes[i] = metrics.AxisSample{
			Name:     c.machine.Axes[i].Name,
			Position: pos[i],
			Steps:    c.motion.TotalSteps(i),
		}
	}
	c.metrics.Sample(c.motion.IsBusy(), float64(c.src.ProgressPercent()), axes, elapsed)
}

// HandleKey dispatches one key event.
func (c *Controller) HandleKey(key byte) {
	if !IsKey(key) {
		c.logger.Debug("ignored key %q", key)
		return
	}
	if key == '*' {
		if c.ctx != MainMenu {
			c.setContext(MainMenu)
		}
		return
	}
	switch c.ctx {
	case MainMenu:
		switch key {
		case '1':
			c.setContext(BrowseDisk)
		case '2':
			c.setContext(BrowseMassStorage)
		case '3':
			c.setContext(Executing)
		case '4':
			c.setContext(Settings)
		}
	case BrowseDisk, BrowseMassStorage:
		switch key {
		case '2':
			c.src.Navigate(+1)
			c.show()
		case '8':
			c.src.Navigate(-1)
			c.show()
		case '5', '#':
			c.openSelected()
		case '0':
			c.setContext(MainMenu)
		}
	case Executing:
		switch key {
		case '0':
			c.setContext(MainMenu)
		case '1':
			c.TogglePause()
		case 'D':
			c.EmergencyStop()
		case 'A':
			c.Restart()
		}
	case Settings:
		if key == '0' {
			c.setContext(MainMenu)
		}
	}
}

func (c *Controller) openSelected() {
	if !c.src.OpenByIndex(c.src.Selected()) {
		c.message = "cannot open file"
		c.show()
		return
	}
	c.setContext(Executing)
}

// OpenProgram selects device d, finds name in the scan directory and
// starts executing it.
func (c *Controller) OpenProgram(d program.Device, name string) bool {
	if c.ctx != MainMenu {
		c.setContext(MainMenu)
	}
	if !c.src.SelectDevice(d) || !c.src.Scan(c.path) || !c.src.OpenByName(name) {
		c.src.ClearListing()
		c.logger.WithField("device", d.String()).Warn("cannot open %s", name)
		return false
	}
	c.src.ClearListing()
	return c.setContext(Executing)
}

// setContext performs the exit actions of the current context and the
// entry actions of next. Entering a browser that cannot be listed falls
// back to MAIN_MENU and returns false.
func (c *Controller) setContext(next Context) bool {
	prev := c.ctx
	if next == prev {
		return true
	}
	if prev.isBrowse() {
		c.src.ClearListing()
	}
	if prev == Executing {
		c.endRun()
	}
	c.message = ""

	switch next {
	case BrowseDisk, BrowseMassStorage:
		d := program.DeviceDisk
		if next == BrowseMassStorage {
			d = program.DeviceMassStorage
		}
		if !c.src.SelectDevice(d) || !c.src.Scan(c.path) {
			c.src.ClearListing()
			c.ctx = MainMenu
			c.message = fmt.Sprintf("no programs on %s", d)
			c.logger.WithField("device", d.String()).Info("browse unavailable")
			c.show()
			return false
		}
	case Executing:
		c.beginRun()
	}

	c.ctx = next
	c.logger.Debug("%s -> %s", prev, next)
	c.show()
	return true
}

func (c *Controller) beginRun() {
	c.awaiting = false
	c.line = ""
	c.mode = ModeAbsolute
	c.resetTriplets()
	if c.src.IsOpen() {
		c.state = RunActive
		c.lastName = c.src.OpenName()
		c.lastDev = c.src.ActiveDevice()
		c.logger.Info("running %s", c.lastName)
	} else {
		c.state = RunIdle
	}
}

func (c *Controller) endRun() {
	if c.state == RunActive || c.state == RunPaused {
		c.logger.Info("run stopped by operator")
	}
	c.src.Close()
	c.state = RunIdle
	c.awaiting = false
	c.line = ""
}

func (c *Controller) resetTriplets() {
	pos := c.motion.Position()
	c.origin = pos
	c.dest = pos
}

// pull advances the run by at most one program line.
func (c *Controller) pull() {
	if c.state != RunActive || c.motion.IsBusy() {
		return
	}
	if !c.src.IsOpen() {
		c.state = RunStopped
		c.logger.Warn("program file lost")
		return
	}
	if c.awaiting {
		c.awaiting = false
		c.origin = c.dest
	}

	text, ok := c.src.ReadLineNonBlocking()
	if !ok {
		if c.src.AtEOF() {
			c.complete()
		}
		return
	}

	cmd, res, err := gcode.ParseLine(text)
	c.metrics.LineRead(res == gcode.Rejected)
	switch res {
	case gcode.Rejected:
		c.logger.WithError(err).Debug("skipped line")
		return
	case gcode.NoOp:
		return
	}

	c.line = text
	opcode := fmt.Sprintf("G%d", cmd.Opcode)
	if !c.motion.Submit(cmd) {
		c.metrics.Submitted(opcode, false)
		c.logger.Debug("skipped %s: not executable", opcode)
		return
	}
	c.metrics.Submitted(opcode, true)
	c.awaiting = true

	switch cmd.Opcode {
	case gcode.Absolute:
		c.mode = ModeAbsolute
	case gcode.Relative:
		c.mode = ModeRelative
	}
	if cmd.IsMotion() {
		lengths := [motion.NumAxes]float64{cmd.X, cmd.Y, cmd.Z}
		for i, l := range lengths {
			if spm := c.motion.StepsPerMM(i); spm > 0 {
				c.dest[i] = c.origin[i] + float64(c.motion.StepsFor(i, l))/spm
			}
		}
	}
}

// complete ends the run at end of file and releases the file.
func (c *Controller) complete() {
	c.state = RunComplete
	c.src.Close()
	c.metrics.ProgramDone()
	c.logger.Info("program %s complete", c.lastName)
}

// TogglePause stops or resumes pulling new lines. A command already
// running is allowed to finish.
func (c *Controller) TogglePause() {
	switch c.state {
	case RunActive:
		c.state = RunPaused
		c.logger.Info("paused")
	case RunPaused:
		c.state = RunActive
		c.logger.Info("resumed")
	}
}

// EmergencyStop halts motion immediately and aborts the run. The
// controller stays in its current context.
func (c *Controller) EmergencyStop() {
	c.motion.EmergencyStop()
	c.metrics.EmergencyStop()
	c.awaiting = false
	if c.ctx == Executing && c.state != RunIdle {
		c.state = RunStopped
	}
	c.dest = c.motion.Position()
	c.logger.Warn("emergency stop")
}

// Restart runs the current program again from its first line. It is
// refused while motion is in progress.
func (c *Controller) Restart() bool {
	if c.ctx != Executing || c.motion.IsBusy() || c.lastName == "" {
		return false
	}
	ok := false
	if c.src.IsOpen() {
		ok = c.src.Restart()
	} else {
		ok = c.src.SelectDevice(c.lastDev) && c.src.Scan(c.path) && c.src.OpenByName(c.lastName)
		c.src.ClearListing()
	}
	if !ok {
		c.logger.Warn("restart of %s failed", c.lastName)
		c.state = RunStopped
		return false
	}
	c.state = RunActive
	c.awaiting = false
	c.line = ""
	c.resetTriplets()
	c.logger.Info("restarted %s", c.lastName)
	return true
}

// Live returns the execution fields.
func (c *Controller) Live() Live {
	pos := c.motion.Position()
	l := Live{
		Line:     c.line,
		Progress: c.src.ProgressPercent(),
		State:    c.state,
		Mode:     c.mode,
		Busy:     c.motion.IsBusy(),
		FileName: c.lastName,
		Device:   c.lastDev,
	}
	if c.state == RunComplete {
		l.Progress = 100
	}
	for i := range l.Axes {
		l.Axes[i] = AxisLive{
			Name:        c.machine.Axes[i].Name,
			Origin:      c.origin[i],
			Position:    pos[i],
			Destination: c.dest[i],
		}
	}
	return l
}

// View returns the screen for the current context.
func (c *Controller) View() View {
	v := View{Context: c.ctx, Selected: -1, Message: c.message}
	switch c.ctx {
	case MainMenu:
		v.Title = "CNC"
		v.Items = []string{
			"1 Disk" + presence(c.present[program.DeviceDisk]),
			"2 USB" + presence(c.present[program.DeviceMassStorage]),
			"3 Run",
			"4 Settings",
		}
	case BrowseDisk, BrowseMassStorage:
		v.Title = "Disk"
		if c.ctx == BrowseMassStorage {
			v.Title = "USB"
		}
		v.Items = c.src.Names()
		v.Selected = c.src.Selected()
	case Executing:
		v.Title = "Executing"
		v.FileName = c.lastName
		if c.state == RunIdle {
			v.FileName = ""
			v.Message = "no program open"
		}
	case Settings:
		v.Title = "Settings"
		v.Items = settingsItems(c.machine)
	}
	return v
}

func (c *Controller) show() {
	c.display.ShowContext(c.View())
}

func presence(ok bool) string {
	if ok {
		return " [ready]"
	}
	return " [absent]"
}

func settingsItems(m *config.MachineConfig) []string {
	items := make([]string, 0, 8)
	for _, a := range m.Axes {
		items = append(items, fmt.Sprintf("%s: %g steps/mm step=%s dir=%s en=%s",
			a.Name, a.StepsPerMM, a.StepPin, a.DirPin, a.EnablePin))
	}
	items = append(items,
		fmt.Sprintf("rapid step: %v", m.Motion.RapidStepInterval),
		fmt.Sprintf("default step: %v", m.Motion.DefaultStepInterval),
		fmt.Sprintf("min step: %v", m.Motion.MinStepInterval),
		fmt.Sprintf("disk: %s", orNone(m.Storage.DiskRoot)),
		fmt.Sprintf("usb: %s @ %d", orNone(m.Storage.MassStorageDevice), m.Storage.MassStorageBaud),
	)
	return items
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
