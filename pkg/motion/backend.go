package motion

import (
	"github.com/Banz520/CNCETI/pkg/config"
	"github.com/Banz520/CNCETI/pkg/log"
)

// PinWriter drives a digital output. Levels are physical.
type PinWriter interface {
	WritePin(pin string, high bool)
}

// StepperBackend is the per-axis output stage.
type StepperBackend interface {
	// Step emits one complete pulse.
	Step()
	// SetDirection selects travel direction; true means negative.
	SetDirection(negative bool)
	// Enable asserts or releases the driver enable output.
	Enable(on bool)
	// Stop leaves the step output idle.
	Stop()
	Name() string
}

// PinBackend drives step, direction and enable pins through a PinWriter.
type PinBackend struct {
	pins   PinWriter
	step   config.Pin
	dir    config.Pin
	enable config.Pin
}

// NewPinBackend returns a backend for one axis.
func NewPinBackend(pins PinWriter, step, dir, enable config.Pin) *PinBackend {
	b := &PinBackend{pins: pins, step: step, dir: dir, enable: enable}
	b.write(b.step, false)
	b.write(b.dir, false)
	b.write(b.enable, false)
	return b
}

func (b *PinBackend) write(p config.Pin, active bool) {
	if p.IsZero() {
		return
	}
	b.pins.WritePin(p.Name, active != p.Invert)
}

// Step implements StepperBackend.
func (b *PinBackend) Step() {
	b.write(b.step, true)
	b.write(b.step, false)
}

// SetDirection implements StepperBackend.
func (b *PinBackend) SetDirection(negative bool) { b.write(b.dir, negative) }

// Enable implements StepperBackend.
func (b *PinBackend) Enable(on bool) { b.write(b.enable, on) }

// Stop implements StepperBackend.
func (b *PinBackend) Stop() { b.write(b.step, false) }

// Name implements StepperBackend.
func (b *PinBackend) Name() string { return "pins" }

// NullPins discards every write.
type NullPins struct{}

// WritePin implements PinWriter.
func (NullPins) WritePin(string, bool) {}

// LogPins logs level changes at DEBUG. Repeated writes of the same level
// are suppressed so step pulses do not flood the log.
type LogPins struct {
	logger *log.Logger
	levels map[string]bool
}

// NewLogPins returns a PinWriter that logs to l.
func NewLogPins(l *log.Logger) *LogPins {
	return &LogPins{logger: l, levels: make(map[string]bool)}
}

// WritePin implements PinWriter.
func (p *LogPins) WritePin(pin string, high bool) {
	if prev, ok := p.levels[pin]; ok && prev == high {
		return
	}
	p.levels[pin] = high
	if p.logger.GetLevel() == log.DEBUG {
		p.logger.WithField("pin", pin).Debug("level %v", high)
	}
}
