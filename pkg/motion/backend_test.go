package motion

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Banz520/CNCETI/pkg/config"
	"github.com/Banz520/CNCETI/pkg/gcode"
	"github.com/Banz520/CNCETI/pkg/log"
)

type pinWrite struct {
	pin  string
	high bool
}

type recordingPins struct {
	writes []pinWrite
	level  map[string]bool
}

func newRecordingPins() *recordingPins {
	return &recordingPins{level: make(map[string]bool)}
}

func (p *recordingPins) WritePin(pin string, high bool) {
	p.writes = append(p.writes, pinWrite{pin, high})
	p.level[pin] = high
}

func (p *recordingPins) pulses(pin string) int {
	n := 0
	for _, w := range p.writes {
		if w.pin == pin && w.high {
			n++
		}
	}
	return n
}

func TestPinBackendLevels(t *testing.T) {
	pins := newRecordingPins()
	b := NewPinBackend(pins,
		config.Pin{Name: "62"},
		config.Pin{Name: "63"},
		config.Pin{Name: "61", Invert: true})

	// Idle: step low, direction positive, enable released (active low).
	assert.False(t, pins.level["62"])
	assert.False(t, pins.level["63"])
	assert.True(t, pins.level["61"])

	b.Enable(true)
	assert.False(t, pins.level["61"])
	b.SetDirection(true)
	assert.True(t, pins.level["63"])
	b.Step()
	assert.False(t, pins.level["62"])
	assert.Equal(t, 1, pins.pulses("62"))
}

func TestPinBackendSkipsUnsetPins(t *testing.T) {
	pins := newRecordingPins()
	b := NewPinBackend(pins, config.Pin{Name: "1"}, config.Pin{}, config.Pin{})
	b.Enable(true)
	b.SetDirection(true)
	for _, w := range pins.writes {
		assert.Equal(t, "1", w.pin)
	}
}

func TestControllerDrivesPins(t *testing.T) {
	pins := newRecordingPins()
	c := NewController(DefaultConfig(), pins)

	require.True(t, c.Submit(gcode.Command{Opcode: gcode.Linear, X: -1, Feed: 1200}))
	assert.True(t, pins.level["63"], "X direction")
	assert.True(t, pins.level["61"], "X enable")
	assert.False(t, pins.level["58"], "Y stays disabled")

	runUntilIdle(t, c, 0, 100*time.Microsecond)
	assert.Equal(t, 80, pins.pulses("62"))
	assert.Equal(t, 0, pins.pulses("60"))
	assert.False(t, pins.level["61"], "X released")
}

func TestLogPinsSuppressesRepeats(t *testing.T) {
	var buf bytes.Buffer
	l := log.New("pins")
	l.SetWriter(&buf)
	l.SetColorize(false)
	l.SetLevel(log.DEBUG)

	p := NewLogPins(l)
	p.WritePin("5", true)
	p.WritePin("5", true)
	p.WritePin("5", false)
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	NullPins{}.WritePin("5", true)
}
