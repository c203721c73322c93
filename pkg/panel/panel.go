// Package panel renders the operator front panel on a host terminal.
//
// The control core talks to a Panel only through app.Keypad and
// app.Display, and neither call blocks: key presses are buffered in a
// channel and the latest screen state is kept for the terminal program,
// which redraws on its own refresh tick.
package panel

import (
	"context"
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Banz520/CNCETI/pkg/app"
)

const (
	keyBuffer   = 16
	refreshRate = 50 * time.Millisecond
)

// Panel is a keypad and display backed by a terminal UI.
type Panel struct {
	keys chan byte

	mu      sync.Mutex
	view    app.View
	live    app.Live
	hasLive bool

	done     chan struct{}
	doneOnce sync.Once
}

// New returns a Panel. Call Run to show it.
func New() *Panel {
	return &Panel{
		keys: make(chan byte, keyBuffer),
		done: make(chan struct{}),
	}
}

// PollKey implements app.Keypad.
func (p *Panel) PollKey() (byte, bool) {
	select {
	case k := <-p.keys:
		return k, true
	default:
		return 0, false
	}
}

// Press queues a key. It returns false when the buffer is full.
func (p *Panel) Press(k byte) bool {
	select {
	case p.keys <- k:
		return true
	default:
		return false
	}
}

// ShowContext implements app.Display.
func (p *Panel) ShowContext(v app.View) {
	p.mu.Lock()
	p.view = v
	if v.Context != app.Executing {
		p.hasLive = false
	}
	p.mu.Unlock()
}

// UpdateLive implements app.Display.
func (p *Panel) UpdateLive(l app.Live) {
	p.mu.Lock()
	p.live = l
	p.hasLive = true
	p.mu.Unlock()
}

// Snapshot returns the latest screen state.
func (p *Panel) Snapshot() (app.View, app.Live, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view, p.live, p.hasLive
}

// Done is closed when the operator quits the terminal program.
func (p *Panel) Done() <-chan struct{} {
	return p.done
}

// Run shows the panel until the operator quits or ctx is done.
func (p *Panel) Run(ctx context.Context, opts ...tea.ProgramOption) error {
	defer p.doneOnce.Do(func() { close(p.done) })
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(newModel(p), opts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
