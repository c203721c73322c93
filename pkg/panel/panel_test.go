package panel

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Banz520/CNCETI/pkg/app"
)

func TestKeypadBuffer(t *testing.T) {
	p := New()
	_, ok := p.PollKey()
	assert.False(t, ok)

	for i := 0; i < keyBuffer; i++ {
		require.True(t, p.Press('1'))
	}
	assert.False(t, p.Press('2'), "full buffer drops")

	k, ok := p.PollKey()
	assert.True(t, ok)
	assert.Equal(t, byte('1'), k)
}

func TestDisplaySnapshot(t *testing.T) {
	p := New()
	p.ShowContext(app.View{Context: app.Executing, Title: "Executing"})
	p.UpdateLive(app.Live{Line: "G1 X1"})
	v, l, has := p.Snapshot()
	assert.Equal(t, "Executing", v.Title)
	assert.Equal(t, "G1 X1", l.Line)
	assert.True(t, has)

	p.ShowContext(app.View{Context: app.MainMenu})
	_, _, has = p.Snapshot()
	assert.False(t, has)
}

func TestKeyFor(t *testing.T) {
	cases := map[string]byte{
		"1": '1', "0": '0', "*": '*', "#": '#',
		"a": 'A', "d": 'D', "A": 'A',
		"up": '8', "down": '2', "enter": '5', "esc": '*',
	}
	for in, want := range cases {
		got, ok := keyFor(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"x", "e", "tab", "ctrl+x"} {
		_, ok := keyFor(in)
		assert.False(t, ok, in)
	}
}

func TestModelForwardsKeys(t *testing.T) {
	p := New()
	m := newModel(p)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'3'}})
	assert.Nil(t, cmd)
	k, ok := p.PollKey()
	require.True(t, ok)
	assert.Equal(t, byte('3'), k)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelRefresh(t *testing.T) {
	p := New()
	p.ShowContext(app.View{Context: app.MainMenu, Title: "CNC", Items: []string{"1 Disk", "2 USB"}, Selected: -1})
	m := newModel(p)

	next, cmd := m.Update(refreshMsg{})
	assert.NotNil(t, cmd)
	out := next.View()
	assert.Contains(t, out, "CNC")
	assert.Contains(t, out, "2 USB")
}

func TestRenderBrowseSelection(t *testing.T) {
	out := render(app.View{
		Context:  app.BrowseDisk,
		Title:    "Disk",
		Items:    []string{"a.gcode", "b.gcode"},
		Selected: 1,
	}, app.Live{}, false, 80)
	assert.Contains(t, out, "> b.gcode")
	assert.Contains(t, out, "  a.gcode")
	assert.Contains(t, out, "5 open")
}

func TestRenderExecution(t *testing.T) {
	live := app.Live{
		FileName: "job.gcode",
		Line:     "G1 X10 F500",
		Progress: 50,
		State:    app.RunActive,
		Mode:     app.ModeRelative,
	}
	live.Axes[0] = app.AxisLive{Name: "x", Origin: 1, Position: 2.5, Destination: 11}
	out := render(app.View{Context: app.Executing, Title: "Executing"}, live, true, 100)

	assert.Contains(t, out, "job.gcode")
	assert.Contains(t, out, "G1 X10 F500")
	assert.Contains(t, out, "mode REL")
	assert.Contains(t, out, strings.Repeat("#", 15)+strings.Repeat(".", 15))
	assert.Contains(t, out, "11.000")

	waiting := render(app.View{Context: app.Executing, Title: "Executing"}, app.Live{}, false, 100)
	assert.Contains(t, waiting, "waiting")
}

func TestProgressBarClamps(t *testing.T) {
	assert.Contains(t, progressBar(-5), "  0%")
	assert.Contains(t, progressBar(150), "100%")
}
