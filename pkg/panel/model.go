package panel

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Banz520/CNCETI/pkg/app"
)

type refreshMsg time.Time

func refreshCmd() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

type model struct {
	panel   *Panel
	view    app.View
	live    app.Live
	hasLive bool
	width   int
}

func newModel(p *Panel) model {
	return model{panel: p, width: 60}
}

func (m model) Init() tea.Cmd {
	return refreshCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		if k, ok := keyFor(msg.String()); ok {
			m.panel.Press(k)
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case refreshMsg:
		m.view, m.live, m.hasLive = m.panel.Snapshot()
		return m, refreshCmd()
	}
	return m, nil
}

func (m model) View() string {
	return render(m.view, m.live, m.hasLive, m.width)
}

// keyFor maps a terminal key to the keypad alphabet. Arrow keys, enter
// and escape stand in for the browse and back keys.
func keyFor(s string) (byte, bool) {
	switch s {
	case "up":
		return '8', true
	case "down":
		return '2', true
	case "enter":
		return '5', true
	case "esc", "backspace":
		return '*', true
	case "a", "b", "c", "d":
		return s[0] - 'a' + 'A', true
	}
	if len(s) == 1 && app.IsKey(s[0]) {
		return s[0], true
	}
	return 0, false
}
