package panel

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Banz520/CNCETI/pkg/app"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const progressWidth = 30

func render(v app.View, l app.Live, hasLive bool, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(v.Title))
	b.WriteString("\n\n")

	switch v.Context {
	case app.Executing:
		b.WriteString(renderExecution(v, l, hasLive))
	default:
		for i, item := range v.Items {
			if i == v.Selected {
				b.WriteString(selectedStyle.Render("> " + item))
			} else {
				b.WriteString("  " + item)
			}
			b.WriteByte('\n')
		}
	}

	if v.Message != "" {
		b.WriteString("\n" + warnStyle.Render(v.Message) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(helpFor(v.Context)))

	box := boxStyle
	if width > 4 {
		box = box.MaxWidth(width)
	}
	return box.Render(b.String())
}

func renderExecution(v app.View, l app.Live, hasLive bool) string {
	if !hasLive {
		return dimStyle.Render("waiting...") + "\n"
	}
	var b strings.Builder
	name := l.FileName
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(&b, "file  %s (%s)\n", name, l.Device)
	fmt.Fprintf(&b, "state %s  mode %s\n", stateLabel(l.State), l.Mode)
	fmt.Fprintf(&b, "line  %s\n", l.Line)
	b.WriteString(progressBar(l.Progress) + "\n\n")

	rows := []string{fmt.Sprintf("%-4s %10s %10s %10s", "", "origin", "pos", "dest")}
	for _, a := range l.Axes {
		rows = append(rows, fmt.Sprintf("%-4s %10.3f %10.3f %10.3f",
			strings.ToUpper(a.Name), a.Origin, a.Position, a.Destination))
	}
	b.WriteString(strings.Join(rows, "\n"))
	b.WriteByte('\n')
	return b.String()
}

func stateLabel(s app.RunState) string {
	switch s {
	case app.RunStopped:
		return warnStyle.Render(s.String())
	case app.RunComplete:
		return okStyle.Render(s.String())
	}
	return s.String()
}

func progressBar(pct int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * progressWidth / 100
	return fmt.Sprintf("[%s%s] %3d%%",
		strings.Repeat("#", filled), strings.Repeat(".", progressWidth-filled), pct)
}

func helpFor(c app.Context) string {
	switch c {
	case app.MainMenu:
		return "1-4 select  q quit"
	case app.BrowseDisk, app.BrowseMassStorage:
		return "2/8 move  5 open  0 back"
	case app.Executing:
		return "0 stop  1 pause  A restart  D e-stop"
	}
	return "0 back  * menu"
}
