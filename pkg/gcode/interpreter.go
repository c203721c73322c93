// Package gcode interprets single G-code lines for a three-axis machine.
//
// Only the G word and the X, Y, Z and F words are read. Each call is
// independent: the result never depends on earlier lines.
package gcode

import (
	"fmt"
	"strconv"
	"strings"

	cerrors "github.com/Banz520/CNCETI/pkg/errors"
)

// Opcodes recognized by the interpreter.
const (
	Rapid      = 0
	Linear     = 1
	ArcCW      = 2
	ArcCCW     = 3
	Dwell      = 4
	Inches     = 20
	Millimeter = 21
	Absolute   = 90
	Relative   = 91
)

// Command is one interpreted line. Axis values are move lengths and Feed
// is in length units per minute; absent words read as 0.
type Command struct {
	Opcode int
	X      float64
	Y      float64
	Z      float64
	Feed   float64
}

// String renders the command in canonical form.
func (c Command) String() string {
	s := fmt.Sprintf("G%d X%.3f Y%.3f Z%.3f", c.Opcode, c.X, c.Y, c.Z)
	if c.Feed != 0 {
		s += fmt.Sprintf(" F%.0f", c.Feed)
	}
	return s
}

// IsMotion reports whether the command moves the axes.
func (c Command) IsMotion() bool {
	return c.Opcode == Rapid || c.Opcode == Linear
}

// Result classifies a parsed line.
type Result int

const (
	// Rejected lines are malformed or carry an unknown opcode.
	Rejected Result = iota
	// NoOp lines are blank or comments.
	NoOp
	// Accepted lines carry a recognized opcode.
	Accepted
)

func (r Result) String() string {
	switch r {
	case NoOp:
		return "noop"
	case Accepted:
		return "accepted"
	default:
		return "rejected"
	}
}

// Parse interprets line.
func Parse(line string) (Command, Result) {
	cmd, res, _ := ParseLine(line)
	return cmd, res
}

// ParseLine is Parse with the reason for a rejection.
func ParseLine(line string) (Command, Result, error) {
	var cmd Command
	s := strings.ToUpper(strings.TrimSpace(line))
	if s == "" || s[0] == ';' || s[0] == '(' {
		return cmd, NoOp, nil
	}

	cmd.X = wordValue(s, 'X')
	cmd.Y = wordValue(s, 'Y')
	cmd.Z = wordValue(s, 'Z')
	cmd.Feed = wordValue(s, 'F')

	g := strings.IndexByte(s, 'G')
	if g < 0 {
		return cmd, Rejected, cerrors.GCodeParseError(line, "missing G word")
	}
	end := g + 1
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == g+1 {
		return cmd, Rejected, cerrors.GCodeParseError(line, "G word has no number")
	}
	op, err := strconv.Atoi(s[g+1 : end])
	if err != nil {
		return cmd, Rejected, cerrors.GCodeParseError(line, err.Error())
	}
	cmd.Opcode = op

	switch op {
	case Rapid, Linear, ArcCW, ArcCCW, Dwell, Inches, Millimeter, Absolute, Relative:
		return cmd, Accepted, nil
	}
	return cmd, Rejected, cerrors.GCodeUnsupportedError(op)
}

// wordValue returns the number following the first occurrence of letter.
// The number is the longest run of digits, '.' and '-'; the longest
// prefix of that run that parses as a float is used, 0 if none does.
func wordValue(s string, letter byte) float64 {
	i := strings.IndexByte(s, letter)
	if i < 0 {
		return 0
	}
	start := i + 1
	end := start
	for end < len(s) {
		c := s[end]
		if (c < '0' || c > '9') && c != '.' && c != '-' {
			break
		}
		end++
	}
	for j := end; j > start; j-- {
		if v, err := strconv.ParseFloat(s[start:j], 64); err == nil {
			return v
		}
	}
	return 0
}
