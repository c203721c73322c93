package config

import (
	"strings"
)

// Pin is a digital output as written in the machine file: a board pin
// name or number with an optional '!' prefix for active-low wiring.
type Pin struct {
	Name   string // e.g. "62", "PA5"
	Invert bool
}

// String returns the pin in config syntax.
func (p Pin) String() string {
	if p.Invert {
		return "!" + p.Name
	}
	return p.Name
}

// IsZero reports whether no pin is configured.
func (p Pin) IsZero() bool {
	return p.Name == ""
}

// ParsePin parses "[!]name". Whitespace around the parts is ignored.
func ParsePin(desc string) (Pin, error) {
	d := strings.TrimSpace(desc)
	if d == "" {
		return Pin{}, NewConfigError("", "", "empty pin specification")
	}
	var p Pin
	if d[0] == '!' {
		p.Invert = true
		d = strings.TrimSpace(d[1:])
	}
	if d == "" {
		return Pin{}, NewConfigError("", "", "empty pin name in specification: "+desc)
	}
	if strings.ContainsAny(d, "!^~: \t") {
		return Pin{}, NewConfigError("", "", "invalid characters in pin name: "+desc)
	}
	p.Name = d
	return p, nil
}

// GetPin returns a Pin option value from the section.
func (s *Section) GetPin(option string, fallback ...Pin) (Pin, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return Pin{}, ErrMissingOption(s.name, option)
	}
	pin, err := ParsePin(v)
	if err != nil {
		return Pin{}, WrapError(s.name, option, err)
	}
	return pin, nil
}
