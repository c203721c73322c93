// Copyright (C) 2026  CNCETI contributors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package program streams G-code lines from whichever removable storage
// device is active, without ever blocking the control loop for more than
// one bounded transport read.
package program

import (
	"io"
	"strings"

	"github.com/Banz520/CNCETI/pkg/log"
	"github.com/Banz520/CNCETI/pkg/storage"
)

// Device selects the active storage source.
type Device int

const (
	DeviceNone Device = iota
	DeviceDisk
	DeviceMassStorage
)

func (d Device) String() string {
	switch d {
	case DeviceDisk:
		return "disk"
	case DeviceMassStorage:
		return "mass_storage"
	default:
		return "none"
	}
}

// ParseDevice maps a command-line name onto a Device.
func ParseDevice(s string) (Device, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disk", "sd":
		return DeviceDisk, true
	case "mass_storage", "mass-storage", "usb":
		return DeviceMassStorage, true
	case "", "none":
		return DeviceNone, true
	}
	return DeviceNone, false
}

// Config sizes the source's buffers.
type Config struct {
	// ChunkSize bounds a single read from a chunked transport.
	ChunkSize int
	// LineBuffer bounds an assembled line, terminator included.
	LineBuffer int
	// MaxFiles bounds a listing.
	MaxFiles int
}

// DefaultConfig returns the stock buffer sizes.
func DefaultConfig() Config {
	return Config{ChunkSize: 8, LineBuffer: 256, MaxFiles: 16}
}

type lineState int

const (
	stateIdle lineState = iota
	stateAccumulating
)

// Source lists, opens and reads program files from one of two transports.
type Source struct {
	cfg    Config
	disk   storage.Transport
	mass   storage.Transport
	logger *log.Logger

	active Device
	files  *FileList
	dir    string

	open     bool
	openName string

	state   lineState
	line    []byte
	scratch []byte
	pending []byte
	eof     bool
}

// New returns a Source over the given transports; either may be nil.
func New(cfg Config, disk, mass storage.Transport) *Source {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.LineBuffer <= 1 {
		cfg.LineBuffer = def.LineBuffer
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = def.MaxFiles
	}
	scratch := cfg.ChunkSize
	if cfg.LineBuffer > scratch {
		scratch = cfg.LineBuffer
	}
	return &Source{
		cfg:     cfg,
		disk:    disk,
		mass:    mass,
		logger:  log.GetLogger("program"),
		files:   NewFileList(cfg.MaxFiles),
		dir:     "/",
		line:    make([]byte, 0, cfg.LineBuffer),
		scratch: make([]byte, scratch),
	}
}

func (s *Source) transport(d Device) storage.Transport {
	switch d {
	case DeviceDisk:
		return s.disk
	case DeviceMassStorage:
		return s.mass
	}
	return nil
}

// Present probes device d.
func (s *Source) Present(d Device) bool {
	t := s.transport(d)
	return t != nil && t.Ready()
}

// Initialize picks the active device, preferring mass storage over disk.
// It returns false when neither responds.
func (s *Source) Initialize() bool {
	if s.active != DeviceNone && s.Present(s.active) {
		return true
	}
	s.active = DeviceNone
	switch {
	case s.Present(DeviceMassStorage):
		s.active = DeviceMassStorage
	case s.Present(DeviceDisk):
		s.active = DeviceDisk
	default:
		s.logger.Warn("no storage device available")
		return false
	}
	s.logger.Info("active device: %s", s.active)
	return true
}

// SelectDevice switches to d if it responds. The listing is cleared and
// any open file closed either way.
func (s *Source) SelectDevice(d Device) bool {
	s.Close()
	s.files.Clear()
	if d == DeviceNone || !s.Present(d) {
		s.logger.WithField("device", d.String()).Warn("device not available")
		return false
	}
	if s.active != d {
		s.logger.Info("active device: %s", d)
	}
	s.active = d
	return true
}

// ActiveDevice returns the selected device.
func (s *Source) ActiveDevice() Device { return s.active }

// Scan rebuilds the listing from dir on the active device. It returns
// false when the device is unreachable or holds no program files.
func (s *Source) Scan(dir string) bool {
	s.Close()
	s.files.Clear()
	if dir == "" {
		dir = "/"
	}
	s.dir = dir

	t := s.transport(s.active)
	if t == nil || !t.Ready() {
		s.logger.WithField("device", s.active.String()).Warn("scan: device not ready")
		return false
	}

	truncated := false
	err := t.List(dir, func(name string) bool {
		if !IsProgramFile(name) {
			return true
		}
		if len(name) > MaxNameLen {
			s.logger.WithField("limit", MaxNameLen).Warn("skipping %s: name too long", name)
			return true
		}
		if !s.files.Add(name) {
			truncated = true
			return false
		}
		return true
	})
	if err != nil {
		s.logger.WithError(err).Warn("scan %s failed", dir)
		s.files.Clear()
		return false
	}
	if truncated {
		s.logger.Warn("listing truncated at %d files", s.files.Capacity())
	}
	s.logger.WithFields(log.Fields{"device": s.active.String(), "dir": dir}).Debug("found %d program files", s.files.Count())
	return s.files.Count() > 0
}

// ClearListing drops the cached listing.
func (s *Source) ClearListing() { s.files.Clear() }

// Count returns the listing size.
func (s *Source) Count() int { return s.files.Count() }

// NameAt returns the i'th listed name.
func (s *Source) NameAt(i int) (string, bool) { return s.files.NameAt(i) }

// Names returns a copy of the listing.
func (s *Source) Names() []string { return s.files.Names() }

// Selected returns the cursor.
func (s *Source) Selected() int { return s.files.Cursor() }

// Navigate moves the cursor one step with wraparound.
func (s *Source) Navigate(dir int) { s.files.Navigate(dir) }

// OpenByIndex opens the i'th listed file.
func (s *Source) OpenByIndex(i int) bool {
	s.Close()
	name, ok := s.files.NameAt(i)
	if !ok || !IsProgramFile(name) {
		return false
	}
	t := s.transport(s.active)
	if t == nil {
		return false
	}
	p := storage.JoinPath(s.dir, name)
	if err := t.Open(p); err != nil {
		s.logger.WithError(err).Warn("open %s failed", p)
		return false
	}
	s.files.SetCursor(i)
	s.open = true
	s.openName = name
	s.resetReader()
	s.logger.WithFields(log.Fields{"device": s.active.String(), "size": t.Size()}).Info("opened %s", name)
	return true
}

// OpenByName opens a listed file, matching the name without regard to case.
func (s *Source) OpenByName(name string) bool {
	i := s.files.IndexOf(name)
	if i < 0 {
		s.Close()
		return false
	}
	return s.OpenByIndex(i)
}

// Close closes the open file, if any.
func (s *Source) Close() {
	if !s.open {
		return
	}
	if t := s.transport(s.active); t != nil {
		if err := t.Close(); err != nil {
			s.logger.WithError(err).Debug("close failed")
		}
	}
	s.open = false
	s.openName = ""
	s.resetReader()
}

// IsOpen reports whether a file is open.
func (s *Source) IsOpen() bool { return s.open }

// OpenName returns the open file's name.
func (s *Source) OpenName() string { return s.openName }

func (s *Source) resetReader() {
	s.state = stateIdle
	s.line = s.line[:0]
	s.pending = nil
	s.eof = false
}

// ReadLineNonBlocking performs at most one transport read and returns a
// complete, non-comment line when one has been assembled. Blank lines and
// lines starting with ';' or '(' are consumed silently.
func (s *Source) ReadLineNonBlocking() (string, bool) {
	if !s.open {
		return "", false
	}
	if len(s.pending) == 0 && !s.eof {
		s.fill()
	}

	limit := s.cfg.LineBuffer - 1
	for len(s.pending) > 0 {
		b := s.pending[0]
		s.pending = s.pending[1:]
		switch b {
		case '\r':
			continue
		case '\n':
			return s.finishLine()
		}
		s.line = append(s.line, b)
		s.state = stateAccumulating
		if len(s.line) >= limit {
			return s.finishLine()
		}
	}
	if s.eof {
		return s.finishLine()
	}
	return "", false
}

func (s *Source) fill() {
	t := s.transport(s.active)
	size := s.cfg.ChunkSize
	if t.LineOriented() {
		size = s.cfg.LineBuffer
	}
	n, err := t.Read(s.scratch[:size])
	s.pending = s.scratch[:n]
	if err == nil {
		return
	}
	if err != io.EOF {
		s.logger.WithError(err).Warn("read failed, treating as end of file")
	}
	s.eof = true
}

func (s *Source) finishLine() (string, bool) {
	line := strings.TrimLeft(string(s.line), " \t")
	s.line = s.line[:0]
	s.state = stateIdle
	if line == "" || line[0] == ';' || line[0] == '(' {
		return "", false
	}
	return line, true
}

// AtEOF reports whether the open file has been read completely.
func (s *Source) AtEOF() bool {
	return s.open && s.eof && len(s.pending) == 0 && len(s.line) == 0
}

// Restart rewinds the open file to its first line.
func (s *Source) Restart() bool {
	if !s.open {
		return false
	}
	if err := s.transport(s.active).Rewind(); err != nil {
		s.logger.WithError(err).Warn("restart failed")
		s.Close()
		return false
	}
	s.resetReader()
	s.logger.Info("restarted %s", s.openName)
	return true
}

// Size returns the open file's size in bytes.
func (s *Source) Size() int64 {
	if !s.open {
		return 0
	}
	return s.transport(s.active).Size()
}

// Position returns the number of bytes consumed from the open file.
func (s *Source) Position() int64 {
	if !s.open {
		return 0
	}
	return s.transport(s.active).Position()
}

// ProgressPercent returns read progress in the range 0..100.
func (s *Source) ProgressPercent() int {
	size := s.Size()
	if size <= 0 {
		return 0
	}
	pct := s.Position() * 100 / size
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}
