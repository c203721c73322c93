package program

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Banz520/CNCETI/pkg/ch376"
	"github.com/Banz520/CNCETI/pkg/ch376/ch376test"
	cerrors "github.com/Banz520/CNCETI/pkg/errors"
	"github.com/Banz520/CNCETI/pkg/storage"
)

// memTransport is an in-memory chunked transport that records reads.
type memTransport struct {
	name    string
	ready   bool
	lines   bool
	files   map[string]string
	data    string
	pos     int
	open    bool
	reads   []int
	readErr error
	closes  int
	listErr error
}

func newMem(name string, files map[string]string) *memTransport {
	return &memTransport{name: name, ready: true, files: files}
}

func (m *memTransport) Name() string { return m.name }
func (m *memTransport) Ready() bool  { return m.ready }

func (m *memTransport) List(dir string, fn func(string) bool) error {
	if m.listErr != nil {
		return m.listErr
	}
	var names []string
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if !fn(n) {
			break
		}
	}
	return nil
}

func (m *memTransport) Open(p string) error {
	data, ok := m.files[strings.TrimPrefix(p, "/")]
	if !ok {
		return cerrors.StorageNotFoundError(m.name, p)
	}
	m.data, m.pos, m.open = data, 0, true
	return nil
}

func (m *memTransport) Close() error {
	m.closes++
	m.open = false
	m.data, m.pos = "", 0
	return nil
}

func (m *memTransport) Read(buf []byte) (int, error) {
	m.reads = append(m.reads, len(buf))
	if m.readErr != nil {
		return 0, m.readErr
	}
	if m.pos >= len(m.data) {
		return 0, io.EOF
	}
	n := copy(buf, m.data[m.pos:])
	if m.lines {
		if i := strings.IndexByte(m.data[m.pos:m.pos+n], '\n'); i >= 0 {
			n = i + 1
		}
	}
	m.pos += n
	return n, nil
}

func (m *memTransport) Rewind() error   { m.pos = 0; return nil }
func (m *memTransport) Size() int64     { return int64(len(m.data)) }
func (m *memTransport) Position() int64 { return int64(m.pos) }
func (m *memTransport) LineOriented() bool {
	return m.lines
}

// drain pulls lines until end of file, bounded by max calls.
func drain(t *testing.T, s *Source, max int) []string {
	t.Helper()
	var lines []string
	for i := 0; i < max; i++ {
		if line, ok := s.ReadLineNonBlocking(); ok {
			lines = append(lines, line)
		}
		if s.AtEOF() {
			return lines
		}
	}
	t.Fatalf("no end of file after %d calls", max)
	return nil
}

func TestInitializePrefersMassStorage(t *testing.T) {
	disk := newMem("disk", nil)
	mass := newMem("mass_storage", nil)
	s := New(DefaultConfig(), disk, mass)

	require.True(t, s.Initialize())
	assert.Equal(t, DeviceMassStorage, s.ActiveDevice())
	require.True(t, s.Initialize())
	assert.Equal(t, DeviceMassStorage, s.ActiveDevice())
}

func TestInitializeFallsBackToDisk(t *testing.T) {
	disk := newMem("disk", nil)
	mass := newMem("mass_storage", nil)
	mass.ready = false
	s := New(DefaultConfig(), disk, mass)
	require.True(t, s.Initialize())
	assert.Equal(t, DeviceDisk, s.ActiveDevice())

	disk.ready = false
	s = New(DefaultConfig(), disk, mass)
	assert.False(t, s.Initialize())
	assert.Equal(t, DeviceNone, s.ActiveDevice())
}

func TestScanFiltersExtensions(t *testing.T) {
	disk := newMem("disk", map[string]string{
		"a.gcode":     "",
		"B.GCO":       "",
		"c.Gc":        "",
		"notes.txt":   "",
		"gcode":       "",
		"part.gc.bak": "",
		"old.txt.gc":  "",
	})
	s := New(DefaultConfig(), disk, nil)
	require.True(t, s.SelectDevice(DeviceDisk))
	require.True(t, s.Scan("/"))

	assert.Equal(t, []string{"B.GCO", "a.gcode", "c.Gc", "old.txt.gc"}, s.Names())
	for _, n := range s.Names() {
		assert.True(t, IsProgramFile(n))
	}
	assert.Equal(t, 0, s.Selected())
}

func TestScanCapacityAndLongNames(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("part%02d.gc", i)] = ""
	}
	long := strings.Repeat("x", 40) + ".gcode"
	files[long] = ""
	disk := newMem("disk", files)

	cfg := DefaultConfig()
	s := New(cfg, disk, nil)
	require.True(t, s.SelectDevice(DeviceDisk))
	require.True(t, s.Scan("/"))
	assert.Equal(t, 16, s.Count())

	disk.files = map[string]string{long: "", "short.gc": "G0 X1\n"}
	require.True(t, s.Scan("/"))
	assert.Equal(t, []string{"short.gc"}, s.Names())

	disk.files = map[string]string{long: ""}
	assert.False(t, s.Scan("/"), "a listing of only over-long names is empty")
}

func TestScanListsOnlyOpenableNames(t *testing.T) {
	tooLong := strings.Repeat("x", 30) + ".gcode"
	fitting := strings.Repeat("y", MaxNameLen-len(".gcode")) + ".gcode"
	disk := storage.NewDiskFS(fstest.MapFS{
		tooLong: {Data: []byte("G0 X1\n")},
		fitting: {Data: []byte("G0 Y1\n")},
		"b.gc":  {Data: []byte("G0 Z1\n")},
	}, "mem")
	s := New(DefaultConfig(), disk, nil)
	require.True(t, s.SelectDevice(DeviceDisk))
	require.True(t, s.Scan("/"))
	require.Equal(t, 2, s.Count())

	for i := 0; i < s.Count(); i++ {
		name, ok := s.NameAt(i)
		require.True(t, ok)
		assert.True(t, IsProgramFile(name), name)
		assert.LessOrEqual(t, len(name), MaxNameLen)
		assert.True(t, s.OpenByIndex(i), "open %s", name)
		s.Close()
	}
}

func TestScanFailures(t *testing.T) {
	disk := newMem("disk", map[string]string{"a.txt": ""})
	s := New(DefaultConfig(), disk, nil)
	assert.False(t, s.Scan("/"), "no active device")

	require.True(t, s.SelectDevice(DeviceDisk))
	assert.False(t, s.Scan("/"), "no program files")
	assert.Equal(t, 0, s.Count())

	disk.files = map[string]string{"a.gc": ""}
	disk.listErr = cerrors.StorageReadError("disk", "/", io.ErrUnexpectedEOF)
	assert.False(t, s.Scan("/"))
	assert.Equal(t, 0, s.Count())

	disk.listErr = nil
	disk.ready = false
	assert.False(t, s.Scan("/"))
	assert.Equal(t, 0, s.Count())
}

func TestNavigateWraps(t *testing.T) {
	disk := newMem("disk", map[string]string{"a.gc": "", "b.gc": "", "c.gc": ""})
	s := New(DefaultConfig(), disk, nil)
	require.True(t, s.SelectDevice(DeviceDisk))
	require.True(t, s.Scan("/"))

	for i := 0; i < s.Count(); i++ {
		s.Navigate(1)
	}
	assert.Equal(t, 0, s.Selected())

	s.Navigate(-1)
	assert.Equal(t, 2, s.Selected())
	s.Navigate(1)
	assert.Equal(t, 0, s.Selected())
}

func TestNavigateEmptyIsNoop(t *testing.T) {
	s := New(DefaultConfig(), nil, nil)
	s.Navigate(1)
	s.Navigate(-1)
	assert.Equal(t, 0, s.Selected())
	_, ok := s.NameAt(0)
	assert.False(t, ok)
}

func TestOpenAndCloseIdempotent(t *testing.T) {
	disk := newMem("disk", map[string]string{"a.gc": "G0\n", "b.gc": "G1\n"})
	s := New(DefaultConfig(), disk, nil)
	require.True(t, s.SelectDevice(DeviceDisk))
	require.True(t, s.Scan("/"))

	require.True(t, s.OpenByName("B.GC"))
	assert.True(t, s.IsOpen())
	assert.Equal(t, "b.gc", s.OpenName())
	assert.Equal(t, 1, s.Selected())

	s.Close()
	s.Close()
	assert.False(t, s.IsOpen())
	assert.Equal(t, 1, disk.closes)

	assert.False(t, s.OpenByIndex(7))
	assert.False(t, s.OpenByName("missing.gc"))
	_, ok := s.ReadLineNonBlocking()
	assert.False(t, ok)
}

func TestReadLineChunked(t *testing.T) {
	content := "  G1 X10 F500\r\n\n   \n; comment\n(paren)\nG0 Y5\nG1 Z1"
	mass := newMem("mass_storage", map[string]string{"p.gco": content})
	s := New(DefaultConfig(), nil, mass)
	require.True(t, s.SelectDevice(DeviceMassStorage))
	require.True(t, s.Scan("/"))
	require.True(t, s.OpenByIndex(0))

	lines := drain(t, s, 100)
	assert.Equal(t, []string{"G1 X10 F500", "G0 Y5", "G1 Z1"}, lines)
	for _, n := range mass.reads {
		assert.LessOrEqual(t, n, 8)
	}
	assert.Equal(t, 100, s.ProgressPercent())
}

func TestReadLineAtMostOneReadPerCall(t *testing.T) {
	mass := newMem("mass_storage", map[string]string{"p.gc": "G1 X10 Y20 Z30 F1200\n"})
	s := New(DefaultConfig(), nil, mass)
	require.True(t, s.SelectDevice(DeviceMassStorage))
	require.True(t, s.Scan("/"))
	require.True(t, s.OpenByIndex(0))

	calls := 0
	for {
		calls++
		before := len(mass.reads)
		line, ok := s.ReadLineNonBlocking()
		assert.LessOrEqual(t, len(mass.reads)-before, 1)
		if ok {
			assert.Equal(t, "G1 X10 Y20 Z30 F1200", line)
			break
		}
		require.Less(t, calls, 10)
	}
	assert.Equal(t, 3, calls)
	assert.False(t, s.AtEOF())
}

func TestReadLineDiskIsLineOriented(t *testing.T) {
	disk := newMem("disk", map[string]string{"p.gc": "G1 X1\nG1 X2\n"})
	disk.lines = true
	s := New(DefaultConfig(), disk, nil)
	require.True(t, s.SelectDevice(DeviceDisk))
	require.True(t, s.Scan("/"))
	require.True(t, s.OpenByIndex(0))

	line, ok := s.ReadLineNonBlocking()
	require.True(t, ok)
	assert.Equal(t, "G1 X1", line)
	line, ok = s.ReadLineNonBlocking()
	require.True(t, ok)
	assert.Equal(t, "G1 X2", line)
	_, ok = s.ReadLineNonBlocking()
	assert.False(t, ok)
	assert.True(t, s.AtEOF())
}

func TestReadLineLongLineCut(t *testing.T) {
	long := strings.Repeat("X", 40)
	mass := newMem("mass_storage", map[string]string{"p.gc": long + "\n"})
	cfg := DefaultConfig()
	cfg.LineBuffer = 32
	s := New(cfg, nil, mass)
	require.True(t, s.SelectDevice(DeviceMassStorage))
	require.True(t, s.Scan("/"))
	require.True(t, s.OpenByIndex(0))

	lines := drain(t, s, 100)
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], 31)
	assert.Equal(t, long, lines[0]+lines[1])
}

func TestReadErrorIsEndOfFile(t *testing.T) {
	mass := newMem("mass_storage", map[string]string{"p.gc": "G0\n"})
	s := New(DefaultConfig(), nil, mass)
	require.True(t, s.SelectDevice(DeviceMassStorage))
	require.True(t, s.Scan("/"))
	require.True(t, s.OpenByIndex(0))

	mass.readErr = cerrors.TransportTimeoutError("byte read")
	_, ok := s.ReadLineNonBlocking()
	assert.False(t, ok)
	assert.True(t, s.AtEOF())
}

func TestRestart(t *testing.T) {
	mass := newMem("mass_storage", map[string]string{"p.gc": "G0 X1\nG0 X2\n"})
	s := New(DefaultConfig(), nil, mass)
	assert.False(t, s.Restart())

	require.True(t, s.SelectDevice(DeviceMassStorage))
	require.True(t, s.Scan("/"))
	require.True(t, s.OpenByIndex(0))
	first := drain(t, s, 100)
	require.True(t, s.AtEOF())

	require.True(t, s.Restart())
	assert.False(t, s.AtEOF())
	assert.Equal(t, 0, s.ProgressPercent())
	assert.Equal(t, first, drain(t, s, 100))
}

func TestSelectDeviceClearsState(t *testing.T) {
	disk := newMem("disk", map[string]string{"a.gc": "G0\n"})
	mass := newMem("mass_storage", map[string]string{"b.gc": "G0\n"})
	s := New(DefaultConfig(), disk, mass)
	require.True(t, s.SelectDevice(DeviceDisk))
	require.True(t, s.Scan("/"))
	require.True(t, s.OpenByIndex(0))

	require.True(t, s.SelectDevice(DeviceMassStorage))
	assert.False(t, s.IsOpen())
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, DeviceMassStorage, s.ActiveDevice())

	mass.ready = false
	assert.False(t, s.SelectDevice(DeviceMassStorage))
	assert.False(t, s.SelectDevice(DeviceNone))
}

func TestProgressWithoutFile(t *testing.T) {
	s := New(DefaultConfig(), nil, nil)
	assert.Equal(t, 0, s.ProgressPercent())
	assert.Equal(t, int64(0), s.Size())
	assert.False(t, s.AtEOF())
}

func TestParseDevice(t *testing.T) {
	d, ok := ParseDevice("USB")
	assert.True(t, ok)
	assert.Equal(t, DeviceMassStorage, d)
	d, ok = ParseDevice("disk")
	assert.True(t, ok)
	assert.Equal(t, DeviceDisk, d)
	_, ok = ParseDevice("floppy")
	assert.False(t, ok)
	assert.Equal(t, "mass_storage", DeviceMassStorage.String())
}

func TestSourceOverRealTransports(t *testing.T) {
	disk := storage.NewDiskFS(fstest.MapFS{
		"jobs/part1.gcode": {Data: []byte("G1 X10 F500\n; done\n")},
	}, "mapfs")
	chip := ch376test.New(map[string]string{"PART2.GCO": "G0 Y5\r\nG0 Y0\r\n", "LOG.TXT": "x"})
	mass := storage.NewMassStorage(func() (io.ReadWriteCloser, error) { return chip, nil },
		ch376.WithTimeout(20*time.Millisecond), ch376.WithPingBackoff(0))

	s := New(DefaultConfig(), disk, mass)
	require.True(t, s.Initialize())
	assert.Equal(t, DeviceMassStorage, s.ActiveDevice())
	require.True(t, s.Scan("/"))
	assert.Equal(t, []string{"PART2.GCO"}, s.Names())
	require.True(t, s.OpenByName("part2.gco"))
	assert.Equal(t, []string{"G0 Y5", "G0 Y0"}, drain(t, s, 100))

	require.True(t, s.SelectDevice(DeviceDisk))
	require.True(t, s.Scan("/jobs"))
	require.True(t, s.OpenByIndex(0))
	assert.Equal(t, []string{"G1 X10 F500"}, drain(t, s, 100))
	assert.Equal(t, 100, s.ProgressPercent())
}
