// Package ch376test provides an in-memory CH376 that speaks the UART
// command protocol, for tests of code layered on ch376.Device.
package ch376test

import (
	"encoding/binary"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/Banz520/CNCETI/pkg/ch376"
	"github.com/Banz520/CNCETI/pkg/serial"
)

// Chip emulates a CH376 with a FAT drive attached. Files are keyed by
// upper-case slash-separated paths without a leading slash, e.g.
// "PART1.GCO" or "JOBS/PART2.GC".
type Chip struct {
	mu sync.Mutex

	// Absent makes the chip ignore every command.
	Absent bool
	// Unplugged reports no drive on the USB port.
	Unplugged bool
	// MuteClose leaves FILE_CLOSE unanswered.
	MuteClose bool
	// Commands records every command byte received.
	Commands []byte

	files map[string][]byte
	out   []byte

	fileName string
	cwd      string
	pending  []byte

	enum    []ch376.Entry
	enumIdx int

	openFile string
	pos      int
	readLeft int
	closed   bool
}

// New returns a chip serving files.
func New(files map[string]string) *Chip {
	c := &Chip{files: make(map[string][]byte)}
	for name, data := range files {
		c.files[strings.ToUpper(name)] = []byte(data)
	}
	return c
}

// SetFile adds or replaces a file.
func (c *Chip) SetFile(name, data string) {
	c.mu.Lock()
	c.files[strings.ToUpper(name)] = []byte(data)
	c.mu.Unlock()
}

// Count returns how many times cmd was received.
func (c *Chip) Count(cmd byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.Commands {
		if b == cmd {
			n++
		}
	}
	return n
}

// Read returns queued reply bytes, or serial.ErrTimeout when none are queued.
func (c *Chip) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.out) == 0 {
		return 0, serial.ErrTimeout
	}
	n := copy(p, c.out)
	c.out = c.out[n:]
	return n, nil
}

// Write accepts one command frame.
func (c *Chip) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Absent || len(p) < 3 || p[0] != ch376.Sync1 || p[1] != ch376.Sync2 {
		return len(p), nil
	}
	c.Commands = append(c.Commands, p[2])
	c.handle(p[2], p[3:])
	return len(p), nil
}

// Close implements io.Closer.
func (c *Chip) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (c *Chip) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Chip) reply(b ...byte) { c.out = append(c.out, b...) }

func (c *Chip) handle(cmd byte, data []byte) {
	switch cmd {
	case ch376.CmdCheckExist:
		if len(data) > 0 {
			c.reply(^data[0])
		}
	case ch376.CmdSetUSBMode:
		c.reply(ch376.RetSuccess)
		if len(data) > 0 && data[0] == ch376.ModeHost && !c.Unplugged {
			c.reply(ch376.IntConnect)
		}
	case ch376.CmdGetStatus:
		c.reply(ch376.IntSuccess)
	case ch376.CmdDiskConnect, ch376.CmdDiskMount:
		if c.Unplugged {
			c.reply(ch376.ErrDiskDisconnect)
			return
		}
		c.reply(ch376.IntSuccess)
	case ch376.CmdSetFileName:
		name := string(data)
		if i := strings.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		c.fileName = name
	case ch376.CmdFileOpen:
		c.fileOpen()
	case ch376.CmdFileEnumGo:
		c.enumIdx++
		c.enumStep()
	case ch376.CmdRdUSBData0:
		c.reply(byte(len(c.pending)))
		c.reply(c.pending...)
		c.pending = nil
	case ch376.CmdByteRead:
		if len(data) >= 2 {
			c.readLeft = int(binary.LittleEndian.Uint16(data))
		}
		c.readStep()
	case ch376.CmdByteRdGo:
		c.readStep()
	case ch376.CmdGetFileSize:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(len(c.files[c.openFile])))
		c.reply(buf[:]...)
	case ch376.CmdFileClose:
		c.openFile = ""
		c.enum = nil
		if !c.MuteClose {
			c.reply(ch376.IntSuccess)
		}
	}
}

func (c *Chip) fileOpen() {
	name := c.fileName
	if strings.HasPrefix(name, "/") {
		c.cwd = ""
		name = strings.TrimPrefix(name, "/")
	}
	if name == "*" {
		c.enum = c.listDir(c.cwd)
		c.enumIdx = 0
		c.enumStep()
		return
	}

	full := path.Join(c.cwd, name)
	if c.isDir(full) {
		c.cwd = full
		c.reply(ch376.ErrOpenDir)
		return
	}
	if _, ok := c.files[full]; ok {
		c.openFile = full
		c.pos = 0
		c.reply(ch376.IntSuccess)
		return
	}
	c.reply(ch376.ErrMissFile)
}

func (c *Chip) isDir(dir string) bool {
	for name := range c.files {
		if strings.HasPrefix(name, dir+"/") {
			return true
		}
	}
	return false
}

func (c *Chip) listDir(dir string) []ch376.Entry {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	seen := make(map[string]bool)
	var entries []ch376.Entry
	for name, data := range c.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			sub := rest[:i]
			if !seen[sub] {
				seen[sub] = true
				entries = append(entries, ch376.Entry{Name: sub, Attr: ch376.AttrDirectory})
			}
			continue
		}
		entries = append(entries, ch376.Entry{Name: rest, Attr: ch376.AttrArchive, Size: uint32(len(data))})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

func (c *Chip) enumStep() {
	if c.enumIdx >= len(c.enum) {
		c.enum = nil
		c.reply(ch376.ErrMissFile)
		return
	}
	c.pending = DirEntry(c.enum[c.enumIdx])
	c.reply(ch376.IntDiskRead)
}

func (c *Chip) readStep() {
	data := c.files[c.openFile]
	if c.openFile == "" || c.readLeft == 0 || c.pos >= len(data) {
		c.readLeft = 0
		c.reply(ch376.IntSuccess)
		return
	}
	n := c.readLeft
	if n > 64 {
		n = 64
	}
	if rem := len(data) - c.pos; n > rem {
		n = rem
	}
	c.pending = append([]byte(nil), data[c.pos:c.pos+n]...)
	c.pos += n
	c.readLeft -= n
	c.reply(ch376.IntDiskRead)
}

// DirEntry encodes e as a 32-byte FAT 8.3 directory entry.
func DirEntry(e ch376.Entry) []byte {
	raw := make([]byte, 32)
	for i := 0; i < 11; i++ {
		raw[i] = ' '
	}
	base, ext := e.Name, ""
	if i := strings.LastIndexByte(e.Name, '.'); i > 0 {
		base, ext = e.Name[:i], e.Name[i+1:]
	}
	copy(raw[0:8], base)
	copy(raw[8:11], ext)
	raw[11] = e.Attr
	binary.LittleEndian.PutUint32(raw[28:32], e.Size)
	return raw
}
