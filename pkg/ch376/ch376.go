// Copyright (C) 2026  CNCETI contributors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package ch376 drives a CH376 USB mass-storage host controller over its
// UART command interface.
//
// Every command is framed as 0x57 0xAB <cmd> [data...]. Commands that
// start a disk operation are answered asynchronously: in UART mode the
// chip pushes the interrupt status byte onto the line once the operation
// finishes, so the driver reads one byte and compares it with the
// expected status.
package ch376

import (
	"encoding/binary"
	stderrors "errors"
	"io"
	"strings"
	"time"

	cerrors "github.com/Banz520/CNCETI/pkg/errors"
	"github.com/Banz520/CNCETI/pkg/log"
	"github.com/Banz520/CNCETI/pkg/serial"
)

// Frame sync bytes
const (
	Sync1 = 0x57
	Sync2 = 0xAB
)

// Command codes
const (
	CmdGetFileSize = 0x0C
	CmdCheckExist  = 0x06
	CmdSetUSBMode  = 0x15
	CmdGetStatus   = 0x22
	CmdRdUSBData0  = 0x27
	CmdSetFileName = 0x2F
	CmdDiskConnect = 0x30
	CmdDiskMount   = 0x31
	CmdFileOpen    = 0x32
	CmdFileEnumGo  = 0x33
	CmdFileClose   = 0x36
	CmdByteRead    = 0x3A
	CmdByteRdGo    = 0x3B
)

// Status codes
const (
	RetSuccess = 0x51
	RetAbort   = 0x5F

	IntSuccess  = 0x14
	IntConnect  = 0x15
	IntDiskRead = 0x1D

	ErrOpenDir        = 0x41
	ErrMissFile       = 0x42
	ErrDiskDisconnect = 0x82
)

// USB host mode with SOF generation enabled
const ModeHost = 0x06

// File attribute bits in a FAT directory entry
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = 0x0F
)

const (
	checkExistProbe = 0x55
	pingAttempts    = 3
	pingBackoff     = 100 * time.Millisecond
	fileSizeArg     = 0x68
	dirEntrySize    = 32
	// The chip buffers at most 255 bytes per interrupt.
	maxByteRead = 0xFF
)

// Entry is one directory entry reported by the chip during enumeration.
type Entry struct {
	Name string
	Attr byte
	Size uint32
}

// IsDir reports whether the entry is a subdirectory.
func (e Entry) IsDir() bool { return e.Attr&AttrDirectory != 0 }

// Device is a CH376 attached to a byte stream. It is not safe for
// concurrent use.
type Device struct {
	rw      io.ReadWriter
	timeout time.Duration
	backoff time.Duration
	logger  *log.Logger

	open     bool
	eof      bool
	fileSize uint32
}

// Option configures a Device.
type Option func(*Device)

// WithTimeout bounds every exchange with the chip.
func WithTimeout(d time.Duration) Option {
	return func(dev *Device) { dev.timeout = d }
}

// WithPingBackoff sets the pause between presence check attempts.
func WithPingBackoff(d time.Duration) Option {
	return func(dev *Device) { dev.backoff = d }
}

// WithLogger overrides the component logger.
func WithLogger(l *log.Logger) Option {
	return func(dev *Device) { dev.logger = l }
}

// New wraps rw. If rw also has a Flush() error method (serial.Port does),
// pending input is discarded before each presence check.
func New(rw io.ReadWriter, opts ...Option) *Device {
	d := &Device{
		rw:      rw,
		timeout: time.Second,
		backoff: pingBackoff,
		logger:  log.GetLogger("ch376"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) send(cmd byte, data ...byte) error {
	frame := make([]byte, 0, 3+len(data))
	frame = append(frame, Sync1, Sync2, cmd)
	frame = append(frame, data...)
	if _, err := d.rw.Write(frame); err != nil {
		return cerrors.TransportIOError("write command", err).SetContext("cmd", cmd)
	}
	return nil
}

// readFull reads exactly len(buf) bytes before the exchange deadline.
func (d *Device) readFull(op string, buf []byte) error {
	deadline := time.Now().Add(d.timeout)
	got := 0
	for got < len(buf) {
		n, err := d.rw.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil && !stderrors.Is(err, serial.ErrTimeout) {
			return cerrors.TransportIOError(op, err)
		}
		if time.Now().After(deadline) {
			return cerrors.TransportTimeoutError(op)
		}
		if n == 0 && err == nil {
			time.Sleep(time.Millisecond)
		}
	}
	return nil
}

func (d *Device) readByte(op string) (byte, error) {
	var b [1]byte
	if err := d.readFull(op, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// waitInterrupt reads the status byte pushed after a disk operation.
// Attach notifications left over from mode switching are skipped.
func (d *Device) waitInterrupt(op string) (byte, error) {
	for {
		status, err := d.readByte(op)
		if err != nil {
			return 0, err
		}
		if status == IntConnect {
			continue
		}
		return status, nil
	}
}

func (d *Device) expect(op string, want byte) error {
	status, err := d.waitInterrupt(op)
	if err != nil {
		return err
	}
	if status != want {
		return cerrors.TransportProtocolError(op, status, want)
	}
	return nil
}

// Ping runs CHECK_EXIST up to three times and reports whether the chip
// answered with the inverted probe byte.
func (d *Device) Ping() bool {
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if f, ok := d.rw.(interface{ Flush() error }); ok {
			_ = f.Flush()
		}
		if err := d.send(CmdCheckExist, checkExistProbe); err == nil {
			b, err := d.readByte("check exist")
			if err == nil && b == ^byte(checkExistProbe) {
				return true
			}
			d.logger.Debug("check exist attempt %d failed: reply 0x%02X err %v", attempt, b, err)
		}
		if attempt < pingAttempts && d.backoff > 0 {
			time.Sleep(d.backoff)
		}
	}
	return false
}

// SetUSBMode switches the chip's USB port mode.
func (d *Device) SetUSBMode(mode byte) error {
	if err := d.send(CmdSetUSBMode, mode); err != nil {
		return err
	}
	b, err := d.readByte("set usb mode")
	if err != nil {
		return err
	}
	if b != RetSuccess {
		return cerrors.TransportProtocolError("set usb mode", b, RetSuccess)
	}
	return nil
}

// Status issues GET_STATUS and returns the last interrupt status.
func (d *Device) Status() (byte, error) {
	if err := d.send(CmdGetStatus); err != nil {
		return 0, err
	}
	return d.readByte("get status")
}

// DiskConnected checks whether a drive is attached to the USB port.
func (d *Device) DiskConnected() bool {
	if err := d.send(CmdDiskConnect); err != nil {
		return false
	}
	status, err := d.waitInterrupt("disk connect")
	return err == nil && status == IntSuccess
}

// Mount switches to host mode, waits for a drive and mounts its FAT volume.
func (d *Device) Mount() error {
	if err := d.SetUSBMode(ModeHost); err != nil {
		return err
	}
	if err := d.send(CmdDiskConnect); err != nil {
		return err
	}
	if err := d.expect("disk connect", IntSuccess); err != nil {
		return err
	}
	if err := d.send(CmdDiskMount); err != nil {
		return err
	}
	return d.expect("disk mount", IntSuccess)
}

func (d *Device) setFileName(name string) error {
	data := append([]byte(strings.ToUpper(name)), 0)
	return d.send(CmdSetFileName, data...)
}

// openPath opens every directory component of path starting at the root
// and returns the final component, not yet opened. A single-component
// path is returned with its leading slash.
func (d *Device) openPath(path string) (string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return "", nil
	}
	for i, part := range parts[:len(parts)-1] {
		name := part
		if i == 0 {
			name = "/" + part
		}
		if err := d.setFileName(name); err != nil {
			return "", err
		}
		if err := d.send(CmdFileOpen); err != nil {
			return "", err
		}
		status, err := d.waitInterrupt("open directory")
		if err != nil {
			return "", err
		}
		if status != ErrOpenDir {
			if status == ErrMissFile {
				return "", cerrors.StorageNotFoundError("mass_storage", part)
			}
			return "", cerrors.TransportProtocolError("open directory", status, ErrOpenDir)
		}
	}
	last := parts[len(parts)-1]
	if len(parts) == 1 {
		last = "/" + last
	}
	return last, nil
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			parts = append(parts, s)
		}
	}
	return parts
}

// List enumerates dir ("/" for the root). fn is called for each entry
// and may return false to stop early. Deleted entries, volume labels and
// long-name fragments are skipped.
func (d *Device) List(dir string, fn func(Entry) bool) error {
	if d.open {
		d.Close()
	}
	pattern := "/*"
	if len(splitPath(dir)) > 0 {
		var err error
		if pattern, err = d.openPath(dir + "/*"); err != nil {
			return err
		}
	}

	if err := d.setFileName(pattern); err != nil {
		return err
	}
	if err := d.send(CmdFileOpen); err != nil {
		return err
	}
	for {
		status, err := d.waitInterrupt("enumerate")
		if err != nil {
			return err
		}
		switch status {
		case ErrMissFile:
			return nil
		case IntDiskRead:
		default:
			return cerrors.TransportProtocolError("enumerate", status, IntDiskRead)
		}

		raw, err := d.readData("read directory entry")
		if err != nil {
			return err
		}
		if entry, ok := parseDirEntry(raw); ok {
			if !fn(entry) {
				// Leave enumeration mode so the next command starts clean.
				if err := d.closeEnum(); err != nil {
					d.logger.WithError(err).Debug("list %s: leaving enumeration failed", dir)
				}
				return nil
			}
		}
		if err := d.send(CmdFileEnumGo); err != nil {
			return err
		}
	}
}

func (d *Device) closeEnum() error {
	if err := d.send(CmdFileClose, 0); err != nil {
		return err
	}
	_, err := d.waitInterrupt("file close")
	return err
}

// readData issues RD_USB_DATA0 and returns the length-prefixed payload.
func (d *Device) readData(op string) ([]byte, error) {
	if err := d.send(CmdRdUSBData0); err != nil {
		return nil, err
	}
	n, err := d.readByte(op)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := d.readFull(op, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// parseDirEntry decodes a 32-byte FAT directory entry.
func parseDirEntry(raw []byte) (Entry, bool) {
	if len(raw) < dirEntrySize {
		return Entry{}, false
	}
	switch raw[0] {
	case 0x00, 0xE5:
		return Entry{}, false
	}
	attr := raw[11]
	if attr&AttrLongName == AttrLongName || attr&AttrVolumeID != 0 {
		return Entry{}, false
	}

	base := make([]byte, 8)
	copy(base, raw[0:8])
	if base[0] == 0x05 {
		base[0] = 0xE5
	}
	name := strings.TrimRight(string(base), " ")
	if ext := strings.TrimRight(string(raw[8:11]), " "); ext != "" {
		name += "." + ext
	}
	return Entry{
		Name: name,
		Attr: attr,
		Size: binary.LittleEndian.Uint32(raw[28:32]),
	}, true
}

// Open opens a file for reading. Any previously open file is closed.
func (d *Device) Open(path string) error {
	if d.open {
		d.Close()
	}
	last, err := d.openPath(path)
	if err != nil {
		return err
	}
	if last == "" {
		return cerrors.StorageNotFoundError("mass_storage", path)
	}
	if err := d.setFileName(last); err != nil {
		return err
	}
	if err := d.send(CmdFileOpen); err != nil {
		return err
	}
	status, err := d.waitInterrupt("file open")
	if err != nil {
		return err
	}
	switch status {
	case IntSuccess:
	case ErrMissFile:
		return cerrors.StorageNotFoundError("mass_storage", path)
	case ErrOpenDir:
		return cerrors.StorageOpenError("mass_storage", path, stderrors.New("is a directory"))
	default:
		return cerrors.TransportProtocolError("file open", status, IntSuccess)
	}

	size, err := d.readFileSize()
	if err != nil {
		d.Close()
		return err
	}
	d.open = true
	d.eof = size == 0
	d.fileSize = size
	return nil
}

func (d *Device) readFileSize() (uint32, error) {
	if err := d.send(CmdGetFileSize, fileSizeArg); err != nil {
		return 0, err
	}
	var buf [4]byte
	if err := d.readFull("get file size", buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// FileSize returns the size of the open file.
func (d *Device) FileSize() uint32 { return d.fileSize }

// IsOpen reports whether a file is open.
func (d *Device) IsOpen() bool { return d.open }

// Read reads up to len(buf) bytes from the open file. It returns io.EOF
// once the file is exhausted.
func (d *Device) Read(buf []byte) (int, error) {
	if !d.open {
		return 0, cerrors.StorageNotOpenError("mass_storage")
	}
	if d.eof {
		return 0, io.EOF
	}
	want := len(buf)
	if want > maxByteRead {
		want = maxByteRead
	}
	if want == 0 {
		return 0, nil
	}

	var arg [2]byte
	binary.LittleEndian.PutUint16(arg[:], uint16(want))
	if err := d.send(CmdByteRead, arg[:]...); err != nil {
		return 0, err
	}

	got := 0
	for {
		status, err := d.waitInterrupt("byte read")
		if err != nil {
			return got, err
		}
		if status == IntSuccess {
			break
		}
		if status != IntDiskRead {
			return got, cerrors.TransportProtocolError("byte read", status, IntDiskRead)
		}
		data, err := d.readData("read data")
		if err != nil {
			return got, err
		}
		got += copy(buf[got:], data)
		if err := d.send(CmdByteRdGo); err != nil {
			return got, err
		}
	}

	if got < want {
		d.eof = true
	}
	if got == 0 {
		return 0, io.EOF
	}
	return got, nil
}

// Close closes the open file. Closing with nothing open is a no-op.
func (d *Device) Close() error {
	if !d.open {
		return nil
	}
	d.open = false
	d.eof = false
	d.fileSize = 0
	if err := d.send(CmdFileClose, 0); err != nil {
		return err
	}
	return d.expect("file close", IntSuccess)
}
