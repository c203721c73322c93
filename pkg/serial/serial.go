// Package serial provides the raw UART link to the USB mass-storage bridge
// chip. The port is opened 8N1 with no line processing; reads wait for the
// first byte up to a per-port timeout, which is how the chip protocol
// detects a silent or absent bridge.
package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var (
	ErrTimeout = errors.New("serial: operation timed out")
	ErrClosed  = errors.New("serial: port closed")
)

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g., /dev/ttyUSB0, /dev/ttyS1)
	Device string

	// Baud rate (default: 9600, the bridge chip's power-on rate)
	BaudRate int

	// Read timeout for the first byte of a read (default: 1 second)
	ReadTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		BaudRate:    9600,
		ReadTimeout: time.Second,
	}
}

// Port is an open UART. It implements io.ReadWriteCloser.
type Port struct {
	mu      sync.Mutex
	fd      int
	device  string
	timeout time.Duration
	closed  bool
	saved   *unix.Termios
}

// SupportedBauds lists the rates the bridge chip can be switched to, in
// ascending order.
func SupportedBauds() []int {
	bauds := make([]int, 0, len(speeds))
	for b := range speeds {
		bauds = append(bauds, b)
	}
	sort.Ints(bauds)
	return bauds
}

func speedFor(baud int) (uint32, error) {
	if s, ok := speeds[baud]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("serial: unsupported baud rate %d (supported: %v)", baud, SupportedBauds())
}

// ListPorts returns the UART device paths present on this host, with
// by-id links resolved and duplicates removed.
func ListPorts() ([]string, error) {
	seen := make(map[string]bool)
	var ports []string
	for _, pattern := range portPatterns {
		matches, _ := filepath.Glob(pattern)
		for _, m := range matches {
			if resolved, err := filepath.EvalSymlinks(m); err == nil {
				m = resolved
			}
			if !seen[m] {
				seen[m] = true
				ports = append(ports, m)
			}
		}
	}
	sort.Strings(ports)
	return ports, nil
}

// Open opens cfg.Device in raw 8N1 mode at cfg.BaudRate.
func Open(cfg Config) (*Port, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial: device path required")
	}
	def := DefaultConfig()
	if cfg.BaudRate == 0 {
		cfg.BaudRate = def.BaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	speed, err := speedFor(cfg.BaudRate)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	fail := func(what string, err error) (*Port, error) {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: %s %s: %w", what, cfg.Device, err)
	}

	saved, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return fail("get termios", err)
	}
	t := *saved
	makeRaw(&t)
	setSpeed(&t, speed)
	// Reads return as soon as one byte is available; the timeout is
	// enforced with poll.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &t); err != nil {
		return fail("set termios", err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		return fail("set blocking", err)
	}

	return &Port{
		fd:      fd,
		device:  cfg.Device,
		timeout: cfg.ReadTimeout,
		saved:   saved,
	}, nil
}

func makeRaw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
}

// fdFor returns the descriptor and read timeout, or ErrClosed.
func (p *Port) fdFor() (int, time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return -1, 0, ErrClosed
	}
	return p.fd, p.timeout, nil
}

// Read reads up to len(buf) bytes, waiting at most the read timeout for
// the first byte. It returns ErrTimeout if nothing arrived.
func (p *Port) Read(buf []byte) (int, error) {
	fd, timeout, err := p.fdFor()
	if err != nil {
		return 0, err
	}

	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	ready, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	switch {
	case errors.Is(err, unix.EINTR):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("serial: poll %s: %w", p.device, err)
	case ready == 0:
		return 0, ErrTimeout
	case pfd[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0:
		// Adapter unplugged.
		return 0, io.EOF
	}

	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, fmt.Errorf("serial: read %s: %w", p.device, err)
	}
	return n, nil
}

// Write writes all of buf to the port.
func (p *Port) Write(buf []byte) (int, error) {
	fd, _, err := p.fdFor()
	if err != nil {
		return 0, err
	}
	written := 0
	for written < len(buf) {
		n, err := unix.Write(fd, buf[written:])
		if err != nil {
			return written, fmt.Errorf("serial: write %s: %w", p.device, err)
		}
		written += n
	}
	return written, nil
}

// Close restores the saved line settings and closes the port.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.saved != nil {
		_ = unix.IoctlSetTermios(p.fd, ioctlSetTermios, p.saved)
	}
	return unix.Close(p.fd)
}

// Device returns the device path.
func (p *Port) Device() string {
	return p.device
}

// SetReadTimeout changes the first-byte timeout used by Read.
func (p *Port) SetReadTimeout(d time.Duration) {
	p.mu.Lock()
	p.timeout = d
	p.mu.Unlock()
}

// Flush discards unread input and unsent output.
func (p *Port) Flush() error {
	fd, _, err := p.fdFor()
	if err != nil {
		return err
	}
	return unix.IoctlSetInt(fd, ioctlTCFlush, unix.TCIOFLUSH)
}

// IsDeviceAvailable reports whether device is a character device that can
// be opened read-write.
func IsDeviceAvailable(device string) bool {
	info, err := os.Stat(device)
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return false
	}
	unix.Close(fd)
	return true
}

// ResolveDevice follows /dev/serial/by-id and by-path links so the same
// adapter is named consistently.
func ResolveDevice(device string) (string, error) {
	if !strings.HasPrefix(device, "/dev/serial/") {
		return device, nil
	}
	resolved, err := filepath.EvalSymlinks(device)
	if err != nil {
		return "", fmt.Errorf("serial: resolve %s: %w", device, err)
	}
	return resolved, nil
}
