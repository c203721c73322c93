package storage

import (
	"io"

	"github.com/Banz520/CNCETI/pkg/ch376"
	cerrors "github.com/Banz520/CNCETI/pkg/errors"
	"github.com/Banz520/CNCETI/pkg/log"
	"github.com/Banz520/CNCETI/pkg/serial"
)

// MassStorageName is the device name reported by MassStorage.
const MassStorageName = "mass_storage"

// Dialer opens the byte link to the bridge chip.
type Dialer func() (io.ReadWriteCloser, error)

// SerialDialer opens the chip's UART with cfg.
func SerialDialer(cfg serial.Config) Dialer {
	return func() (io.ReadWriteCloser, error) {
		return serial.Open(cfg)
	}
}

// MassStorage reads a USB drive through a CH376. The link is dialed
// lazily on the first Ready call and redialed after the chip stops
// answering.
type MassStorage struct {
	dial    Dialer
	opts    []ch376.Option
	logger  *log.Logger
	link    io.ReadWriteCloser
	dev     *ch376.Device
	mounted bool

	path string
	size int64
	pos  int64
}

// NewMassStorage returns a transport that dials the chip with dial.
func NewMassStorage(dial Dialer, opts ...ch376.Option) *MassStorage {
	return &MassStorage{
		dial:   dial,
		opts:   opts,
		logger: log.GetLogger("storage.mass"),
	}
}

// Name implements Transport.
func (m *MassStorage) Name() string { return MassStorageName }

// Ready checks that the chip answers and a drive is mounted. While a
// file is open the check is skipped so the read sequence is not
// interleaved with probe commands.
func (m *MassStorage) Ready() bool {
	if m.dev != nil && m.dev.IsOpen() {
		return true
	}
	if m.link == nil {
		link, err := m.dial()
		if err != nil {
			m.logger.Debug("dial failed: %v", err)
			return false
		}
		m.link = link
		m.dev = ch376.New(link, m.opts...)
	}
	if !m.dev.Ping() {
		m.logger.Warn("bridge chip not responding")
		m.Disconnect()
		return false
	}
	if m.mounted {
		if m.dev.DiskConnected() {
			return true
		}
		m.logger.Info("drive removed")
		m.mounted = false
		return false
	}
	if err := m.dev.Mount(); err != nil {
		m.logger.WithError(err).Debug("mount failed")
		return false
	}
	m.mounted = true
	m.logger.Info("drive mounted")
	return true
}

// Disconnect closes the link to the chip.
func (m *MassStorage) Disconnect() error {
	m.mounted = false
	m.dev = nil
	m.path, m.size, m.pos = "", 0, 0
	if m.link == nil {
		return nil
	}
	err := m.link.Close()
	m.link = nil
	return err
}

func (m *MassStorage) requireMounted() error {
	if m.dev == nil || !m.mounted {
		return cerrors.StorageUnavailableError(MassStorageName, "drive not mounted")
	}
	return nil
}

// List implements Transport. Directory entries are skipped.
func (m *MassStorage) List(dir string, fn func(name string) bool) error {
	if err := m.requireMounted(); err != nil {
		return err
	}
	m.path, m.size, m.pos = "", 0, 0
	return m.dev.List(dir, func(e ch376.Entry) bool {
		if e.IsDir() {
			return true
		}
		return fn(e.Name)
	})
}

// Open implements Transport.
func (m *MassStorage) Open(p string) error {
	if err := m.requireMounted(); err != nil {
		return err
	}
	m.path, m.size, m.pos = "", 0, 0
	if err := m.dev.Open(p); err != nil {
		if cerrors.IsStorage(err) {
			return err
		}
		return cerrors.StorageOpenError(MassStorageName, p, err)
	}
	m.path = p
	m.size = int64(m.dev.FileSize())
	return nil
}

// Close implements Transport.
func (m *MassStorage) Close() error {
	m.path, m.size, m.pos = "", 0, 0
	if m.dev == nil {
		return nil
	}
	return m.dev.Close()
}

// Read implements Transport.
func (m *MassStorage) Read(buf []byte) (int, error) {
	if m.dev == nil || !m.dev.IsOpen() {
		return 0, cerrors.StorageNotOpenError(MassStorageName)
	}
	n, err := m.dev.Read(buf)
	m.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, cerrors.StorageReadError(MassStorageName, m.path, err)
	}
	return n, err
}

// Rewind reopens the current file; the chip has no cheap seek in
// byte-read mode.
func (m *MassStorage) Rewind() error {
	if m.dev == nil || !m.dev.IsOpen() {
		return cerrors.StorageNotOpenError(MassStorageName)
	}
	return m.Open(m.path)
}

// Size implements Transport.
func (m *MassStorage) Size() int64 { return m.size }

// Position implements Transport.
func (m *MassStorage) Position() int64 { return m.pos }

// LineOriented implements Transport.
func (m *MassStorage) LineOriented() bool { return false }
