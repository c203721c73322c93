package storage

import (
	"bufio"
	stderrors "errors"
	"io"
	"io/fs"
	"os"

	cerrors "github.com/Banz520/CNCETI/pkg/errors"
	"github.com/Banz520/CNCETI/pkg/log"
)

// DiskName is the device name reported by Disk.
const DiskName = "disk"

// Disk serves program files from a file system tree, typically the mount
// point of a removable card. Reads are line oriented.
type Disk struct {
	fsys   fs.FS
	root   string
	logger *log.Logger

	file   fs.File
	reader *bufio.Reader
	path   string
	size   int64
	pos    int64
}

// NewDisk returns a Disk rooted at the host directory root.
func NewDisk(root string) *Disk {
	return NewDiskFS(os.DirFS(root), root)
}

// NewDiskFS returns a Disk over fsys; label names the root in logs.
func NewDiskFS(fsys fs.FS, label string) *Disk {
	return &Disk{
		fsys:   fsys,
		root:   label,
		logger: log.GetLogger("storage.disk"),
	}
}

// Name implements Transport.
func (d *Disk) Name() string { return DiskName }

// Root returns the root label given at construction.
func (d *Disk) Root() string { return d.root }

// Ready reports whether the root directory is accessible.
func (d *Disk) Ready() bool {
	if d.fsys == nil {
		return false
	}
	info, err := fs.Stat(d.fsys, ".")
	return err == nil && info.IsDir()
}

// List implements Transport. Subdirectories are not descended into.
func (d *Disk) List(dir string, fn func(name string) bool) error {
	if !d.Ready() {
		return cerrors.StorageUnavailableError(DiskName, "root "+d.root+" not accessible")
	}
	entries, err := fs.ReadDir(d.fsys, fsPath(dir))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return cerrors.StorageNotFoundError(DiskName, dir)
		}
		return cerrors.StorageReadError(DiskName, dir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !fn(e.Name()) {
			break
		}
	}
	return nil
}

// Open implements Transport.
func (d *Disk) Open(p string) error {
	d.Close()

	name := fsPath(p)
	f, err := d.fsys.Open(name)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return cerrors.StorageNotFoundError(DiskName, p)
		}
		return cerrors.StorageOpenError(DiskName, p, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return cerrors.StorageOpenError(DiskName, p, err)
	}
	if info.IsDir() {
		f.Close()
		return cerrors.StorageOpenError(DiskName, p, stderrors.New("is a directory"))
	}

	d.file = f
	d.reader = bufio.NewReader(f)
	d.path = p
	d.size = info.Size()
	d.pos = 0
	d.logger.Debug("opened %s (%d bytes)", p, d.size)
	return nil
}

// Close implements Transport.
func (d *Disk) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.reader = nil
	d.path = ""
	d.size = 0
	d.pos = 0
	return err
}

// Read copies bytes up to and including the next newline into buf. A
// line longer than buf is returned in buf-sized pieces.
func (d *Disk) Read(buf []byte) (int, error) {
	if d.reader == nil {
		return 0, cerrors.StorageNotOpenError(DiskName)
	}
	n := 0
	for n < len(buf) {
		b, err := d.reader.ReadByte()
		if err != nil {
			if err == io.EOF {
				if n == 0 {
					return 0, io.EOF
				}
				break
			}
			return n, cerrors.StorageReadError(DiskName, d.path, err)
		}
		buf[n] = b
		n++
		d.pos++
		if b == '\n' {
			break
		}
	}
	return n, nil
}

// Rewind implements Transport.
func (d *Disk) Rewind() error {
	if d.file == nil {
		return cerrors.StorageNotOpenError(DiskName)
	}
	if s, ok := d.file.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return cerrors.StorageReadError(DiskName, d.path, err)
		}
		d.reader.Reset(d.file)
		d.pos = 0
		return nil
	}
	return d.Open(d.path)
}

// Size implements Transport.
func (d *Disk) Size() int64 { return d.size }

// Position implements Transport.
func (d *Disk) Position() int64 { return d.pos }

// LineOriented implements Transport.
func (d *Disk) LineOriented() bool { return true }
