package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingFileWriterRotates(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "cnceti.log")

	w, err := NewRotatingFileWriter(RotationConfig{Filename: name, MaxSize: 32, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingFileWriter: %v", err)
	}
	defer w.Close()

	line := strings.Repeat("x", 20) + "\n"
	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	for _, f := range []string{name, name + ".1", name + ".2"} {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("expected %s to exist: %v", filepath.Base(f), err)
		}
	}
	if _, err := os.Stat(name + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected only two backups, found %s.3", filepath.Base(name))
	}

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != line {
		t.Errorf("active file should hold only the last line, got %q", data)
	}
}

func TestRotatingFileWriterRequiresName(t *testing.T) {
	if _, err := NewRotatingFileWriter(RotationConfig{}); err == nil {
		t.Error("expected error for empty filename")
	}
}

func TestRotatingFileWriterClosed(t *testing.T) {
	w, err := NewRotatingFileWriter(RotationConfig{Filename: filepath.Join(t.TempDir(), "a.log")})
	if err != nil {
		t.Fatalf("NewRotatingFileWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, err := w.Write([]byte("late\n")); err == nil {
		t.Error("expected write after close to fail")
	}
}
