package serial

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BaudRate != 9600 {
		t.Errorf("expected default baud 9600, got %d", cfg.BaudRate)
	}
	if cfg.ReadTimeout != time.Second {
		t.Errorf("expected 1s read timeout, got %v", cfg.ReadTimeout)
	}
}

func TestSupportedBauds(t *testing.T) {
	bauds := SupportedBauds()
	if len(bauds) == 0 || bauds[0] != 9600 {
		t.Fatalf("expected 9600 as the lowest rate, got %v", bauds)
	}
	for i := 1; i < len(bauds); i++ {
		if bauds[i] <= bauds[i-1] {
			t.Fatalf("rates not ascending: %v", bauds)
		}
	}
}

func TestSpeedFor(t *testing.T) {
	speed, err := speedFor(9600)
	if err != nil {
		t.Fatalf("speedFor(9600): %v", err)
	}
	if speed != unix.B9600 {
		t.Errorf("expected B9600, got %#x", speed)
	}
	if s, err := speedFor(115200); err != nil || s != unix.B115200 {
		t.Errorf("speedFor(115200) = %#x, %v", s, err)
	}

	for _, baud := range []int{0, -9600, 250000, 1200} {
		if _, err := speedFor(baud); err == nil {
			t.Errorf("expected error for baud %d", baud)
		}
	}
}

func TestOpenRejectsUnsupportedBaud(t *testing.T) {
	if _, err := Open(Config{Device: "/dev/null", BaudRate: 250000}); err == nil {
		t.Error("expected error for unsupported baud rate")
	}
}

func TestOpenRequiresDevice(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("expected error for empty device path")
	}
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(Config{Device: filepath.Join(t.TempDir(), "ttyNONE")})
	if err == nil {
		t.Error("expected error for missing device")
	}
}

func TestIsDeviceAvailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regular")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if IsDeviceAvailable(path) {
		t.Error("regular file should not count as a serial device")
	}
	if IsDeviceAvailable(filepath.Join(t.TempDir(), "missing")) {
		t.Error("missing path should not be available")
	}
}

func TestResolveDevice(t *testing.T) {
	got, err := ResolveDevice("/dev/ttyS1")
	if err != nil || got != "/dev/ttyS1" {
		t.Errorf("expected path unchanged, got %q (%v)", got, err)
	}
}
