//go:build darwin

package serial

import "golang.org/x/sys/unix"

// speeds maps the bridge chip's selectable rates to termios constants.
// Darwin termios stops at 230400.
var speeds = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

func setSpeed(t *unix.Termios, speed uint32) {
	t.Ispeed = uint64(speed)
	t.Ospeed = uint64(speed)
}
