//go:build darwin

package serial

import "golang.org/x/sys/unix"

const (
	ioctlGetTermios = unix.TIOCGETA
	ioctlSetTermios = unix.TIOCSETA
	ioctlTCFlush    = unix.TIOCFLUSH
)

var portPatterns = []string{
	"/dev/cu.usbserial*",
	"/dev/cu.wchusbserial*",
}
