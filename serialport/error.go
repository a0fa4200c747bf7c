package serialport

import (
	"syscall"

	"github.com/stephenkingston/avrman/avrerr"
)

// wrapErr reports a low-level syscall/ioctl failure as a Communication
// error. Every failure this package can produce -- open, termios2
// ioctls, reads, writes, modem-line control -- is a failure to talk to
// the device, so it always lands in the same avrerr kind; there is no
// separate local error type to maintain.
func wrapErr(msg string, e error) error {
	if e == nil {
		return nil
	}
	return avrerr.NewCommunication(msg, e)
}

var errClosed = avrerr.NewCommunication("port already closed", syscall.EBADF)
