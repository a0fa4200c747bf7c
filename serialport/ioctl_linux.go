package serialport

import (
	ioctl "github.com/daedaluz/goioctl"
	"unsafe"
)

// ioctl request numbers for the subset of termios2/modem-line control the
// STK500 device interface needs: a plain 8-N-1 port with DTR/RTS reset
// control, nothing else.
var (
	tcgets2 = ioctl.IOR('T', 0x2A, unsafe.Sizeof(Termios2{}))
	tcsets2 = ioctl.IOW('T', 0x2B, unsafe.Sizeof(Termios2{}))

	tiocmget = uintptr(0x5415) // get modem line status
	tiocmbis = uintptr(0x5416) // set indicated modem line bits
	tiocmbic = uintptr(0x5417) // clear indicated modem line bits
)
