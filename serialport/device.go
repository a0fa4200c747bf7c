// Package serialport is the device interface layer: the only concrete
// transport the STK500v1 engine talks to is a host serial port, opened
// and controlled directly through Linux termios2/modem-line ioctls
// (adapted from a general-purpose raw serial driver) rather than through
// a higher-level serial port crate.
package serialport

import (
	"errors"
	"syscall"
	"time"
)

const (
	// maxResponseSize bounds a single read attempt; the STK500 wire
	// protocol never has a response anywhere close to this large.
	maxResponseSize = 1024

	// serialReadTimeout is the short per-call poll timeout. A timeout is
	// not an error at this layer -- it just means "nothing arrived yet".
	serialReadTimeout = time.Millisecond

	resetDTRRTSLow       = 100 * time.Microsecond
	postResetBootupDelay = 250 * time.Millisecond
)

// Device is the abstract byte transport the protocol engine is built on:
// send a frame, receive whatever arrived (possibly nothing), and drive
// the target's reset line.
type Device interface {
	Send(command []byte) error
	Receive() ([]byte, error)
	Reset() error
	Close() error
}

// SerialDevice is the only concrete Device: a host serial port opened at
// a fixed baud, 8 data bits, no parity, one stop bit, with DTR/RTS under
// direct software control for bootloader entry.
type SerialDevice struct {
	port *Port
}

// Open opens name at baud and configures it for STK500 use: raw mode,
// 8-N-1, modem lines ignored by the kernel line discipline (CLOCAL) since
// this driver toggles DTR/RTS itself rather than relying on HUPCL
// semantics, and DTR deasserted immediately so opening the port does not
// itself reset the target prematurely.
func Open(name string, baud uint32) (*SerialDevice, error) {
	port, err := openPort(name)
	if err != nil {
		return nil, err
	}

	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return nil, wrapErr("read termios2", err)
	}
	attrs.makeRaw()
	attrs.Cflag |= CLOCAL | CREAD
	attrs.setCustomSpeed(baud)
	attrs.Cc[syscall.VMIN] = 0
	attrs.Cc[syscall.VTIME] = 0
	if err := port.SetAttr2(TCSANOW, attrs); err != nil {
		port.Close()
		return nil, wrapErr("configure termios2", err)
	}

	if err := port.DisableModemLines(TIOCM_DTR); err != nil {
		port.Close()
		return nil, wrapErr("deassert dtr on open", err)
	}

	return &SerialDevice{port: port}, nil
}

func (d *SerialDevice) Send(command []byte) error {
	n := 0
	for n < len(command) {
		written, err := d.port.Write(command[n:])
		if err != nil {
			return wrapErr("write", err)
		}
		n += written
	}
	return nil
}

func (d *SerialDevice) Receive() ([]byte, error) {
	buf := make([]byte, maxResponseSize)
	n, err := d.port.ReadTimeout(buf, serialReadTimeout)
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, wrapErr("read", err)
	}
	return buf[:n], nil
}

// Reset drops DTR/RTS, waits the minimum low time a USB-serial adapter
// needs to register the edge, reasserts both lines, then waits out the
// bootloader's own startup and sync window before returning.
func (d *SerialDevice) Reset() error {
	if err := d.port.DisableModemLines(TIOCM_DTR | TIOCM_RTS); err != nil {
		return wrapErr("deassert dtr/rts", err)
	}
	time.Sleep(resetDTRRTSLow)

	if err := d.port.EnableModemLines(TIOCM_DTR | TIOCM_RTS); err != nil {
		return wrapErr("assert dtr/rts", err)
	}
	time.Sleep(postResetBootupDelay)
	return nil
}

func (d *SerialDevice) Close() error {
	return d.port.Close()
}

// isTimeout reports whether err represents the serial read's per-call
// wait expiring with no data available -- not a real I/O failure.
func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ETIMEDOUT)
}
