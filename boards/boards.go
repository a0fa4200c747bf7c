// Package boards is the catalog of known AVR board profiles: the
// baud/page-size/signature triple the protocol engine needs, plus the
// USB vendor:product candidates a board typically enumerates as, so the
// CLI can discover its port without asking the user to name it.
package boards

import (
	"fmt"

	"github.com/stephenkingston/avrman/avrerr"
)

// USBID is a USB vendor:product id pair, as reported by the host's
// serial enumeration.
type USBID struct {
	VID uint16
	PID uint16
}

// Profile is everything a programming session needs to know about a
// target board before it ever opens the serial port.
type Profile struct {
	Name          string
	Baud          uint32
	PageSize      uint16
	NumPages      uint16
	Signature     [3]byte
	USBCandidates []USBID
}

var catalog = map[string]Profile{
	"arduino-uno": {
		Name:      "arduino-uno",
		Baud:      115200,
		PageSize:  128,
		NumPages:  256,
		Signature: [3]byte{0x1E, 0x95, 0x0F},
		USBCandidates: []USBID{
			{0x2341, 0x0043},
			{0x1A86, 0x7523},
			{0x2A03, 0x0043},
			{0x0403, 0x6001},
			{0x10C4, 0xEA60},
		},
	},
	"arduino-nano": {
		Name:      "arduino-nano",
		Baud:      57600,
		PageSize:  128,
		NumPages:  256,
		Signature: [3]byte{0x1E, 0x95, 0x0F},
		USBCandidates: []USBID{
			{0x1A86, 0x7523},
			{0x0403, 0x6001},
		},
	},
	"arduino-mega": {
		Name:      "arduino-mega",
		Baud:      115200,
		PageSize:  256,
		NumPages:  1024,
		Signature: [3]byte{0x1E, 0x98, 0x01},
		USBCandidates: []USBID{
			{0x2341, 0x0010},
			{0x2341, 0x0042},
		},
	},
}

// atmega328p is an alias for arduino-uno: same MCU, same signature and
// page geometry, just named after the chip rather than the board.
func init() {
	catalog["atmega328p"] = catalog["arduino-uno"]
}

// Lookup resolves a symbolic board name to its Profile.
func Lookup(name string) (Profile, error) {
	p, ok := catalog[name]
	if !ok {
		return Profile{}, avrerr.NewConfiguration("unknown board %q", name)
	}
	return p, nil
}

func (id USBID) String() string {
	return fmt.Sprintf("%04X:%04X", id.VID, id.PID)
}
