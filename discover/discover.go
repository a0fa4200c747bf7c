// Package discover finds the serial port a target board is attached to
// by matching the USB vendor:product id the kernel reports for each
// enumerated port against a board profile's candidate list.
package discover

import (
	"go.bug.st/serial/enumerator"

	"github.com/stephenkingston/avrman/avrerr"
	"github.com/stephenkingston/avrman/boards"
)

// Find walks the host's enumerated serial ports and returns the device
// path of the first one whose USB VID:PID matches an entry in
// candidates. Ports that aren't USB, or whose id can't be parsed, are
// skipped rather than treated as errors.
func Find(candidates []boards.USBID) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", avrerr.NewConfiguration("enumerate serial ports: %v", err)
	}

	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		vid, ok1 := parseHex16(p.VID)
		pid, ok2 := parseHex16(p.PID)
		if !ok1 || !ok2 {
			continue
		}
		for _, cand := range candidates {
			if vid == cand.VID && pid == cand.PID {
				return p.Name, nil
			}
		}
	}
	return "", avrerr.NewConfiguration("no matching serial port for board's USB ids")
}

// parseHex16 parses a 4-hex-digit VID/PID string as reported by
// go.bug.st/serial/enumerator (e.g. "2341"), ignoring an optional "0x"
// prefix.
func parseHex16(s string) (uint16, bool) {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if s == "" {
		return 0, false
	}
	var v uint16
	for _, c := range s {
		var d uint16
		switch {
		case c >= '0' && c <= '9':
			d = uint16(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint16(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint16(c-'A') + 10
		default:
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}
