package stk500

// Wire-level opcodes, sent little-endian on the wire. Every command frame
// ends with syncCRCEOP; every successful response begins with
// respInSync and ends with respOK.
const (
	respOK           byte = 0x10
	respInSync       byte = 0x14
	syncCRCEOP       byte = 0x20
	cmdGetSync       byte = 0x30
	cmdSetDevice     byte = 0x42
	cmdEnterProgMode byte = 0x50
	cmdLeaveProgMode byte = 0x51
	cmdLoadAddress   byte = 0x55
	cmdProgPage      byte = 0x64
	cmdReadPage      byte = 0x74
	cmdReadSign      byte = 0x75

	// memTypeFlash is the ASCII 'F' memory-type selector used by the
	// program/read page commands; EEPROM programming is out of scope.
	memTypeFlash byte = 'F'
)

// syncRetries bounds the one retry the protocol allows: a noisy first
// byte out of the bootloader right after reset can desync the very
// first GET_SYNC, so sync alone gets up to this many attempts.
const syncRetries = 3
