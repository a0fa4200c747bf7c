package stk500

// Params configures one programming session: the board's expected
// signature bytes and flash page geometry. Port/baud selection and USB
// product-id matching live one layer up, in the boards/discover
// packages -- by the time a Params reaches the engine, the serial device
// is already open at the right baud.
type Params struct {
	// Signature is the 3 device signature bytes the target must report
	// (e.g. {0x1E, 0x95, 0x0F} for an ATmega328P).
	Signature [3]byte

	// PageSize is the flash write granularity in bytes. Must be even
	// and positive: flash is word-addressed, and every page write is
	// addressed as byteAddress>>1.
	PageSize uint16

	// NumPages bounds the target's flash; purely informational here,
	// since the upload/verify loops are driven by the image length, not
	// by this count.
	NumPages uint16
}
