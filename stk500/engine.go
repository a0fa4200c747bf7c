// Package stk500 implements the STK500v1 programming protocol: the
// synchronous request/response state machine that resets an AVR MCU into
// its bootloader, negotiates a session, writes a binary image into flash
// page by page, and optionally reads it back to verify.
package stk500

import (
	"context"
	"time"

	"github.com/stephenkingston/avrman/avrerr"
)

// transport is the subset of transport.Transport the engine drives. A
// local interface, so engine tests can run against an in-memory double
// without importing the real transport/device stack.
type transport interface {
	Send(frame []byte) error
	ReceiveExact(ctx context.Context, n int) ([]byte, error)
	Reset() error
	Close() error
}

// state names the engine's position in its one-shot lifecycle. There is
// no recovery transition out of Failed: a failed run's engine is
// discarded and a fresh one constructed for the next attempt.
type state int

const (
	stateIdle state = iota
	stateReset
	stateSyncing
	stateIdentified
	stateConfigured
	stateProgramming
	stateVerifying
	stateDone
	stateFailed
)

const (
	syncDeadline    = 10 * time.Second
	programDeadline = 30 * time.Second
)

// Engine drives one STK500v1 session over an already-open transport.
type Engine struct {
	t      transport
	params Params
	state  state

	// OnProgress, if set, is called after every page written or
	// verified with the number of pages completed and the total page
	// count for this image. Used to drive the CLI's progress bar.
	OnProgress func(done, total int)
}

// New constructs an engine bound to t and params. It does not touch the
// device; call Run to actually program the target.
func New(t transport, params Params) *Engine {
	return &Engine{t: t, params: params, state: stateIdle}
}

// Run executes the full top-level sequence from spec.md §4.3.4: reset,
// sync, read+verify signature, set device, enter programming mode,
// upload, optionally verify, leave programming mode. Any failure is
// fatal to the call -- there is no partial retry beyond the bounded sync
// retry inside sync().
func (e *Engine) Run(firmware []byte, verify bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), programDeadline)
	defer cancel()

	e.state = stateReset
	if err := e.t.Reset(); err != nil {
		e.state = stateFailed
		return avrerr.NewCommunication("reset", err)
	}

	e.state = stateSyncing
	syncCtx, syncCancel := context.WithTimeout(ctx, syncDeadline)
	err := e.sync(syncCtx)
	syncCancel()
	if err != nil {
		e.state = stateFailed
		return err
	}

	e.state = stateIdentified
	if err := e.verifySignature(ctx); err != nil {
		e.state = stateFailed
		return err
	}

	e.state = stateConfigured
	if err := e.setDevice(ctx); err != nil {
		e.state = stateFailed
		return err
	}
	if err := e.enterProgMode(ctx); err != nil {
		e.state = stateFailed
		return err
	}

	e.state = stateProgramming
	if err := e.upload(ctx, firmware); err != nil {
		e.state = stateFailed
		return err
	}

	if verify {
		e.state = stateVerifying
		if err := e.verifyAll(ctx, firmware); err != nil {
			e.state = stateFailed
			return err
		}
	}

	if err := e.leaveProgMode(ctx); err != nil {
		e.state = stateFailed
		return err
	}

	e.state = stateDone
	return nil
}

// command sends cmd and consumes exactly len(expected) inbound bytes,
// failing if the observed prefix doesn't match. This is the one seam the
// whole wire protocol is built from (spec.md §4.3.2); an STK500v2 engine
// would decode its framed packets behind the same shape.
func (e *Engine) command(ctx context.Context, cmd, expected []byte) error {
	if err := e.t.Send(cmd); err != nil {
		return avrerr.NewCommunication("send command", err)
	}
	got, err := e.t.ReceiveExact(ctx, len(expected))
	if err != nil {
		return err
	}
	if len(got) < len(expected) || string(got[:len(expected)]) != string(expected) {
		return avrerr.NewProgrammer("unexpected response to %#v: expected %#v, got %#v", cmd, expected, got)
	}
	return nil
}

func (e *Engine) sync(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < syncRetries; attempt++ {
		lastErr = e.command(ctx, []byte{cmdGetSync, syncCRCEOP}, []byte{respInSync, respOK})
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return avrerr.NewCommunication("sync", ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
	return lastErr
}

func (e *Engine) verifySignature(ctx context.Context) error {
	expected := append([]byte{respInSync}, e.params.Signature[:]...)
	expected = append(expected, respOK)
	if err := e.command(ctx, []byte{cmdReadSign, syncCRCEOP}, expected); err != nil {
		return avrerr.NewProgrammer("wrong device: %v", err)
	}
	return nil
}

// setDevice sends the 20-byte STK_SET_DEVICE payload as all zeros. Real
// STK500v1 implementations populate device code, revision, programming
// modes, poll values, page size and memory sizes here; the Arduino
// bootloader ignores the whole payload, so the zeros are kept purely for
// wire compatibility rather than correctness.
func (e *Engine) setDevice(ctx context.Context) error {
	cmd := make([]byte, 0, 22)
	cmd = append(cmd, cmdSetDevice)
	cmd = append(cmd, make([]byte, 20)...)
	cmd = append(cmd, syncCRCEOP)
	return e.command(ctx, cmd, []byte{respInSync, respOK})
}

func (e *Engine) enterProgMode(ctx context.Context) error {
	return e.command(ctx, []byte{cmdEnterProgMode, syncCRCEOP}, []byte{respInSync, respOK})
}

func (e *Engine) leaveProgMode(ctx context.Context) error {
	return e.command(ctx, []byte{cmdLeaveProgMode, syncCRCEOP}, []byte{respInSync, respOK})
}

// loadAddress sets the word address (byte address >> 1, since flash is
// word-addressed on AVR) of the next page to program or read.
func (e *Engine) loadAddress(ctx context.Context, wordAddr uint16) error {
	lo := byte(wordAddr & 0xFF)
	hi := byte(wordAddr >> 8 & 0xFF)
	return e.command(ctx, []byte{cmdLoadAddress, lo, hi, syncCRCEOP}, []byte{respInSync, respOK})
}

func (e *Engine) programPage(ctx context.Context, data []byte) error {
	n := uint16(len(data))
	cmd := make([]byte, 0, 4+len(data)+1)
	cmd = append(cmd, cmdProgPage, byte(n>>8), byte(n&0xFF), memTypeFlash)
	cmd = append(cmd, data...)
	cmd = append(cmd, syncCRCEOP)
	return e.command(ctx, cmd, []byte{respInSync, respOK})
}

// readPage reads back a page and compares it against expected in one
// step, by embedding expected into the command's expected response --
// simpler than a separate read-then-compare because it reuses command().
func (e *Engine) readPage(ctx context.Context, expected []byte) error {
	n := uint16(len(expected))
	cmd := []byte{cmdReadPage, byte(n >> 8), byte(n & 0xFF), memTypeFlash, syncCRCEOP}
	want := make([]byte, 0, len(expected)+2)
	want = append(want, respInSync)
	want = append(want, expected...)
	want = append(want, respOK)
	return e.command(ctx, cmd, want)
}

// upload writes bin into flash one page at a time, walking byteAddr by
// the length of the slice actually consumed (the final page is usually
// short, never empty). Uses the half-open end = min(byteAddr+P, N): the
// source's `N-1` variant silently drops the last byte of a short final
// page and must not be copied.
func (e *Engine) upload(ctx context.Context, bin []byte) error {
	return e.walkPages(ctx, bin, e.programPage)
}

// verifyAll re-walks bin with the same page geometry as upload, reading
// each page back and comparing it against the expected bytes.
func (e *Engine) verifyAll(ctx context.Context, bin []byte) error {
	return e.walkPages(ctx, bin, e.readPage)
}

func (e *Engine) walkPages(ctx context.Context, bin []byte, pageOp func(context.Context, []byte) error) error {
	pageSize := int(e.params.PageSize)
	n := len(bin)
	total := (n + pageSize - 1) / pageSize

	byteAddr := 0
	done := 0
	for byteAddr < n {
		wordAddr := uint16(byteAddr >> 1)
		if err := e.loadAddress(ctx, wordAddr); err != nil {
			return err
		}

		end := byteAddr + pageSize
		if end > n {
			end = n
		}
		slice := bin[byteAddr:end]
		if len(slice) == 0 {
			break
		}

		if err := pageOp(ctx, slice); err != nil {
			return err
		}
		byteAddr += len(slice)
		done++
		if e.OnProgress != nil {
			e.OnProgress(done, total)
		}
	}
	return nil
}
