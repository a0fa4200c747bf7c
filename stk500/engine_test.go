package stk500

import (
	"bytes"
	"context"
	"testing"
)

// mockTransport is an in-memory stand-in for transport.Transport. Each
// Send appends its frame to outbound; responses queues up byte slices
// to hand back, one whole queue entry per ReceiveExact call regardless
// of the requested length.
type mockTransport struct {
	outbound  [][]byte
	responses [][]byte
	resetN    int
}

func (m *mockTransport) Send(frame []byte) error {
	cp := append([]byte(nil), frame...)
	m.outbound = append(m.outbound, cp)
	return nil
}

// ReceiveExact pops exactly one queued response per call, modeling one
// command/response rendezvous. A short or empty entry simulates a
// dropped or unanswered command, which command() reports as a mismatch.
func (m *mockTransport) ReceiveExact(ctx context.Context, n int) ([]byte, error) {
	if len(m.responses) == 0 {
		return nil, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *mockTransport) Reset() error {
	m.resetN++
	return nil
}

func (m *mockTransport) Close() error { return nil }

func defaultParams() Params {
	return Params{
		Signature: [3]byte{0x1E, 0x95, 0x0F},
		PageSize:  128,
		NumPages:  256,
	}
}

// TestSmallImageRoundTrip is scenario S1: a 2-byte image, one page, with
// verify enabled.
func TestSmallImageRoundTrip(t *testing.T) {
	m := &mockTransport{
		responses: [][]byte{
			{respInSync, respOK}, // sync
			append([]byte{respInSync}, append([]byte{0x1E, 0x95, 0x0F}, respOK)...), // read sign
			{respInSync, respOK}, // set device
			{respInSync, respOK}, // enter progmode
			{respInSync, respOK}, // load address (upload)
			{respInSync, respOK}, // prog page
			{respInSync, respOK}, // load address (verify)
			append([]byte{respInSync}, append([]byte{0xAA, 0xBB}, respOK)...), // read page
			{respInSync, respOK}, // leave progmode
		},
	}
	e := New(m, defaultParams())
	if err := e.Run([]byte{0xAA, 0xBB}, true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.state != stateDone {
		t.Fatalf("expected stateDone, got %v", e.state)
	}

	loadAddrFrames := 0
	progPageFrames := 0
	readPageFrames := 0
	leaveFrames := 0
	for _, f := range m.outbound {
		switch f[0] {
		case cmdLoadAddress:
			loadAddrFrames++
		case cmdProgPage:
			progPageFrames++
		case cmdReadPage:
			readPageFrames++
		case cmdLeaveProgMode:
			leaveFrames++
		}
	}
	if loadAddrFrames != 2 || progPageFrames != 1 || readPageFrames != 1 || leaveFrames != 1 {
		t.Fatalf("unexpected frame counts: load=%d prog=%d read=%d leave=%d",
			loadAddrFrames, progPageFrames, readPageFrames, leaveFrames)
	}
}

// TestThreePageUpload is scenario S2: a 300-byte image at page size 128
// splits into pages of 128, 128, 44, addressed at word offsets
// 0x0000, 0x0040, 0x0080.
func TestThreePageUpload(t *testing.T) {
	m := &mockTransport{
		responses: [][]byte{
			{respInSync, respOK},
			append([]byte{respInSync}, append([]byte{0x1E, 0x95, 0x0F}, respOK)...),
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK}, // load addr 1
			{respInSync, respOK}, // prog page 1
			{respInSync, respOK}, // load addr 2
			{respInSync, respOK}, // prog page 2
			{respInSync, respOK}, // load addr 3
			{respInSync, respOK}, // prog page 3
			{respInSync, respOK}, // leave
		},
	}
	e := New(m, defaultParams())
	img := make([]byte, 300)
	if err := e.Run(img, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var wordAddrs []uint16
	for _, f := range m.outbound {
		if f[0] == cmdLoadAddress {
			wordAddrs = append(wordAddrs, uint16(f[1])|uint16(f[2])<<8)
		}
	}
	want := []uint16{0x0000, 0x0040, 0x0080}
	if len(wordAddrs) != len(want) {
		t.Fatalf("got %d load-address frames, want %d", len(wordAddrs), len(want))
	}
	for i, w := range want {
		if wordAddrs[i] != w {
			t.Errorf("load address %d: got %#04x, want %#04x", i, wordAddrs[i], w)
		}
	}

	var progPage3 []byte
	progCount := 0
	for _, f := range m.outbound {
		if f[0] == cmdProgPage {
			progCount++
			if progCount == 3 {
				progPage3 = f
			}
		}
	}
	if progPage3 == nil {
		t.Fatal("missing third prog-page frame")
	}
	n := int(progPage3[1])<<8 | int(progPage3[2])
	if n != 44 {
		t.Fatalf("final page size: got %d, want 44 (not 43 -- the off-by-one bug must not appear)", n)
	}
}

// TestSignatureMismatch is scenario S3: the device reports a signature
// that doesn't match the board profile's expectation.
func TestSignatureMismatch(t *testing.T) {
	m := &mockTransport{
		responses: [][]byte{
			{respInSync, respOK},
			append([]byte{respInSync}, append([]byte{0x1E, 0x98, 0x01}, respOK)...),
		},
	}
	e := New(m, defaultParams())
	err := e.Run([]byte{0xAA, 0xBB}, true)
	if err == nil {
		t.Fatal("expected signature mismatch error, got nil")
	}
	for _, f := range m.outbound {
		if f[0] == cmdEnterProgMode {
			t.Fatal("enter_progmode must not be sent after a signature mismatch")
		}
	}
}

// TestSyncRetry is scenario S4: the first GET_SYNC goes unanswered and
// the second succeeds.
func TestSyncRetry(t *testing.T) {
	m := &mockTransport{
		responses: [][]byte{
			{}, // first sync attempt: nothing comes back
			{respInSync, respOK}, // second attempt succeeds
			append([]byte{respInSync}, append([]byte{0x1E, 0x95, 0x0F}, respOK)...),
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
		},
	}
	e := New(m, defaultParams())
	if err := e.Run([]byte{0xAA}, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	syncFrames := 0
	for _, f := range m.outbound {
		if len(f) == 2 && f[0] == cmdGetSync {
			syncFrames++
		}
	}
	if syncFrames != 2 {
		t.Fatalf("expected 2 sync frames, got %d", syncFrames)
	}
}

// TestNoVerifySkipsReadPage is scenario S5: with verify disabled, no
// CMD_READ_PAGE frame is ever sent.
func TestNoVerifySkipsReadPage(t *testing.T) {
	m := &mockTransport{
		responses: [][]byte{
			{respInSync, respOK},
			append([]byte{respInSync}, append([]byte{0x1E, 0x95, 0x0F}, respOK)...),
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
		},
	}
	e := New(m, defaultParams())
	if err := e.Run([]byte{0xAA, 0xBB}, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, f := range m.outbound {
		if f[0] == cmdReadPage {
			t.Fatal("no CMD_READ_PAGE frame should be sent when verify is disabled")
		}
	}
}

// TestResetCalledOnce checks the reset sequence runs exactly once per Run.
func TestResetCalledOnce(t *testing.T) {
	m := &mockTransport{
		responses: [][]byte{
			{respInSync, respOK},
			append([]byte{respInSync}, append([]byte{0x1E, 0x95, 0x0F}, respOK)...),
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
		},
	}
	e := New(m, defaultParams())
	if err := e.Run([]byte{0xAA, 0xBB}, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.resetN != 1 {
		t.Fatalf("expected exactly 1 reset, got %d", m.resetN)
	}
}

func TestSetDevicePayloadLength(t *testing.T) {
	m := &mockTransport{
		responses: [][]byte{
			{respInSync, respOK},
			append([]byte{respInSync}, append([]byte{0x1E, 0x95, 0x0F}, respOK)...),
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
			{respInSync, respOK},
		},
	}
	e := New(m, defaultParams())
	if err := e.Run([]byte{0xAA, 0xBB}, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var setDeviceFrame []byte
	for _, f := range m.outbound {
		if f[0] == cmdSetDevice {
			setDeviceFrame = f
		}
	}
	if setDeviceFrame == nil {
		t.Fatal("missing set_device frame")
	}
	if len(setDeviceFrame) != 22 {
		t.Fatalf("set_device frame length: got %d, want 22 (cmd + 20 bytes + EOP)", len(setDeviceFrame))
	}
	if !bytes.Equal(setDeviceFrame[1:21], make([]byte, 20)) {
		t.Fatalf("set_device payload should be all zero")
	}
}
