// Package transport sits between the protocol engine and a raw device,
// turning the device's variable-length (often empty) reads into an
// exact-length response channel the protocol can block on.
//
// A single reader goroutine owns the device's receive side: it loops,
// attempts a short read, and pushes whatever arrived onto an inbound
// channel. The caller goroutine writes commands directly (holding the
// device's internal lock only for the duration of one write) and drains
// the inbound channel to assemble exact-length responses. This mirrors
// the shape of the source system's sender/receiver worker pair, collapsed
// to the one worker that's actually load-bearing: a command write is a
// single synchronous call, so giving it its own goroutine and channel
// only adds a hop with no concurrency benefit.
package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stephenkingston/avrman/avrerr"
)

// readerPollInterval is how often the reader goroutine attempts another
// device read while idle.
const readerPollInterval = time.Millisecond

// Device is the subset of serialport.Device the transport drives. Kept
// as a local interface (rather than importing serialport directly) so
// the transport can be exercised against an in-memory double in tests.
type Device interface {
	Send(command []byte) error
	Receive() ([]byte, error)
	Reset() error
	Close() error
}

// Transport is a framed, half-duplex request/response channel over a
// Device.
type Transport struct {
	dev      Device
	mu       sync.Mutex
	inbound  chan []byte
	shutdown atomic.Bool
	wg       sync.WaitGroup
}

// New opens the reader goroutine over dev and returns a ready Transport.
func New(dev Device) *Transport {
	t := &Transport{
		dev:     dev,
		inbound: make(chan []byte, 64),
	}
	t.wg.Add(1)
	go t.readLoop()
	return t
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	for {
		if t.shutdown.Load() {
			return
		}
		time.Sleep(readerPollInterval)

		t.mu.Lock()
		chunk, err := t.dev.Receive()
		t.mu.Unlock()

		if err != nil {
			continue
		}
		if len(chunk) > 0 {
			t.inbound <- chunk
		}
	}
}

// Send writes frame to the device under the shared device lock.
func (t *Transport) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev.Send(frame)
}

// ReceiveExact accumulates inbound chunks until at least n bytes have
// arrived, returning everything accumulated (which may exceed n if a
// chunk straddled the boundary). It blocks until ctx is done or enough
// data has arrived.
func (t *Transport) ReceiveExact(ctx context.Context, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		select {
		case chunk := <-t.inbound:
			buf = append(buf, chunk...)
		case <-ctx.Done():
			return nil, avrerr.NewCommunication("timeout waiting for response", ctx.Err())
		}
	}
	return buf, nil
}

// Reset drives the device's reset sequence under the shared device lock.
func (t *Transport) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev.Reset()
}

// Close stops the reader goroutine and closes the underlying device. It
// is the total teardown: no goroutine outlives the call.
func (t *Transport) Close() error {
	t.shutdown.Store(true)
	t.wg.Wait()
	return t.dev.Close()
}
