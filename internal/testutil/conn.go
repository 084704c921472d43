// Package testutil provides shared test doubles for the handover core.
package testutil

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adtimokhin/handover/internal/session"
)

// ErrConnClosed is returned by FakeConn operations after the connection
// has been closed or disconnected.
var ErrConnClosed = errors.New("fake conn: closed")

// FakeConn is an in-memory session.Conn. Tests push inbound envelopes with
// Push and observe outbound traffic with AwaitSent / Sent. Disconnect
// simulates the peer going away abruptly.
type FakeConn struct {
	in     chan session.Envelope
	sentCh chan session.Envelope

	mu          sync.Mutex
	sent        []session.Envelope
	writeErr    error
	closeCode   int
	closeReason string

	closed    chan struct{}
	closeOnce sync.Once
}

// NewFakeConn returns a connected fake transport.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		in:     make(chan session.Envelope, 32),
		sentCh: make(chan session.Envelope, 64),
		closed: make(chan struct{}),
	}
}

// Push queues an inbound envelope as if the peer had sent it.
func (c *FakeConn) Push(env session.Envelope) {
	c.in <- env
}

// PushText queues a plain text frame, the way a non-JSON payload arrives.
func (c *FakeConn) PushText(text string) {
	c.Push(session.Envelope{Type: session.TypeText, Content: text})
}

// Disconnect simulates an abrupt peer disconnect: pending reads fail and
// subsequent writes error.
func (c *FakeConn) Disconnect() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// ReadEnvelope returns the next queued inbound envelope, draining queued
// frames before reporting a disconnect.
func (c *FakeConn) ReadEnvelope() (session.Envelope, error) {
	select {
	case env := <-c.in:
		return env, nil
	default:
	}
	select {
	case env := <-c.in:
		return env, nil
	case <-c.closed:
		return session.Envelope{}, ErrConnClosed
	}
}

// WriteEnvelope records the outbound envelope.
func (c *FakeConn) WriteEnvelope(env session.Envelope) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, env)
	c.mu.Unlock()

	select {
	case c.sentCh <- env:
	default:
	}
	return nil
}

// Close records the close code and reason and disconnects.
func (c *FakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	c.closeCode = code
	c.closeReason = reason
	c.mu.Unlock()
	c.Disconnect()
	return nil
}

// FailWrites makes all subsequent writes return err.
func (c *FakeConn) FailWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// Sent returns a snapshot of everything written so far.
func (c *FakeConn) Sent() []session.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]session.Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}

// CloseReason returns the reason recorded by Close, if any.
func (c *FakeConn) CloseReason() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

// IsClosed reports whether the connection has been closed or disconnected.
func (c *FakeConn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// AwaitSent blocks until the next outbound envelope arrives or the
// timeout elapses, failing the test on timeout.
func (c *FakeConn) AwaitSent(t *testing.T, timeout time.Duration) session.Envelope {
	t.Helper()
	select {
	case env := <-c.sentCh:
		return env
	case <-time.After(timeout):
		t.Fatalf("timed out after %s waiting for an outbound envelope", timeout)
		return session.Envelope{}
	}
}
