// Package session holds the per-connection state record and the transport
// boundary the routing core is written against.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Role identifies which side of a handover a connection is on.
// It is immutable after creation.
type Role string

const (
	// RoleRequester is a connection seeking assistance, initially served
	// by the automated responder.
	RoleRequester Role = "requester"
	// RoleOperator is a connection that pairs with exactly one requester.
	RoleOperator Role = "operator"
)

// Mode is the requester-side conversation state. Operator sessions are
// implicitly searching until paired and keep ModeAutomated's zero value
// unused.
type Mode string

const (
	ModeAutomated        Mode = "automated"
	ModeAwaitingOperator Mode = "awaiting_operator"
	ModePaired           Mode = "paired"
)

// Session is the explicit state record created for every accepted
// connection. The partner link is owned by the pairing coordinator: only
// its critical section may call SetPartner, which keeps the symmetric
// invariant (A.partner == B iff B.partner == A) observable at all times.
type Session struct {
	id       string
	tenantID string
	role     Role
	conn     Conn

	mu   sync.Mutex
	mode Mode

	partner atomic.Pointer[Session]

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a session for an accepted connection. Requesters start in
// automated mode.
func New(tenantID string, role Role, conn Conn) *Session {
	return &Session{
		id:       uuid.New().String(),
		tenantID: tenantID,
		role:     role,
		conn:     conn,
		mode:     ModeAutomated,
		done:     make(chan struct{}),
	}
}

// ID returns the opaque session identifier assigned at accept time.
func (s *Session) ID() string { return s.id }

// TenantID returns the partitioning key the session was accepted under.
func (s *Session) TenantID() string { return s.tenantID }

// Role returns the session's immutable role.
func (s *Session) Role() Role { return s.role }

// Mode returns the current conversation mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode records a conversation mode transition.
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

// Partner returns the currently linked partner session, or nil.
func (s *Session) Partner() *Session {
	return s.partner.Load()
}

// SetPartner overwrites the partner link. It must only be called from
// within the pairing coordinator's critical section.
func (s *Session) SetPartner(p *Session) {
	s.partner.Store(p)
}

// Send writes an envelope to the session's connection. Safe for
// concurrent use; the transport serialises writers.
func (s *Session) Send(env Envelope) error {
	return s.conn.WriteEnvelope(env)
}

// Receive blocks for the next inbound envelope. It must only be called
// from the session's own connection goroutine.
func (s *Session) Receive() (Envelope, error) {
	return s.conn.ReadEnvelope()
}

// Close releases the transport exactly once, regardless of how many
// cleanup paths race to it, and signals Done.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		_ = s.conn.Close(code, reason)
		close(s.done)
	})
}

// Done is closed once the session has been closed, whether by a cleanup
// path or by its reader observing a transport failure. The operator
// search loop selects on it so a search never outlives its socket.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has completed.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
