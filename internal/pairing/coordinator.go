// Package pairing owns the atomic establish/teardown protocol between
// requester and operator sessions and the mutual-exclusion discipline
// around the waiting pool.
package pairing

import (
	"errors"
	"sort"
	"sync"

	"github.com/adtimokhin/handover/internal/log"
	"github.com/adtimokhin/handover/internal/metrics"
	"github.com/adtimokhin/handover/internal/pool"
	"github.com/adtimokhin/handover/internal/session"
	"github.com/rs/zerolog"
)

// Contract violations surfaced to callers. These indicate a bug at the
// call site, never a recoverable runtime condition; the coordinator
// guarantees no partial mutation happened when one is returned.
var (
	ErrNotOperator    = errors.New("pairing: session is not an operator")
	ErrNotRequester   = errors.New("pairing: session is not a requester")
	ErrOperatorPaired = errors.New("pairing: operator already has a partner")
	ErrSessionPaired  = errors.New("pairing: session already has a partner")
	ErrNotAwaiting    = errors.New("pairing: requester is not awaiting an operator")
	ErrNotRegistered  = errors.New("pairing: session is no longer registered")

	// ErrAlreadyQueued reports a double insertion into the waiting pool.
	ErrAlreadyQueued = pool.ErrAlreadyQueued
)

// Coordinator serialises all pairing, enqueueing and teardown against a
// single mutex. Pairing a requester and tearing one down are mutually
// exclusive, which is what prevents a requester being matched by an
// operator in the same instant it disconnects. Critical sections are
// short field and collection mutations; no I/O happens under the lock.
type Coordinator struct {
	mu       sync.Mutex
	waiting  *pool.Pool
	registry map[string]*session.Session
	logger   zerolog.Logger
}

// NewCoordinator returns a coordinator with an empty pool and registry.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		waiting:  pool.New(),
		registry: make(map[string]*session.Session),
		logger:   log.WithComponent("pairing"),
	}
}

// Register adds a freshly accepted session to the live registry.
func (c *Coordinator) Register(s *session.Session) {
	c.mu.Lock()
	c.registry[s.ID()] = s
	c.mu.Unlock()

	metrics.SessionOpened(string(s.Role()))
	c.logger.Info().
		Str(log.FieldEvent, "session.registered").
		Str(log.FieldSessionID, s.ID()).
		Str(log.FieldTenantID, s.TenantID()).
		Str(log.FieldRole, string(s.Role())).
		Msg("session registered")
}

// TryPair attempts to match the operator with the longest-waiting
// requester of its tenant. It returns nil with no error when nobody is
// waiting; the caller retries later. The operator must not already have a
// partner.
func (c *Coordinator) TryPair(op *session.Session) (*session.Session, error) {
	if op.Role() != session.RoleOperator {
		return nil, ErrNotOperator
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if op.Partner() != nil {
		return nil, ErrOperatorPaired
	}

	requester := c.waiting.PeekOldest(op.TenantID())
	if requester == nil {
		return nil, nil
	}
	// Pool membership and partner state are mutated in the same critical
	// section, so a waiter that acquired a partner would mean the
	// invariant broke elsewhere. Drop the stale entry instead of handing
	// out a claimed requester.
	if requester.Partner() != nil {
		c.waiting.Remove(requester.TenantID(), requester.ID())
		metrics.SetWaiting(requester.TenantID(), c.waiting.Len(requester.TenantID()))
		c.logger.Error().
			Str(log.FieldEvent, "pool.stale_entry").
			Str(log.FieldSessionID, requester.ID()).
			Str(log.FieldTenantID, requester.TenantID()).
			Msg("waiting pool entry already had a partner, dropped")
		return nil, nil
	}

	requester.SetPartner(op)
	op.SetPartner(requester)
	c.waiting.Remove(requester.TenantID(), requester.ID())
	requester.SetMode(session.ModePaired)

	metrics.SetWaiting(requester.TenantID(), c.waiting.Len(requester.TenantID()))
	metrics.PairingEstablished(op.TenantID())
	c.logger.Info().
		Str(log.FieldEvent, "pairing.established").
		Str(log.FieldSessionID, requester.ID()).
		Str(log.FieldPartnerID, op.ID()).
		Str(log.FieldTenantID, op.TenantID()).
		Msg("requester paired with operator")
	return requester, nil
}

// EnqueueWait inserts a requester that has transitioned to awaiting an
// operator into the waiting pool.
func (c *Coordinator) EnqueueWait(requester *session.Session) error {
	if requester.Role() != session.RoleRequester {
		return ErrNotRequester
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, live := c.registry[requester.ID()]; !live {
		// The requester's own disconnect cleanup already ran; queueing it
		// now would leave a dead entry nothing ever removes.
		return ErrNotRegistered
	}
	if requester.Partner() != nil {
		return ErrSessionPaired
	}
	if requester.Mode() != session.ModeAwaitingOperator {
		return ErrNotAwaiting
	}
	if err := c.waiting.Add(requester); err != nil {
		return err
	}

	metrics.SetWaiting(requester.TenantID(), c.waiting.Len(requester.TenantID()))
	c.logger.Info().
		Str(log.FieldEvent, "pool.enqueued").
		Str(log.FieldSessionID, requester.ID()).
		Str(log.FieldTenantID, requester.TenantID()).
		Int("waiting", c.waiting.Len(requester.TenantID())).
		Msg("requester awaiting operator")
	return nil
}

// Teardown detaches the session from its partner, removes it from the
// waiting pool and drops it from the live registry. It returns the
// detached partner, if one existed, so the caller can notify and close it
// outside the critical section. Calling Teardown again for the same
// session is a no-op; a disconnect handler and a partner-notification
// handler may race to tear down the same pairing.
func (c *Coordinator) Teardown(s *session.Session) *session.Session {
	c.mu.Lock()
	if _, live := c.registry[s.ID()]; !live {
		c.mu.Unlock()
		return nil
	}
	delete(c.registry, s.ID())

	partner := s.Partner()
	if partner != nil {
		partner.SetPartner(nil)
		s.SetPartner(nil)
		metrics.PairingTorndown()
	}
	if c.waiting.Remove(s.TenantID(), s.ID()) {
		metrics.SetWaiting(s.TenantID(), c.waiting.Len(s.TenantID()))
	}
	c.mu.Unlock()

	metrics.SessionClosed(string(s.Role()))
	evt := c.logger.Info().
		Str(log.FieldEvent, "session.teardown").
		Str(log.FieldSessionID, s.ID()).
		Str(log.FieldTenantID, s.TenantID()).
		Str(log.FieldRole, string(s.Role()))
	if partner != nil {
		evt = evt.Str(log.FieldPartnerID, partner.ID())
	}
	evt.Msg("session torn down")
	return partner
}

// IsWaiting reports whether the session currently sits in the waiting
// pool.
func (c *Coordinator) IsWaiting(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting.Contains(sessionID)
}

// SessionCount returns the number of live sessions.
func (c *Coordinator) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.registry)
}

// WaitingDepths returns the waiting-pool depth per tenant.
func (c *Coordinator) WaitingDepths() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int)
	for _, tenant := range c.waiting.Tenants() {
		out[tenant] = c.waiting.Len(tenant)
	}
	return out
}

// SessionInfo is a point-in-time view of a live session, exposed by the
// debug endpoint.
type SessionInfo struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenant_id"`
	Role      session.Role `json:"role"`
	Mode      session.Mode `json:"mode,omitempty"`
	PartnerID string       `json:"partner_id,omitempty"`
}

// Snapshot returns a stable-sorted view of all live sessions.
func (c *Coordinator) Snapshot() []SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SessionInfo, 0, len(c.registry))
	for _, s := range c.registry {
		info := SessionInfo{
			ID:       s.ID(),
			TenantID: s.TenantID(),
			Role:     s.Role(),
		}
		if s.Role() == session.RoleRequester {
			info.Mode = s.Mode()
		}
		if partner := s.Partner(); partner != nil {
			info.PartnerID = partner.ID()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
