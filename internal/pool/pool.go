// Package pool implements the tenant-sharded registry of requester
// sessions awaiting an operator.
//
// Buckets preserve insertion order, so the head of a bucket is always the
// longest-waiting requester for that tenant. All operations are O(1):
// lookup of the bucket by tenant is a map access, and each bucket pairs a
// linked list with an element index so removal by session id needs no
// scan.
//
// The pool carries no lock of its own. The pairing coordinator owns all
// mutation and wraps every call in its critical section.
package pool

import (
	"container/list"
	"errors"
	"sort"

	"github.com/adtimokhin/handover/internal/session"
)

// ErrAlreadyQueued is returned by Add when the session is already waiting,
// in any tenant bucket.
var ErrAlreadyQueued = errors.New("pool: session already queued")

type bucket struct {
	order *list.List // of *session.Session, oldest at the front
	byID  map[string]*list.Element
}

// Pool maps tenant ids to FIFO buckets of waiting sessions.
type Pool struct {
	buckets map[string]*bucket
	tenants map[string]string // session id -> tenant id, for the uniqueness invariant
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{
		buckets: make(map[string]*bucket),
		tenants: make(map[string]string),
	}
}

// Add inserts the session at the tail of its tenant's bucket.
func (p *Pool) Add(s *session.Session) error {
	if _, ok := p.tenants[s.ID()]; ok {
		return ErrAlreadyQueued
	}
	b, ok := p.buckets[s.TenantID()]
	if !ok {
		b = &bucket{order: list.New(), byID: make(map[string]*list.Element)}
		p.buckets[s.TenantID()] = b
	}
	b.byID[s.ID()] = b.order.PushBack(s)
	p.tenants[s.ID()] = s.TenantID()
	return nil
}

// Remove deletes the named entry and reports whether it was present.
// Emptied buckets are pruned so idle tenants do not accumulate.
func (p *Pool) Remove(tenantID, sessionID string) bool {
	b, ok := p.buckets[tenantID]
	if !ok {
		return false
	}
	elem, ok := b.byID[sessionID]
	if !ok {
		return false
	}
	b.order.Remove(elem)
	delete(b.byID, sessionID)
	delete(p.tenants, sessionID)
	if b.order.Len() == 0 {
		delete(p.buckets, tenantID)
	}
	return true
}

// PeekOldest returns the longest-waiting session for the tenant without
// removing it, or nil if no one is waiting.
func (p *Pool) PeekOldest(tenantID string) *session.Session {
	b, ok := p.buckets[tenantID]
	if !ok {
		return nil
	}
	front := b.order.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*session.Session)
}

// Contains reports whether the session is waiting in any bucket.
func (p *Pool) Contains(sessionID string) bool {
	_, ok := p.tenants[sessionID]
	return ok
}

// Len returns the number of waiters for the tenant.
func (p *Pool) Len(tenantID string) int {
	b, ok := p.buckets[tenantID]
	if !ok {
		return 0
	}
	return b.order.Len()
}

// Size returns the total number of waiters across all tenants.
func (p *Pool) Size() int {
	return len(p.tenants)
}

// Tenants returns the tenant ids that currently have waiters, sorted for
// deterministic output.
func (p *Pool) Tenants() []string {
	out := make([]string, 0, len(p.buckets))
	for tenant := range p.buckets {
		out = append(out, tenant)
	}
	sort.Strings(out)
	return out
}
