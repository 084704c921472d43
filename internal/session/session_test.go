package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adtimokhin/handover/internal/session"
	"github.com/adtimokhin/handover/internal/testutil"
)

func TestNewSessionDefaults(t *testing.T) {
	s := session.New("acme", session.RoleRequester, testutil.NewFakeConn())

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "acme", s.TenantID())
	assert.Equal(t, session.RoleRequester, s.Role())
	assert.Equal(t, session.ModeAutomated, s.Mode())
	assert.Nil(t, s.Partner())
	assert.False(t, s.Closed())
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := session.New("t", session.RoleRequester, testutil.NewFakeConn())
	b := session.New("t", session.RoleRequester, testutil.NewFakeConn())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := testutil.NewFakeConn()
	s := session.New("t", session.RoleOperator, conn)

	s.Close(1000, "first")
	s.Close(1000, "second")

	assert.True(t, s.Closed())
	_, reason := conn.CloseReason()
	assert.Equal(t, "first", reason, "only the first close reason sticks")

	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
}

func TestPartnerLink(t *testing.T) {
	r := session.New("t", session.RoleRequester, testutil.NewFakeConn())
	op := session.New("t", session.RoleOperator, testutil.NewFakeConn())

	r.SetPartner(op)
	op.SetPartner(r)
	assert.Same(t, op, r.Partner())
	assert.Same(t, r, op.Partner())

	r.SetPartner(nil)
	assert.Nil(t, r.Partner())
}
