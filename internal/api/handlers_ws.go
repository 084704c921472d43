package api

import (
	"net/http"

	"github.com/adtimokhin/handover/internal/log"
	"github.com/adtimokhin/handover/internal/relay"
	"github.com/adtimokhin/handover/internal/session"
)

// HeaderTenantID selects the tenant when no query parameter is given.
const HeaderTenantID = "X-Tenant-ID"

func (s *Server) tenantFor(r *http.Request) string {
	if t := r.URL.Query().Get("tenant"); t != "" {
		return t
	}
	if t := r.Header.Get(HeaderTenantID); t != "" {
		return t
	}
	return s.cfg.DefaultTenant
}

func (s *Server) handleRequesterWS(w http.ResponseWriter, r *http.Request) {
	s.serveSession(w, r, session.RoleRequester)
}

func (s *Server) handleOperatorWS(w http.ResponseWriter, r *http.Request) {
	s.serveSession(w, r, session.RoleOperator)
}

func (s *Server) serveSession(w http.ResponseWriter, r *http.Request, role session.Role) {
	tenant := s.tenantFor(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "ws.upgrade_failed").
			Str(log.FieldRole, string(role)).
			Msg("websocket upgrade rejected")
		return
	}

	sess := session.New(tenant, role, newWSConn(conn, s.cfg.ReadLimit))
	s.coord.Register(sess)
	defer sess.Close(relay.CloseNormal, "")

	logger := s.logger.With().
		Str(log.FieldSessionID, sess.ID()).
		Str(log.FieldTenantID, tenant).
		Str(log.FieldRole, string(role)).
		Logger()
	logger.Info().
		Str(log.FieldEvent, "ws.session_accepted").
		Msg("websocket session accepted")

	_ = sess.Send(session.Envelope{
		Type:    session.TypeWelcome,
		UserID:  sess.ID(),
		Message: "Welcome! Your id is " + sess.ID(),
	})

	switch role {
	case session.RoleRequester:
		s.protocol.HandleRequester(s.rootCtx, sess)
	case session.RoleOperator:
		s.protocol.HandleOperator(s.rootCtx, sess)
	}

	logger.Info().
		Str(log.FieldEvent, "ws.session_finished").
		Msg("websocket session finished")
}
