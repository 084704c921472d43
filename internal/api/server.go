package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adtimokhin/handover/internal/config"
	"github.com/adtimokhin/handover/internal/log"
	"github.com/adtimokhin/handover/internal/pairing"
	"github.com/adtimokhin/handover/internal/relay"
)

// Server exposes the websocket and management endpoints.
type Server struct {
	cfg      config.AppConfig
	coord    *pairing.Coordinator
	protocol *relay.Protocol
	hub      *broadcastHub
	upgrader websocket.Upgrader

	// rootCtx is cancelled on shutdown so long-lived websocket
	// handlers can drain and close their sessions.
	rootCtx context.Context
	logger  zerolog.Logger
}

// NewServer wires the HTTP surface around an existing coordinator and
// relay protocol. rootCtx bounds the lifetime of accepted websocket
// sessions.
func NewServer(rootCtx context.Context, cfg config.AppConfig, coord *pairing.Coordinator, protocol *relay.Protocol) *Server {
	s := &Server{
		cfg:      cfg,
		coord:    coord,
		protocol: protocol,
		hub:      newBroadcastHub(),
		rootCtx:  rootCtx,
		logger:   log.WithComponent("api"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return s
}

// Routes builds the router with the full middleware stack applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(HTTPMetrics())
	r.Use(RequestLogger)
	if s.cfg.RateLimitEnabled {
		r.Use(RateLimit(s.cfg.RateLimitRPM))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/api/sessions", s.handleSessions)

	r.Get("/ws/requester", s.handleRequesterWS)
	r.Get("/ws/operator", s.handleOperatorWS)
	r.Get("/ws/echo", s.handleEchoWS)
	r.Get("/ws/broadcast", s.handleBroadcastWS)

	return r
}

// originChecker permits requests without an Origin header and browser
// requests whose origin host is allow-listed. A "*" entry allows all.
func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	hosts := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts[strings.ToLower(u.Host)] = struct{}{}
		} else {
			hosts[strings.ToLower(o)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := hosts[strings.ToLower(u.Host)]
		return ok
	}
}
