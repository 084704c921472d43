package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adtimokhin/handover/internal/config"
	"github.com/adtimokhin/handover/internal/pairing"
	"github.com/adtimokhin/handover/internal/relay"
	"github.com/adtimokhin/handover/internal/session"
)

const readWait = 3 * time.Second

type testServer struct {
	ts     *httptest.Server
	coord  *pairing.Coordinator
	cancel context.CancelFunc
}

func newTestServer(t *testing.T, mutate func(*config.AppConfig)) *testServer {
	t.Helper()
	cfg := config.Defaults()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.SearchTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	coord := pairing.NewCoordinator()
	protocol := relay.NewProtocol(coord, nil, cfg.TriggerToken, pairing.SearchConfig{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.SearchTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(ctx, cfg, coord, protocol)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return &testServer{ts: ts, coord: coord, cancel: cancel}
}

func (s *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + path
}

func (s *testServer) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnv(t *testing.T, conn *websocket.Conn) session.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readWait)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return session.Decode(data)
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	resp, err = http.Get(srv.ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyzAfterShutdown(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.cancel()

	resp, err := http.Get(srv.ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestIDIsHonored(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, srv.ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "trace-me-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "trace-me-123", resp.Header.Get(HeaderRequestID))
}

func TestRequesterWelcomeAndEcho(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := srv.dial(t, "/ws/requester")

	welcome := readEnv(t, conn)
	assert.Equal(t, session.TypeWelcome, welcome.Type)
	assert.NotEmpty(t, welcome.UserID)

	sendText(t, conn, "hello there")
	env := readEnv(t, conn)
	assert.Equal(t, session.TypeMessage, env.Type)
	assert.Equal(t, "hello there", env.Content)
}

func TestHandoverEndToEnd(t *testing.T) {
	srv := newTestServer(t, nil)

	req := srv.dial(t, "/ws/requester")
	reqWelcome := readEnv(t, req)
	require.Equal(t, session.TypeWelcome, reqWelcome.Type)

	sendText(t, req, "SWITCH")
	env := readEnv(t, req)
	assert.Equal(t, session.TypeInfo, env.Type)
	assert.Contains(t, env.Message, "Please wait")

	op := srv.dial(t, "/ws/operator")
	opWelcome := readEnv(t, op)
	require.Equal(t, session.TypeWelcome, opWelcome.Type)

	env = readEnv(t, op)
	assert.Equal(t, "Looking for a connection...", env.Message)
	env = readEnv(t, op)
	assert.Equal(t, "Connection found", env.Message)
	env = readEnv(t, op)
	assert.Equal(t, session.TypeChatStarted, env.Type)
	assert.Equal(t, reqWelcome.UserID, env.PartnerID)

	env = readEnv(t, req)
	assert.Equal(t, session.TypeChatStarted, env.Type)
	assert.Equal(t, opWelcome.UserID, env.PartnerID)

	sendText(t, op, "hello from the agent")
	env = readEnv(t, req)
	assert.Equal(t, session.TypeText, env.Type)
	assert.Equal(t, "hello from the agent", env.Content)
	assert.Equal(t, opWelcome.UserID, env.SenderID)

	sendText(t, req, "hi, thanks for picking up")
	env = readEnv(t, op)
	assert.Equal(t, "hi, thanks for picking up", env.Content)
	assert.Equal(t, reqWelcome.UserID, env.SenderID)
}

func TestOperatorSearchTimeoutClosesWithReason(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.PollInterval = 20 * time.Millisecond
		cfg.SearchTimeout = 100 * time.Millisecond
	})

	op := srv.dial(t, "/ws/operator")
	readEnv(t, op) // welcome
	env := readEnv(t, op)
	assert.Equal(t, "Looking for a connection...", env.Message)
	env = readEnv(t, op)
	assert.Equal(t, "Connection Search Timeout. Goodbye", env.Message)

	require.NoError(t, op.SetReadDeadline(time.Now().Add(readWait)))
	_, _, err := op.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, relay.CloseReasonSearchTimeout, closeErr.Text)
}

func TestRequesterDisconnectClosesOperator(t *testing.T) {
	srv := newTestServer(t, nil)

	req := srv.dial(t, "/ws/requester")
	readEnv(t, req) // welcome
	sendText(t, req, "SWITCH")
	readEnv(t, req) // wait notice

	op := srv.dial(t, "/ws/operator")
	readEnv(t, op) // welcome
	readEnv(t, op) // searching
	readEnv(t, op) // found
	readEnv(t, op) // chat_started
	readEnv(t, req)

	require.NoError(t, req.Close())

	env := readEnv(t, op)
	assert.Equal(t, "User disconnected. Goodbye", env.Message)

	require.NoError(t, op.SetReadDeadline(time.Now().Add(readWait)))
	_, _, err := op.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, relay.CloseReasonUserDisconnected, closeErr.Text)
}

func TestTenantSelection(t *testing.T) {
	srv := newTestServer(t, nil)

	req := srv.dial(t, "/ws/requester?tenant=acme")
	readEnv(t, req)
	sendText(t, req, "SWITCH")
	readEnv(t, req)

	require.Eventually(t, func() bool {
		return srv.coord.WaitingDepths()["acme"] == 1
	}, readWait, 10*time.Millisecond)

	// An operator on another tenant must not claim the acme requester.
	other := srv.dial(t, "/ws/operator?tenant=other")
	readEnv(t, other) // welcome
	readEnv(t, other) // searching
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, srv.coord.WaitingDepths()["acme"])
}

func TestSessionsDebugEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	req := srv.dial(t, "/ws/requester")
	readEnv(t, req)
	sendText(t, req, "SWITCH")
	readEnv(t, req)

	resp, err := http.Get(srv.ts.URL + "/api/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, 1, srv.coord.SessionCount())
}

func TestEchoEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := srv.dial(t, "/ws/echo")

	sendText(t, conn, "ping")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readWait)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(data))
}

func TestBroadcastEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	a := srv.dial(t, "/ws/broadcast")
	b := srv.dial(t, "/ws/broadcast")

	// Both joins must be registered before the send fans out.
	time.Sleep(20 * time.Millisecond)
	sendText(t, a, "to everyone")

	// Fan-out frames carry the broadcast prefix, the sender's copy too.
	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(readWait)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "Broadcast: to everyone", string(data))
	}
}
