// Package relay drives each session's inbound message stream: trigger
// detection, automated replies, bidirectional forwarding once paired, and
// the disconnect cascade.
package relay

import (
	"context"

	"github.com/adtimokhin/handover/internal/log"
	"github.com/adtimokhin/handover/internal/metrics"
	"github.com/adtimokhin/handover/internal/pairing"
	"github.com/adtimokhin/handover/internal/session"
	"github.com/rs/zerolog"
)

// CloseNormal is the websocket normal-closure code used for all
// server-initiated closes.
const CloseNormal = 1000

// Close reasons distinguishable by the peer.
const (
	CloseReasonSearchTimeout    = "Connection Search Timeout."
	CloseReasonUserDisconnected = "User disconnected"
	CloseReasonShutdown         = "Server shutting down"
)

// User-facing notice texts.
const (
	requesterWaitNotice    = "Please wait - we are waiting on an agent to pick up a conversation with you ..."
	operatorWaitNotice     = "Please wait - we are waiting on an idle user..."
	searchingNotice        = "Looking for a connection..."
	connectionFoundNotice  = "Connection found"
	searchTimeoutNotice    = "Connection Search Timeout. Goodbye"
	operatorGoodbyeNotice  = "User disconnected. Goodbye"
	operatorDepartedNotice = "Agent terminated conversation. You will be connected to the next available agent"
)

// Responder maps an inbound message to an automated reply. A failure
// means "no reply"; it is never fatal to the session.
type Responder func(ctx context.Context, text string) (string, error)

// EchoResponder is the default responder: it repeats the message back.
func EchoResponder(_ context.Context, text string) (string, error) {
	return text, nil
}

// Protocol dispatches messages for requester and operator sessions.
type Protocol struct {
	coord   *pairing.Coordinator
	respond Responder
	trigger string
	search  pairing.SearchConfig
	logger  zerolog.Logger
}

// NewProtocol wires the dispatch rules. trigger is the exact,
// case-sensitive handoff token.
func NewProtocol(coord *pairing.Coordinator, respond Responder, trigger string, search pairing.SearchConfig) *Protocol {
	if respond == nil {
		respond = EchoResponder
	}
	return &Protocol{
		coord:   coord,
		respond: respond,
		trigger: trigger,
		search:  search,
		logger:  log.WithComponent("relay"),
	}
}

// startReader pumps inbound envelopes into a channel so the handler can
// select across messages, cancellation and the session's own Done signal.
// The pump exits when the connection errors or the session closes. A read
// error also closes the session, so the Done signal fires the moment the
// transport is gone rather than when the handler unwinds; the operator
// search loop depends on this to abort mid-search.
func (p *Protocol) startReader(s *session.Session) <-chan session.Envelope {
	ch := make(chan session.Envelope)
	go func() {
		defer close(ch)
		for {
			env, err := s.Receive()
			if err != nil {
				s.Close(CloseNormal, "")
				return
			}
			select {
			case ch <- env:
			case <-s.Done():
				return
			}
		}
	}()
	return ch
}

// HandleRequester serves a requester session until its connection drops
// or the server shuts down. The caller must have registered the session.
func (p *Protocol) HandleRequester(ctx context.Context, s *session.Session) {
	defer p.requesterDisconnected(s)

	inbound := p.startReader(s)
	for {
		select {
		case <-ctx.Done():
			s.Close(CloseNormal, CloseReasonShutdown)
			return
		case env, ok := <-inbound:
			if !ok {
				return
			}
			p.dispatchRequester(ctx, s, env)
		}
	}
}

func (p *Protocol) dispatchRequester(ctx context.Context, s *session.Session, env session.Envelope) {
	if partner := s.Partner(); partner != nil {
		p.forward(s, partner, env)
		return
	}

	switch s.Mode() {
	case session.ModeAutomated:
		if isConversational(env) && env.Content == p.trigger {
			p.beginHandover(s)
			return
		}
		if !isConversational(env) {
			p.protocolError(s, env)
			return
		}
		p.autoRespond(ctx, s, env)
	default:
		// Awaiting an operator, or paired but the partner vanished
		// between the check above and now. The trigger is one-shot, so
		// repeating it lands here too.
		p.notify(s, requesterWaitNotice)
	}
}

// HandleOperator runs the operator's search and, once paired, its relay
// loop. The caller must have registered the session.
func (p *Protocol) HandleOperator(ctx context.Context, s *session.Session) {
	defer p.operatorDisconnected(s)

	inbound := p.startReader(s)

	p.notify(s, searchingNotice)
	match, outcome, err := p.coord.Search(ctx, s, p.search)
	if err != nil {
		p.logger.Error().
			Err(err).
			Str(log.FieldEvent, "search.contract_violation").
			Str(log.FieldSessionID, s.ID()).
			Msg("operator search hit a pairing contract violation")
		_ = s.Send(session.Error("internal pairing error"))
		s.Close(CloseNormal, "internal pairing error")
		return
	}
	switch outcome {
	case pairing.OutcomeTimedOut:
		p.notify(s, searchTimeoutNotice)
		s.Close(CloseNormal, CloseReasonSearchTimeout)
		return
	case pairing.OutcomeAborted:
		return
	}

	p.notify(s, connectionFoundNotice)
	p.announcePaired(s, match)

	for {
		select {
		case <-ctx.Done():
			s.Close(CloseNormal, CloseReasonShutdown)
			return
		case env, ok := <-inbound:
			if !ok {
				return
			}
			p.dispatchOperator(s, env)
		}
	}
}

func (p *Protocol) dispatchOperator(s *session.Session, env session.Envelope) {
	if partner := s.Partner(); partner != nil {
		p.forward(s, partner, env)
		return
	}
	p.notify(s, operatorWaitNotice)
}

// beginHandover performs the one-shot automated -> awaiting-operator
// transition and queues the requester for pickup.
func (p *Protocol) beginHandover(s *session.Session) {
	s.SetMode(session.ModeAwaitingOperator)
	if err := p.coord.EnqueueWait(s); err != nil {
		s.SetMode(session.ModeAutomated)
		p.logger.Error().
			Err(err).
			Str(log.FieldEvent, "handover.enqueue_failed").
			Str(log.FieldSessionID, s.ID()).
			Msg("could not queue requester for an operator")
		_ = s.Send(session.Error("could not start handover, please retry"))
		return
	}
	p.logger.Info().
		Str(log.FieldEvent, "handover.triggered").
		Str(log.FieldSessionID, s.ID()).
		Str(log.FieldTenantID, s.TenantID()).
		Str(log.FieldOldState, string(session.ModeAutomated)).
		Str(log.FieldNewState, string(session.ModeAwaitingOperator)).
		Msg("requester requested a human operator")
	p.notify(s, requesterWaitNotice)
}

func (p *Protocol) autoRespond(ctx context.Context, s *session.Session, env session.Envelope) {
	text := env.Content
	if text == "" {
		text = env.Message
	}
	reply, err := p.respond(ctx, text)
	if err != nil {
		metrics.ResponderFailuresTotal.Inc()
		p.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "responder.failed").
			Str(log.FieldSessionID, s.ID()).
			Msg("automated responder produced no reply")
		return
	}
	metrics.AutomatedRepliesTotal.Inc()
	_ = s.Send(session.Envelope{Type: session.TypeMessage, Content: reply})
}

// forward relays the envelope verbatim to the partner, stamping only the
// sender id so the receiving side can attribute it.
func (p *Protocol) forward(from, to *session.Session, env session.Envelope) {
	env.SenderID = from.ID()
	if err := to.Send(env); err != nil {
		p.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "relay.send_failed").
			Str(log.FieldSessionID, from.ID()).
			Str(log.FieldPartnerID, to.ID()).
			Msg("could not deliver message to partner")
		_ = from.Send(session.Error("Receiver is no longer available"))
		return
	}
	metrics.RelayedMessagesTotal.WithLabelValues(string(from.Role())).Inc()
}

// notify sends an info notice, tolerating a dead connection.
func (p *Protocol) notify(s *session.Session, text string) {
	metrics.NoticesTotal.Inc()
	_ = s.Send(session.Info(text))
}

// isConversational reports whether the envelope carries ordinary chat
// content rather than a control or system frame.
func isConversational(env session.Envelope) bool {
	return env.Type == session.TypeText || env.Type == session.TypeMessage
}

func (p *Protocol) protocolError(s *session.Session, env session.Envelope) {
	p.logger.Debug().
		Str(log.FieldEvent, "dispatch.unsupported_type").
		Str(log.FieldSessionID, s.ID()).
		Str(log.FieldMessageType, env.Type).
		Msg("unsupported message type in automated mode")
	_ = s.Send(session.Error("unsupported message type: " + env.Type))
}

func (p *Protocol) announcePaired(op, requester *session.Session) {
	_ = op.Send(session.Envelope{
		Type:      session.TypeChatStarted,
		Message:   "Chat started with " + requester.ID() + ". You can now send messages!",
		PartnerID: requester.ID(),
	})
	_ = requester.Send(session.Envelope{
		Type:      session.TypeChatStarted,
		Message:   "Chat started with " + op.ID() + ". You can now send messages!",
		PartnerID: op.ID(),
	})
}

// requesterDisconnected runs the requester's disconnect cascade: the
// paired operator, if any, is told and closed, since an operator without
// a user has nothing left to do.
func (p *Protocol) requesterDisconnected(s *session.Session) {
	partner := p.coord.Teardown(s)
	if partner != nil {
		p.notify(partner, operatorGoodbyeNotice)
		partner.Close(CloseNormal, CloseReasonUserDisconnected)
	}
	s.Close(CloseNormal, "")
}

// operatorDisconnected runs the operator's disconnect cascade: the paired
// requester, if any, is notified and re-queued for the next available
// operator, as the notice promises.
func (p *Protocol) operatorDisconnected(s *session.Session) {
	partner := p.coord.Teardown(s)
	if partner != nil {
		p.notify(partner, operatorDepartedNotice)
		partner.SetMode(session.ModeAwaitingOperator)
		if err := p.coord.EnqueueWait(partner); err != nil {
			p.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "handover.requeue_failed").
				Str(log.FieldSessionID, partner.ID()).
				Msg("could not re-queue requester after operator disconnect")
		}
	}
	s.Close(CloseNormal, "")
}
