package pairing

import (
	"context"
	"time"

	"github.com/adtimokhin/handover/internal/log"
	"github.com/adtimokhin/handover/internal/metrics"
	"github.com/adtimokhin/handover/internal/session"
)

// SearchConfig bounds an operator's retry loop.
type SearchConfig struct {
	// PollInterval is the fixed wait between pairing attempts.
	PollInterval time.Duration
	// Timeout is the total search budget.
	Timeout time.Duration
}

// Outcome is the terminal state of a search. A search stays in its
// searching state until it pairs, exhausts its budget, or is aborted by a
// disconnect or shutdown.
type Outcome string

const (
	OutcomePaired   Outcome = "paired"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeAborted  Outcome = "aborted"
)

// Search runs the bounded polling loop an operator session uses to locate
// a waiting requester. It attempts a pairing immediately and then once
// per poll interval until the timeout elapses.
//
// The loop terminates early, without attempting further pairings, when
// ctx is cancelled or the operator's connection is closed; a search must
// never outlive its socket. A non-nil error reports a caller contract
// violation from TryPair.
func (c *Coordinator) Search(ctx context.Context, op *session.Session, cfg SearchConfig) (*session.Session, Outcome, error) {
	logger := c.logger.With().
		Str(log.FieldSessionID, op.ID()).
		Str(log.FieldTenantID, op.TenantID()).
		Logger()

	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()
	poll := time.NewTicker(cfg.PollInterval)
	defer poll.Stop()

	start := time.Now()
	for attempt := 1; ; attempt++ {
		// Re-checked before every attempt, not just in the select below,
		// so a session closed between two ticks can never claim a live
		// requester.
		if op.Closed() {
			metrics.SearchAbortsTotal.Inc()
			logger.Info().
				Str(log.FieldEvent, "search.aborted").
				Dur("elapsed", time.Since(start)).
				Msg("operator disconnected while searching")
			return nil, OutcomeAborted, nil
		}
		match, err := c.TryPair(op)
		if err != nil {
			return nil, OutcomeAborted, err
		}
		if match != nil {
			logger.Info().
				Str(log.FieldEvent, "search.paired").
				Str(log.FieldPartnerID, match.ID()).
				Int("attempts", attempt).
				Dur("elapsed", time.Since(start)).
				Msg("search found a waiting requester")
			return match, OutcomePaired, nil
		}
		logger.Debug().
			Str(log.FieldEvent, "search.attempt").
			Int("attempts", attempt).
			Msg("no requester waiting, retrying after poll interval")

		select {
		case <-ctx.Done():
			metrics.SearchAbortsTotal.Inc()
			logger.Info().
				Str(log.FieldEvent, "search.aborted").
				Dur("elapsed", time.Since(start)).
				Msg("search cancelled by shutdown")
			return nil, OutcomeAborted, nil
		case <-op.Done():
			metrics.SearchAbortsTotal.Inc()
			logger.Info().
				Str(log.FieldEvent, "search.aborted").
				Dur("elapsed", time.Since(start)).
				Msg("operator disconnected while searching")
			return nil, OutcomeAborted, nil
		case <-deadline.C:
			metrics.SearchTimeoutsTotal.Inc()
			logger.Info().
				Str(log.FieldEvent, "search.timeout").
				Int("attempts", attempt).
				Dur("elapsed", time.Since(start)).
				Msg("search exhausted its budget")
			return nil, OutcomeTimedOut, nil
		case <-poll.C:
		}
	}
}
