package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// EventChannel is the redis pub/sub channel live subscribers listen on.
const EventChannel = "ledger:events"

// EventStream is the redis stream mirroring recent events for catch-up reads.
const EventStream = "ledger:events:stream"

// CommitSink receives every committed ledger event inside the commit critical
// section, which is what keeps the journal and the bus in exact commit order.
// The in-memory ledger is authoritative; persistence and fan-out failures are
// logged and never surface into the originating operation.
type CommitSink struct {
	journal domain.EventJournal
	bus     domain.EventBus
	cache   domain.PrincipalCache
	logger  *slog.Logger
}

// NewCommitSink creates a CommitSink. Any dependency may be nil; the sink
// skips what it was not given, which keeps unit tests and replay mode light.
func NewCommitSink(journal domain.EventJournal, bus domain.EventBus, cache domain.PrincipalCache, logger *slog.Logger) *CommitSink {
	return &CommitSink{
		journal: journal,
		bus:     bus,
		cache:   cache,
		logger:  logger.With(slog.String("component", "commit_sink")),
	}
}

// Committed journals the event, mirrors it onto the bus and stream, and
// invalidates the principal cache entries the event touched.
func (s *CommitSink) Committed(ctx context.Context, ev domain.Event) {
	if s.journal != nil {
		if err := s.journal.Append(ctx, ev); err != nil {
			s.logger.ErrorContext(ctx, "journal append failed",
				slog.Uint64("seq", ev.Seq),
				slog.String("error", err.Error()),
			)
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "event marshal failed",
			slog.Uint64("seq", ev.Seq),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, EventChannel, payload); err != nil {
			s.logger.WarnContext(ctx, "event publish failed",
				slog.Uint64("seq", ev.Seq),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, EventStream, payload); err != nil {
			s.logger.WarnContext(ctx, "event stream append failed",
				slog.Uint64("seq", ev.Seq),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.cache != nil && ev.Kind == domain.EventTransferred {
		for _, acct := range []domain.Account{ev.From, ev.To} {
			if acct == domain.ZeroAccount {
				continue
			}
			if err := s.cache.Invalidate(ctx, acct); err != nil {
				s.logger.WarnContext(ctx, "principal cache invalidate failed",
					slog.String("account", acct.Hex()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
