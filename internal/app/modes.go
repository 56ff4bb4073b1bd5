package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
	"github.com/alanyoungcy/bondledgerd/internal/ledger"
	"github.com/alanyoungcy/bondledgerd/internal/server"
	"github.com/alanyoungcy/bondledgerd/internal/server/handler"
	"github.com/alanyoungcy/bondledgerd/internal/server/ws"
	"github.com/alanyoungcy/bondledgerd/internal/service"
	"github.com/alanyoungcy/bondledgerd/internal/settlement"
)

// writerLockKey guards the ledger writer role: only one process may apply
// mutations at a time.
const writerLockKey = "ledger:writer"

// ServeMode runs the API server: it takes the writer lock, boots the ledger
// from the snapshot stores (issuing on first boot), and serves HTTP and
// WebSocket traffic until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startServe(ctx, g, deps); err != nil {
		return err
	}
	return g.Wait()
}

// ArchiveMode runs one archival pass: events older than the retention window
// are drained into an S3 segment and pruned from the journal.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	return a.archiveOnce(ctx, deps)
}

// ReplayMode folds the full event history (archived segments, then the live
// journal) on top of the issuance distribution and verifies the result against
// the holding snapshots. It mutates nothing.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode")

	terms, err := a.resolveTerms(ctx, deps)
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	replayer := service.NewReplayer(deps.Segments, deps.Journal, deps.Holdings, a.logger)
	report, err := replayer.Replay(ctx, terms, distributionFromConfig(a.cfg.Bond))
	if err != nil {
		return fmt.Errorf("replay mode: %w", err)
	}

	a.logger.InfoContext(ctx, "replay complete",
		slog.Uint64("events", report.Events),
		slog.Uint64("last_seq", report.LastSeq),
		slog.Int("accounts", report.Accounts),
		slog.Uint64("issue_volume", report.IssueVolume),
	)
	return nil
}

// FullMode runs the serve loop plus a periodic archival pass.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startServe(ctx, g, deps); err != nil {
		return err
	}

	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Journal.ArchiveInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				// Archival failures leave events in the journal; the next
				// tick retries them.
				if err := a.archiveOnce(ctx, deps); err != nil {
					a.logger.ErrorContext(ctx, "periodic archive failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})

	return g.Wait()
}

// startServe boots the ledger and adds the serve-loop goroutines (maturity
// watcher, ws hub, HTTP server) to the errgroup.
func (a *App) startServe(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	// Writer lock: a crashed process leaves the lock behind; clear the
	// "lock:ledger:writer" key before restarting.
	unlock, err := deps.Locks.Acquire(ctx, writerLockKey, 0)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("serve: another process holds the ledger writer lock: %w", err)
		}
		return fmt.Errorf("serve: acquire writer lock: %w", err)
	}
	g.Go(func() error {
		<-ctx.Done()
		unlock()
		return nil
	})

	sink := service.NewCommitSink(deps.Journal, deps.Bus, deps.Cache, a.logger)
	lgr, firstBoot, err := a.bootLedger(ctx, deps, sink)
	if err != nil {
		return err
	}
	terms := lgr.Terms()

	svc := service.NewLedgerService(
		lgr, deps.Holdings, deps.Allowances, deps.Journal, deps.Settlements, deps.Cache, a.logger,
	)
	if firstBoot {
		if err := svc.SnapshotAll(ctx); err != nil {
			return fmt.Errorf("serve: persist issuance snapshot: %w", err)
		}
		a.logger.InfoContext(ctx, "bond issued",
			slog.String("isin", terms.ISIN),
			slog.Uint64("issue_volume", terms.IssueVolume),
			slog.Int("holders", len(a.cfg.Bond.Distribution)),
		)
	} else {
		a.logger.InfoContext(ctx, "ledger restored",
			slog.String("isin", terms.ISIN),
			slog.Uint64("issue_volume", lgr.IssueVolume()),
			slog.Uint64("last_seq", lgr.Seq()),
		)
	}

	watcher := service.NewMaturityWatcher(terms, deps.Notifier, time.Minute, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		ISIN:      terms.ISIN,
		Mode:      a.cfg.Mode,
		Channel:   service.EventChannel,
		Stream:    service.EventStream,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Bond:       handler.NewBondHandler(svc, a.logger),
		Holdings:   handler.NewHoldingHandler(svc, a.logger),
		Allowances: handler.NewAllowanceHandler(svc, a.logger),
		Transfers:  handler.NewTransferHandler(svc, a.logger),
		Options:    handler.NewOptionHandler(svc, a.logger),
		Events:     handler.NewEventHandler(svc, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return nil
}

// bootLedger builds the in-memory ledger: issuance from the [bond] config on
// first boot, otherwise a restore from the persisted terms, the snapshot
// stores, and the journal's last sequence number. The second return value
// reports whether this boot issued the bond.
func (a *App) bootLedger(ctx context.Context, deps *Dependencies, sink ledger.Sink) (*ledger.Ledger, bool, error) {
	issuer, err := a.issuerAccount()
	if err != nil {
		return nil, false, err
	}

	stored, err := deps.Bonds.Get(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		terms := termsFromConfig(a.cfg.Bond, issuer)
		opts := append(a.settlerOptions(deps, terms), ledger.WithSink(sink))
		lgr, err := ledger.New(terms, distributionFromConfig(a.cfg.Bond), opts...)
		if err != nil {
			return nil, false, fmt.Errorf("serve: issue bond: %w", err)
		}
		if err := deps.Bonds.Save(ctx, terms); err != nil {
			return nil, false, fmt.Errorf("serve: persist bond terms: %w", err)
		}
		return lgr, true, nil

	case err != nil:
		return nil, false, fmt.Errorf("serve: read bond terms: %w", err)
	}

	// Terms are immutable after issuance; a changed config file is a
	// deployment mistake, not a reissue.
	if stored.ISIN != a.cfg.Bond.ISIN {
		return nil, false, fmt.Errorf("serve: persisted bond is %s, config says %s", stored.ISIN, a.cfg.Bond.ISIN)
	}

	holdings, err := deps.Holdings.All(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("serve: read holding snapshots: %w", err)
	}
	allowances, err := deps.Allowances.All(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("serve: read allowance snapshots: %w", err)
	}
	seq, err := deps.Journal.LastSeq(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("serve: read last sequence: %w", err)
	}

	var issueVolume uint64
	for _, h := range holdings {
		issueVolume += h.Amount
	}

	opts := append(a.settlerOptions(deps, stored), ledger.WithSink(sink))
	lgr, err := ledger.Restore(stored, issueVolume, holdings, allowances, seq, opts...)
	if err != nil {
		return nil, false, fmt.Errorf("serve: restore ledger: %w", err)
	}
	return lgr, false, nil
}

// settlerOptions wires the settlement collaborators for the capabilities the
// bond was issued with: cash repayment for call and put, equity issuance for
// conversion.
func (a *App) settlerOptions(deps *Dependencies, terms domain.Terms) []ledger.Option {
	var opts []ledger.Option
	if terms.HasCapability(domain.CapabilityCall) || terms.HasCapability(domain.CapabilityPut) {
		cash := settlement.NewCashRepayment(deps.Settlements, deps.Notifier, a.logger)
		if terms.HasCapability(domain.CapabilityCall) {
			opts = append(opts, ledger.WithSettler(domain.CapabilityCall, cash))
		}
		if terms.HasCapability(domain.CapabilityPut) {
			opts = append(opts, ledger.WithSettler(domain.CapabilityPut, cash))
		}
	}
	if terms.HasCapability(domain.CapabilityConvert) {
		equity := settlement.NewEquityIssuance(
			deps.Settlements, deps.Notifier, a.logger,
			a.cfg.Bond.SharesPerUnit, terms.Denomination,
		)
		opts = append(opts, ledger.WithSettler(domain.CapabilityConvert, equity))
	}
	return opts
}

// resolveTerms returns the persisted bond terms, falling back to the config
// section when the bond has not been issued yet.
func (a *App) resolveTerms(ctx context.Context, deps *Dependencies) (domain.Terms, error) {
	stored, err := deps.Bonds.Get(ctx)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Terms{}, fmt.Errorf("read bond terms: %w", err)
	}
	issuer, err := a.issuerAccount()
	if err != nil {
		return domain.Terms{}, err
	}
	return termsFromConfig(a.cfg.Bond, issuer), nil
}

// archiveOnce drains events older than the retention window into one S3
// segment. Failures alert the operator before surfacing.
func (a *App) archiveOnce(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().Add(-a.cfg.Journal.Retention.Duration)

	n, err := deps.Archiver.Archive(ctx, cutoff)
	if err != nil {
		if deps.Notifier != nil {
			title := fmt.Sprintf("Event archival failed for %s", a.cfg.Bond.ISIN)
			if nerr := deps.Notifier.Notify(ctx, "archive.failed", title, err.Error()); nerr != nil {
				a.logger.WarnContext(ctx, "archive alert failed", slog.String("error", nerr.Error()))
			}
		}
		return fmt.Errorf("archive: %w", err)
	}

	if n == 0 {
		a.logger.InfoContext(ctx, "archive: nothing to archive",
			slog.Time("cutoff", cutoff),
		)
		return nil
	}
	a.logger.InfoContext(ctx, "archive: segment written",
		slog.Int64("events", n),
		slog.Time("cutoff", cutoff),
	)
	return nil
}
