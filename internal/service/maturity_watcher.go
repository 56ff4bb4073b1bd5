package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
	"github.com/alanyoungcy/bondledgerd/internal/notify"
)

// MaturityWatcher alerts the operator once the bond reaches maturity. The
// maturity gate itself lives in the ledger core; the watcher exists so nobody
// has to learn about maturity from a rejected settlement.
type MaturityWatcher struct {
	terms    domain.Terms
	notifier *notify.Notifier
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewMaturityWatcher creates a MaturityWatcher. checkInterval is how often the
// clock is compared against the maturity date.
func NewMaturityWatcher(terms domain.Terms, notifier *notify.Notifier, checkInterval time.Duration, logger *slog.Logger) *MaturityWatcher {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	return &MaturityWatcher{
		terms:    terms,
		notifier: notifier,
		interval: checkInterval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "maturity_watcher")),
	}
}

// Run blocks until maturity is reached and announced, or the context ends.
// Call in a goroutine.
func (w *MaturityWatcher) Run(ctx context.Context) error {
	if w.matured(ctx) {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.matured(ctx) {
				return nil
			}
		}
	}
}

func (w *MaturityWatcher) matured(ctx context.Context) bool {
	if w.now().Before(w.terms.MaturityDate) {
		return false
	}

	w.logger.InfoContext(ctx, "bond matured",
		slog.String("isin", w.terms.ISIN),
		slog.String("maturity_date", w.terms.MaturityDate.Format(time.RFC3339)),
	)
	if w.notifier != nil {
		title := fmt.Sprintf("Bond %s matured", w.terms.ISIN)
		msg := fmt.Sprintf("%s reached maturity on %s; option settlement is closed",
			w.terms.Name, w.terms.MaturityDate.Format("2006-01-02"))
		if err := w.notifier.Notify(ctx, "bond.matured", title, msg); err != nil {
			w.logger.WarnContext(ctx, "maturity alert failed", slog.String("error", err.Error()))
		}
	}
	return true
}
