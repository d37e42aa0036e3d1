package sweepsvc

import (
	"context"
	"log/slog"
	"time"

	borrowrepo "github.com/Liliyakhu/library-service-project/repository/borrowing"
	paymentrepo "github.com/Liliyakhu/library-service-project/repository/payment"
	striperepo "github.com/Liliyakhu/library-service-project/repository/stripe"
	telegramrepo "github.com/Liliyakhu/library-service-project/repository/telegram"
	"github.com/Liliyakhu/library-service-project/util/clock"
)

// Expired payments older than this are garbage-collected.
const expiredPaymentRetention = 30 * 24 * time.Hour

type Service interface {
	// ExpireSessions runs the session-expiration sweep once.
	ExpireSessions(ctx context.Context) (*ExpirationSummary, error)
	// NotifyOverdue runs the overdue-notification sweep once.
	NotifyOverdue(ctx context.Context) (*OverdueSummary, error)
	// CreateOverdueFines runs the fine-backfill sweep once.
	CreateOverdueFines(ctx context.Context) (*FineSummary, error)

	// The Run variants retry a failed sweep a bounded number of times
	// with backoff. Per-row errors never trigger a retry; only a
	// top-level failure does.
	RunExpireSessions(ctx context.Context) (*ExpirationSummary, error)
	RunNotifyOverdue(ctx context.Context) (*OverdueSummary, error)
	RunCreateOverdueFines(ctx context.Context) (*FineSummary, error)

	// CleanupExpiredPayments deletes long-expired payment rows.
	CleanupExpiredPayments(ctx context.Context) (int64, error)
}

type service struct {
	expiration expirationSweep
	overdue    overdueSweep
	fine       fineSweep
	pr         paymentrepo.Repo
	clk        clock.Clock
	log        *slog.Logger

	retryAttempts int
	retryBackoff  time.Duration
}

func New(
	pr paymentrepo.Repo,
	br borrowrepo.Repo,
	sp striperepo.Repo,
	tg telegramrepo.Sink,
	fines FineOpener,
	clk clock.Clock,
	log *slog.Logger,
) Service {
	return &service{
		expiration:    expirationSweep{pr: pr, sp: sp, clk: clk, log: log},
		overdue:       overdueSweep{br: br, tg: tg, clk: clk, log: log},
		fine:          fineSweep{br: br, fines: fines, clk: clk, log: log},
		pr:            pr,
		clk:           clk,
		log:           log,
		retryAttempts: 3,
		retryBackoff:  time.Minute,
	}
}

func (s *service) ExpireSessions(ctx context.Context) (*ExpirationSummary, error) {
	return s.expiration.run(ctx)
}

func (s *service) NotifyOverdue(ctx context.Context) (*OverdueSummary, error) {
	return s.overdue.run(ctx)
}

func (s *service) CreateOverdueFines(ctx context.Context) (*FineSummary, error) {
	return s.fine.run(ctx)
}

func (s *service) RunExpireSessions(ctx context.Context) (*ExpirationSummary, error) {
	return retry(ctx, s, "expiration", s.ExpireSessions)
}

func (s *service) RunNotifyOverdue(ctx context.Context) (*OverdueSummary, error) {
	return retry(ctx, s, "overdue", s.NotifyOverdue)
}

func (s *service) RunCreateOverdueFines(ctx context.Context) (*FineSummary, error) {
	return retry(ctx, s, "fines", s.CreateOverdueFines)
}

func (s *service) CleanupExpiredPayments(ctx context.Context) (int64, error) {
	cutoff := s.clk.Now().Add(-expiredPaymentRetention)
	n, err := s.pr.DeleteOldExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("cleaned up old expired payments", "deleted", n)
	}
	return n, nil
}

func retry[T any](ctx context.Context, s *service, name string, fn func(context.Context) (*T, error)) (*T, error) {
	var out *T
	var err error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		s.log.Error("sweep failed", "sweep", name, "attempt", attempt, "err", err)
		if attempt == s.retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(s.retryBackoff):
		}
	}
	return out, err
}
