// The expiration sweep reconciles local pending payments against the
// provider's view of their checkout sessions. It runs every minute,
// each candidate row handled on its own so one bad row never blocks
// the rest, and the whole sweep is safe to re-run at any point.
package sweepsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Liliyakhu/library-service-project/model"
	paymentrepo "github.com/Liliyakhu/library-service-project/repository/payment"
	striperepo "github.com/Liliyakhu/library-service-project/repository/stripe"
	"github.com/Liliyakhu/library-service-project/util/clock"
)

// When the provider reports a session still open past our recorded
// deadline, trust the provider and push our deadline out.
const openSessionExtension = time.Hour

type ExpirationSummary struct {
	TotalChecked int       `json:"total_checked"`
	Expired      int       `json:"expired"`
	StillValid   int       `json:"still_valid"`
	Errors       int       `json:"errors"`
	ErrorDetails []string  `json:"error_details,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type expirationSweep struct {
	pr  paymentrepo.Repo
	sp  striperepo.Repo
	clk clock.Clock
	log *slog.Logger
}

func (s *expirationSweep) run(ctx context.Context) (*ExpirationSummary, error) {
	now := s.clk.Now()
	candidates, err := s.pr.ListExpirationCandidates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list expiration candidates: %w", err)
	}

	sum := &ExpirationSummary{TotalChecked: len(candidates), Timestamp: now}
	s.log.Info("expiration sweep started", "candidates", len(candidates))

	for i := range candidates {
		p := &candidates[i]
		expired, err := s.reconcile(ctx, p, now)
		if err != nil {
			sum.Errors++
			sum.ErrorDetails = append(sum.ErrorDetails,
				fmt.Sprintf("payment %d: %v", p.ID, err))
			s.log.Error("expiration sweep row failed", "payment_id", p.ID, "err", err)
			continue
		}
		if expired {
			sum.Expired++
		} else {
			sum.StillValid++
		}
	}

	s.log.Info("expiration sweep finished",
		"expired", sum.Expired, "still_valid", sum.StillValid, "errors", sum.Errors)
	return sum, nil
}

// reconcile asks the provider about one session, then applies the
// outcome in a short row-locked transaction. The provider call stays
// outside the transaction; the row-level status checks make stale
// answers harmless.
func (s *expirationSweep) reconcile(ctx context.Context, p *model.Payment, now time.Time) (expired bool, err error) {
	sess, err := s.sp.GetSession(ctx, *p.SessionID)
	if err != nil {
		// Unreachable provider or unknown session: expire locally.
		if !errors.Is(err, striperepo.ErrSessionNotFound) {
			s.log.Warn("session lookup failed, expiring",
				"payment_id", p.ID, "err", err)
		}
		return s.expire(ctx, p)
	}

	switch {
	case sess.PaymentStatus == striperepo.PaymentStatusPaid:
		// Webhook miss: the session was paid after all.
		if _, err := s.pr.MarkPaid(ctx, p.ID); err != nil {
			return false, err
		}
		s.log.Info("sweep caught paid session", "payment_id", p.ID)
		return false, nil
	case sess.Status == striperepo.SessionOpen:
		if err := s.pr.ExtendExpiry(ctx, p.ID, now.Add(openSessionExtension)); err != nil {
			return false, err
		}
		return false, nil
	case sess.Status == striperepo.SessionExpired:
		return s.expire(ctx, p)
	default:
		s.log.Warn("unknown session status, expiring",
			"payment_id", p.ID, "status", sess.Status)
		return s.expire(ctx, p)
	}
}

func (s *expirationSweep) expire(ctx context.Context, p *model.Payment) (bool, error) {
	applied, err := s.pr.Expire(ctx, p.ID)
	if err != nil {
		return false, err
	}
	if !applied {
		// Paid or expired concurrently; skipped, never downgraded.
		s.log.Info("expire skipped", "payment_id", p.ID)
	}
	return applied, nil
}
