package paymentsvc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Liliyakhu/library-service-project/model"
	borrowrepo "github.com/Liliyakhu/library-service-project/repository/borrowing"
	paymentrepo "github.com/Liliyakhu/library-service-project/repository/payment"
	striperepo "github.com/Liliyakhu/library-service-project/repository/stripe"
	"github.com/Liliyakhu/library-service-project/util/apperr"
	"github.com/Liliyakhu/library-service-project/util/clock"
)

// errors used by controllers

const (
	ErrNotFound             apperr.Code = "NOT_FOUND"
	ErrNotOwner             apperr.Code = "NOT_OWNER"
	ErrNotLate              apperr.Code = "NOT_LATE"
	ErrNonPositiveFine      apperr.Code = "NON_POSITIVE_FINE"
	ErrDuplicatePayment     apperr.Code = "DUPLICATE_ACTIVE_PAYMENT"
	ErrNotRenewable         apperr.Code = "NOT_RENEWABLE"
	ErrRemoteSessionFailure apperr.Code = "REMOTE_SESSION_FAILURE"
	ErrSignatureInvalid     apperr.Code = "SIGNATURE_INVALID"
)

type Service interface {
	// CreateForBorrowing creates a payment obligation and opens its
	// checkout session. For fines an existing fine payment is
	// returned as-is instead of erroring; a borrowing gets one fine
	// ever.
	CreateForBorrowing(ctx context.Context, borrowingID int64, ptype model.PaymentType) (*model.Payment, error)

	// OpenSession creates the remote checkout session for a payment
	// that does not have one yet. On provider failure the sessionless
	// payment row is deleted (compensating rollback).
	OpenSession(ctx context.Context, paymentID int64) (*model.Payment, error)

	// Renew gives an expired payment a fresh session without
	// creating a new row.
	Renew(ctx context.Context, userID, paymentID int64) (*model.Payment, error)

	List(ctx context.Context, userID int64) ([]model.Payment, error)
	Detail(ctx context.Context, userID, id int64) (*model.Payment, error)

	// HandleStripeWebhook validates and applies one provider event.
	// Replays and unknown sessions are acknowledged without error.
	HandleStripeWebhook(ctx context.Context, sigHeader string, rawBody []byte) error

	// SessionState reports the provider's view of a session, for the
	// success/cancel redirect pages.
	SessionState(ctx context.Context, sessionID string) (*striperepo.Session, error)
}

// ----- Service implementation -----

type service struct {
	pr  paymentrepo.Repo
	br  borrowrepo.Repo
	sp  striperepo.Repo
	clk clock.Clock
	log *slog.Logger

	fineMultiplier decimal.Decimal
	sessionExpiry  time.Duration
	successURL     string
	cancelURL      string
}

func New(
	pr paymentrepo.Repo,
	br borrowrepo.Repo,
	sp striperepo.Repo,
	clk clock.Clock,
	log *slog.Logger,
	fineMultiplier decimal.Decimal,
	sessionExpiry time.Duration,
	successURL, cancelURL string,
) Service {
	return &service{
		pr: pr, br: br, sp: sp, clk: clk, log: log,
		fineMultiplier: fineMultiplier, sessionExpiry: sessionExpiry,
		successURL: successURL, cancelURL: cancelURL,
	}
}

func (s *service) CreateForBorrowing(ctx context.Context, borrowingID int64, ptype model.PaymentType) (*model.Payment, error) {
	row, err := s.br.Get(ctx, borrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(ErrNotFound)
		}
		return nil, err
	}

	var amount decimal.Decimal
	switch ptype {
	case model.TypeFine:
		if !row.WasReturnedLate() {
			return nil, apperr.New(ErrNotLate)
		}
		existing, err := s.pr.FindFine(ctx, borrowingID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		amount = row.FineFee(row.DailyFee, s.fineMultiplier)
		if !amount.IsPositive() {
			return nil, apperr.New(ErrNonPositiveFine)
		}
	case model.TypePayment:
		active, err := s.pr.FindActiveOrdinary(ctx, borrowingID, s.clk.Now())
		if err != nil {
			return nil, err
		}
		if active != nil {
			return nil, apperr.New(ErrDuplicatePayment)
		}
		amount = row.PaymentFee(row.DailyFee)
	default:
		return nil, fmt.Errorf("unknown payment type %q", ptype)
	}

	id, err := s.pr.Insert(ctx, borrowingID, ptype, amount)
	if err != nil {
		return nil, err
	}
	return s.OpenSession(ctx, id)
}

func (s *service) OpenSession(ctx context.Context, paymentID int64) (*model.Payment, error) {
	p, err := s.pr.Get(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(ErrNotFound)
		}
		return nil, err
	}

	sess, err := s.createSession(ctx, p)
	if err != nil {
		// No pending payment may survive without a session pair.
		if p.SessionID == nil {
			if derr := s.pr.Delete(ctx, p.ID); derr != nil {
				s.log.Error("compensating delete failed", "payment_id", p.ID, "err", derr)
			}
		}
		s.log.Error("checkout session create failed", "payment_id", p.ID, "err", err)
		return nil, apperr.New(ErrRemoteSessionFailure)
	}

	if err := s.pr.AttachSession(ctx, p.ID, sess.ID, sess.URL, sess.ExpiresAt); err != nil {
		return nil, err
	}
	p.SessionID = &sess.ID
	p.SessionURL = &sess.URL
	p.SessionExpiresAt = &sess.ExpiresAt
	return p, nil
}

func (s *service) createSession(ctx context.Context, p *model.Payment) (*striperepo.Session, error) {
	row, err := s.br.Get(ctx, p.BorrowingID)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("Borrowing for %s", row.BookTitle)
	desc := "Payment for borrowing book"
	if p.Type == model.TypeFine {
		name = fmt.Sprintf("Fine for overdue return: %s", row.BookTitle)
		desc = fmt.Sprintf("Fine payment for %d days overdue", row.DaysOverdue(s.clk.Today()))
	}

	return s.sp.CreateSession(ctx, striperepo.CreateSessionReq{
		AmountCents: p.MoneyToPay.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency:    "usd",
		ProductName: name,
		Description: desc,
		Metadata: map[string]string{
			"payment_id":   fmt.Sprint(p.ID),
			"payment_type": string(p.Type),
			"borrowing_id": fmt.Sprint(p.BorrowingID),
		},
		SuccessURL: s.successURL + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.cancelURL + "?session_id={CHECKOUT_SESSION_ID}",
		ExpiresAt:  s.clk.Now().Add(s.sessionExpiry),
	})
}

func (s *service) Renew(ctx context.Context, userID, paymentID int64) (*model.Payment, error) {
	p, err := s.pr.Get(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(ErrNotFound)
		}
		return nil, err
	}
	if userID > 0 {
		row, err := s.br.Get(ctx, p.BorrowingID)
		if err != nil {
			return nil, err
		}
		if row.UserID != userID {
			return nil, apperr.New(ErrNotOwner)
		}
	}
	if !p.IsRenewable(s.clk.Now()) {
		return nil, apperr.New(ErrNotRenewable)
	}

	sess, err := s.createSession(ctx, p)
	if err != nil {
		// The old session fields stay in place; nothing to compensate.
		s.log.Error("session renew failed", "payment_id", p.ID, "err", err)
		return nil, apperr.New(ErrRemoteSessionFailure)
	}

	if err := s.pr.Renew(ctx, p.ID, sess.ID, sess.URL, sess.ExpiresAt); err != nil {
		return nil, err
	}
	p.Status = model.PaymentPending
	p.SessionID = &sess.ID
	p.SessionURL = &sess.URL
	p.SessionExpiresAt = &sess.ExpiresAt
	s.log.Info("payment session renewed", "payment_id", p.ID, "session_id", sess.ID)
	return p, nil
}

func (s *service) List(ctx context.Context, userID int64) ([]model.Payment, error) {
	return s.pr.List(ctx, userID)
}

func (s *service) Detail(ctx context.Context, userID, id int64) (*model.Payment, error) {
	p, err := s.pr.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(ErrNotFound)
		}
		return nil, err
	}
	if userID > 0 {
		row, err := s.br.Get(ctx, p.BorrowingID)
		if err != nil {
			return nil, err
		}
		if row.UserID != userID {
			return nil, apperr.New(ErrNotOwner)
		}
	}
	return p, nil
}

type checkoutEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentStatus string `json:"payment_status"`
		} `json:"object"`
	} `json:"data"`
}

func (s *service) HandleStripeWebhook(ctx context.Context, sigHeader string, rawBody []byte) error {
	// Signature first; nothing else gets looked at before this.
	if err := s.sp.VerifyWebhookSignature(sigHeader, rawBody, s.clk.Now()); err != nil {
		s.log.Warn("webhook signature rejected", "err", err)
		return apperr.New(ErrSignatureInvalid)
	}

	var ev checkoutEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return fmt.Errorf("bad webhook json: %w", err)
	}

	if ev.Type != "checkout.session.completed" {
		s.log.Info("unhandled webhook event", "type", ev.Type)
		return nil
	}
	if ev.Data.Object.PaymentStatus != striperepo.PaymentStatusPaid {
		s.log.Info("completed session not paid yet",
			"session_id", ev.Data.Object.ID, "payment_status", ev.Data.Object.PaymentStatus)
		return nil
	}

	applied, err := s.pr.MarkPaidBySession(ctx, ev.Data.Object.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unknown session: acknowledge so the provider stops
			// retrying, but leave a trace.
			s.log.Error("webhook for unknown session", "session_id", ev.Data.Object.ID)
			return nil
		}
		return err
	}
	if applied {
		s.log.Info("payment marked paid via webhook", "session_id", ev.Data.Object.ID)
	} else {
		s.log.Info("webhook replay ignored", "session_id", ev.Data.Object.ID)
	}
	return nil
}

func (s *service) SessionState(ctx context.Context, sessionID string) (*striperepo.Session, error) {
	sess, err := s.sp.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, striperepo.ErrSessionNotFound) {
			return nil, apperr.New(ErrNotFound)
		}
		return nil, err
	}
	return sess, nil
}
