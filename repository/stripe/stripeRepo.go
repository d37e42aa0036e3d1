package striperepo

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound: the provider has no such checkout session.
var ErrSessionNotFound = errors.New("stripe: session not found")

// Session statuses as the provider reports them.
const (
	SessionOpen    = "open"
	SessionExpired = "expired"

	PaymentStatusPaid = "paid"
)

type CreateSessionReq struct {
	AmountCents int64
	Currency    string
	ProductName string
	Description string
	Metadata    map[string]string
	SuccessURL  string
	CancelURL   string
	ExpiresAt   time.Time
}

type Session struct {
	ID            string
	URL           string
	Status        string
	PaymentStatus string
	ExpiresAt     time.Time
}

type Repo interface {
	CreateSession(ctx context.Context, req CreateSessionReq) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	// VerifyWebhookSignature checks the Stripe-Signature header
	// against the raw body before anything else looks at the event.
	VerifyWebhookSignature(sigHeader string, rawBody []byte, now time.Time) error
}
