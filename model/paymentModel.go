// model/payment.go
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentExpired PaymentStatus = "EXPIRED"
)

type PaymentType string

const (
	TypePayment PaymentType = "PAYMENT"
	TypeFine    PaymentType = "FINE"
)

// Payment is one monetary obligation tied to a borrowing: the
// ordinary fee, or a fine after a late return. MoneyToPay is
// snapshotted at creation and never recomputed.
type Payment struct {
	ID               int64           `json:"id"`
	Status           PaymentStatus   `json:"status"`
	Type             PaymentType     `json:"type"`
	BorrowingID      int64           `json:"borrowing_id"`
	SessionID        *string         `json:"session_id,omitempty"`
	SessionURL       *string         `json:"session_url,omitempty"`
	SessionExpiresAt *time.Time      `json:"session_expires_at,omitempty"`
	MoneyToPay       decimal.Decimal `json:"money_to_pay"`
	CreatedAt        time.Time       `json:"created_at"`
}

// IsExpired covers both the explicit EXPIRED status and a PENDING
// payment whose checkout session's deadline already passed but which
// no sweep has touched yet.
func (p *Payment) IsExpired(now time.Time) bool {
	if p.Status == PaymentExpired {
		return true
	}
	return p.Status == PaymentPending &&
		p.SessionExpiresAt != nil && p.SessionExpiresAt.Before(now)
}

// IsRenewable: an expired payment can get a fresh checkout session
// without creating a new row. PAID is terminal.
func (p *Payment) IsRenewable(now time.Time) bool { return p.IsExpired(now) }
