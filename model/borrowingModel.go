// model/borrowing.go
package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Liliyakhu/library-service-project/util/clock"
)

// Fees and fines are never stored on a borrowing. They are derived
// from the stored dates and the book's daily fee every time they are
// read, so they cannot go stale.

type Borrowing struct {
	ID                 int64      `json:"id"`
	UserID             int64      `json:"user_id"`
	BookID             int64      `json:"book_id"`
	BorrowDate         time.Time  `json:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date,omitempty"`
}

func (b *Borrowing) IsReturned() bool { return b.ActualReturnDate != nil }

// BorrowingDays is the planned duration of the loan, not the elapsed
// one. Overdue days are charged separately as a fine.
func (b *Borrowing) BorrowingDays() int {
	return clock.DaysBetween(b.BorrowDate, b.ExpectedReturnDate)
}

func (b *Borrowing) WasReturnedLate() bool {
	return b.ActualReturnDate != nil && b.ActualReturnDate.After(b.ExpectedReturnDate)
}

// IsOverdue: an active borrowing is overdue once today passes the due
// date; a returned borrowing stays overdue iff it came back late.
func (b *Borrowing) IsOverdue(today time.Time) bool {
	if b.IsReturned() {
		return b.WasReturnedLate()
	}
	return today.After(b.ExpectedReturnDate)
}

func (b *Borrowing) DaysOverdue(today time.Time) int {
	end := today
	if b.ActualReturnDate != nil {
		end = *b.ActualReturnDate
	}
	if d := clock.DaysBetween(b.ExpectedReturnDate, end); d > 0 {
		return d
	}
	return 0
}

// PaymentFee is the ordinary borrowing fee: daily fee times planned
// days, rounded to cents.
func (b *Borrowing) PaymentFee(dailyFee decimal.Decimal) decimal.Decimal {
	return dailyFee.Mul(decimal.NewFromInt(int64(b.BorrowingDays()))).Round(2)
}

// FineFee is zero unless the borrowing was returned late; otherwise
// days late times the daily fee times the fine multiplier.
func (b *Borrowing) FineFee(dailyFee, multiplier decimal.Decimal) decimal.Decimal {
	if !b.WasReturnedLate() {
		return decimal.Zero.Round(2)
	}
	daysLate := clock.DaysBetween(b.ExpectedReturnDate, *b.ActualReturnDate)
	if daysLate <= 0 {
		return decimal.Zero.Round(2)
	}
	return dailyFee.Mul(decimal.NewFromInt(int64(daysLate))).Mul(multiplier).Round(2)
}

func (b *Borrowing) TotalAmountDue(dailyFee, multiplier decimal.Decimal) decimal.Decimal {
	return b.PaymentFee(dailyFee).Add(b.FineFee(dailyFee, multiplier)).Round(2)
}
