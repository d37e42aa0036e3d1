package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateP(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Ten planned days at $2.00/day, returned four days late with the
// default 2.0 multiplier: fee 20.00, fine 16.00, total 36.00.
func TestBorrowing_Fees(t *testing.T) {
	b := Borrowing{
		BorrowDate:         date(2024, 1, 1),
		ExpectedReturnDate: date(2024, 1, 11),
	}
	fee := dec("2.00")

	require.Equal(t, 10, b.BorrowingDays())
	require.True(t, dec("20.00").Equal(b.PaymentFee(fee)))

	b.ActualReturnDate = dateP(2024, 1, 15)
	require.True(t, b.WasReturnedLate())
	require.True(t, dec("16.00").Equal(b.FineFee(fee, dec("2.0"))))
	require.True(t, dec("36.00").Equal(b.TotalAmountDue(fee, dec("2.0"))))
}

func TestBorrowing_FineZeroWhenOnTime(t *testing.T) {
	b := Borrowing{
		BorrowDate:         date(2024, 1, 1),
		ExpectedReturnDate: date(2024, 1, 11),
		ActualReturnDate:   dateP(2024, 1, 11),
	}
	require.False(t, b.WasReturnedLate())
	require.True(t, b.FineFee(dec("2.00"), dec("2.0")).IsZero())

	// Early return charges the full planned fee, no refund.
	b.ActualReturnDate = dateP(2024, 1, 5)
	require.True(t, b.FineFee(dec("2.00"), dec("2.0")).IsZero())
	require.True(t, dec("20.00").Equal(b.TotalAmountDue(dec("2.00"), dec("2.0"))))
}

func TestBorrowing_PaymentFeeRounding(t *testing.T) {
	b := Borrowing{
		BorrowDate:         date(2024, 3, 1),
		ExpectedReturnDate: date(2024, 3, 4),
	}
	// 3 * 1.115 = 3.345, rounds half up to 3.35
	require.Equal(t, "3.35", b.PaymentFee(dec("1.115")).StringFixed(2))
}

func TestBorrowing_IsOverdue(t *testing.T) {
	b := Borrowing{
		BorrowDate:         date(2024, 1, 1),
		ExpectedReturnDate: date(2024, 1, 11),
	}

	// Active: not overdue on the due date itself, overdue the day after.
	require.False(t, b.IsOverdue(date(2024, 1, 10)))
	require.False(t, b.IsOverdue(date(2024, 1, 11)))
	require.True(t, b.IsOverdue(date(2024, 1, 12)))
	require.Equal(t, 0, b.DaysOverdue(date(2024, 1, 11)))
	require.Equal(t, 3, b.DaysOverdue(date(2024, 1, 14)))

	// Returned late: stays overdue no matter how far today moves on,
	// and days overdue freeze at the return date.
	b.ActualReturnDate = dateP(2024, 1, 15)
	require.True(t, b.IsOverdue(date(2024, 2, 1)))
	require.Equal(t, 4, b.DaysOverdue(date(2024, 2, 1)))

	// Returned on time: never overdue again.
	b.ActualReturnDate = dateP(2024, 1, 11)
	require.False(t, b.IsOverdue(date(2024, 2, 1)))
	require.Equal(t, 0, b.DaysOverdue(date(2024, 2, 1)))
}

func TestBorrowing_IsReturned(t *testing.T) {
	b := Borrowing{}
	require.False(t, b.IsReturned())
	b.ActualReturnDate = dateP(2024, 1, 2)
	require.True(t, b.IsReturned())
}
