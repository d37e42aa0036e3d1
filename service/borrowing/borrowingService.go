package borrowsvc

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Liliyakhu/library-service-project/model"
	bookrepo "github.com/Liliyakhu/library-service-project/repository/book"
	borrowrepo "github.com/Liliyakhu/library-service-project/repository/borrowing"
	paymentrepo "github.com/Liliyakhu/library-service-project/repository/payment"
	"github.com/Liliyakhu/library-service-project/util/apperr"
	"github.com/Liliyakhu/library-service-project/util/clock"
)

// errors used by controllers

const (
	ErrBookNotFound    apperr.Code = "BOOK_NOT_FOUND"
	ErrBookUnavailable apperr.Code = "BOOK_UNAVAILABLE"
	ErrWindowExceeded  apperr.Code = "WINDOW_EXCEEDED"
	ErrInvalidReturn   apperr.Code = "INVALID_RETURN_DATE"
	ErrAlreadyReturned apperr.Code = "ALREADY_RETURNED"
	ErrNotOwner        apperr.Code = "NOT_OWNER"
	ErrNotFound        apperr.Code = "NOT_FOUND"
)

// Expected return dates must stay inside both windows: the API-level
// borrow cap (configurable, 30 days) and the storage-level year cap.
const storageWindowDays = 365

// Sessions is the slice of the payment service the borrow flow needs:
// open a checkout session for a freshly inserted payment, or clean it
// up and fail.
type Sessions interface {
	OpenSession(ctx context.Context, paymentID int64) (*model.Payment, error)
}

// dto

type Created struct {
	BorrowingID        int64           `json:"borrowing_id"`
	PaymentID          int64           `json:"payment_id"`
	SessionURL         string          `json:"session_url"`
	MoneyToPay         decimal.Decimal `json:"money_to_pay"`
	ExpectedReturnDate time.Time       `json:"expected_return_date"`
}

type ReturnResult struct {
	BorrowingID      int64           `json:"borrowing_id"`
	ActualReturnDate time.Time       `json:"actual_return_date"`
	WasReturnedLate  bool            `json:"was_returned_late"`
	FineFee          decimal.Decimal `json:"fine_fee"`
	NeedsFinePayment bool            `json:"needs_fine_payment"`
}

type ListRow struct {
	ID                 int64      `json:"id"`
	BorrowDate         time.Time  `json:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date,omitempty"`
	BookTitle          string     `json:"book_title"`
	BookAuthor         string     `json:"book_author"`
	IsReturned         bool       `json:"is_returned"`
	IsOverdue          bool       `json:"is_overdue"`
}

type DetailView struct {
	model.Borrowing
	BookTitle        string          `json:"book_title"`
	BookAuthor       string          `json:"book_author"`
	DailyFee         decimal.Decimal `json:"daily_fee"`
	IsReturned       bool            `json:"is_returned"`
	IsOverdue        bool            `json:"is_overdue"`
	DaysOverdue      int             `json:"days_overdue"`
	BorrowingDays    int             `json:"borrowing_days"`
	PaymentFee       decimal.Decimal `json:"payment_fee"`
	FineFee          decimal.Decimal `json:"fine_fee"`
	TotalAmountDue   decimal.Decimal `json:"total_amount_due"`
	WasReturnedLate  bool            `json:"was_returned_late"`
	NeedsFinePayment bool            `json:"needs_fine_payment"`
	Payments         []model.Payment `json:"payments"`
}

type Service interface {
	// Create books one copy, opens the fee payment and its checkout
	// session. ReturnDate of nil means "today".
	Create(ctx context.Context, userID, bookID int64, expectedReturn time.Time) (*Created, error)

	// Return marks an active borrowing returned and releases the
	// copy. Reports whether a fine payment is now owed.
	Return(ctx context.Context, userID, borrowingID int64, returnDate *time.Time) (*ReturnResult, error)

	List(ctx context.Context, userID int64, isActive *bool) ([]ListRow, error)
	Detail(ctx context.Context, id int64) (*DetailView, error)
}

// ----- Service implementation -----

type service struct {
	r    borrowrepo.Repo
	bkr  bookrepo.Repo
	pr   paymentrepo.Repo
	sess Sessions
	clk  clock.Clock

	maxBorrowDays  int
	fineMultiplier decimal.Decimal
}

func New(
	r borrowrepo.Repo,
	bkr bookrepo.Repo,
	pr paymentrepo.Repo,
	sess Sessions,
	clk clock.Clock,
	maxBorrowDays int,
	fineMultiplier decimal.Decimal,
) Service {
	return &service{
		r: r, bkr: bkr, pr: pr, sess: sess, clk: clk,
		maxBorrowDays: maxBorrowDays, fineMultiplier: fineMultiplier,
	}
}

func (s *service) Create(ctx context.Context, userID, bookID int64, expectedReturn time.Time) (*Created, error) {
	book, err := s.bkr.Detail(ctx, bookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(ErrBookNotFound)
		}
		return nil, err
	}

	today := s.clk.Today()
	expected := clock.DateOf(expectedReturn)
	if !expected.After(today) {
		return nil, apperr.New(ErrWindowExceeded)
	}
	days := clock.DaysBetween(today, expected)
	if days > s.maxBorrowDays || days > storageWindowDays {
		return nil, apperr.New(ErrWindowExceeded)
	}

	b := &model.Borrowing{
		UserID:             userID,
		BookID:             bookID,
		BorrowDate:         today,
		ExpectedReturnDate: expected,
	}
	amount := b.PaymentFee(book.DailyFee)

	borrowingID, paymentID, err := s.r.CreateWithPayment(ctx, b, amount)
	if err != nil {
		if errors.Is(err, bookrepo.ErrNoInventory) {
			return nil, apperr.New(ErrBookUnavailable)
		}
		return nil, err
	}

	// The payment row must exist before the provider call so the
	// session can reference it; on failure the payment service
	// compensates by deleting the row.
	p, err := s.sess.OpenSession(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	out := &Created{
		BorrowingID:        borrowingID,
		PaymentID:          paymentID,
		MoneyToPay:         amount,
		ExpectedReturnDate: expected,
	}
	if p.SessionURL != nil {
		out.SessionURL = *p.SessionURL
	}
	return out, nil
}

func (s *service) Return(ctx context.Context, userID, borrowingID int64, returnDate *time.Time) (*ReturnResult, error) {
	row, err := s.r.Get(ctx, borrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(ErrNotFound)
		}
		return nil, err
	}
	if userID > 0 && row.UserID != userID {
		return nil, apperr.New(ErrNotOwner)
	}
	if row.IsReturned() {
		return nil, apperr.New(ErrAlreadyReturned)
	}

	today := s.clk.Today()
	rd := today
	if returnDate != nil {
		rd = clock.DateOf(*returnDate)
	}
	if rd.Before(row.BorrowDate) || rd.After(today) {
		return nil, apperr.New(ErrInvalidReturn)
	}

	if err := s.r.Return(ctx, borrowingID, row.BookID, rd); err != nil {
		if errors.Is(err, borrowrepo.ErrAlreadyReturned) {
			return nil, apperr.New(ErrAlreadyReturned)
		}
		return nil, err
	}

	row.ActualReturnDate = &rd
	fine := row.FineFee(row.DailyFee, s.fineMultiplier)

	needsFine := false
	if row.WasReturnedLate() && fine.IsPositive() {
		existing, err := s.pr.FindFine(ctx, borrowingID)
		if err != nil {
			return nil, err
		}
		needsFine = existing == nil
	}

	return &ReturnResult{
		BorrowingID:      borrowingID,
		ActualReturnDate: rd,
		WasReturnedLate:  row.WasReturnedLate(),
		FineFee:          fine,
		NeedsFinePayment: needsFine,
	}, nil
}

func (s *service) List(ctx context.Context, userID int64, isActive *bool) ([]ListRow, error) {
	rows, err := s.r.List(ctx, userID, isActive)
	if err != nil {
		return nil, err
	}

	today := s.clk.Today()
	out := make([]ListRow, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		out = append(out, ListRow{
			ID:                 r.ID,
			BorrowDate:         r.BorrowDate,
			ExpectedReturnDate: r.ExpectedReturnDate,
			ActualReturnDate:   r.ActualReturnDate,
			BookTitle:          r.BookTitle,
			BookAuthor:         r.BookAuthor,
			IsReturned:         r.IsReturned(),
			IsOverdue:          r.IsOverdue(today),
		})
	}
	return out, nil
}

func (s *service) Detail(ctx context.Context, id int64) (*DetailView, error) {
	row, err := s.r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(ErrNotFound)
		}
		return nil, err
	}

	payments, err := s.pr.ListByBorrowing(ctx, id)
	if err != nil {
		return nil, err
	}

	today := s.clk.Today()
	fine := row.FineFee(row.DailyFee, s.fineMultiplier)

	needsFine := false
	if row.WasReturnedLate() && fine.IsPositive() {
		hasFine := false
		for i := range payments {
			if payments[i].Type == model.TypeFine {
				hasFine = true
				break
			}
		}
		needsFine = !hasFine
	}

	return &DetailView{
		Borrowing:        row.Borrowing,
		BookTitle:        row.BookTitle,
		BookAuthor:       row.BookAuthor,
		DailyFee:         row.DailyFee,
		IsReturned:       row.IsReturned(),
		IsOverdue:        row.IsOverdue(today),
		DaysOverdue:      row.DaysOverdue(today),
		BorrowingDays:    row.BorrowingDays(),
		PaymentFee:       row.PaymentFee(row.DailyFee),
		FineFee:          fine,
		TotalAmountDue:   row.TotalAmountDue(row.DailyFee, s.fineMultiplier),
		WasReturnedLate:  row.WasReturnedLate(),
		NeedsFinePayment: needsFine,
		Payments:         payments,
	}, nil
}
