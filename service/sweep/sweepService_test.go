package sweepsvc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Liliyakhu/library-service-project/model"
	borrowrepo "github.com/Liliyakhu/library-service-project/repository/borrowing"
	paymentrepo "github.com/Liliyakhu/library-service-project/repository/payment"
	striperepo "github.com/Liliyakhu/library-service-project/repository/stripe"
	"github.com/Liliyakhu/library-service-project/util/clock"
)

// --- fakes ---

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time   { return c.now }
func (c fakeClock) Today() time.Time { return clock.DateOf(c.now) }

type payMock struct {
	candidatesFn func(ctx context.Context, now time.Time) ([]model.Payment, error)
	markPaidFn   func(ctx context.Context, id int64) (bool, error)
	expireFn     func(ctx context.Context, id int64) (bool, error)
	extendFn     func(ctx context.Context, id int64, until time.Time) error
	deleteOldFn  func(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ paymentrepo.Repo = (*payMock)(nil)

func (m *payMock) Get(ctx context.Context, id int64) (*model.Payment, error) { return nil, nil }
func (m *payMock) ListByBorrowing(ctx context.Context, borrowingID int64) ([]model.Payment, error) {
	return nil, nil
}
func (m *payMock) List(ctx context.Context, userID int64) ([]model.Payment, error) { return nil, nil }
func (m *payMock) FindFine(ctx context.Context, borrowingID int64) (*model.Payment, error) {
	return nil, nil
}
func (m *payMock) FindActiveOrdinary(ctx context.Context, borrowingID int64, now time.Time) (*model.Payment, error) {
	return nil, nil
}
func (m *payMock) Insert(ctx context.Context, borrowingID int64, ptype model.PaymentType, amount decimal.Decimal) (int64, error) {
	return 0, nil
}
func (m *payMock) AttachSession(ctx context.Context, id int64, sessionID, sessionURL string, expiresAt time.Time) error {
	return nil
}
func (m *payMock) Delete(ctx context.Context, id int64) error { return nil }
func (m *payMock) MarkPaid(ctx context.Context, id int64) (bool, error) {
	if m.markPaidFn == nil {
		return true, nil
	}
	return m.markPaidFn(ctx, id)
}
func (m *payMock) MarkPaidBySession(ctx context.Context, sessionID string) (bool, error) {
	return false, nil
}
func (m *payMock) Expire(ctx context.Context, id int64) (bool, error) {
	if m.expireFn == nil {
		return true, nil
	}
	return m.expireFn(ctx, id)
}
func (m *payMock) ExtendExpiry(ctx context.Context, id int64, until time.Time) error {
	if m.extendFn == nil {
		return nil
	}
	return m.extendFn(ctx, id, until)
}
func (m *payMock) Renew(ctx context.Context, id int64, sessionID, sessionURL string, expiresAt time.Time) error {
	return nil
}
func (m *payMock) ListExpirationCandidates(ctx context.Context, now time.Time) ([]model.Payment, error) {
	return m.candidatesFn(ctx, now)
}
func (m *payMock) DeleteOldExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.deleteOldFn(ctx, cutoff)
}

type borrowMock struct {
	overdueFn func(ctx context.Context, today time.Time) ([]borrowrepo.OverdueRow, error)
	lateFn    func(ctx context.Context) ([]borrowrepo.Row, error)
}

var _ borrowrepo.Repo = (*borrowMock)(nil)

func (m *borrowMock) CreateWithPayment(ctx context.Context, b *model.Borrowing, amount decimal.Decimal) (int64, int64, error) {
	return 0, 0, nil
}
func (m *borrowMock) Get(ctx context.Context, id int64) (*borrowrepo.Row, error) { return nil, nil }
func (m *borrowMock) List(ctx context.Context, userID int64, isActive *bool) ([]borrowrepo.Row, error) {
	return nil, nil
}
func (m *borrowMock) Return(ctx context.Context, borrowingID, bookID int64, returnDate time.Time) error {
	return nil
}
func (m *borrowMock) ListOverdue(ctx context.Context, today time.Time) ([]borrowrepo.OverdueRow, error) {
	return m.overdueFn(ctx, today)
}
func (m *borrowMock) ListLateReturnsWithoutFine(ctx context.Context) ([]borrowrepo.Row, error) {
	return m.lateFn(ctx)
}

type fineOpenerMock struct {
	createFn func(ctx context.Context, borrowingID int64, ptype model.PaymentType) (*model.Payment, error)
}

func (m *fineOpenerMock) CreateForBorrowing(ctx context.Context, borrowingID int64, ptype model.PaymentType) (*model.Payment, error) {
	return m.createFn(ctx, borrowingID, ptype)
}

type stripeMock struct {
	getFn func(ctx context.Context, sessionID string) (*striperepo.Session, error)
}

var _ striperepo.Repo = (*stripeMock)(nil)

func (m *stripeMock) CreateSession(ctx context.Context, req striperepo.CreateSessionReq) (*striperepo.Session, error) {
	return nil, nil
}
func (m *stripeMock) GetSession(ctx context.Context, sessionID string) (*striperepo.Session, error) {
	return m.getFn(ctx, sessionID)
}
func (m *stripeMock) VerifyWebhookSignature(sigHeader string, rawBody []byte, now time.Time) error {
	return nil
}

type sinkMock struct {
	sent   []string
	failOn func(text string) bool
}

func (m *sinkMock) Send(ctx context.Context, text string) bool {
	if m.failOn != nil && m.failOn(text) {
		return false
	}
	m.sent = append(m.sent, text)
	return true
}

// --- helpers ---

var now = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestService(pr *payMock, br *borrowMock, sp *stripeMock, tg *sinkMock) *service {
	return newTestServiceWithFines(pr, br, sp, tg, &fineOpenerMock{})
}

func newTestServiceWithFines(pr *payMock, br *borrowMock, sp *stripeMock, tg *sinkMock, fo *fineOpenerMock) *service {
	clk := fakeClock{now: now}
	log := discard()
	return &service{
		expiration:    expirationSweep{pr: pr, sp: sp, clk: clk, log: log},
		overdue:       overdueSweep{br: br, tg: tg, clk: clk, log: log},
		fine:          fineSweep{br: br, fines: fo, clk: clk, log: log},
		pr:            pr,
		clk:           clk,
		log:           log,
		retryAttempts: 3,
		retryBackoff:  time.Millisecond,
	}
}

func candidate(id int64, sessionID string) model.Payment {
	exp := now.Add(-time.Hour)
	return model.Payment{
		ID: id, Status: model.PaymentPending, Type: model.TypePayment,
		SessionID: &sessionID, SessionExpiresAt: &exp,
	}
}

// --- expiration sweep ---

func TestExpireSessions_NoCandidates(t *testing.T) {
	pr := &payMock{
		candidatesFn: func(ctx context.Context, at time.Time) ([]model.Payment, error) {
			return nil, nil
		},
	}
	s := newTestService(pr, &borrowMock{}, &stripeMock{}, &sinkMock{})

	sum, err := s.ExpireSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sum.TotalChecked)
	require.Equal(t, 0, sum.Expired)
	require.Equal(t, 0, sum.Errors)
	require.Equal(t, now, sum.Timestamp)
}

func TestExpireSessions_PaidCatchUp(t *testing.T) {
	// The provider says the session was paid: a missed webhook, the
	// sweep applies the payment instead of expiring it.
	var paid []int64
	pr := &payMock{
		candidatesFn: func(ctx context.Context, at time.Time) ([]model.Payment, error) {
			return []model.Payment{candidate(1, "cs_1")}, nil
		},
		markPaidFn: func(ctx context.Context, id int64) (bool, error) {
			paid = append(paid, id)
			return true, nil
		},
	}
	sp := &stripeMock{
		getFn: func(ctx context.Context, sessionID string) (*striperepo.Session, error) {
			return &striperepo.Session{ID: sessionID, Status: "complete", PaymentStatus: striperepo.PaymentStatusPaid}, nil
		},
	}
	s := newTestService(pr, &borrowMock{}, sp, &sinkMock{})

	sum, err := s.ExpireSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{1}, paid)
	require.Equal(t, 1, sum.StillValid)
	require.Equal(t, 0, sum.Expired)
}

func TestExpireSessions_OpenSessionExtended(t *testing.T) {
	var extendedUntil time.Time
	pr := &payMock{
		candidatesFn: func(ctx context.Context, at time.Time) ([]model.Payment, error) {
			return []model.Payment{candidate(1, "cs_1")}, nil
		},
		extendFn: func(ctx context.Context, id int64, until time.Time) error {
			extendedUntil = until
			return nil
		},
		expireFn: func(ctx context.Context, id int64) (bool, error) {
			t.Fatal("open session must not be expired")
			return false, nil
		},
	}
	sp := &stripeMock{
		getFn: func(ctx context.Context, sessionID string) (*striperepo.Session, error) {
			return &striperepo.Session{ID: sessionID, Status: striperepo.SessionOpen}, nil
		},
	}
	s := newTestService(pr, &borrowMock{}, sp, &sinkMock{})

	sum, err := s.ExpireSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, now.Add(openSessionExtension), extendedUntil)
	require.Equal(t, 1, sum.StillValid)
}

func TestExpireSessions_ExpiredAndUnknown(t *testing.T) {
	var expired []int64
	pr := &payMock{
		candidatesFn: func(ctx context.Context, at time.Time) ([]model.Payment, error) {
			return []model.Payment{candidate(1, "cs_1"), candidate(2, "cs_2")}, nil
		},
		expireFn: func(ctx context.Context, id int64) (bool, error) {
			expired = append(expired, id)
			return true, nil
		},
	}
	sp := &stripeMock{
		getFn: func(ctx context.Context, sessionID string) (*striperepo.Session, error) {
			if sessionID == "cs_1" {
				return &striperepo.Session{ID: sessionID, Status: striperepo.SessionExpired}, nil
			}
			return nil, striperepo.ErrSessionNotFound
		},
	}
	s := newTestService(pr, &borrowMock{}, sp, &sinkMock{})

	sum, err := s.ExpireSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, expired)
	require.Equal(t, 2, sum.Expired)
}

func TestExpireSessions_RowErrorDoesNotAbort(t *testing.T) {
	var expired []int64
	pr := &payMock{
		candidatesFn: func(ctx context.Context, at time.Time) ([]model.Payment, error) {
			return []model.Payment{candidate(1, "cs_1"), candidate(2, "cs_2")}, nil
		},
		expireFn: func(ctx context.Context, id int64) (bool, error) {
			if id == 1 {
				return false, errors.New("deadlock")
			}
			expired = append(expired, id)
			return true, nil
		},
	}
	sp := &stripeMock{
		getFn: func(ctx context.Context, sessionID string) (*striperepo.Session, error) {
			return &striperepo.Session{ID: sessionID, Status: striperepo.SessionExpired}, nil
		},
	}
	s := newTestService(pr, &borrowMock{}, sp, &sinkMock{})

	sum, err := s.ExpireSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{2}, expired)
	require.Equal(t, 1, sum.Errors)
	require.Equal(t, 1, sum.Expired)
	require.Len(t, sum.ErrorDetails, 1)
}

// --- overdue sweep ---

func overdueRow(id int64, title string) borrowrepo.OverdueRow {
	return borrowrepo.OverdueRow{
		Row: borrowrepo.Row{
			Borrowing: model.Borrowing{
				ID:                 id,
				BorrowDate:         time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC),
				ExpectedReturnDate: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
			},
			BookTitle:  title,
			BookAuthor: "R. Martin",
			DailyFee:   decimal.NewFromInt(2),
		},
		UserEmail:    "reader@example.com",
		UserFullName: "Avid Reader",
	}
}

func TestNotifyOverdue_AllClear(t *testing.T) {
	br := &borrowMock{
		overdueFn: func(ctx context.Context, today time.Time) ([]borrowrepo.OverdueRow, error) {
			return nil, nil
		},
	}
	tg := &sinkMock{}
	s := newTestService(&payMock{}, br, &stripeMock{}, tg)

	sum, err := s.NotifyOverdue(context.Background())
	require.NoError(t, err)
	require.True(t, sum.AllClear)
	require.Equal(t, 0, sum.OverdueCount)
	require.Len(t, tg.sent, 1)
	require.Contains(t, tg.sent[0], "No Overdue Borrowings")
}

func TestNotifyOverdue_AllClearSendFailure(t *testing.T) {
	br := &borrowMock{
		overdueFn: func(ctx context.Context, today time.Time) ([]borrowrepo.OverdueRow, error) {
			return nil, nil
		},
	}
	tg := &sinkMock{failOn: func(string) bool { return true }}
	s := newTestService(&payMock{}, br, &stripeMock{}, tg)

	_, err := s.NotifyOverdue(context.Background())
	require.Error(t, err)
}

func TestNotifyOverdue_AlertsAndSummary(t *testing.T) {
	br := &borrowMock{
		overdueFn: func(ctx context.Context, today time.Time) ([]borrowrepo.OverdueRow, error) {
			return []borrowrepo.OverdueRow{overdueRow(11, "Clean Code"), overdueRow(12, "TDD")}, nil
		},
	}
	tg := &sinkMock{}
	s := newTestService(&payMock{}, br, &stripeMock{}, tg)

	sum, err := s.NotifyOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.OverdueCount)
	require.Equal(t, 2, sum.Sent)
	require.Equal(t, 0, sum.Failed)
	require.Len(t, tg.sent, 3) // two alerts and a summary
	require.Contains(t, tg.sent[0], "Clean Code")
	require.Contains(t, tg.sent[0], "5 days") // due Jan 5, today Jan 10
	require.Contains(t, tg.sent[2], "Daily Overdue Report")
}

func TestNotifyOverdue_PartialFailure(t *testing.T) {
	br := &borrowMock{
		overdueFn: func(ctx context.Context, today time.Time) ([]borrowrepo.OverdueRow, error) {
			return []borrowrepo.OverdueRow{overdueRow(11, "Clean Code"), overdueRow(12, "TDD")}, nil
		},
	}
	tg := &sinkMock{failOn: func(text string) bool { return strings.Contains(text, "TDD") }}
	s := newTestService(&payMock{}, br, &stripeMock{}, tg)

	sum, err := s.NotifyOverdue(context.Background())
	require.NoError(t, err) // one of two is not an outage
	require.Equal(t, 1, sum.Sent)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, []int64{12}, sum.FailedIDs)
}

func TestNotifyOverdue_MostlyFailedTriggersRetry(t *testing.T) {
	calls := 0
	br := &borrowMock{
		overdueFn: func(ctx context.Context, today time.Time) ([]borrowrepo.OverdueRow, error) {
			calls++
			return []borrowrepo.OverdueRow{overdueRow(11, "Clean Code")}, nil
		},
	}
	tg := &sinkMock{failOn: func(text string) bool { return strings.Contains(text, "ALERT") }}
	s := newTestService(&payMock{}, br, &stripeMock{}, tg)

	sum, err := s.RunNotifyOverdue(context.Background())
	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.NotNil(t, sum)
	require.Equal(t, 1, sum.Failed)
}

// --- fine sweep ---

func lateReturn(id int64) borrowrepo.Row {
	rd := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	return borrowrepo.Row{
		Borrowing: model.Borrowing{
			ID:                 id,
			BorrowDate:         time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC),
			ExpectedReturnDate: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
			ActualReturnDate:   &rd,
		},
		BookTitle: "Clean Code",
		DailyFee:  decimal.NewFromInt(2),
	}
}

func TestCreateOverdueFines_CreatesPerRow(t *testing.T) {
	br := &borrowMock{
		lateFn: func(ctx context.Context) ([]borrowrepo.Row, error) {
			return []borrowrepo.Row{lateReturn(11), lateReturn(12)}, nil
		},
	}
	var created []int64
	fo := &fineOpenerMock{
		createFn: func(ctx context.Context, borrowingID int64, ptype model.PaymentType) (*model.Payment, error) {
			require.Equal(t, model.TypeFine, ptype)
			created = append(created, borrowingID)
			return &model.Payment{ID: 100 + borrowingID, Type: model.TypeFine}, nil
		},
	}
	s := newTestServiceWithFines(&payMock{}, br, &stripeMock{}, &sinkMock{}, fo)

	sum, err := s.CreateOverdueFines(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{11, 12}, created)
	require.Equal(t, 2, sum.TotalChecked)
	require.Equal(t, 2, sum.Created)
	require.Equal(t, 0, sum.Errors)
}

func TestCreateOverdueFines_RowErrorDoesNotAbort(t *testing.T) {
	br := &borrowMock{
		lateFn: func(ctx context.Context) ([]borrowrepo.Row, error) {
			return []borrowrepo.Row{lateReturn(11), lateReturn(12)}, nil
		},
	}
	fo := &fineOpenerMock{
		createFn: func(ctx context.Context, borrowingID int64, ptype model.PaymentType) (*model.Payment, error) {
			if borrowingID == 11 {
				return nil, errors.New("provider down")
			}
			return &model.Payment{ID: 112, Type: model.TypeFine}, nil
		},
	}
	s := newTestServiceWithFines(&payMock{}, br, &stripeMock{}, &sinkMock{}, fo)

	sum, err := s.CreateOverdueFines(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Created)
	require.Equal(t, 1, sum.Errors)
	require.Len(t, sum.ErrorDetails, 1)
	require.Contains(t, sum.ErrorDetails[0], "borrowing 11")
}

func TestCreateOverdueFines_NoCandidates(t *testing.T) {
	br := &borrowMock{
		lateFn: func(ctx context.Context) ([]borrowrepo.Row, error) { return nil, nil },
	}
	s := newTestService(&payMock{}, br, &stripeMock{}, &sinkMock{})

	sum, err := s.CreateOverdueFines(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sum.TotalChecked)
	require.Equal(t, 0, sum.Created)
}

func TestRunCreateOverdueFines_RetriesListFailure(t *testing.T) {
	calls := 0
	br := &borrowMock{
		lateFn: func(ctx context.Context) ([]borrowrepo.Row, error) {
			calls++
			return nil, errors.New("db down")
		},
	}
	s := newTestService(&payMock{}, br, &stripeMock{}, &sinkMock{})

	_, err := s.RunCreateOverdueFines(context.Background())
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

// --- retry and cleanup ---

func TestRunExpireSessions_RetriesTopLevelFailure(t *testing.T) {
	calls := 0
	pr := &payMock{
		candidatesFn: func(ctx context.Context, at time.Time) ([]model.Payment, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("db down")
			}
			return nil, nil
		},
	}
	s := newTestService(pr, &borrowMock{}, &stripeMock{}, &sinkMock{})

	sum, err := s.RunExpireSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, 0, sum.TotalChecked)
}

func TestCleanupExpiredPayments(t *testing.T) {
	var cutoff time.Time
	pr := &payMock{
		deleteOldFn: func(ctx context.Context, c time.Time) (int64, error) {
			cutoff = c
			return 4, nil
		},
	}
	s := newTestService(pr, &borrowMock{}, &stripeMock{}, &sinkMock{})

	n, err := s.CleanupExpiredPayments(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.Equal(t, now.Add(-expiredPaymentRetention), cutoff)
}
