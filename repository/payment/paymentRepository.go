// repository/payment/repo.go
package paymentrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Liliyakhu/library-service-project/model"
)

type Repo interface {
	Get(ctx context.Context, id int64) (*model.Payment, error)
	ListByBorrowing(ctx context.Context, borrowingID int64) ([]model.Payment, error)
	List(ctx context.Context, userID int64) ([]model.Payment, error)

	// FindFine returns the borrowing's fine payment regardless of
	// status, or (nil, nil) when none exists. A borrowing gets at
	// most one fine ever.
	FindFine(ctx context.Context, borrowingID int64) (*model.Payment, error)
	// FindActiveOrdinary returns a pending, unexpired PAYMENT-type
	// payment for the borrowing, or (nil, nil).
	FindActiveOrdinary(ctx context.Context, borrowingID int64, now time.Time) (*model.Payment, error)

	Insert(ctx context.Context, borrowingID int64, ptype model.PaymentType, amount decimal.Decimal) (int64, error)
	AttachSession(ctx context.Context, id int64, sessionID, sessionURL string, expiresAt time.Time) error
	// Delete is the compensating action when the remote session could
	// not be created; a pending payment without a session must not
	// survive.
	Delete(ctx context.Context, id int64) error

	// MarkPaid transitions PENDING or EXPIRED to PAID under a row
	// lock. Reports false without error when already PAID.
	MarkPaid(ctx context.Context, id int64) (applied bool, err error)
	// MarkPaidBySession is the webhook path: locks the row found by
	// session id before reading its status. sql.ErrNoRows when the
	// session is unknown.
	MarkPaidBySession(ctx context.Context, sessionID string) (applied bool, err error)
	// Expire transitions PENDING to EXPIRED. Reports false (skipped)
	// for PAID and already-EXPIRED rows.
	Expire(ctx context.Context, id int64) (applied bool, err error)
	ExtendExpiry(ctx context.Context, id int64, until time.Time) error
	// Renew overwrites the session fields and resets the status to
	// PENDING. Never touches a PAID row.
	Renew(ctx context.Context, id int64, sessionID, sessionURL string, expiresAt time.Time) error

	ListExpirationCandidates(ctx context.Context, now time.Time) ([]model.Payment, error)
	DeleteOldExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

const paymentSelect = `
	SELECT p.id, p.status, p.type, p.borrowing_id,
		p.session_id, p.session_url, p.session_expires_at,
		p.money_to_pay, p.created_at
	FROM payments p`

func scanPayment(s interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	err := s.Scan(
		&p.ID, &p.Status, &p.Type, &p.BorrowingID,
		&p.SessionID, &p.SessionURL, &p.SessionExpiresAt,
		&p.MoneyToPay, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) Get(ctx context.Context, id int64) (*model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, paymentSelect+` WHERE p.id = $1`, id))
}

func (r *repo) collect(rows *sql.Rows) ([]model.Payment, error) {
	defer rows.Close()
	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repo) ListByBorrowing(ctx context.Context, borrowingID int64) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		paymentSelect+` WHERE p.borrowing_id = $1 ORDER BY p.created_at, p.id`, borrowingID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *repo) List(ctx context.Context, userID int64) ([]model.Payment, error) {
	q := paymentSelect + ` JOIN borrowings b ON b.id = p.borrowing_id`
	args := []any{}
	if userID > 0 {
		q += ` WHERE b.user_id = $1`
		args = append(args, userID)
	}
	q += ` ORDER BY p.created_at DESC, p.id DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *repo) FindFine(ctx context.Context, borrowingID int64) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		paymentSelect+` WHERE p.borrowing_id = $1 AND p.type = 'FINE'`, borrowingID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *repo) FindActiveOrdinary(ctx context.Context, borrowingID int64, now time.Time) (*model.Payment, error) {
	const cond = ` WHERE p.borrowing_id = $1
		AND p.type = 'PAYMENT'
		AND p.status = 'PENDING'
		AND (p.session_expires_at IS NULL OR p.session_expires_at > $2)
		ORDER BY p.id DESC
		LIMIT 1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, paymentSelect+cond, borrowingID, now))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *repo) Insert(ctx context.Context, borrowingID int64, ptype model.PaymentType, amount decimal.Decimal) (int64, error) {
	const q = `
		INSERT INTO payments (borrowing_id, status, type, money_to_pay)
		VALUES ($1,'PENDING',$2,$3)
		RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, q, borrowingID, ptype, amount).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repo) AttachSession(ctx context.Context, id int64, sessionID, sessionURL string, expiresAt time.Time) error {
	const q = `
		UPDATE payments
		SET session_id = $2,
			session_url = $3,
			session_expires_at = $4
		WHERE id = $1
		AND status <> 'PAID'`
	res, err := r.db.ExecContext(ctx, q, id, sessionID, sessionURL, expiresAt)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	return err
}

// lockStatus reads the row's status under FOR UPDATE so concurrent
// webhook delivery and the expiration sweep serialize on the row.
func lockStatus(ctx context.Context, tx *sql.Tx, where string, arg any) (int64, model.PaymentStatus, error) {
	q := `SELECT id, status FROM payments WHERE ` + where + ` FOR UPDATE`
	var id int64
	var st model.PaymentStatus
	err := tx.QueryRowContext(ctx, q, arg).Scan(&id, &st)
	return id, st, err
}

func (r *repo) markPaidWhere(ctx context.Context, where string, arg any) (applied bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id, st, err := lockStatus(ctx, tx, where, arg)
	if err != nil {
		return false, err
	}
	if st == model.PaymentPaid {
		// Replay or webhook/sweep race: already applied.
		return false, tx.Commit()
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE payments SET status = 'PAID' WHERE id = $1`, id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (r *repo) MarkPaid(ctx context.Context, id int64) (bool, error) {
	return r.markPaidWhere(ctx, `id = $1`, id)
}

func (r *repo) MarkPaidBySession(ctx context.Context, sessionID string) (bool, error) {
	return r.markPaidWhere(ctx, `session_id = $1`, sessionID)
}

func (r *repo) Expire(ctx context.Context, id int64) (applied bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, st, err := lockStatus(ctx, tx, `id = $1`, id)
	if err != nil {
		return false, err
	}
	if st != model.PaymentPending {
		// PAID and EXPIRED are both skipped, never downgraded.
		return false, tx.Commit()
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE payments SET status = 'EXPIRED' WHERE id = $1`, id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (r *repo) ExtendExpiry(ctx context.Context, id int64, until time.Time) error {
	const q = `
		UPDATE payments
		SET session_expires_at = $2
		WHERE id = $1
		AND status = 'PENDING'`
	_, err := r.db.ExecContext(ctx, q, id, until)
	return err
}

func (r *repo) Renew(ctx context.Context, id int64, sessionID, sessionURL string, expiresAt time.Time) error {
	const q = `
		UPDATE payments
		SET status = 'PENDING',
			session_id = $2,
			session_url = $3,
			session_expires_at = $4
		WHERE id = $1
		AND status <> 'PAID'`
	res, err := r.db.ExecContext(ctx, q, id, sessionID, sessionURL, expiresAt)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) ListExpirationCandidates(ctx context.Context, now time.Time) ([]model.Payment, error) {
	const cond = ` WHERE p.status = 'PENDING'
		AND p.session_id IS NOT NULL
		AND p.session_expires_at <= $1
		ORDER BY p.session_expires_at, p.id`
	rows, err := r.db.QueryContext(ctx, paymentSelect+cond, now)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *repo) DeleteOldExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
		DELETE FROM payments
		WHERE status = 'EXPIRED'
		AND created_at < $1`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
