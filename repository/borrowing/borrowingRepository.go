// repository/borrowing/repo.go
package borrowrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Liliyakhu/library-service-project/model"
	bookrepo "github.com/Liliyakhu/library-service-project/repository/book"
)

var ErrAlreadyReturned = errors.New("borrowing already returned")

// Row is a borrowing joined with the book fields every fee
// computation needs.
type Row struct {
	model.Borrowing
	BookTitle  string          `json:"book_title"`
	BookAuthor string          `json:"book_author"`
	DailyFee   decimal.Decimal `json:"daily_fee"`
}

// OverdueRow adds the borrower fields the overdue alerts mention.
type OverdueRow struct {
	Row
	UserEmail    string `json:"user_email"`
	UserFullName string `json:"user_full_name"`
}

type Repo interface {
	// CreateWithPayment books one copy, inserts the borrowing and its
	// pending fee payment as one transaction. If any step fails the
	// whole unit rolls back; bookrepo.ErrNoInventory passes through
	// when no copy is left.
	CreateWithPayment(ctx context.Context, b *model.Borrowing, amount decimal.Decimal) (borrowingID, paymentID int64, err error)

	Get(ctx context.Context, id int64) (*Row, error)
	List(ctx context.Context, userID int64, isActive *bool) ([]Row, error)

	// Return sets the actual return date and releases the copy. The
	// date update is conditional on the borrowing still being active,
	// so a concurrent double return loses cleanly.
	Return(ctx context.Context, borrowingID, bookID int64, returnDate time.Time) error

	ListOverdue(ctx context.Context, today time.Time) ([]OverdueRow, error)

	// ListLateReturnsWithoutFine returns borrowings that came back
	// late and have no fine payment of any status yet.
	ListLateReturnsWithoutFine(ctx context.Context) ([]Row, error)
}

type repo struct {
	db *sql.DB
	br bookrepo.Repo
}

func New(db *sql.DB, br bookrepo.Repo) Repo { return &repo{db: db, br: br} }

func (r *repo) CreateWithPayment(ctx context.Context, b *model.Borrowing, amount decimal.Decimal) (int64, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.br.TryBorrow(ctx, tx, b.BookID); err != nil {
		return 0, 0, err
	}

	const insBorrowing = `
		INSERT INTO borrowings (user_id, book_id, borrow_date, expected_return_date)
		VALUES ($1,$2,$3,$4)
		RETURNING id`
	var borrowingID int64
	err = tx.QueryRowContext(ctx, insBorrowing,
		b.UserID, b.BookID, b.BorrowDate, b.ExpectedReturnDate,
	).Scan(&borrowingID)
	if err != nil {
		return 0, 0, err
	}

	const insPayment = `
		INSERT INTO payments (borrowing_id, status, type, money_to_pay)
		VALUES ($1,'PENDING','PAYMENT',$2)
		RETURNING id`
	var paymentID int64
	if err = tx.QueryRowContext(ctx, insPayment, borrowingID, amount).Scan(&paymentID); err != nil {
		return 0, 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, err
	}
	return borrowingID, paymentID, nil
}

const rowSelect = `
	SELECT b.id, b.user_id, b.book_id, b.borrow_date,
		b.expected_return_date, b.actual_return_date,
		bk.title, bk.author, bk.daily_fee
	FROM borrowings b
	JOIN books bk ON bk.id = b.book_id`

func scanRow(s interface{ Scan(...any) error }) (*Row, error) {
	var row Row
	err := s.Scan(
		&row.ID, &row.UserID, &row.BookID, &row.BorrowDate,
		&row.ExpectedReturnDate, &row.ActualReturnDate,
		&row.BookTitle, &row.BookAuthor, &row.DailyFee,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) Get(ctx context.Context, id int64) (*Row, error) {
	return scanRow(r.db.QueryRowContext(ctx, rowSelect+` WHERE b.id = $1`, id))
}

func (r *repo) List(ctx context.Context, userID int64, isActive *bool) ([]Row, error) {
	q := rowSelect + ` WHERE 1=1`
	args := []any{}
	if userID > 0 {
		args = append(args, userID)
		q += ` AND b.user_id = $1`
	}
	if isActive != nil {
		if *isActive {
			q += ` AND b.actual_return_date IS NULL`
		} else {
			q += ` AND b.actual_return_date IS NOT NULL`
		}
	}
	q += ` ORDER BY b.borrow_date DESC, b.id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (r *repo) Return(ctx context.Context, borrowingID, bookID int64, returnDate time.Time) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Guard: only an active borrowing can be returned.
	const q = `
		UPDATE borrowings
		SET actual_return_date = $2
		WHERE id = $1
		AND actual_return_date IS NULL`
	res, err := tx.ExecContext(ctx, q, borrowingID, returnDate)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return ErrAlreadyReturned
	}

	if err = r.br.ReturnCopy(ctx, tx, bookID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *repo) ListLateReturnsWithoutFine(ctx context.Context) ([]Row, error) {
	q := rowSelect + `
		WHERE b.actual_return_date IS NOT NULL
		AND b.actual_return_date > b.expected_return_date
		AND NOT EXISTS (
			SELECT 1 FROM payments p
			WHERE p.borrowing_id = b.id AND p.type = 'FINE')
		ORDER BY b.actual_return_date, b.id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (r *repo) ListOverdue(ctx context.Context, today time.Time) ([]OverdueRow, error) {
	// Deterministic order: most overdue first, ties broken by email.
	const q = `
	SELECT b.id, b.user_id, b.book_id, b.borrow_date,
		b.expected_return_date, b.actual_return_date,
		bk.title, bk.author, bk.daily_fee,
		u.email, u.first_name || ' ' || u.last_name
	FROM borrowings b
	JOIN books bk ON bk.id = b.book_id
	JOIN users u ON u.id = b.user_id
	WHERE b.expected_return_date <= $1
	AND b.actual_return_date IS NULL
	ORDER BY b.expected_return_date, u.email`
	rows, err := r.db.QueryContext(ctx, q, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OverdueRow
	for rows.Next() {
		var row OverdueRow
		err := rows.Scan(
			&row.ID, &row.UserID, &row.BookID, &row.BorrowDate,
			&row.ExpectedReturnDate, &row.ActualReturnDate,
			&row.BookTitle, &row.BookAuthor, &row.DailyFee,
			&row.UserEmail, &row.UserFullName,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
