// repository/book/repo.go
package bookrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Liliyakhu/library-service-project/model"
)

// ErrNoInventory is returned by TryBorrow when no copy is left.
var ErrNoInventory = errors.New("no inventory available")

type Repo interface {
	Create(ctx context.Context, b *model.Book) (int64, error)
	AddInventory(ctx context.Context, bookID int64, n int64) error
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)

	// TryBorrow atomically takes one copy. The decrement is guarded
	// by the current count so two borrowers can never both get the
	// last copy.
	TryBorrow(ctx context.Context, tx *sql.Tx, bookID int64) error
	// ReturnCopy puts one copy back. Always succeeds for an
	// existing book.
	ReturnCopy(ctx context.Context, tx *sql.Tx, bookID int64) error
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) Create(ctx context.Context, b *model.Book) (int64, error) {
	const q = `
INSERT INTO books (title, author, cover, inventory, daily_fee)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		b.Title, b.Author, b.Cover, b.Inventory, b.DailyFee,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repo) AddInventory(ctx context.Context, bookID int64, n int64) error {
	const q = `
		UPDATE books
		SET inventory = inventory + $2
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, bookID, n)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) List(ctx context.Context) ([]model.Book, error) {
	const q = `
	SELECT id, title, author, cover, inventory, daily_fee
	FROM books
	ORDER BY title, author`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		var b model.Book
		var fee string
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &fee); err != nil {
			return nil, err
		}
		if b.DailyFee, err = decimal.NewFromString(fee); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) Detail(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
	SELECT id, title, author, cover, inventory, daily_fee
	FROM books
	WHERE id = $1`
	var b model.Book
	var fee string
	err := r.db.QueryRowContext(ctx, q, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &fee)
	if err != nil {
		return nil, err
	}
	if b.DailyFee, err = decimal.NewFromString(fee); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) TryBorrow(ctx context.Context, tx *sql.Tx, bookID int64) error {
	// Guard: decrement only while a copy is left.
	const q = `
		UPDATE books
		SET inventory = inventory - 1
		WHERE id = $1
		AND inventory > 0`
	res, err := tx.ExecContext(ctx, q, bookID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return ErrNoInventory
	}
	return nil
}

func (r *repo) ReturnCopy(ctx context.Context, tx *sql.Tx, bookID int64) error {
	const q = `
		UPDATE books
		SET inventory = inventory + 1
		WHERE id = $1`
	_, err := tx.ExecContext(ctx, q, bookID)
	return err
}
