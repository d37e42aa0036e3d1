package booksvc

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Liliyakhu/library-service-project/model"
	bookrepo "github.com/Liliyakhu/library-service-project/repository/book"
	"github.com/Liliyakhu/library-service-project/util/apperr"
)

const (
	ErrBadInput apperr.Code = "BAD_INPUT"
	ErrNotFound apperr.Code = "NOT_FOUND"
)

type Service interface {
	Create(ctx context.Context, title, author string, cover model.CoverType, inventory int64, dailyFee decimal.Decimal) (int64, error)
	AddInventory(ctx context.Context, bookID, n int64) error
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type service struct{ r bookrepo.Repo }

func New(r bookrepo.Repo) Service { return &service{r} }

func (s *service) Create(ctx context.Context, title, author string, cover model.CoverType, inventory int64, dailyFee decimal.Decimal) (int64, error) {
	if title == "" || author == "" {
		return 0, apperr.New(ErrBadInput)
	}
	if cover != model.CoverHard && cover != model.CoverSoft {
		return 0, apperr.New(ErrBadInput)
	}
	if inventory < 0 || !dailyFee.IsPositive() {
		return 0, apperr.New(ErrBadInput)
	}
	return s.r.Create(ctx, &model.Book{
		Title:     title,
		Author:    author,
		Cover:     cover,
		Inventory: inventory,
		DailyFee:  dailyFee,
	})
}

func (s *service) AddInventory(ctx context.Context, bookID, n int64) error {
	if n <= 0 {
		return apperr.New(ErrBadInput)
	}
	if err := s.r.AddInventory(ctx, bookID, n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(ErrNotFound)
		}
		return err
	}
	return nil
}

func (s *service) List(ctx context.Context) ([]model.Book, error) { return s.r.List(ctx) }

func (s *service) Detail(ctx context.Context, id int64) (*model.Book, error) {
	b, err := s.r.Detail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(ErrNotFound)
		}
		return nil, err
	}
	return b, nil
}
