// The fine sweep backfills fine payments: it scans borrowings that
// came back late without a fine payment ever being created and drives
// each one through the regular get-or-create fine path, checkout
// session included. Borrowers who never ask for their fine still get
// billed.
package sweepsvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Liliyakhu/library-service-project/model"
	borrowrepo "github.com/Liliyakhu/library-service-project/repository/borrowing"
	"github.com/Liliyakhu/library-service-project/util/clock"
)

// FineOpener is the slice of the payment service the fine sweep
// needs: get-or-create the fine payment for a borrowing and open its
// checkout session.
type FineOpener interface {
	CreateForBorrowing(ctx context.Context, borrowingID int64, ptype model.PaymentType) (*model.Payment, error)
}

type FineSummary struct {
	TotalChecked int       `json:"total_checked"`
	Created      int       `json:"created"`
	Errors       int       `json:"errors"`
	ErrorDetails []string  `json:"error_details,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type fineSweep struct {
	br    borrowrepo.Repo
	fines FineOpener
	clk   clock.Clock
	log   *slog.Logger
}

func (s *fineSweep) run(ctx context.Context) (*FineSummary, error) {
	now := s.clk.Now()
	rows, err := s.br.ListLateReturnsWithoutFine(ctx)
	if err != nil {
		return nil, fmt.Errorf("list late returns without fine: %w", err)
	}

	sum := &FineSummary{TotalChecked: len(rows), Timestamp: now}
	s.log.Info("fine sweep started", "candidates", len(rows))

	for i := range rows {
		r := &rows[i]
		p, err := s.fines.CreateForBorrowing(ctx, r.ID, model.TypeFine)
		if err != nil {
			// Provider failures compensate inside CreateForBorrowing;
			// the row just stays a candidate for the next run.
			sum.Errors++
			sum.ErrorDetails = append(sum.ErrorDetails,
				fmt.Sprintf("borrowing %d: %v", r.ID, err))
			s.log.Error("fine sweep row failed", "borrowing_id", r.ID, "err", err)
			continue
		}
		sum.Created++
		s.log.Info("fine created", "borrowing_id", r.ID, "payment_id", p.ID,
			"amount", p.MoneyToPay)
	}

	s.log.Info("fine sweep finished",
		"created", sum.Created, "errors", sum.Errors)
	return sum, nil
}
