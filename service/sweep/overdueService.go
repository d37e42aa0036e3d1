// The overdue sweep scans active borrowings past their due date and
// alerts the library staff channel, one message per borrowing plus a
// summary. Zero overdue borrowings is its own outcome with its own
// "all clear" message.
package sweepsvc

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	borrowrepo "github.com/Liliyakhu/library-service-project/repository/borrowing"
	telegramrepo "github.com/Liliyakhu/library-service-project/repository/telegram"
	"github.com/Liliyakhu/library-service-project/util/clock"
)

type OverdueSummary struct {
	AllClear     bool      `json:"all_clear"`
	OverdueCount int       `json:"overdue_count"`
	Sent         int       `json:"sent"`
	Failed       int       `json:"failed"`
	FailedIDs    []int64   `json:"failed_ids,omitempty"`
	Date         string    `json:"date"`
	Timestamp    time.Time `json:"timestamp"`
}

type overdueSweep struct {
	br  borrowrepo.Repo
	tg  telegramrepo.Sink
	clk clock.Clock
	log *slog.Logger
}

func (s *overdueSweep) run(ctx context.Context) (*OverdueSummary, error) {
	now := s.clk.Now()
	today := s.clk.Today()

	rows, err := s.br.ListOverdue(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("list overdue borrowings: %w", err)
	}

	sum := &OverdueSummary{
		OverdueCount: len(rows),
		Date:         today.Format("2006-01-02"),
		Timestamp:    now,
	}

	if len(rows) == 0 {
		sum.AllClear = true
		msg := fmt.Sprintf(
			"<b>No Overdue Borrowings Today!</b>\n"+
				"<b>Date</b>: %s\n"+
				"<b>Checked at</b>: %s\n"+
				"All borrowings are up to date!",
			sum.Date, now.Format("15:04"))
		if !s.tg.Send(ctx, msg) {
			return nil, fmt.Errorf("all-clear notification failed")
		}
		s.log.Info("overdue sweep: all clear")
		return sum, nil
	}

	for i := range rows {
		r := &rows[i]
		if s.tg.Send(ctx, s.alertMessage(r, today, now)) {
			sum.Sent++
		} else {
			sum.Failed++
			sum.FailedIDs = append(sum.FailedIDs, r.ID)
			s.log.Warn("overdue alert failed", "borrowing_id", r.ID)
		}
	}

	if !s.tg.Send(ctx, s.summaryMessage(sum)) {
		s.log.Warn("overdue summary notification failed")
	}

	s.log.Info("overdue sweep finished",
		"overdue", sum.OverdueCount, "sent", sum.Sent, "failed", sum.Failed)

	// More failures than successes smells like a notification outage,
	// not bad rows; let the retry wrapper take another run.
	if sum.Failed > sum.Sent {
		return sum, fmt.Errorf("overdue sweep: %d of %d notifications failed",
			sum.Failed, sum.OverdueCount)
	}
	return sum, nil
}

func (s *overdueSweep) alertMessage(r *borrowrepo.OverdueRow, today, now time.Time) string {
	daysOverdue := r.DaysOverdue(today)
	plural := "s"
	if daysOverdue == 1 {
		plural = ""
	}
	return fmt.Sprintf(
		"<b>OVERDUE BORROWING ALERT</b>\n"+
			"<b>Book</b>: %s\n"+
			"<b>Author</b>: %s\n"+
			"<b>Borrower</b>: %s\n"+
			"<b>Email</b>: %s\n"+
			"<b>Borrowed</b>: %s\n"+
			"<b>Due Date</b>: %s\n"+
			"<b>Days Overdue</b>: %d day%s\n"+
			"<b>Daily Fee</b>: $%s\n"+
			"<b>Borrowing ID</b>: %d\n"+
			"<b>Current Fee</b>: $%s\n"+
			"<b>Alert Time</b>: %s",
		html.EscapeString(r.BookTitle),
		html.EscapeString(r.BookAuthor),
		html.EscapeString(r.UserFullName),
		html.EscapeString(r.UserEmail),
		r.BorrowDate.Format("2006-01-02"),
		r.ExpectedReturnDate.Format("2006-01-02"),
		daysOverdue, plural,
		r.DailyFee.StringFixed(2),
		r.ID,
		r.PaymentFee(r.DailyFee).StringFixed(2),
		now.Format("15:04"))
}

func (s *overdueSweep) summaryMessage(sum *OverdueSummary) string {
	msg := fmt.Sprintf(
		"<b>Daily Overdue Report</b>\n"+
			"<b>Date</b>: %s\n"+
			"<b>Total Overdue</b>: %d\n"+
			"<b>Notifications Sent</b>: %d\n"+
			"<b>Failed Notifications</b>: %d",
		sum.Date, sum.OverdueCount, sum.Sent, sum.Failed)
	if len(sum.FailedIDs) > 0 {
		ids := make([]string, len(sum.FailedIDs))
		for i, id := range sum.FailedIDs {
			ids[i] = fmt.Sprint(id)
		}
		msg += "\n<b>Failed IDs</b>: " + strings.Join(ids, ", ")
	}
	return msg
}
