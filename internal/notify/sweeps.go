package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"circulation/internal/models"
)

const (
	dueSoonDays     = 3
	overdueInterval = 7
	dateLayout      = "January 2, 2006"
)

func startOfDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// DueSoon reminds borrowers whose loans fall due three days from today.
func (d *Dispatcher) DueSoon(ctx context.Context) (int, error) {
	from := startOfDay(d.now()).AddDate(0, 0, dueSoonDays)
	loans, err := d.loans.ListActiveDueBetween(d.db.WithContext(ctx), from, from.AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range loans {
		loan := &loans[i]
		title := loan.Item.Publication.Title
		id := loan.ID
		ev := Event{
			Type:       models.NotificationDueSoon,
			BorrowerID: loan.BorrowerID,
			LoanID:     &id,
			Title:      "Item Due Soon: " + title,
			Message:    fmt.Sprintf("Your borrowed item %q is due on %s. Please return it on time to avoid late fees.", title, loan.DueDate.Format(dateLayout)),
		}
		if d.NotifyOnce(ctx, ev, 24*time.Hour) {
			created++
		}
	}
	if created > 0 {
		log.Printf("[INFO] DueSoon: created %d notification(s)", created)
	}
	return created, nil
}

// Overdue reminds borrowers of loans that are a whole number of weeks late.
func (d *Dispatcher) Overdue(ctx context.Context) (int, error) {
	today := startOfDay(d.now())
	loans, err := d.loans.ListActiveDueBefore(d.db.WithContext(ctx), today)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range loans {
		loan := &loans[i]
		days := int(today.Sub(startOfDay(loan.DueDate)).Hours() / 24)
		if days <= 0 || days%overdueInterval != 0 {
			continue
		}
		title := loan.Item.Publication.Title
		id := loan.ID
		ev := Event{
			Type:       models.NotificationOverdue,
			BorrowerID: loan.BorrowerID,
			LoanID:     &id,
			Title:      "Overdue: " + title,
			Message:    fmt.Sprintf("Your item %q is %d days overdue. Please return it immediately to avoid additional fees.", title, days),
		}
		if d.NotifyOnce(ctx, ev, 23*time.Hour) {
			created++
		}
	}
	if created > 0 {
		log.Printf("[INFO] Overdue: created %d notification(s)", created)
	}
	return created, nil
}

// HoldsExpiring warns borrowers whose ready hold lapses within a day.
func (d *Dispatcher) HoldsExpiring(ctx context.Context) (int, error) {
	now := d.now()
	holds, err := d.holds.ListReadyExpiringBetween(d.db.WithContext(ctx), now, now.Add(24*time.Hour))
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range holds {
		hold := &holds[i]
		title := hold.Publication.Title
		id := hold.ID
		ev := Event{
			Type:       models.NotificationHoldExpiring,
			BorrowerID: hold.BorrowerID,
			HoldID:     &id,
			Title:      "Hold Expiring Soon: " + title,
			Message:    fmt.Sprintf("Your hold for %q will expire on %s. Please pick it up soon.", title, hold.ExpiresAt.Format(dateLayout)),
		}
		if d.NotifyOnce(ctx, ev, 24*time.Hour) {
			created++
		}
	}
	if created > 0 {
		log.Printf("[INFO] HoldsExpiring: created %d notification(s)", created)
	}
	return created, nil
}
