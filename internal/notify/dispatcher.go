// Package notify records borrower notifications and delivers them by mail.
//
// Services call Notify after their transaction commits; a failure here never
// undoes a circulation change. Scheduled sweeps (due soon, overdue, expiring
// holds) use NotifyOnce so running them twice in a day is harmless.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"circulation/internal/models"
	"circulation/internal/repositories"
)

// DefaultActionURL is where every notification links to.
const DefaultActionURL = "/accounts/my-account/"

const DefaultBatchSize = 50

type Event struct {
	Type       models.NotificationType
	BorrowerID uuid.UUID
	LoanID     *uuid.UUID
	HoldID     *uuid.UUID
	Title      string
	Message    string
	ActionURL  string
}

type Options struct {
	Mailer Mailer
	// RatePerMinute caps outgoing mail. Zero disables the cap.
	RatePerMinute int
	Clock         func() time.Time
}

type Dispatcher struct {
	db            *gorm.DB
	notifications repositories.NotificationRepository
	loans         repositories.LoanRepository
	holds         repositories.HoldRepository
	mailer        Mailer
	limiter       *rate.Limiter
	clock         func() time.Time
}

func NewDispatcher(db *gorm.DB, notifications repositories.NotificationRepository, loans repositories.LoanRepository, holds repositories.HoldRepository, opts Options) *Dispatcher {
	mailer := opts.Mailer
	if mailer == nil {
		mailer = LogMailer{}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		db:            db,
		notifications: notifications,
		loans:         loans,
		holds:         holds,
		mailer:        mailer,
		limiter:       limiter,
		clock:         clock,
	}
}

func (d *Dispatcher) now() time.Time {
	return d.clock().UTC()
}

// Notify stores the event as an unread notification. Errors are logged only.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	if _, err := d.create(ctx, ev); err != nil {
		log.Printf("[ERROR] Notify: %s for borrower %s: %v", ev.Type, ev.BorrowerID, err)
	}
}

// NotifyOnce stores the event unless a notification of the same type for the
// same borrower and loan or hold was created within window. It reports whether
// a record was written.
func (d *Dispatcher) NotifyOnce(ctx context.Context, ev Event, window time.Duration) bool {
	exists, err := d.notifications.ExistsSince(d.db.WithContext(ctx), ev.BorrowerID, ev.Type, ev.LoanID, ev.HoldID, d.now().Add(-window))
	if err != nil {
		log.Printf("[ERROR] NotifyOnce: %s for borrower %s: %v", ev.Type, ev.BorrowerID, err)
		return false
	}
	if exists {
		return false
	}
	if _, err := d.create(ctx, ev); err != nil {
		log.Printf("[ERROR] NotifyOnce: %s for borrower %s: %v", ev.Type, ev.BorrowerID, err)
		return false
	}
	return true
}

func (d *Dispatcher) create(ctx context.Context, ev Event) (*models.Notification, error) {
	if ev.BorrowerID == uuid.Nil {
		return nil, fmt.Errorf("event %s has no borrower", ev.Type)
	}
	n := &models.Notification{
		BorrowerID: ev.BorrowerID,
		Type:       ev.Type,
		Title:      ev.Title,
		Message:    ev.Message,
		LoanID:     ev.LoanID,
		HoldID:     ev.HoldID,
		ActionURL:  ev.ActionURL,
		CreatedAt:  d.now(),
	}
	if n.ActionURL == "" {
		n.ActionURL = DefaultActionURL
	}
	if n.Title == "" {
		n.Title = "Notification"
	}
	if n.Message == "" {
		n.Message = "You have a new notification."
	}
	if err := d.notifications.Create(d.db.WithContext(ctx), n); err != nil {
		return nil, err
	}
	return n, nil
}

// DeliverPending mails up to batch unsent notifications whose borrower has an
// email address, oldest first, waiting on the rate limiter between messages.
// A failed send is recorded on the row and left for the next run.
func (d *Dispatcher) DeliverPending(ctx context.Context, batch int) (sent, failed int, err error) {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	db := d.db.WithContext(ctx)
	pending, err := d.notifications.ListPendingEmail(db, batch)
	if err != nil {
		return 0, 0, err
	}

	for _, n := range pending {
		if err := d.limiter.Wait(ctx); err != nil {
			return sent, failed, err
		}
		msg := Message{
			To:      n.Borrower.Email,
			Subject: n.Title,
			Body:    renderBody(n),
		}
		if err := d.mailer.Send(ctx, msg); err != nil {
			failed++
			log.Printf("[WARN] DeliverPending: notification %s to %s: %v", n.ID, msg.To, err)
			if mErr := d.notifications.MarkFailed(db, n.ID, err.Error()); mErr != nil {
				log.Printf("[ERROR] DeliverPending: recording failure for %s: %v", n.ID, mErr)
			}
			continue
		}
		if err := d.notifications.MarkSent(db, n.ID, d.now()); err != nil {
			log.Printf("[ERROR] DeliverPending: marking %s sent: %v", n.ID, err)
			continue
		}
		sent++
	}
	if sent > 0 || failed > 0 {
		log.Printf("[INFO] DeliverPending: sent=%d failed=%d", sent, failed)
	}
	return sent, failed, nil
}

func renderBody(n models.Notification) string {
	name := n.Borrower.FullName
	if name == "" {
		name = n.Borrower.Username
	}
	return fmt.Sprintf("Hello %s,\n\n%s\n\nView details: %s\n", name, n.Message, n.ActionURL)
}
