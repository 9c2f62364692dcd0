package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
	"circulation/internal/repositories"
	"circulation/internal/testutil"
)

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeMailer struct {
	mu      sync.Mutex
	sent    []Message
	failFor map[string]bool
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[msg.To] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type env struct {
	t      *testing.T
	ctx    context.Context
	db     *gorm.DB
	fx     *testutil.Fixtures
	clock  *testutil.Clock
	mailer *fakeMailer
	d      *Dispatcher
	branch *models.Location
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock(testStart)
	mailer := &fakeMailer{failFor: map[string]bool{}}
	fx := testutil.NewFixtures(t, db)
	d := NewDispatcher(db,
		repositories.NewNotificationRepository(db),
		repositories.NewLoanRepository(db),
		repositories.NewHoldRepository(db),
		Options{Mailer: mailer, Clock: clock.Now})
	return &env{t: t, ctx: context.Background(), db: db, fx: fx, clock: clock, mailer: mailer, d: d, branch: fx.Location("MAIN")}
}

func (e *env) loan(title, barcode string, b *models.Borrower, due time.Time) *models.Loan {
	e.t.Helper()
	pub := e.fx.Publication(title, barcode)
	item := e.fx.Item(pub, e.branch, barcode)
	loan := &models.Loan{
		ItemID:     item.ID,
		BorrowerID: b.ID,
		CheckoutAt: due.AddDate(0, 0, -14),
		DueDate:    due,
		Status:     models.LoanStatusActive,
	}
	require.NoError(e.t, e.db.Omit(clause.Associations).Create(loan).Error)
	return loan
}

func (e *env) readyHold(title string, b *models.Borrower, expires time.Time) *models.Hold {
	e.t.Helper()
	pub := e.fx.Publication(title, title)
	ready := expires.AddDate(0, 0, -7)
	hold := &models.Hold{
		PublicationID:    pub.ID,
		BorrowerID:       b.ID,
		PickupLocationID: e.branch.ID,
		HoldDate:         ready.Add(-time.Hour),
		Status:           models.HoldStatusReady,
		ReadyAt:          &ready,
		ExpiresAt:        &expires,
	}
	require.NoError(e.t, e.db.Omit(clause.Associations).Create(hold).Error)
	return hold
}

func (e *env) inbox(b *models.Borrower) []models.Notification {
	e.t.Helper()
	out, err := e.d.ListForBorrower(e.ctx, b.ID, false, 0)
	require.NoError(e.t, err)
	return out
}

func TestNotifyFillsDefaults(t *testing.T) {
	e := newEnv(t)
	b := e.fx.Borrower("anne", "")

	e.d.Notify(e.ctx, Event{Type: models.NotificationCheckout, BorrowerID: b.ID, Title: "Item Checked Out: Persuasion", Message: "m"})
	e.d.Notify(e.ctx, Event{Type: models.NotificationCheckin})

	got := e.inbox(b)
	require.Len(t, got, 1)
	assert.Equal(t, DefaultActionURL, got[0].ActionURL)
	assert.Equal(t, "Item Checked Out: Persuasion", got[0].Title)
	assert.True(t, testStart.Equal(got[0].CreatedAt))
	assert.False(t, got[0].IsRead)
	assert.False(t, got[0].EmailSent)
}

func TestNotifyOnceWithinWindow(t *testing.T) {
	e := newEnv(t)
	b := e.fx.Borrower("anne", "")
	loan := e.loan("Persuasion", "P-1", b, testStart)
	ev := Event{Type: models.NotificationOverdue, BorrowerID: b.ID, LoanID: &loan.ID, Title: "Overdue"}

	assert.True(t, e.d.NotifyOnce(e.ctx, ev, time.Hour))
	assert.False(t, e.d.NotifyOnce(e.ctx, ev, time.Hour))

	other := e.loan("Sanditon", "S-1", b, testStart)
	ev2 := ev
	ev2.LoanID = &other.ID
	assert.True(t, e.d.NotifyOnce(e.ctx, ev2, time.Hour))

	e.clock.Advance(2 * time.Hour)
	assert.True(t, e.d.NotifyOnce(e.ctx, ev, time.Hour))
	assert.Len(t, e.inbox(b), 3)
}

func TestDeliverPending(t *testing.T) {
	e := newEnv(t)
	anne := e.fx.Borrower("anne", "")
	fred := e.fx.Borrower("fred", "")
	quiet := e.fx.Borrower("quiet", "")
	require.NoError(t, e.db.Model(quiet).Update("email", "").Error)
	e.mailer.failFor[fred.Email] = true

	e.d.Notify(e.ctx, Event{Type: models.NotificationHoldReady, BorrowerID: anne.ID, Title: "Hold Ready for Pickup: Emma", Message: "Come get it."})
	e.clock.Advance(time.Second)
	e.d.Notify(e.ctx, Event{Type: models.NotificationHoldReady, BorrowerID: fred.ID, Title: "t", Message: "m"})
	e.d.Notify(e.ctx, Event{Type: models.NotificationHoldReady, BorrowerID: quiet.ID, Title: "t", Message: "m"})

	sent, failed, err := e.d.DeliverPending(e.ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, failed)

	require.Len(t, e.mailer.sent, 1)
	msg := e.mailer.sent[0]
	assert.Equal(t, anne.Email, msg.To)
	assert.Equal(t, "Hold Ready for Pickup: Emma", msg.Subject)
	assert.Contains(t, msg.Body, "Hello anne,")
	assert.Contains(t, msg.Body, "Come get it.")
	assert.Contains(t, msg.Body, DefaultActionURL)

	anneNotes := e.inbox(anne)
	require.Len(t, anneNotes, 1)
	assert.True(t, anneNotes[0].EmailSent)
	require.NotNil(t, anneNotes[0].EmailSentAt)

	fredNotes := e.inbox(fred)
	require.Len(t, fredNotes, 1)
	assert.False(t, fredNotes[0].EmailSent)
	assert.Equal(t, "mailbox unavailable", fredNotes[0].EmailError)

	assert.False(t, e.inbox(quiet)[0].EmailSent)

	delete(e.mailer.failFor, fred.Email)
	sent, failed, err = e.d.DeliverPending(e.ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Zero(t, failed)
	fredNotes = e.inbox(fred)
	assert.True(t, fredNotes[0].EmailSent)
	assert.Empty(t, fredNotes[0].EmailError)
}

func TestDeliverPendingStopsOnCancelledContext(t *testing.T) {
	e := newEnv(t)
	d := NewDispatcher(e.db,
		repositories.NewNotificationRepository(e.db),
		repositories.NewLoanRepository(e.db),
		repositories.NewHoldRepository(e.db),
		Options{Mailer: e.mailer, RatePerMinute: 1, Clock: e.clock.Now})
	b := e.fx.Borrower("anne", "")
	d.Notify(e.ctx, Event{Type: models.NotificationCheckout, BorrowerID: b.ID})
	d.Notify(e.ctx, Event{Type: models.NotificationCheckin, BorrowerID: b.ID})

	ctx, cancel := context.WithTimeout(e.ctx, 50*time.Millisecond)
	defer cancel()
	sent, _, err := d.DeliverPending(ctx, 10)

	assert.Error(t, err)
	assert.Equal(t, 1, sent)
}

func TestDueSoonSweep(t *testing.T) {
	e := newEnv(t)
	b := e.fx.Borrower("anne", "")
	due := e.loan("Mansfield Park", "MP-1", b, time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC))
	e.loan("Lady Susan", "LS-1", b, time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC))

	n, err := e.d.DueSoon(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := e.inbox(b)
	require.Len(t, got, 1)
	assert.Equal(t, models.NotificationDueSoon, got[0].Type)
	assert.Equal(t, "Item Due Soon: Mansfield Park", got[0].Title)
	assert.Contains(t, got[0].Message, "March 5, 2026")
	require.NotNil(t, got[0].LoanID)
	assert.Equal(t, due.ID, *got[0].LoanID)

	e.clock.Advance(time.Hour)
	n, err = e.d.DueSoon(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOverdueSweepWeekly(t *testing.T) {
	e := newEnv(t)
	b := e.fx.Borrower("anne", "")
	e.loan("Northanger Abbey", "NA-1", b, time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC))
	e.loan("The Watsons", "TW-1", b, time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC))

	n, err := e.d.Overdue(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got := e.inbox(b)
	require.Len(t, got, 1)
	assert.Equal(t, "Overdue: Northanger Abbey", got[0].Title)
	assert.Contains(t, got[0].Message, "7 days overdue")

	n, err = e.d.Overdue(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHoldsExpiringSweep(t *testing.T) {
	e := newEnv(t)
	b := e.fx.Borrower("anne", "")
	soon := e.readyHold("Juvenilia", b, testStart.Add(12*time.Hour))
	e.readyHold("Love and Freindship", b, testStart.Add(48*time.Hour))

	n, err := e.d.HoldsExpiring(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got := e.inbox(b)
	require.Len(t, got, 1)
	assert.Equal(t, "Hold Expiring Soon: Juvenilia", got[0].Title)
	require.NotNil(t, got[0].HoldID)
	assert.Equal(t, soon.ID, *got[0].HoldID)

	n, err = e.d.HoldsExpiring(e.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInboxReadState(t *testing.T) {
	e := newEnv(t)
	anne := e.fx.Borrower("anne", "")
	fred := e.fx.Borrower("fred", "")
	for i := 0; i < 3; i++ {
		e.d.Notify(e.ctx, Event{Type: models.NotificationRenewal, BorrowerID: anne.ID})
		e.clock.Advance(time.Minute)
	}
	all := e.inbox(anne)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[2].CreatedAt))

	ok, err := e.d.MarkRead(e.ctx, all[0].ID, fred.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = e.d.MarkRead(e.ctx, all[0].ID, anne.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.d.MarkRead(e.ctx, all[0].ID, anne.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	unread, err := e.d.ListForBorrower(e.ctx, anne.ID, true, 0)
	require.NoError(t, err)
	assert.Len(t, unread, 2)
	limited, err := e.d.ListForBorrower(e.ctx, anne.ID, false, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := e.d.MarkAllRead(e.ctx, anne.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	unread, err = e.d.ListForBorrower(e.ctx, anne.ID, true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestInboxDeleteScopedToOwner(t *testing.T) {
	e := newEnv(t)
	anne := e.fx.Borrower("anne", "")
	fred := e.fx.Borrower("fred", "")
	e.d.Notify(e.ctx, Event{Type: models.NotificationCheckout, BorrowerID: anne.ID})
	e.d.Notify(e.ctx, Event{Type: models.NotificationCheckout, BorrowerID: fred.ID})
	target := e.inbox(anne)[0]

	ok, err := e.d.Delete(e.ctx, target.ID, fred.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, e.inbox(anne), 1)

	ok, err = e.d.Delete(e.ctx, target.ID, anne.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, e.inbox(anne))
	assert.Len(t, e.inbox(fred), 1)

	ok, err = e.d.Delete(e.ctx, target.ID, anne.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
