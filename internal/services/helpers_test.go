package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"circulation/internal/models"
	"circulation/internal/notify"
	"circulation/internal/testutil"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) types() []models.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationType, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

func (n *recordingNotifier) last() notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	db     *gorm.DB
	svc    CirculationService
	fx     *testutil.Fixtures
	clock  *testutil.Clock
	notes  *recordingNotifier
	branch *models.Location
}

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, testutil.NewDB(t))
}

// newPostgresHarness runs against a real server, where row locks and the
// active-loan index are enforced. It skips without one.
func newPostgresHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, testutil.NewPostgresDB(t))
}

func newHarnessOn(t *testing.T, db *gorm.DB) *harness {
	t.Helper()
	clock := testutil.NewClock(testStart)
	notes := &recordingNotifier{}
	fx := testutil.NewFixtures(t, db)
	return &harness{
		t:      t,
		ctx:    context.Background(),
		db:     db,
		svc:    NewCirculationService(db, NewRepositories(db), Options{Notifier: notes, Clock: clock.Now}),
		fx:     fx,
		clock:  clock,
		notes:  notes,
		branch: fx.Location("MAIN"),
	}
}

// publication creates a publication with n available copies at the main branch.
func (h *harness) publication(title, isbn string, copies int) (*models.Publication, []*models.Item) {
	h.t.Helper()
	pub := h.fx.Publication(title, isbn)
	items := make([]*models.Item, 0, copies)
	for i := 0; i < copies; i++ {
		items = append(items, h.fx.Item(pub, h.branch, pub.Title[:1]+"-"+isbn+"-"+string(rune('A'+i))))
	}
	return pub, items
}

func (h *harness) checkout(identifier, borrower string) *models.Loan {
	h.t.Helper()
	loan, err := h.svc.Checkout(h.ctx, identifier, borrower, nil, "")
	require.NoError(h.t, err)
	return loan
}

func (h *harness) placeHold(pub *models.Publication, b *models.Borrower) *models.Hold {
	h.t.Helper()
	hold, err := h.svc.PlaceHold(h.ctx, pub.ID, b.ID, h.branch.ID, "")
	require.NoError(h.t, err)
	return hold
}

func (h *harness) activeLoanCount() int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.db.Model(&models.Loan{}).Where("status = ?", models.LoanStatusActive).Count(&n).Error)
	return n
}
