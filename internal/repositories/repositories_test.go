package repositories_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
	"circulation/internal/repositories"
	"circulation/internal/testutil"
)

func TestMigrateAllowsOneActiveLoanPerItem(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	loc := fx.Location("MAIN")
	item := fx.Item(fx.Publication("Nostromo", "9780141441634"), loc, "N-1")
	b := fx.Borrower("gould", "")
	loans := repositories.NewLoanRepository(db)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	newLoan := func(status models.LoanStatus) *models.Loan {
		return &models.Loan{ItemID: item.ID, BorrowerID: b.ID, CheckoutAt: now, DueDate: now.AddDate(0, 0, 14), Status: status}
	}
	require.NoError(t, loans.Create(nil, newLoan(models.LoanStatusReturned)))
	require.NoError(t, loans.Create(nil, newLoan(models.LoanStatusActive)))
	assert.Error(t, loans.Create(nil, newLoan(models.LoanStatusActive)))

	// Running it again is a no-op.
	require.NoError(t, repositories.Migrate(db))
}

func TestFindClaimableForUpdateRespectsReservations(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	loc := fx.Location("MAIN")
	pub := fx.Publication("Lord Jim", "9780141441610")
	items := repositories.NewItemRepository(db)
	owner := uuid.New()
	stranger := uuid.New()

	shelved := fx.Item(pub, loc, "LJ-1")
	require.NoError(t, items.UpdateState(nil, shelved.ID, models.ItemStatusOnHoldShelf, &owner))

	shelf := []models.ItemStatus{models.ItemStatusAvailable, models.ItemStatusOnHoldShelf}
	_, err := items.FindClaimableForUpdate(nil, repositories.ClaimQuery{PublicationID: &pub.ID, Statuses: shelf})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	_, err = items.FindClaimableForUpdate(nil, repositories.ClaimQuery{PublicationID: &pub.ID, Statuses: shelf, Owners: []uuid.UUID{stranger}})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	got, err := items.FindClaimableForUpdate(nil, repositories.ClaimQuery{ItemID: &shelved.ID, Statuses: shelf, Owners: []uuid.UUID{stranger, owner}})
	require.NoError(t, err)
	assert.Equal(t, shelved.ID, got.ID)

	free := fx.Item(pub, loc, "LJ-2")
	got, err = items.FindClaimableForUpdate(nil, repositories.ClaimQuery{PublicationID: &pub.ID, Statuses: shelf})
	require.NoError(t, err)
	assert.Equal(t, free.ID, got.ID)

	_, err = items.FindClaimableForUpdate(nil, repositories.ClaimQuery{PublicationID: &pub.ID})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestFindClaimableForUpdateExcludesLocation(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	main := fx.Location("MAIN")
	east := fx.Location("EAST")
	pub := fx.Publication("Typhoon", "9780141441672")
	items := repositories.NewItemRepository(db)
	fx.Item(pub, east, "T-1")
	atMain := fx.Item(pub, main, "T-2")
	available := []models.ItemStatus{models.ItemStatusAvailable}

	got, err := items.FindClaimableForUpdate(nil, repositories.ClaimQuery{PublicationID: &pub.ID, Statuses: available, ExcludeLocationID: &east.ID})
	require.NoError(t, err)
	assert.Equal(t, atMain.ID, got.ID)

	_, err = items.FindClaimableForUpdate(nil, repositories.ClaimQuery{ItemID: &atMain.ID, Statuses: available, ExcludeLocationID: &main.ID})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestItemCountsAndBorrowStats(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	loc := fx.Location("MAIN")
	pub := fx.Publication("Victory", "9780141185484")
	items := repositories.NewItemRepository(db)
	a := fx.Item(pub, loc, "V-1")
	fx.Item(pub, loc, "V-2")
	fx.Item(pub, loc, "V-3")
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, items.UpdateState(nil, a.ID, models.ItemStatusOnLoan, nil))
	require.NoError(t, items.RecordBorrow(nil, a.ID, at))
	require.NoError(t, items.RecordBorrow(nil, a.ID, at))

	counts, err := items.CountByStatus(nil, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.ItemStatusAvailable])
	assert.Equal(t, int64(1), counts[models.ItemStatusOnLoan])

	stored := fx.ReloadItem(a.ID)
	assert.Equal(t, 2, stored.TimesBorrowed)
	require.NotNil(t, stored.LastBorrowedAt)
	assert.True(t, at.Equal(*stored.LastBorrowedAt))
}

func TestNotificationExistsSinceMatchesLoan(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	b := fx.Borrower("heyst", "")
	repo := repositories.NewNotificationRepository(db)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	loanID := uuid.New()

	n := &models.Notification{BorrowerID: b.ID, Type: models.NotificationOverdue, Title: "t", Message: "m", LoanID: &loanID, CreatedAt: at}
	require.NoError(t, db.Omit(clause.Associations).Create(n).Error)

	ok, err := repo.ExistsSince(nil, b.ID, models.NotificationOverdue, &loanID, nil, at.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	other := uuid.New()
	ok, err = repo.ExistsSince(nil, b.ID, models.NotificationOverdue, &other, nil, at.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ExistsSince(nil, b.ID, models.NotificationOverdue, &loanID, nil, at.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
}
