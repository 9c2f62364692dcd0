// Package testutil provides an in-memory database, a controllable clock and
// catalog fixtures for package tests.
package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"circulation/internal/models"
	"circulation/internal/repositories"
)

// NewDB opens a private in-memory SQLite database with the schema applied.
// The pool is capped at one connection, so transactions run one at a time.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repositories.Migrate(db))
	return db
}

// Clock is a manually advanced time source. Times are whole seconds in UTC.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC().Truncate(time.Second)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d).Truncate(time.Second)
}

type Fixtures struct {
	t  testing.TB
	db *gorm.DB
}

func NewFixtures(t testing.TB, db *gorm.DB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

func (f *Fixtures) Location(code string) *models.Location {
	f.t.Helper()
	loc := &models.Location{Code: code, Name: "Branch " + code}
	require.NoError(f.t, f.db.Create(loc).Error)
	return loc
}

func (f *Fixtures) Publication(title, isbn string) *models.Publication {
	f.t.Helper()
	pub := &models.Publication{Title: title, ISBN: isbn}
	require.NoError(f.t, f.db.Create(pub).Error)
	return pub
}

func (f *Fixtures) Item(pub *models.Publication, loc *models.Location, barcode string) *models.Item {
	f.t.Helper()
	item := &models.Item{
		PublicationID: pub.ID,
		LocationID:    loc.ID,
		Barcode:       barcode,
		Status:        models.ItemStatusAvailable,
	}
	require.NoError(f.t, f.db.Omit("Publication", "Location").Create(item).Error)
	return item
}

func (f *Fixtures) Borrower(username, card string) *models.Borrower {
	f.t.Helper()
	b := &models.Borrower{
		Username:        username,
		Email:           username + "@example.org",
		FullName:        username,
		MaxItemsAllowed: 5,
	}
	if card != "" {
		b.LibraryCardNumber = &card
	}
	require.NoError(f.t, f.db.Create(b).Error)
	return b
}

// SetItemStatus forces an item into a status, bypassing the claim rules.
func (f *Fixtures) SetItemStatus(item *models.Item, status models.ItemStatus) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(&models.Item{}).Where("id = ?", item.ID).
		Updates(map[string]interface{}{"status": status, "claim_id": nil}).Error)
}

func (f *Fixtures) ReloadItem(id uuid.UUID) *models.Item {
	f.t.Helper()
	var item models.Item
	require.NoError(f.t, f.db.First(&item, "id = ?", id).Error)
	return &item
}

func (f *Fixtures) ReloadHold(id uuid.UUID) *models.Hold {
	f.t.Helper()
	var h models.Hold
	require.NoError(f.t, f.db.First(&h, "id = ?", id).Error)
	return &h
}

func (f *Fixtures) ReloadRequest(id uuid.UUID) *models.CheckoutRequest {
	f.t.Helper()
	var r models.CheckoutRequest
	require.NoError(f.t, f.db.First(&r, "id = ?", id).Error)
	return &r
}

func (f *Fixtures) ReloadLoan(id uuid.UUID) *models.Loan {
	f.t.Helper()
	var l models.Loan
	require.NoError(f.t, f.db.First(&l, "id = ?", id).Error)
	return &l
}
