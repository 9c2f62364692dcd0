package services

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"circulation/internal/models"
	"circulation/internal/repositories"
)

// claim describes one attempt to move an item out of a claimable state.
// Exactly one of publicationID or itemID is set.
type claim struct {
	publicationID *uuid.UUID
	itemID        *uuid.UUID
	from          []models.ItemStatus
	// owners may take an on_hold_shelf item reserved for them.
	owners []uuid.UUID
	to     models.ItemStatus
	// reservedFor is stored as the item's claim when to is on_hold_shelf.
	reservedFor *uuid.UUID
	// notAt skips items currently shelved at this location.
	notAt *uuid.UUID
}

var (
	shelfOrAvailable = []models.ItemStatus{models.ItemStatusAvailable, models.ItemStatusOnHoldShelf}
	availableOnly    = []models.ItemStatus{models.ItemStatusAvailable}
)

// claimItem locks the first claimable item matching c and moves it to c.to.
// It returns the item in its new state and the reservation it held before.
// Every status change on an item outside check-in and transit receipt goes
// through here or releaseItem.
func (s *circulationService) claimItem(tx *gorm.DB, c claim) (*models.Item, *uuid.UUID, error) {
	item, err := s.items.FindClaimableForUpdate(tx, repositories.ClaimQuery{
		PublicationID:     c.publicationID,
		ItemID:            c.itemID,
		Statuses:          c.from,
		Owners:            c.owners,
		ExcludeLocationID: c.notAt,
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNoAvailableItem
	}
	if err != nil {
		return nil, nil, err
	}

	prev := item.ClaimID
	if err := s.setItemState(tx, item, c.to, c.reservedFor); err != nil {
		return nil, nil, err
	}
	return item, prev, nil
}

// releaseItem puts an item reserved for owner back on the shelf as available.
// An item that is no longer reserved for owner is left untouched.
func (s *circulationService) releaseItem(tx *gorm.DB, itemID, owner uuid.UUID) (bool, error) {
	item, err := s.items.GetByIDForUpdate(tx, itemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if item.Status != models.ItemStatusOnHoldShelf || item.ClaimID == nil || *item.ClaimID != owner {
		return false, nil
	}
	return true, s.setItemState(tx, item, models.ItemStatusAvailable, nil)
}

func (s *circulationService) setItemState(tx *gorm.DB, item *models.Item, status models.ItemStatus, reservedFor *uuid.UUID) error {
	if status != models.ItemStatusOnHoldShelf {
		reservedFor = nil
	}
	if err := s.items.UpdateState(tx, item.ID, status, reservedFor); err != nil {
		return err
	}
	if status == models.ItemStatusOnLoan {
		now := s.now()
		if err := s.items.RecordBorrow(tx, item.ID, now); err != nil {
			return err
		}
		item.TimesBorrowed++
		item.LastBorrowedAt = &now
	}
	item.Status = status
	item.ClaimID = reservedFor
	return nil
}

// checkEligible locks the borrower row and verifies they may take another loan.
// Locking the row also serializes concurrent checkouts by the same borrower
// so the loan limit cannot be overrun.
func (s *circulationService) checkEligible(tx *gorm.DB, borrowerID uuid.UUID) (*models.Borrower, error) {
	borrower, err := s.lockBorrower(tx, borrowerID)
	if err != nil {
		return nil, err
	}
	if borrower.IsBlocked {
		reason := borrower.BlockReason
		if reason == "" {
			reason = "account blocked"
		}
		return nil, ineligible("%s", reason)
	}
	active, err := s.loans.CountActiveByBorrower(tx, borrowerID)
	if err != nil {
		return nil, err
	}
	if active >= int64(borrower.MaxItemsAllowed) {
		return nil, ineligible("maximum of %d items already checked out", borrower.MaxItemsAllowed)
	}
	return borrower, nil
}

func (s *circulationService) lockBorrower(tx *gorm.DB, borrowerID uuid.UUID) (*models.Borrower, error) {
	borrower, err := s.borrowers.GetByIDForUpdate(tx, borrowerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBorrowerNotFound
	}
	return borrower, err
}
