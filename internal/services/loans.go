package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"circulation/internal/models"
)

// ─── Checkout ─────────────────────────────────────────────────────────────────

// Checkout lends one copy matching identifier to the borrower. A copy already
// set aside for the borrower's ready hold or approved request is preferred, and
// that hold or request is closed in the same transaction.
func (s *circulationService) Checkout(ctx context.Context, identifier, borrowerRef string, staffID *uuid.UUID, notes string) (*models.Loan, error) {
	t, err := s.resolveIdentifier(ctx, identifier)
	if err != nil {
		log.Printf("[WARN] Checkout: cannot resolve %q: %v", identifier, err)
		return nil, err
	}
	borrower, err := s.resolveBorrower(ctx, borrowerRef)
	if err != nil {
		log.Printf("[WARN] Checkout: cannot resolve borrower %q: %v", borrowerRef, err)
		return nil, err
	}

	var loan *models.Loan
	err = s.inTx(ctx, "Checkout", func(tx *gorm.DB) error {
		loan = nil
		owners, err := s.claimOwners(tx, borrower.ID, t.publicationID)
		if err != nil {
			return err
		}

		pubID, itemID := t.claimScope()
		var (
			item *models.Item
			prev *uuid.UUID
		)
		if len(owners) > 0 {
			item, prev, err = s.claimItem(tx, claim{
				publicationID: pubID,
				itemID:        itemID,
				from:          []models.ItemStatus{models.ItemStatusOnHoldShelf},
				owners:        owners,
				to:            models.ItemStatusOnLoan,
			})
		}
		if item == nil && (len(owners) == 0 || errors.Is(err, ErrNoAvailableItem)) {
			item, prev, err = s.claimItem(tx, claim{
				publicationID: pubID,
				itemID:        itemID,
				from:          shelfOrAvailable,
				owners:        owners,
				to:            models.ItemStatusOnLoan,
			})
		}
		if err != nil {
			return err
		}

		if _, err := s.checkEligible(tx, borrower.ID); err != nil {
			return err
		}

		l, err := s.createLoan(tx, item, borrower.ID, staffID, notes)
		if err != nil {
			return err
		}
		if prev != nil {
			if err := s.closeClaim(tx, *prev, l.ID, staffID); err != nil {
				return err
			}
		}
		loan = l
		return nil
	})
	if err != nil {
		log.Printf("[WARN] Checkout: borrower %s / %q failed: %v", borrower.ID, identifier, err)
		return nil, err
	}

	log.Printf("[INFO] Checkout: loan %s created for borrower %s (item %s, due %s)",
		loan.ID, loan.BorrowerID, loan.ItemID, loan.DueDate.Format(time.RFC3339))
	s.notify(ctx, checkoutEvent(loan, s.publicationTitle(ctx, t.publicationID)))
	return loan, nil
}

// claimOwners lists the ready holds and approved requests through which the
// borrower may take a copy of the publication off the hold shelf.
func (s *circulationService) claimOwners(tx *gorm.DB, borrowerID, publicationID uuid.UUID) ([]uuid.UUID, error) {
	holds, err := s.holds.ListReadyByBorrowerAndPublication(tx, borrowerID, publicationID)
	if err != nil {
		return nil, err
	}
	reqs, err := s.requests.ListApprovedByBorrowerAndPublication(tx, borrowerID, publicationID)
	if err != nil {
		return nil, err
	}
	owners := make([]uuid.UUID, 0, len(holds)+len(reqs))
	for _, h := range holds {
		owners = append(owners, h.ID)
	}
	for _, r := range reqs {
		owners = append(owners, r.ID)
	}
	return owners, nil
}

// closeClaim marks the hold or request that reserved a checked-out item as
// fulfilled or completed.
func (s *circulationService) closeClaim(tx *gorm.DB, ownerID, loanID uuid.UUID, staffID *uuid.UUID) error {
	hold, err := s.holds.GetByIDForUpdate(tx, ownerID)
	if err == nil {
		if hold.Status != models.HoldStatusReady {
			return nil
		}
		hold.Status = models.HoldStatusFulfilled
		hold.LoanID = &loanID
		return s.holds.Update(tx, hold)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	req, err := s.requests.GetByIDForUpdate(tx, ownerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if req.Status != models.RequestStatusApproved {
		return nil
	}
	req.Status = models.RequestStatusCompleted
	req.LoanID = &loanID
	if req.ReviewedByID == nil {
		req.ReviewedByID = staffID
	}
	return s.requests.Update(tx, req)
}

func (s *circulationService) createLoan(tx *gorm.DB, item *models.Item, borrowerID uuid.UUID, staffID *uuid.UUID, notes string) (*models.Loan, error) {
	now := s.now()
	loan := &models.Loan{
		ItemID:          item.ID,
		BorrowerID:      borrowerID,
		CheckoutAt:      now,
		DueDate:         daysFrom(now, s.policy.LoanPeriodDays),
		Status:          models.LoanStatusActive,
		CheckoutStaffID: staffID,
		Notes:           notes,
	}
	if err := s.loans.Create(tx, loan); err != nil {
		// The partial unique index on active loans fired: someone else holds it.
		if isUniqueViolation(err) {
			return nil, ErrNoAvailableItem
		}
		log.Printf("[ERROR] createLoan: item %s / borrower %s: %v", item.ID, borrowerID, err)
		return nil, err
	}
	return loan, nil
}

// ─── Check-in ─────────────────────────────────────────────────────────────────

// Checkin closes the active loan on the item named by identifier. An ISBN
// closes the oldest active loan on any copy of the publication.
func (s *circulationService) Checkin(ctx context.Context, identifier string, staffID *uuid.UUID) (*CheckinResult, error) {
	t, err := s.resolveIdentifier(ctx, identifier)
	if err != nil {
		log.Printf("[WARN] Checkin: cannot resolve %q: %v", identifier, err)
		return nil, err
	}

	var itemID uuid.UUID
	if t.item != nil {
		itemID = t.item.ID
	} else {
		itemID, err = s.loans.FindActiveItemForPublication(s.readDB(ctx), t.publicationID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			returned, rerr := s.loans.HasReturnedForPublication(s.readDB(ctx), t.publicationID)
			if rerr != nil {
				return nil, rerr
			}
			if returned {
				return nil, ErrAlreadyReturned
			}
			return nil, notFound("no active loan for " + identifier)
		}
		if err != nil {
			return nil, err
		}
	}
	return s.checkin(ctx, "Checkin", itemID, nil, staffID)
}

func (s *circulationService) CheckinLoan(ctx context.Context, loanID uuid.UUID, staffID *uuid.UUID) (*CheckinResult, error) {
	loan, err := s.loans.GetByID(s.readDB(ctx), loanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("loan " + loanID.String())
	}
	if err != nil {
		return nil, err
	}
	if loan.ReturnedAt != nil {
		return nil, ErrAlreadyReturned
	}
	return s.checkin(ctx, "CheckinLoan", loan.ItemID, &loanID, staffID)
}

// checkin locks the item, then its active loan, then the next waiting hold.
// When loanID is set the active loan must be that one.
func (s *circulationService) checkin(ctx context.Context, op string, itemID uuid.UUID, loanID *uuid.UUID, staffID *uuid.UUID) (*CheckinResult, error) {
	var result *CheckinResult
	err := s.inTx(ctx, op, func(tx *gorm.DB) error {
		result = nil
		item, err := s.items.GetByIDForUpdate(tx, itemID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("item " + itemID.String())
		}
		if err != nil {
			return err
		}

		loan, err := s.loans.FindActiveByItemForUpdate(tx, itemID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.noActiveLoan(tx, itemID)
		}
		if err != nil {
			return err
		}
		if loanID != nil && loan.ID != *loanID {
			return ErrAlreadyReturned
		}

		now := s.now()
		status := models.LoanStatusReturned
		if isOverdue(loan.DueDate, now) {
			status = models.LoanStatusOverdueReturned
		}
		fine := calculateFine(loan.DueDate, now, s.policy.FinePerDay)
		if err := s.loans.MarkReturned(tx, loan.ID, status, now, fine, staffID); err != nil {
			log.Printf("[ERROR] %s: failed to close loan %s: %v", op, loan.ID, err)
			return err
		}
		loan.Status = status
		loan.ReturnedAt = &now
		loan.FineAmount = fine
		loan.ReturnStaffID = staffID
		result = &CheckinResult{Loan: loan}

		hold, err := s.holds.NextWaitingForUpdate(tx, item.PublicationID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.setItemState(tx, item, models.ItemStatusAvailable, nil)
		}
		if err != nil {
			return err
		}
		if err := s.setItemState(tx, item, models.ItemStatusOnHoldShelf, &hold.ID); err != nil {
			return err
		}
		s.markHoldReady(hold, item.ID, now)
		if err := s.holds.Update(tx, hold); err != nil {
			return err
		}
		result.PromotedHold = hold
		return nil
	})
	if err != nil {
		log.Printf("[WARN] %s: item %s: %v", op, itemID, err)
		return nil, err
	}

	loan := result.Loan
	log.Printf("[INFO] %s: loan %s closed as %s (fine=%d)", op, loan.ID, loan.Status, loan.FineAmount)
	item, err := s.items.GetByID(s.readDB(ctx), loan.ItemID)
	title := "your item"
	if err == nil {
		title = s.publicationTitle(ctx, item.PublicationID)
	}
	s.notify(ctx, checkinEvent(loan, title))
	if loan.FineAmount > 0 {
		s.notify(ctx, fineEvent(loan, title))
	}
	if h := result.PromotedHold; h != nil {
		log.Printf("[INFO] %s: hold %s promoted to ready (expires %s)", op, h.ID, h.ExpiresAt.Format(time.RFC3339))
		s.notify(ctx, holdReadyEvent(h, title))
	}
	return result, nil
}

func (s *circulationService) noActiveLoan(tx *gorm.DB, itemID uuid.UUID) error {
	latest, err := s.loans.FindLatestByItem(tx, itemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("no loan for item " + itemID.String())
	}
	if err != nil {
		return err
	}
	if latest.ReturnedAt != nil {
		return ErrAlreadyReturned
	}
	return notFound("no active loan for item " + itemID.String())
}

// ─── Renewal ──────────────────────────────────────────────────────────────────

func (s *circulationService) Renew(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	var (
		loan  *models.Loan
		pubID uuid.UUID
	)
	err := s.inTx(ctx, "Renew", func(tx *gorm.DB) error {
		loan = nil
		l, err := s.loans.GetByIDForUpdate(tx, loanID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("loan " + loanID.String())
		}
		if err != nil {
			return err
		}
		if l.Status != models.LoanStatusActive || l.ReturnedAt != nil {
			return invalidTransition("loan is not active")
		}
		if l.RenewalCount >= s.policy.RenewalLimit {
			return invalidTransition("renewal limit of %d reached", s.policy.RenewalLimit)
		}
		if isOverdue(l.DueDate, s.now()) {
			return invalidTransition("overdue loans cannot be renewed")
		}

		item, err := s.items.GetByID(tx, l.ItemID)
		if err != nil {
			return err
		}
		waiting, err := s.holds.HasWaiting(tx, item.PublicationID)
		if err != nil {
			return err
		}
		if waiting {
			return invalidTransition("other borrowers are waiting for this publication")
		}

		l.DueDate = daysFrom(l.DueDate, s.policy.LoanPeriodDays)
		l.RenewalCount++
		if err := s.loans.Extend(tx, l.ID, l.DueDate, l.RenewalCount); err != nil {
			return err
		}
		loan = l
		pubID = item.PublicationID
		return nil
	})
	if err != nil {
		log.Printf("[WARN] Renew: loan %s: %v", loanID, err)
		return nil, err
	}

	log.Printf("[INFO] Renew: loan %s renewed (%d/%d), due %s",
		loan.ID, loan.RenewalCount, s.policy.RenewalLimit, loan.DueDate.Format(time.RFC3339))
	s.notify(ctx, renewalEvent(loan, s.publicationTitle(ctx, pubID)))
	return loan, nil
}

// ─── Listings ─────────────────────────────────────────────────────────────────

func (s *circulationService) ListBorrowerLoans(ctx context.Context, borrowerID uuid.UUID) ([]models.Loan, error) {
	if _, err := s.borrowers.GetByID(s.readDB(ctx), borrowerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBorrowerNotFound
		}
		return nil, err
	}
	return s.loans.ListByBorrower(s.readDB(ctx), borrowerID)
}

func (s *circulationService) ListOverdueLoans(ctx context.Context) ([]models.Loan, error) {
	return s.loans.ListActiveDueBefore(s.readDB(ctx), startOfDay(s.now()))
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func startOfDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// isOverdue compares calendar days in UTC, so an item returned on its due
// date is never late regardless of the time of day.
func isOverdue(dueDate, at time.Time) bool {
	return startOfDay(at).After(startOfDay(dueDate))
}

// calculateFine returns the fine for a loan returned at returnedAt. Overdue
// returns are charged per full calendar day late, with a one-day minimum.
func calculateFine(dueDate, returnedAt time.Time, finePerDay int) int {
	if !isOverdue(dueDate, returnedAt) {
		return 0
	}
	days := daysLate(dueDate, returnedAt)
	if days < 1 {
		days = 1
	}
	return days * finePerDay
}

func daysLate(dueDate, at time.Time) int {
	return int(startOfDay(at).Sub(startOfDay(dueDate)).Hours() / 24)
}
