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

// ─── Placing holds ────────────────────────────────────────────────────────────

// PlaceHold queues the borrower for the publication. The borrower row is locked
// while checking for an existing active hold so two concurrent placements for
// the same pair cannot both succeed.
func (s *circulationService) PlaceHold(ctx context.Context, publicationID, borrowerID, pickupLocationID uuid.UUID, notes string) (*models.Hold, error) {
	var hold *models.Hold
	err := s.inTx(ctx, "PlaceHold", func(tx *gorm.DB) error {
		hold = nil
		if _, err := s.publications.GetByID(tx, publicationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("publication " + publicationID.String())
			}
			return err
		}
		if _, err := s.locations.GetByID(tx, pickupLocationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("pickup location " + pickupLocationID.String())
			}
			return err
		}
		if _, err := s.lockBorrower(tx, borrowerID); err != nil {
			return err
		}

		existing, err := s.holds.FindActiveByBorrowerAndPublication(tx, borrowerID, publicationID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			return ErrDuplicateHold
		}

		h := &models.Hold{
			PublicationID:    publicationID,
			BorrowerID:       borrowerID,
			PickupLocationID: pickupLocationID,
			HoldDate:         s.now(),
			Status:           models.HoldStatusWaiting,
			Notes:            notes,
		}
		if err := s.holds.Create(tx, h); err != nil {
			log.Printf("[ERROR] PlaceHold: failed to create hold for borrower %s / publication %s: %v", borrowerID, publicationID, err)
			return err
		}
		ahead, err := s.holds.CountWaitingAhead(tx, h)
		if err != nil {
			return err
		}
		h.QueuePosition = int(ahead) + 1
		hold = h
		return nil
	})
	if err != nil {
		log.Printf("[WARN] PlaceHold: borrower %s / publication %s: %v", borrowerID, publicationID, err)
		return nil, err
	}

	log.Printf("[INFO] PlaceHold: hold %s placed at queue position %d", hold.ID, hold.QueuePosition)
	s.notify(ctx, holdPlacedEvent(hold, s.publicationTitle(ctx, publicationID)))
	return hold, nil
}

// ─── Ready / complete ─────────────────────────────────────────────────────────

// SetHoldReady sets aside a copy for a waiting hold. Copies reserved for other
// holds or requests are never taken.
func (s *circulationService) SetHoldReady(ctx context.Context, holdID uuid.UUID) (*models.Hold, error) {
	var hold *models.Hold
	err := s.inTx(ctx, "SetHoldReady", func(tx *gorm.DB) error {
		hold = nil
		h, err := s.lockHold(tx, holdID)
		if err != nil {
			return err
		}
		if h.Status != models.HoldStatusWaiting {
			return invalidTransition("hold is %s, not waiting", h.Status)
		}

		item, _, err := s.claimItem(tx, claim{
			publicationID: &h.PublicationID,
			from:          shelfOrAvailable,
			owners:        []uuid.UUID{h.ID},
			to:            models.ItemStatusOnHoldShelf,
			reservedFor:   &h.ID,
		})
		if err != nil {
			return err
		}

		s.markHoldReady(h, item.ID, s.now())
		if err := s.holds.Update(tx, h); err != nil {
			return err
		}
		hold = h
		return nil
	})
	if err != nil {
		log.Printf("[WARN] SetHoldReady: hold %s: %v", holdID, err)
		return nil, err
	}

	log.Printf("[INFO] SetHoldReady: hold %s ready with item %s", hold.ID, *hold.ReservedItemID)
	s.notify(ctx, holdReadyEvent(hold, s.publicationTitle(ctx, hold.PublicationID)))
	return hold, nil
}

func (s *circulationService) markHoldReady(hold *models.Hold, itemID uuid.UUID, now time.Time) {
	readyAt := now
	expires := daysFrom(now, s.policy.HoldPickupDays)
	hold.Status = models.HoldStatusReady
	hold.ReservedItemID = &itemID
	hold.ReadyAt = &readyAt
	hold.ExpiresAt = &expires
}

// CompleteHold lends the reserved copy, or itemID when staff hand over a
// different available copy, and marks the hold fulfilled.
func (s *circulationService) CompleteHold(ctx context.Context, holdID uuid.UUID, itemID, staffID *uuid.UUID) (*models.Loan, error) {
	var loan *models.Loan
	var pubID uuid.UUID
	err := s.inTx(ctx, "CompleteHold", func(tx *gorm.DB) error {
		loan = nil
		h, err := s.lockHold(tx, holdID)
		if err != nil {
			return err
		}
		if h.Status != models.HoldStatusReady {
			return invalidTransition("hold is %s, not ready", h.Status)
		}

		l, err := s.completeClaim(tx, h.ID, h.PublicationID, h.BorrowerID, h.ReservedItemID, itemID, staffID, h.Notes)
		if err != nil {
			return err
		}
		h.Status = models.HoldStatusFulfilled
		h.LoanID = &l.ID
		h.ReservedItemID = &l.ItemID
		if err := s.holds.Update(tx, h); err != nil {
			return err
		}
		loan = l
		pubID = h.PublicationID
		return nil
	})
	if err != nil {
		log.Printf("[WARN] CompleteHold: hold %s: %v", holdID, err)
		return nil, err
	}

	log.Printf("[INFO] CompleteHold: hold %s fulfilled by loan %s", holdID, loan.ID)
	s.notify(ctx, checkoutEvent(loan, s.publicationTitle(ctx, pubID)))
	return loan, nil
}

// completeClaim turns a hold-shelf reservation into a loan. The chosen copy
// must be the reserved one or an available copy of the publication; in the
// latter case the reserved copy goes back on the shelf.
func (s *circulationService) completeClaim(tx *gorm.DB, owner, publicationID, borrowerID uuid.UUID, reserved, chosen, staffID *uuid.UUID, notes string) (*models.Loan, error) {
	target := reserved
	if chosen != nil {
		target = chosen
	}
	if target == nil {
		return nil, ErrNoAvailableItem
	}

	item, _, err := s.claimItem(tx, claim{
		publicationID: &publicationID,
		itemID:        target,
		from:          shelfOrAvailable,
		owners:        []uuid.UUID{owner},
		to:            models.ItemStatusOnLoan,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.checkEligible(tx, borrowerID); err != nil {
		return nil, err
	}
	if reserved != nil && *reserved != item.ID {
		if _, err := s.releaseItem(tx, *reserved, owner); err != nil {
			return nil, err
		}
	}
	return s.createLoan(tx, item, borrowerID, staffID, notes)
}

// ─── Cancel / expire ──────────────────────────────────────────────────────────

func (s *circulationService) CancelHold(ctx context.Context, holdID uuid.UUID) (*models.Hold, error) {
	var hold *models.Hold
	err := s.inTx(ctx, "CancelHold", func(tx *gorm.DB) error {
		hold = nil
		h, err := s.lockHold(tx, holdID)
		if err != nil {
			return err
		}
		if h.Status != models.HoldStatusWaiting && h.Status != models.HoldStatusReady {
			return invalidTransition("hold is already %s", h.Status)
		}
		if err := s.endHold(tx, h, models.HoldStatusCancelled); err != nil {
			return err
		}
		hold = h
		return nil
	})
	if err != nil {
		log.Printf("[WARN] CancelHold: hold %s: %v", holdID, err)
		return nil, err
	}

	log.Printf("[INFO] CancelHold: hold %s cancelled", holdID)
	s.notify(ctx, holdCancelledEvent(hold, s.publicationTitle(ctx, hold.PublicationID)))
	return hold, nil
}

// ExpireHolds moves every ready hold past its pickup deadline to expired and
// frees its copy. Each hold is expired in its own transaction; failures are
// logged and the sweep continues.
func (s *circulationService) ExpireHolds(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.holds.ListReadyExpiringBefore(s.readDB(ctx), now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range due {
		var hold *models.Hold
		err := s.inTx(ctx, "ExpireHolds", func(tx *gorm.DB) error {
			hold = nil
			h, err := s.lockHold(tx, candidate.ID)
			if err != nil {
				return err
			}
			if h.Status != models.HoldStatusReady || h.ExpiresAt == nil || !h.ExpiresAt.Before(now) {
				return nil
			}
			if err := s.endHold(tx, h, models.HoldStatusExpired); err != nil {
				return err
			}
			hold = h
			return nil
		})
		if err != nil {
			log.Printf("[ERROR] ExpireHolds: hold %s: %v", candidate.ID, err)
			continue
		}
		if hold == nil {
			continue
		}
		expired++
		s.notify(ctx, holdExpiredEvent(hold, s.publicationTitle(ctx, hold.PublicationID)))
	}
	if expired > 0 {
		log.Printf("[INFO] ExpireHolds: %d hold(s) expired", expired)
	}
	return expired, nil
}

// endHold closes a waiting or ready hold and frees its reserved copy.
func (s *circulationService) endHold(tx *gorm.DB, h *models.Hold, status models.HoldStatus) error {
	if h.Status == models.HoldStatusReady && h.ReservedItemID != nil {
		if _, err := s.releaseItem(tx, *h.ReservedItemID, h.ID); err != nil {
			return err
		}
	}
	h.Status = status
	return s.holds.Update(tx, h)
}

// ─── Queue ────────────────────────────────────────────────────────────────────

// QueuePosition returns the 1-based place of a waiting hold, or 0 for a hold
// that is no longer waiting.
func (s *circulationService) QueuePosition(ctx context.Context, holdID uuid.UUID) (int, error) {
	db := s.readDB(ctx)
	h, err := s.holds.GetByID(db, holdID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, notFound("hold " + holdID.String())
	}
	if err != nil {
		return 0, err
	}
	if h.Status != models.HoldStatusWaiting {
		return 0, nil
	}
	ahead, err := s.holds.CountWaitingAhead(db, h)
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

// ListHolds returns the active holds on a publication in queue order with
// positions filled in for the waiting ones.
func (s *circulationService) ListHolds(ctx context.Context, publicationID uuid.UUID) ([]models.Hold, error) {
	holds, err := s.holds.ListByPublication(s.readDB(ctx), publicationID, models.HoldStatusWaiting, models.HoldStatusReady)
	if err != nil {
		return nil, err
	}
	pos := 0
	for i := range holds {
		if holds[i].Status == models.HoldStatusWaiting {
			pos++
			holds[i].QueuePosition = pos
		}
	}
	return holds, nil
}

func (s *circulationService) lockHold(tx *gorm.DB, id uuid.UUID) (*models.Hold, error) {
	h, err := s.holds.GetByIDForUpdate(tx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("hold " + id.String())
	}
	return h, err
}
