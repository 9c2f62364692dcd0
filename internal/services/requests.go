package services

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"circulation/internal/models"
)

const pickupDeadlinePassed = "pickup deadline passed"

// CreateRequest records a remote checkout request. Requests are only accepted
// while a copy is on the shelf; otherwise the borrower should place a hold.
func (s *circulationService) CreateRequest(ctx context.Context, publicationID, borrowerID uuid.UUID, notes string) (*models.CheckoutRequest, error) {
	var req *models.CheckoutRequest
	err := s.inTx(ctx, "CreateRequest", func(tx *gorm.DB) error {
		req = nil
		if _, err := s.publications.GetByID(tx, publicationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("publication " + publicationID.String())
			}
			return err
		}
		if _, err := s.lockBorrower(tx, borrowerID); err != nil {
			return err
		}

		existing, err := s.requests.FindActiveByBorrowerAndPublication(tx, borrowerID, publicationID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			return ErrDuplicateRequest
		}

		counts, err := s.items.CountByStatus(tx, publicationID)
		if err != nil {
			return err
		}
		if counts[models.ItemStatusAvailable] == 0 {
			return ErrNoAvailableItem
		}

		r := &models.CheckoutRequest{
			PublicationID: publicationID,
			BorrowerID:    borrowerID,
			RequestDate:   s.now(),
			Status:        models.RequestStatusPending,
			Notes:         notes,
		}
		if err := s.requests.Create(tx, r); err != nil {
			log.Printf("[ERROR] CreateRequest: borrower %s / publication %s: %v", borrowerID, publicationID, err)
			return err
		}
		req = r
		return nil
	})
	if err != nil {
		log.Printf("[WARN] CreateRequest: borrower %s / publication %s: %v", borrowerID, publicationID, err)
		return nil, err
	}

	log.Printf("[INFO] CreateRequest: request %s pending", req.ID)
	s.notify(ctx, requestSubmittedEvent(req, s.publicationTitle(ctx, publicationID)))
	return req, nil
}

// ApproveRequest reserves an available copy for a pending request. A request
// that cannot be given a copy stays pending.
func (s *circulationService) ApproveRequest(ctx context.Context, requestID uuid.UUID, staffID, pickupLocationID *uuid.UUID, pickupDays int) (*models.CheckoutRequest, error) {
	if pickupDays <= 0 {
		pickupDays = s.policy.RequestPickupDays
	}

	var req *models.CheckoutRequest
	err := s.inTx(ctx, "ApproveRequest", func(tx *gorm.DB) error {
		req = nil
		r, err := s.lockRequest(tx, requestID)
		if err != nil {
			return err
		}
		if r.Status != models.RequestStatusPending {
			return invalidTransition("request is %s, not pending", r.Status)
		}
		if pickupLocationID != nil {
			if _, err := s.locations.GetByID(tx, *pickupLocationID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound("pickup location " + pickupLocationID.String())
				}
				return err
			}
		}

		item, _, err := s.claimItem(tx, claim{
			publicationID: &r.PublicationID,
			from:          availableOnly,
			to:            models.ItemStatusOnHoldShelf,
			reservedFor:   &r.ID,
		})
		if err != nil {
			return err
		}

		now := s.now()
		pickupBy := daysFrom(now, pickupDays)
		r.Status = models.RequestStatusApproved
		r.ReservedItemID = &item.ID
		r.PickupLocationID = pickupLocationID
		r.PickupBy = &pickupBy
		r.ReviewedByID = staffID
		r.ReviewedAt = &now
		if err := s.requests.Update(tx, r); err != nil {
			return err
		}
		req = r
		return nil
	})
	if err != nil {
		log.Printf("[WARN] ApproveRequest: request %s: %v", requestID, err)
		return nil, err
	}

	log.Printf("[INFO] ApproveRequest: request %s approved with item %s", req.ID, *req.ReservedItemID)
	s.notify(ctx, requestApprovedEvent(req, s.publicationTitle(ctx, req.PublicationID)))
	return req, nil
}

func (s *circulationService) CompleteRequest(ctx context.Context, requestID uuid.UUID, itemID, staffID *uuid.UUID) (*models.Loan, error) {
	var loan *models.Loan
	var pubID uuid.UUID
	err := s.inTx(ctx, "CompleteRequest", func(tx *gorm.DB) error {
		loan = nil
		r, err := s.lockRequest(tx, requestID)
		if err != nil {
			return err
		}
		if r.Status != models.RequestStatusApproved {
			return invalidTransition("request is %s, not approved", r.Status)
		}

		l, err := s.completeClaim(tx, r.ID, r.PublicationID, r.BorrowerID, r.ReservedItemID, itemID, staffID, r.Notes)
		if err != nil {
			return err
		}
		r.Status = models.RequestStatusCompleted
		r.LoanID = &l.ID
		r.ReservedItemID = &l.ItemID
		if err := s.requests.Update(tx, r); err != nil {
			return err
		}
		loan = l
		pubID = r.PublicationID
		return nil
	})
	if err != nil {
		log.Printf("[WARN] CompleteRequest: request %s: %v", requestID, err)
		return nil, err
	}

	log.Printf("[INFO] CompleteRequest: request %s completed by loan %s", requestID, loan.ID)
	s.notify(ctx, checkoutEvent(loan, s.publicationTitle(ctx, pubID)))
	return loan, nil
}

func (s *circulationService) DenyRequest(ctx context.Context, requestID uuid.UUID, staffID *uuid.UUID, reason string) (*models.CheckoutRequest, error) {
	var req *models.CheckoutRequest
	err := s.inTx(ctx, "DenyRequest", func(tx *gorm.DB) error {
		req = nil
		r, err := s.lockRequest(tx, requestID)
		if err != nil {
			return err
		}
		if r.Status != models.RequestStatusPending {
			return invalidTransition("request is %s, not pending", r.Status)
		}
		now := s.now()
		r.Status = models.RequestStatusDenied
		r.ReviewedByID = staffID
		r.ReviewedAt = &now
		r.StaffNotes = reason
		if err := s.requests.Update(tx, r); err != nil {
			return err
		}
		req = r
		return nil
	})
	if err != nil {
		log.Printf("[WARN] DenyRequest: request %s: %v", requestID, err)
		return nil, err
	}

	log.Printf("[INFO] DenyRequest: request %s denied", requestID)
	s.notify(ctx, requestDeniedEvent(req, s.publicationTitle(ctx, req.PublicationID)))
	return req, nil
}

func (s *circulationService) CancelRequest(ctx context.Context, requestID uuid.UUID) (*models.CheckoutRequest, error) {
	var req *models.CheckoutRequest
	err := s.inTx(ctx, "CancelRequest", func(tx *gorm.DB) error {
		req = nil
		r, err := s.lockRequest(tx, requestID)
		if err != nil {
			return err
		}
		if r.Status != models.RequestStatusPending && r.Status != models.RequestStatusApproved {
			return invalidTransition("request is already %s", r.Status)
		}
		if err := s.endRequest(tx, r, ""); err != nil {
			return err
		}
		req = r
		return nil
	})
	if err != nil {
		log.Printf("[WARN] CancelRequest: request %s: %v", requestID, err)
		return nil, err
	}

	log.Printf("[INFO] CancelRequest: request %s cancelled", requestID)
	s.notify(ctx, requestCancelledEvent(req, s.publicationTitle(ctx, req.PublicationID)))
	return req, nil
}

// ExpireRequests cancels approved requests whose pickup deadline has passed.
func (s *circulationService) ExpireRequests(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.requests.ListApprovedPastPickup(s.readDB(ctx), now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range due {
		var req *models.CheckoutRequest
		err := s.inTx(ctx, "ExpireRequests", func(tx *gorm.DB) error {
			req = nil
			r, err := s.lockRequest(tx, candidate.ID)
			if err != nil {
				return err
			}
			if r.Status != models.RequestStatusApproved || r.PickupBy == nil || !r.PickupBy.Before(now) {
				return nil
			}
			if err := s.endRequest(tx, r, pickupDeadlinePassed); err != nil {
				return err
			}
			req = r
			return nil
		})
		if err != nil {
			log.Printf("[ERROR] ExpireRequests: request %s: %v", candidate.ID, err)
			continue
		}
		if req == nil {
			continue
		}
		expired++
		s.notify(ctx, requestCancelledEvent(req, s.publicationTitle(ctx, req.PublicationID)))
	}
	if expired > 0 {
		log.Printf("[INFO] ExpireRequests: %d request(s) cancelled", expired)
	}
	return expired, nil
}

func (s *circulationService) ListRequests(ctx context.Context, status models.RequestStatus) ([]models.CheckoutRequest, error) {
	return s.requests.ListByStatus(s.readDB(ctx), status)
}

// endRequest cancels a pending or approved request and frees its copy.
func (s *circulationService) endRequest(tx *gorm.DB, r *models.CheckoutRequest, staffNote string) error {
	if r.Status == models.RequestStatusApproved && r.ReservedItemID != nil {
		if _, err := s.releaseItem(tx, *r.ReservedItemID, r.ID); err != nil {
			return err
		}
	}
	r.Status = models.RequestStatusCancelled
	if staffNote != "" {
		r.StaffNotes = staffNote
	}
	return s.requests.Update(tx, r)
}

func (s *circulationService) lockRequest(tx *gorm.DB, id uuid.UUID) (*models.CheckoutRequest, error) {
	r, err := s.requests.GetByIDForUpdate(tx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("checkout request " + id.String())
	}
	return r, err
}
