package services

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"circulation/internal/models"
)

// SendInTransit ships one shelf copy to another branch. Copies reserved for a
// hold or request stay put.
func (s *circulationService) SendInTransit(ctx context.Context, identifier string, toLocationID uuid.UUID, staffID *uuid.UUID, notes string) (*models.InTransit, error) {
	t, err := s.resolveIdentifier(ctx, identifier)
	if err != nil {
		log.Printf("[WARN] SendInTransit: cannot resolve %q: %v", identifier, err)
		return nil, err
	}
	if _, err := s.locations.GetByID(s.readDB(ctx), toLocationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("location " + toLocationID.String())
		}
		return nil, err
	}

	var transit *models.InTransit
	err = s.inTx(ctx, "SendInTransit", func(tx *gorm.DB) error {
		transit = nil
		if t.item != nil {
			open, err := s.transits.HasOpen(tx, t.item.ID)
			if err != nil {
				return err
			}
			if open {
				return invalidTransition("item %s is already in transit", t.item.Barcode)
			}
			if t.item.LocationID == toLocationID {
				return invalidTransition("item %s is already at the destination", t.item.Barcode)
			}
		}

		// By ISBN, copies already shelved at the destination are passed over.
		pubID, itemID := t.claimScope()
		item, _, err := s.claimItem(tx, claim{
			publicationID: pubID,
			itemID:        itemID,
			from:          shelfOrAvailable,
			to:            models.ItemStatusInTransit,
			notAt:         &toLocationID,
		})
		if err != nil {
			return err
		}
		if open, err := s.transits.HasOpen(tx, item.ID); err != nil {
			return err
		} else if open {
			return invalidTransition("item %s is already in transit", item.Barcode)
		}

		tr := &models.InTransit{
			ItemID:         item.ID,
			FromLocationID: item.LocationID,
			ToLocationID:   toLocationID,
			SentAt:         s.now(),
			Status:         models.TransitStatusInTransit,
			Notes:          notes,
		}
		if err := s.transits.Create(tx, tr); err != nil {
			return err
		}
		transit = tr
		return nil
	})
	if err != nil {
		log.Printf("[WARN] SendInTransit: %q: %v", identifier, err)
		return nil, err
	}

	log.Printf("[INFO] SendInTransit: item %s sent %s -> %s (staff=%v)", transit.ItemID, transit.FromLocationID, transit.ToLocationID, staffID)
	return transit, nil
}

// ReceiveTransit closes the open transit for the identified copy, or the oldest
// open transit for the publication, and shelves the item at its destination.
func (s *circulationService) ReceiveTransit(ctx context.Context, identifier string) (*models.InTransit, error) {
	t, err := s.resolveIdentifier(ctx, identifier)
	if err != nil {
		log.Printf("[WARN] ReceiveTransit: cannot resolve %q: %v", identifier, err)
		return nil, err
	}

	var itemID uuid.UUID
	if t.item != nil {
		itemID = t.item.ID
	} else {
		itemID, err = s.transits.FindOpenItemForPublication(s.readDB(ctx), t.publicationID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("no open transit for " + identifier)
		}
		if err != nil {
			return nil, err
		}
	}

	var transit *models.InTransit
	err = s.inTx(ctx, "ReceiveTransit", func(tx *gorm.DB) error {
		transit = nil
		item, err := s.items.GetByIDForUpdate(tx, itemID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("item " + itemID.String())
		}
		if err != nil {
			return err
		}
		tr, err := s.transits.FindOpenByItemForUpdate(tx, itemID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("no open transit for item " + item.Barcode)
		}
		if err != nil {
			return err
		}

		now := s.now()
		tr.Status = models.TransitStatusReceived
		tr.ReceivedAt = &now
		if err := s.transits.Update(tx, tr); err != nil {
			return err
		}
		if err := s.items.UpdateLocation(tx, item.ID, tr.ToLocationID); err != nil {
			return err
		}
		item.LocationID = tr.ToLocationID
		if err := s.setItemState(tx, item, models.ItemStatusAvailable, nil); err != nil {
			return err
		}
		transit = tr
		return nil
	})
	if err != nil {
		log.Printf("[WARN] ReceiveTransit: %q: %v", identifier, err)
		return nil, err
	}

	log.Printf("[INFO] ReceiveTransit: item %s received at %s", transit.ItemID, transit.ToLocationID)
	return transit, nil
}

func (s *circulationService) ListOpenTransits(ctx context.Context) ([]models.InTransit, error) {
	return s.transits.ListOpen(s.readDB(ctx))
}

// PublicationAvailability counts copies by status together with the waiting
// queue length. Nothing is locked.
func (s *circulationService) PublicationAvailability(ctx context.Context, publicationID uuid.UUID) (*Availability, error) {
	db := s.readDB(ctx)
	if _, err := s.publications.GetByID(db, publicationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("publication " + publicationID.String())
		}
		return nil, err
	}
	counts, err := s.items.CountByStatus(db, publicationID)
	if err != nil {
		return nil, err
	}
	waiting, err := s.holds.ListByPublication(db, publicationID, models.HoldStatusWaiting)
	if err != nil {
		return nil, err
	}

	a := &Availability{
		PublicationID: publicationID,
		Available:     counts[models.ItemStatusAvailable],
		OnLoan:        counts[models.ItemStatusOnLoan],
		OnHoldShelf:   counts[models.ItemStatusOnHoldShelf],
		InTransit:     counts[models.ItemStatusInTransit],
		WaitingHolds:  len(waiting),
	}
	for _, n := range counts {
		a.Total += n
	}
	return a, nil
}
