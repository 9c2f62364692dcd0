package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"circulation/internal/models"
)

// target is what an identifier typed at the desk resolved to. item is set
// only when the identifier was a barcode.
type target struct {
	publicationID uuid.UUID
	item          *models.Item
}

func (t target) claimScope() (pub *uuid.UUID, item *uuid.UUID) {
	if t.item != nil {
		id := t.item.ID
		return nil, &id
	}
	id := t.publicationID
	return &id, nil
}

// resolveIdentifier tries, in order: exact ISBN, normalized ISBN, barcode.
func (s *circulationService) resolveIdentifier(ctx context.Context, identifier string) (*target, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, notFound("empty identifier")
	}
	db := s.readDB(ctx)

	pub, err := s.publications.FindByISBN(db, identifier)
	if err == nil {
		return &target{publicationID: pub.ID}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if normalized := models.NormalizeISBN(identifier); normalized != "" {
		pub, err = s.publications.FindByNormalizedISBN(db, normalized)
		if err == nil {
			return &target{publicationID: pub.ID}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	item, err := s.items.GetByBarcode(db, identifier)
	if err == nil {
		return &target{publicationID: item.PublicationID, item: item}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return nil, notFound("no publication or item matches " + identifier)
}

// resolveBorrower accepts a library card number or a username.
func (s *circulationService) resolveBorrower(ctx context.Context, ref string) (*models.Borrower, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrBorrowerNotFound
	}
	db := s.readDB(ctx)

	b, err := s.borrowers.FindByCardNumber(db, ref)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	b, err = s.borrowers.FindByUsername(db, ref)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return nil, ErrBorrowerNotFound
}
