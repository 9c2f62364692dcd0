package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"circulation/internal/models"
)

// PublicationRepository is the read side of the catalog that circulation
// needs. Catalog maintenance lives outside this service.
type PublicationRepository interface {
	Create(db *gorm.DB, pub *models.Publication) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Publication, error)
	FindByISBN(db *gorm.DB, isbn string) (*models.Publication, error)
	FindByNormalizedISBN(db *gorm.DB, normalized string) (*models.Publication, error)
}

type LocationRepository interface {
	Create(db *gorm.DB, loc *models.Location) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Location, error)
}

type publicationRepository struct {
	db *gorm.DB
}

func NewPublicationRepository(db *gorm.DB) PublicationRepository {
	return &publicationRepository{db: db}
}

func (r *publicationRepository) Create(db *gorm.DB, pub *models.Publication) error {
	if db == nil {
		db = r.db
	}
	return db.Create(pub).Error
}

func (r *publicationRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Publication, error) {
	if db == nil {
		db = r.db
	}
	var pub models.Publication
	if err := db.First(&pub, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pub, nil
}

func (r *publicationRepository) FindByISBN(db *gorm.DB, isbn string) (*models.Publication, error) {
	if db == nil {
		db = r.db
	}
	var pub models.Publication
	if err := db.First(&pub, "isbn = ?", isbn).Error; err != nil {
		return nil, err
	}
	return &pub, nil
}

func (r *publicationRepository) FindByNormalizedISBN(db *gorm.DB, normalized string) (*models.Publication, error) {
	if db == nil {
		db = r.db
	}
	var pub models.Publication
	if err := db.First(&pub, "normalized_isbn = ?", normalized).Error; err != nil {
		return nil, err
	}
	return &pub, nil
}

type locationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) LocationRepository {
	return &locationRepository{db: db}
}

func (r *locationRepository) Create(db *gorm.DB, loc *models.Location) error {
	if db == nil {
		db = r.db
	}
	return db.Create(loc).Error
}

func (r *locationRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Location, error) {
	if db == nil {
		db = r.db
	}
	var loc models.Location
	if err := db.First(&loc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loc, nil
}
