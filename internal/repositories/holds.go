package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

type HoldRepository interface {
	Create(db *gorm.DB, hold *models.Hold) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Hold, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Hold, error)
	FindActiveByBorrowerAndPublication(db *gorm.DB, borrowerID, publicationID uuid.UUID) (*models.Hold, error)
	ListReadyByBorrowerAndPublication(db *gorm.DB, borrowerID, publicationID uuid.UUID) ([]models.Hold, error)
	NextWaitingForUpdate(db *gorm.DB, publicationID uuid.UUID) (*models.Hold, error)
	HasWaiting(db *gorm.DB, publicationID uuid.UUID) (bool, error)
	CountWaitingAhead(db *gorm.DB, hold *models.Hold) (int64, error)
	Update(db *gorm.DB, hold *models.Hold) error
	ListByPublication(db *gorm.DB, publicationID uuid.UUID, statuses ...models.HoldStatus) ([]models.Hold, error)
	ListReadyExpiringBefore(db *gorm.DB, before time.Time) ([]models.Hold, error)
	ListReadyExpiringBetween(db *gorm.DB, from, to time.Time) ([]models.Hold, error)
}

type holdRepository struct {
	db *gorm.DB
}

func NewHoldRepository(db *gorm.DB) HoldRepository {
	return &holdRepository{db: db}
}

var activeHoldStatuses = []models.HoldStatus{models.HoldStatusWaiting, models.HoldStatusReady}

func (r *holdRepository) Create(db *gorm.DB, hold *models.Hold) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(hold).Error
}

func (r *holdRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Hold, error) {
	if db == nil {
		db = r.db
	}
	var hold models.Hold
	if err := db.First(&hold, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *holdRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Hold, error) {
	if db == nil {
		db = r.db
	}
	var hold models.Hold
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&hold, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *holdRepository) FindActiveByBorrowerAndPublication(db *gorm.DB, borrowerID, publicationID uuid.UUID) (*models.Hold, error) {
	if db == nil {
		db = r.db
	}
	var hold models.Hold
	err := db.Where("borrower_id = ? AND publication_id = ? AND status IN ?", borrowerID, publicationID, activeHoldStatuses).
		Take(&hold).Error
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *holdRepository) ListReadyByBorrowerAndPublication(db *gorm.DB, borrowerID, publicationID uuid.UUID) ([]models.Hold, error) {
	if db == nil {
		db = r.db
	}
	var holds []models.Hold
	err := db.Where("borrower_id = ? AND publication_id = ? AND status = ?", borrowerID, publicationID, models.HoldStatusReady).
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

// NextWaitingForUpdate locks the head of the FIFO queue for a publication.
func (r *holdRepository) NextWaitingForUpdate(db *gorm.DB, publicationID uuid.UUID) (*models.Hold, error) {
	if db == nil {
		db = r.db
	}
	var hold models.Hold
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("publication_id = ? AND status = ?", publicationID, models.HoldStatusWaiting).
		Order("hold_date ASC, id ASC").
		First(&hold).Error
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *holdRepository) HasWaiting(db *gorm.DB, publicationID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Hold{}).
		Where("publication_id = ? AND status = ?", publicationID, models.HoldStatusWaiting).
		Count(&n).Error
	return n > 0, err
}

// CountWaitingAhead counts waiting holds on the same publication that sort
// before hold by (hold_date, id).
func (r *holdRepository) CountWaitingAhead(db *gorm.DB, hold *models.Hold) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Hold{}).
		Where("publication_id = ? AND status = ?", hold.PublicationID, models.HoldStatusWaiting).
		Where("(hold_date < ? OR (hold_date = ? AND id < ?))", hold.HoldDate, hold.HoldDate, hold.ID).
		Count(&n).Error
	return n, err
}

func (r *holdRepository) Update(db *gorm.DB, hold *models.Hold) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Save(hold).Error
}

func (r *holdRepository) ListByPublication(db *gorm.DB, publicationID uuid.UUID, statuses ...models.HoldStatus) ([]models.Hold, error) {
	if db == nil {
		db = r.db
	}
	q := db.Where("publication_id = ?", publicationID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var holds []models.Hold
	if err := q.Order("hold_date ASC, id ASC").Find(&holds).Error; err != nil {
		return nil, err
	}
	return holds, nil
}

func (r *holdRepository) ListReadyExpiringBefore(db *gorm.DB, before time.Time) ([]models.Hold, error) {
	if db == nil {
		db = r.db
	}
	var holds []models.Hold
	err := db.Where("status = ? AND expires_at < ?", models.HoldStatusReady, before).
		Order("expires_at").
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

func (r *holdRepository) ListReadyExpiringBetween(db *gorm.DB, from, to time.Time) ([]models.Hold, error) {
	if db == nil {
		db = r.db
	}
	var holds []models.Hold
	err := db.Preload("Publication").
		Where("status = ? AND expires_at >= ? AND expires_at <= ?", models.HoldStatusReady, from, to).
		Order("expires_at").
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}
