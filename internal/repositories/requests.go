package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

type CheckoutRequestRepository interface {
	Create(db *gorm.DB, req *models.CheckoutRequest) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.CheckoutRequest, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.CheckoutRequest, error)
	FindActiveByBorrowerAndPublication(db *gorm.DB, borrowerID, publicationID uuid.UUID) (*models.CheckoutRequest, error)
	ListApprovedByBorrowerAndPublication(db *gorm.DB, borrowerID, publicationID uuid.UUID) ([]models.CheckoutRequest, error)
	Update(db *gorm.DB, req *models.CheckoutRequest) error
	ListByStatus(db *gorm.DB, status models.RequestStatus) ([]models.CheckoutRequest, error)
	ListApprovedPastPickup(db *gorm.DB, before time.Time) ([]models.CheckoutRequest, error)
}

type checkoutRequestRepository struct {
	db *gorm.DB
}

func NewCheckoutRequestRepository(db *gorm.DB) CheckoutRequestRepository {
	return &checkoutRequestRepository{db: db}
}

var activeRequestStatuses = []models.RequestStatus{models.RequestStatusPending, models.RequestStatusApproved}

func (r *checkoutRequestRepository) Create(db *gorm.DB, req *models.CheckoutRequest) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(req).Error
}

func (r *checkoutRequestRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.CheckoutRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.CheckoutRequest
	if err := db.First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *checkoutRequestRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.CheckoutRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.CheckoutRequest
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *checkoutRequestRepository) FindActiveByBorrowerAndPublication(db *gorm.DB, borrowerID, publicationID uuid.UUID) (*models.CheckoutRequest, error) {
	if db == nil {
		db = r.db
	}
	var req models.CheckoutRequest
	err := db.Where("borrower_id = ? AND publication_id = ? AND status IN ?", borrowerID, publicationID, activeRequestStatuses).
		Take(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *checkoutRequestRepository) ListApprovedByBorrowerAndPublication(db *gorm.DB, borrowerID, publicationID uuid.UUID) ([]models.CheckoutRequest, error) {
	if db == nil {
		db = r.db
	}
	var reqs []models.CheckoutRequest
	err := db.Where("borrower_id = ? AND publication_id = ? AND status = ?", borrowerID, publicationID, models.RequestStatusApproved).
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *checkoutRequestRepository) Update(db *gorm.DB, req *models.CheckoutRequest) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Save(req).Error
}

func (r *checkoutRequestRepository) ListByStatus(db *gorm.DB, status models.RequestStatus) ([]models.CheckoutRequest, error) {
	if db == nil {
		db = r.db
	}
	q := db.Order("request_date DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var reqs []models.CheckoutRequest
	if err := q.Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *checkoutRequestRepository) ListApprovedPastPickup(db *gorm.DB, before time.Time) ([]models.CheckoutRequest, error) {
	if db == nil {
		db = r.db
	}
	var reqs []models.CheckoutRequest
	err := db.Where("status = ? AND pickup_by < ?", models.RequestStatusApproved, before).
		Order("pickup_by").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}
