package repositories

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

// ClaimQuery narrows the rows FindClaimableForUpdate may lock. Exactly one of
// PublicationID or ItemID is expected. An on_hold_shelf item only matches when
// it is unreserved or reserved by one of Owners. Items shelved at
// ExcludeLocationID are skipped.
type ClaimQuery struct {
	PublicationID     *uuid.UUID
	ItemID            *uuid.UUID
	Statuses          []models.ItemStatus
	Owners            []uuid.UUID
	ExcludeLocationID *uuid.UUID
}

type ItemRepository interface {
	Create(db *gorm.DB, item *models.Item) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Item, error)
	GetByBarcode(db *gorm.DB, barcode string) (*models.Item, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Item, error)
	FindClaimableForUpdate(db *gorm.DB, q ClaimQuery) (*models.Item, error)
	UpdateState(db *gorm.DB, id uuid.UUID, status models.ItemStatus, claimID *uuid.UUID) error
	RecordBorrow(db *gorm.DB, id uuid.UUID, at time.Time) error
	UpdateLocation(db *gorm.DB, id, locationID uuid.UUID) error
	CountByStatus(db *gorm.DB, publicationID uuid.UUID) (map[models.ItemStatus]int64, error)
}

type itemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) Create(db *gorm.DB, item *models.Item) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(item).Error
}

func (r *itemRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Item, error) {
	if db == nil {
		db = r.db
	}
	var item models.Item
	if err := db.First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) GetByBarcode(db *gorm.DB, barcode string) (*models.Item, error) {
	if db == nil {
		db = r.db
	}
	var item models.Item
	if err := db.First(&item, "barcode = ?", barcode).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Item, error) {
	if db == nil {
		db = r.db
	}
	var item models.Item
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindClaimableForUpdate locks and returns the first matching item by primary
// key. gorm.ErrRecordNotFound means nothing is claimable.
func (r *itemRepository) FindClaimableForUpdate(db *gorm.DB, q ClaimQuery) (*models.Item, error) {
	if db == nil {
		db = r.db
	}
	tx := db.Clauses(clause.Locking{Strength: "UPDATE"})
	if q.PublicationID != nil {
		tx = tx.Where("publication_id = ?", *q.PublicationID)
	}
	if q.ItemID != nil {
		tx = tx.Where("id = ?", *q.ItemID)
	}
	if q.ExcludeLocationID != nil {
		tx = tx.Where("location_id <> ?", *q.ExcludeLocationID)
	}

	var (
		conds []string
		args  []interface{}
		plain []models.ItemStatus
		shelf bool
	)
	for _, s := range q.Statuses {
		if s == models.ItemStatusOnHoldShelf {
			shelf = true
			continue
		}
		plain = append(plain, s)
	}
	if len(plain) > 0 {
		conds = append(conds, "status IN ?")
		args = append(args, plain)
	}
	if shelf {
		if len(q.Owners) > 0 {
			conds = append(conds, "(status = ? AND (claim_id IS NULL OR claim_id IN ?))")
			args = append(args, models.ItemStatusOnHoldShelf, q.Owners)
		} else {
			conds = append(conds, "(status = ? AND claim_id IS NULL)")
			args = append(args, models.ItemStatusOnHoldShelf)
		}
	}
	if len(conds) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	tx = tx.Where("("+strings.Join(conds, " OR ")+")", args...)

	var item models.Item
	if err := tx.Order("id").First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) UpdateState(db *gorm.DB, id uuid.UUID, status models.ItemStatus, claimID *uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Item{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   status,
			"claim_id": claimID,
		}).Error
}

func (r *itemRepository) RecordBorrow(db *gorm.DB, id uuid.UUID, at time.Time) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Item{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"times_borrowed":   gorm.Expr("times_borrowed + ?", 1),
			"last_borrowed_at": at,
		}).Error
}

func (r *itemRepository) UpdateLocation(db *gorm.DB, id, locationID uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Item{}).
		Where("id = ?", id).
		Update("location_id", locationID).
		Error
}

func (r *itemRepository) CountByStatus(db *gorm.DB, publicationID uuid.UUID) (map[models.ItemStatus]int64, error) {
	if db == nil {
		db = r.db
	}
	var rows []struct {
		Status models.ItemStatus
		Total  int64
	}
	err := db.Model(&models.Item{}).
		Select("status, COUNT(*) AS total").
		Where("publication_id = ?", publicationID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.ItemStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
