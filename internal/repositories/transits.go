package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

type TransitRepository interface {
	Create(db *gorm.DB, transit *models.InTransit) error
	HasOpen(db *gorm.DB, itemID uuid.UUID) (bool, error)
	FindOpenByItemForUpdate(db *gorm.DB, itemID uuid.UUID) (*models.InTransit, error)
	FindOpenItemForPublication(db *gorm.DB, publicationID uuid.UUID) (uuid.UUID, error)
	Update(db *gorm.DB, transit *models.InTransit) error
	ListOpen(db *gorm.DB) ([]models.InTransit, error)
}

type transitRepository struct {
	db *gorm.DB
}

func NewTransitRepository(db *gorm.DB) TransitRepository {
	return &transitRepository{db: db}
}

func (r *transitRepository) Create(db *gorm.DB, transit *models.InTransit) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(transit).Error
}

func (r *transitRepository) HasOpen(db *gorm.DB, itemID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.InTransit{}).
		Where("item_id = ? AND status = ?", itemID, models.TransitStatusInTransit).
		Count(&n).Error
	return n > 0, err
}

func (r *transitRepository) FindOpenByItemForUpdate(db *gorm.DB, itemID uuid.UUID) (*models.InTransit, error) {
	if db == nil {
		db = r.db
	}
	var transit models.InTransit
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND status = ?", itemID, models.TransitStatusInTransit).
		First(&transit).Error
	if err != nil {
		return nil, err
	}
	return &transit, nil
}

func (r *transitRepository) FindOpenItemForPublication(db *gorm.DB, publicationID uuid.UUID) (uuid.UUID, error) {
	if db == nil {
		db = r.db
	}
	var transit models.InTransit
	err := db.
		Joins("JOIN items ON items.id = in_transits.item_id").
		Where("items.publication_id = ? AND in_transits.status = ?", publicationID, models.TransitStatusInTransit).
		Order("in_transits.sent_at ASC").
		Take(&transit).Error
	if err != nil {
		return uuid.Nil, err
	}
	return transit.ItemID, nil
}

func (r *transitRepository) Update(db *gorm.DB, transit *models.InTransit) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Save(transit).Error
}

func (r *transitRepository) ListOpen(db *gorm.DB) ([]models.InTransit, error) {
	if db == nil {
		db = r.db
	}
	var transits []models.InTransit
	err := db.Where("status = ?", models.TransitStatusInTransit).
		Order("sent_at DESC").
		Find(&transits).Error
	if err != nil {
		return nil, err
	}
	return transits, nil
}
