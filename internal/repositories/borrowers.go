package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

type BorrowerRepository interface {
	Create(db *gorm.DB, borrower *models.Borrower) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Borrower, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Borrower, error)
	FindByCardNumber(db *gorm.DB, card string) (*models.Borrower, error)
	FindByUsername(db *gorm.DB, username string) (*models.Borrower, error)
}

type borrowerRepository struct {
	db *gorm.DB
}

func NewBorrowerRepository(db *gorm.DB) BorrowerRepository {
	return &borrowerRepository{db: db}
}

func (r *borrowerRepository) Create(db *gorm.DB, borrower *models.Borrower) error {
	if db == nil {
		db = r.db
	}
	return db.Create(borrower).Error
}

func (r *borrowerRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Borrower, error) {
	if db == nil {
		db = r.db
	}
	var borrower models.Borrower
	if err := db.First(&borrower, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &borrower, nil
}

func (r *borrowerRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Borrower, error) {
	if db == nil {
		db = r.db
	}
	var borrower models.Borrower
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&borrower, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &borrower, nil
}

func (r *borrowerRepository) FindByCardNumber(db *gorm.DB, card string) (*models.Borrower, error) {
	if db == nil {
		db = r.db
	}
	var borrower models.Borrower
	if err := db.First(&borrower, "library_card_number = ?", card).Error; err != nil {
		return nil, err
	}
	return &borrower, nil
}

func (r *borrowerRepository) FindByUsername(db *gorm.DB, username string) (*models.Borrower, error) {
	if db == nil {
		db = r.db
	}
	var borrower models.Borrower
	if err := db.First(&borrower, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &borrower, nil
}
