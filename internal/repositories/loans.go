package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	FindActiveByItemForUpdate(db *gorm.DB, itemID uuid.UUID) (*models.Loan, error)
	FindLatestByItem(db *gorm.DB, itemID uuid.UUID) (*models.Loan, error)
	FindActiveItemForPublication(db *gorm.DB, publicationID uuid.UUID) (uuid.UUID, error)
	HasReturnedForPublication(db *gorm.DB, publicationID uuid.UUID) (bool, error)
	CountActiveByBorrower(db *gorm.DB, borrowerID uuid.UUID) (int64, error)
	MarkReturned(db *gorm.DB, id uuid.UUID, status models.LoanStatus, returnedAt time.Time, fineAmount int, staffID *uuid.UUID) error
	Extend(db *gorm.DB, id uuid.UUID, dueDate time.Time, renewalCount int) error
	ListByBorrower(db *gorm.DB, borrowerID uuid.UUID) ([]models.Loan, error)
	ListActiveDueBetween(db *gorm.DB, from, to time.Time) ([]models.Loan, error)
	ListActiveDueBefore(db *gorm.DB, before time.Time) ([]models.Loan, error)
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(loan).Error
}

func (r *loanRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	if err := db.First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) FindActiveByItemForUpdate(db *gorm.DB, itemID uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("item_id = ? AND status = ?", itemID, models.LoanStatusActive).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) FindLatestByItem(db *gorm.DB, itemID uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.Where("item_id = ?", itemID).
		Order("checkout_at DESC").
		Take(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// FindActiveItemForPublication returns the item of the oldest active loan on
// the publication. The caller locks the item before touching the loan.
func (r *loanRepository) FindActiveItemForPublication(db *gorm.DB, publicationID uuid.UUID) (uuid.UUID, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Joins("JOIN items ON items.id = loans.item_id").
		Where("items.publication_id = ? AND loans.status = ?", publicationID, models.LoanStatusActive).
		Order("loans.checkout_at ASC").
		Take(&loan).Error
	if err != nil {
		return uuid.Nil, err
	}
	return loan.ItemID, nil
}

// HasReturnedForPublication reports whether any copy of the publication has
// a closed loan.
func (r *loanRepository) HasReturnedForPublication(db *gorm.DB, publicationID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).
		Joins("JOIN items ON items.id = loans.item_id").
		Where("items.publication_id = ? AND loans.returned_at IS NOT NULL", publicationID).
		Count(&n).Error
	return n > 0, err
}

func (r *loanRepository) CountActiveByBorrower(db *gorm.DB, borrowerID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).
		Where("borrower_id = ? AND status = ?", borrowerID, models.LoanStatusActive).
		Count(&n).Error
	return n, err
}

func (r *loanRepository) MarkReturned(db *gorm.DB, id uuid.UUID, status models.LoanStatus, returnedAt time.Time, fineAmount int, staffID *uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Loan{}).
		Where("id = ? AND returned_at IS NULL", id).
		Updates(map[string]interface{}{
			"status":          status,
			"returned_at":     returnedAt,
			"fine_amount":     fineAmount,
			"return_staff_id": staffID,
		}).Error
}

func (r *loanRepository) Extend(db *gorm.DB, id uuid.UUID, dueDate time.Time, renewalCount int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Loan{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"due_date":      dueDate,
			"renewal_count": renewalCount,
		}).Error
}

func (r *loanRepository) ListByBorrower(db *gorm.DB, borrowerID uuid.UUID) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	if err := db.Where("borrower_id = ?", borrowerID).Order("checkout_at DESC").Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListActiveDueBetween(db *gorm.DB, from, to time.Time) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.Preload("Item.Publication").
		Where("status = ? AND due_date >= ? AND due_date < ?", models.LoanStatusActive, from, to).
		Order("due_date").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListActiveDueBefore(db *gorm.DB, before time.Time) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.Preload("Item.Publication").
		Where("status = ? AND due_date < ?", models.LoanStatusActive, before).
		Order("due_date").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}
