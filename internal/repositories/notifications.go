package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

type NotificationRepository interface {
	Create(db *gorm.DB, n *models.Notification) error
	ExistsSince(db *gorm.DB, borrowerID uuid.UUID, typ models.NotificationType, loanID, holdID *uuid.UUID, since time.Time) (bool, error)
	ListPendingEmail(db *gorm.DB, limit int) ([]models.Notification, error)
	MarkSent(db *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(db *gorm.DB, id uuid.UUID, reason string) error
	ListByBorrower(db *gorm.DB, borrowerID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(db *gorm.DB, id, borrowerID uuid.UUID, at time.Time) (bool, error)
	MarkAllRead(db *gorm.DB, borrowerID uuid.UUID, at time.Time) (int64, error)
	Delete(db *gorm.DB, id, borrowerID uuid.UUID) (bool, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(db *gorm.DB, n *models.Notification) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(n).Error
}

func (r *notificationRepository) ExistsSince(db *gorm.DB, borrowerID uuid.UUID, typ models.NotificationType, loanID, holdID *uuid.UUID, since time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Notification{}).
		Where("borrower_id = ? AND type = ? AND created_at >= ?", borrowerID, typ, since)
	if loanID != nil {
		q = q.Where("loan_id = ?", *loanID)
	}
	if holdID != nil {
		q = q.Where("hold_id = ?", *holdID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListPendingEmail returns unsent notifications whose borrower has an email
// address, oldest first. Borrower is preloaded for the recipient address.
func (r *notificationRepository) ListPendingEmail(db *gorm.DB, limit int) ([]models.Notification, error) {
	if db == nil {
		db = r.db
	}
	var out []models.Notification
	err := db.
		Joins("Borrower").
		Where("notifications.email_sent = ? AND \"Borrower\".email <> ''", false).
		Order("notifications.created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *notificationRepository) MarkSent(db *gorm.DB, id uuid.UUID, at time.Time) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Notification{}).
		Where("id = ? AND email_sent = ?", id, false).
		Updates(map[string]interface{}{
			"email_sent":    true,
			"email_sent_at": at,
			"email_error":   "",
		}).Error
}

func (r *notificationRepository) MarkFailed(db *gorm.DB, id uuid.UUID, reason string) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Notification{}).
		Where("id = ?", id).
		Update("email_error", reason).
		Error
}

func (r *notificationRepository) ListByBorrower(db *gorm.DB, borrowerID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if db == nil {
		db = r.db
	}
	q := db.Where("borrower_id = ?", borrowerID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Notification
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *notificationRepository) MarkRead(db *gorm.DB, id, borrowerID uuid.UUID, at time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Notification{}).
		Where("id = ? AND borrower_id = ? AND is_read = ?", id, borrowerID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return res.RowsAffected > 0, res.Error
}

func (r *notificationRepository) MarkAllRead(db *gorm.DB, borrowerID uuid.UUID, at time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Notification{}).
		Where("borrower_id = ? AND is_read = ?", borrowerID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) Delete(db *gorm.DB, id, borrowerID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Where("id = ? AND borrower_id = ?", id, borrowerID).Delete(&models.Notification{})
	return res.RowsAffected > 0, res.Error
}
