package notify

import (
	"context"

	"github.com/google/uuid"

	"circulation/internal/models"
)

func (d *Dispatcher) ListForBorrower(ctx context.Context, borrowerID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	return d.notifications.ListByBorrower(d.db.WithContext(ctx), borrowerID, unreadOnly, limit)
}

// MarkRead marks one of the borrower's notifications read. It reports false
// when the notification does not exist, belongs to someone else or was
// already read.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID, borrowerID uuid.UUID) (bool, error) {
	return d.notifications.MarkRead(d.db.WithContext(ctx), notificationID, borrowerID, d.now())
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, borrowerID uuid.UUID) (int64, error) {
	return d.notifications.MarkAllRead(d.db.WithContext(ctx), borrowerID, d.now())
}

// Delete removes one of the borrower's notifications. Notifications owned by
// another borrower are left alone and reported as not found.
func (d *Dispatcher) Delete(ctx context.Context, notificationID, borrowerID uuid.UUID) (bool, error) {
	return d.notifications.Delete(d.db.WithContext(ctx), notificationID, borrowerID)
}
