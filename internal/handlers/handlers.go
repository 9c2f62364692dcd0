package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"circulation/internal/models"
	"circulation/internal/services"
)

// Inbox is the borrower-facing side of the notification dispatcher.
type Inbox interface {
	ListForBorrower(ctx context.Context, borrowerID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID, borrowerID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, borrowerID uuid.UUID) (int64, error)
	Delete(ctx context.Context, notificationID, borrowerID uuid.UUID) (bool, error)
}

type CirculationHandler struct {
	svc   services.CirculationService
	inbox Inbox
}

func RegisterRoutes(r *gin.Engine, svc services.CirculationService, inbox Inbox) {
	h := &CirculationHandler{svc: svc, inbox: inbox}

	// Desk endpoints
	r.POST("/checkouts", h.checkout)
	r.POST("/checkins", h.checkin)
	r.POST("/loans/:id/checkin", h.checkinLoan)
	r.POST("/loans/:id/renew", h.renewLoan)
	r.GET("/loans/overdue", h.listOverdueLoans)
	r.GET("/borrowers/:id/loans", h.listBorrowerLoans)

	// Holds
	r.POST("/holds", h.placeHold)
	r.POST("/holds/:id/ready", h.setHoldReady)
	r.POST("/holds/:id/complete", h.completeHold)
	r.POST("/holds/:id/cancel", h.cancelHold)
	r.GET("/holds/:id/position", h.holdPosition)
	r.GET("/publications/:id/holds", h.listHolds)
	r.GET("/publications/:id/availability", h.availability)

	// Checkout requests
	r.POST("/requests", h.createRequest)
	r.GET("/requests", h.listRequests)
	r.POST("/requests/:id/approve", h.approveRequest)
	r.POST("/requests/:id/complete", h.completeRequest)
	r.POST("/requests/:id/deny", h.denyRequest)
	r.POST("/requests/:id/cancel", h.cancelRequest)

	// Transit
	r.POST("/transits", h.sendTransit)
	r.POST("/transits/receive", h.receiveTransit)
	r.GET("/transits", h.listTransits)

	// Notifications
	r.GET("/borrowers/:id/notifications", h.listNotifications)
	r.POST("/borrowers/:id/notifications/read", h.markAllNotificationsRead)
	r.POST("/notifications/:id/read", h.markNotificationRead)
	r.DELETE("/notifications/:id", h.deleteNotification)
}

// writeError maps service errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrBorrowerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrNoAvailableItem),
		errors.Is(err, services.ErrDuplicateClaim),
		errors.Is(err, services.ErrAlreadyReturned),
		errors.Is(err, services.ErrInvalidStateTransition):
		status = http.StatusConflict
	case errors.Is(err, services.ErrIneligible):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		log.Printf("[ERROR] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return uuid.Nil, false
	}
	return id, true
}

// optionalID parses an optional uuid field from a request body.
func optionalID(c *gin.Context, raw, what string) (*uuid.UUID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return nil, false
	}
	return &id, true
}

// bindOptionalJSON accepts an empty body for endpoints whose fields are all
// optional.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
