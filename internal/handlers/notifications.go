package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultInboxLimit = 50

func (h *CirculationHandler) listNotifications(c *gin.Context) {
	borrowerID, ok := pathID(c, "borrower")
	if !ok {
		return
	}
	limit := defaultInboxLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	unreadOnly := c.Query("unread") == "true"

	list, err := h.inbox.ListForBorrower(c.Request.Context(), borrowerID, unreadOnly, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type markReadRequest struct {
	BorrowerID string `json:"borrower_id" binding:"required,uuid"`
}

func (h *CirculationHandler) markNotificationRead(c *gin.Context) {
	notificationID, ok := pathID(c, "notification")
	if !ok {
		return
	}
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.inbox.MarkRead(c.Request.Context(), notificationID, uuid.MustParse(req.BorrowerID))
	if err != nil {
		writeError(c, err)
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"error": "no unread notification with that id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": notificationID, "is_read": true})
}

func (h *CirculationHandler) markAllNotificationsRead(c *gin.Context) {
	borrowerID, ok := pathID(c, "borrower")
	if !ok {
		return
	}

	n, err := h.inbox.MarkAllRead(c.Request.Context(), borrowerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": n})
}

func (h *CirculationHandler) deleteNotification(c *gin.Context) {
	notificationID, ok := pathID(c, "notification")
	if !ok {
		return
	}
	borrowerID, err := uuid.Parse(c.Query("borrower_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid borrower id"})
		return
	}

	deleted, err := h.inbox.Delete(c.Request.Context(), notificationID, borrowerID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "no notification with that id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": notificationID, "deleted": true})
}
