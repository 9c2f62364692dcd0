package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type placeHoldRequest struct {
	PublicationID    string `json:"publication_id" binding:"required,uuid"`
	BorrowerID       string `json:"borrower_id" binding:"required,uuid"`
	PickupLocationID string `json:"pickup_location_id" binding:"required,uuid"`
	Notes            string `json:"notes"`
}

func (h *CirculationHandler) placeHold(c *gin.Context) {
	var req placeHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hold, err := h.svc.PlaceHold(c.Request.Context(),
		uuid.MustParse(req.PublicationID), uuid.MustParse(req.BorrowerID), uuid.MustParse(req.PickupLocationID), req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, hold)
}

func (h *CirculationHandler) setHoldReady(c *gin.Context) {
	holdID, ok := pathID(c, "hold")
	if !ok {
		return
	}

	hold, err := h.svc.SetHoldReady(c.Request.Context(), holdID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hold)
}

type completeClaimRequest struct {
	ItemID  string `json:"item_id"`
	StaffID string `json:"staff_id"`
}

func (h *CirculationHandler) completeHold(c *gin.Context) {
	holdID, ok := pathID(c, "hold")
	if !ok {
		return
	}
	var req completeClaimRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	itemID, ok := optionalID(c, req.ItemID, "item")
	if !ok {
		return
	}
	staffID, ok := optionalID(c, req.StaffID, "staff")
	if !ok {
		return
	}

	loan, err := h.svc.CompleteHold(c.Request.Context(), holdID, itemID, staffID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

func (h *CirculationHandler) cancelHold(c *gin.Context) {
	holdID, ok := pathID(c, "hold")
	if !ok {
		return
	}

	hold, err := h.svc.CancelHold(c.Request.Context(), holdID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, hold)
}

func (h *CirculationHandler) holdPosition(c *gin.Context) {
	holdID, ok := pathID(c, "hold")
	if !ok {
		return
	}

	pos, err := h.svc.QueuePosition(c.Request.Context(), holdID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hold_id": holdID, "queue_position": pos})
}

func (h *CirculationHandler) listHolds(c *gin.Context) {
	pubID, ok := pathID(c, "publication")
	if !ok {
		return
	}

	holds, err := h.svc.ListHolds(c.Request.Context(), pubID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, holds)
}

func (h *CirculationHandler) availability(c *gin.Context) {
	pubID, ok := pathID(c, "publication")
	if !ok {
		return
	}

	a, err := h.svc.PublicationAvailability(c.Request.Context(), pubID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
