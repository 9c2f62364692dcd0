package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type sendTransitRequest struct {
	Identifier   string `json:"identifier" binding:"required"`
	ToLocationID string `json:"to_location_id" binding:"required,uuid"`
	StaffID      string `json:"staff_id"`
	Notes        string `json:"notes"`
}

func (h *CirculationHandler) sendTransit(c *gin.Context) {
	var req sendTransitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	staffID, ok := optionalID(c, req.StaffID, "staff")
	if !ok {
		return
	}

	tr, err := h.svc.SendInTransit(c.Request.Context(), req.Identifier, uuid.MustParse(req.ToLocationID), staffID, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tr)
}

type receiveTransitRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

func (h *CirculationHandler) receiveTransit(c *gin.Context) {
	var req receiveTransitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tr, err := h.svc.ReceiveTransit(c.Request.Context(), req.Identifier)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

func (h *CirculationHandler) listTransits(c *gin.Context) {
	transits, err := h.svc.ListOpenTransits(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, transits)
}
