package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"circulation/internal/models"
)

type createCheckoutRequest struct {
	PublicationID string `json:"publication_id" binding:"required,uuid"`
	BorrowerID    string `json:"borrower_id" binding:"required,uuid"`
	Notes         string `json:"notes"`
}

func (h *CirculationHandler) createRequest(c *gin.Context) {
	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cr, err := h.svc.CreateRequest(c.Request.Context(), uuid.MustParse(req.PublicationID), uuid.MustParse(req.BorrowerID), req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cr)
}

func (h *CirculationHandler) listRequests(c *gin.Context) {
	status := models.RequestStatus(c.Query("status"))
	reqs, err := h.svc.ListRequests(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

type approveRequestBody struct {
	StaffID          string `json:"staff_id"`
	PickupLocationID string `json:"pickup_location_id"`
	PickupDays       int    `json:"pickup_days" binding:"min=0"`
}

func (h *CirculationHandler) approveRequest(c *gin.Context) {
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}
	var body approveRequestBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	staffID, ok := optionalID(c, body.StaffID, "staff")
	if !ok {
		return
	}
	locationID, ok := optionalID(c, body.PickupLocationID, "pickup location")
	if !ok {
		return
	}

	cr, err := h.svc.ApproveRequest(c.Request.Context(), requestID, staffID, locationID, body.PickupDays)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

func (h *CirculationHandler) completeRequest(c *gin.Context) {
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}
	var body completeClaimRequest
	if !bindOptionalJSON(c, &body) {
		return
	}
	itemID, ok := optionalID(c, body.ItemID, "item")
	if !ok {
		return
	}
	staffID, ok := optionalID(c, body.StaffID, "staff")
	if !ok {
		return
	}

	loan, err := h.svc.CompleteRequest(c.Request.Context(), requestID, itemID, staffID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

type denyRequestBody struct {
	StaffID string `json:"staff_id"`
	Reason  string `json:"reason"`
}

func (h *CirculationHandler) denyRequest(c *gin.Context) {
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}
	var body denyRequestBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	staffID, ok := optionalID(c, body.StaffID, "staff")
	if !ok {
		return
	}

	cr, err := h.svc.DenyRequest(c.Request.Context(), requestID, staffID, body.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

func (h *CirculationHandler) cancelRequest(c *gin.Context) {
	requestID, ok := pathID(c, "request")
	if !ok {
		return
	}

	cr, err := h.svc.CancelRequest(c.Request.Context(), requestID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}
