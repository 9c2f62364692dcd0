package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Borrower   string `json:"borrower" binding:"required"`
	StaffID    string `json:"staff_id"`
	Notes      string `json:"notes"`
}

func (h *CirculationHandler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	staffID, ok := optionalID(c, req.StaffID, "staff")
	if !ok {
		return
	}

	loan, err := h.svc.Checkout(c.Request.Context(), req.Identifier, req.Borrower, staffID, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

type checkinRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	StaffID    string `json:"staff_id"`
}

func (h *CirculationHandler) checkin(c *gin.Context) {
	var req checkinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	staffID, ok := optionalID(c, req.StaffID, "staff")
	if !ok {
		return
	}

	result, err := h.svc.Checkin(c.Request.Context(), req.Identifier, staffID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type staffRequest struct {
	StaffID string `json:"staff_id"`
}

func (h *CirculationHandler) checkinLoan(c *gin.Context) {
	loanID, ok := pathID(c, "loan")
	if !ok {
		return
	}
	var req staffRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	staffID, ok := optionalID(c, req.StaffID, "staff")
	if !ok {
		return
	}

	result, err := h.svc.CheckinLoan(c.Request.Context(), loanID, staffID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CirculationHandler) renewLoan(c *gin.Context) {
	loanID, ok := pathID(c, "loan")
	if !ok {
		return
	}

	loan, err := h.svc.Renew(c.Request.Context(), loanID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *CirculationHandler) listBorrowerLoans(c *gin.Context) {
	borrowerID, ok := pathID(c, "borrower")
	if !ok {
		return
	}

	loans, err := h.svc.ListBorrowerLoans(c.Request.Context(), borrowerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *CirculationHandler) listOverdueLoans(c *gin.Context) {
	loans, err := h.svc.ListOverdueLoans(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}
