package handler

import (
	"errors"
	"net/http"
	"strconv"

	"clinic-operations-backend/internal/apperr"
	"clinic-operations-backend/internal/models"
	"clinic-operations-backend/internal/services/cashledger"
	"clinic-operations-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BillingHandler struct {
	invoices *reconciliation.ReconciliationService
	ledger   *cashledger.Poster
}

func NewBillingHandler(invoices *reconciliation.ReconciliationService, ledger *cashledger.Poster) *BillingHandler {
	return &BillingHandler{invoices: invoices, ledger: ledger}
}

func (h *BillingHandler) ListInvoices(c *gin.Context) {
	var statuses []models.InvoiceStatus
	for _, s := range c.QueryArray("status") {
		statuses = append(statuses, models.InvoiceStatus(s))
	}
	items, err := h.invoices.ListInvoices(c.Request.Context(), statuses)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *BillingHandler) GetInvoice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	summary, err := h.invoices.Summary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// RecordPayment answers 201 whenever the payment committed. A failed ledger
// posting is reported next to the payment instead of as an error status.
func (h *BillingHandler) RecordPayment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload struct {
		Amount decimal.Decimal      `json:"amount"`
		Method models.PaymentMethod `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "body", "invalid payload")
		return
	}

	result, err := h.invoices.RecordPayment(c.Request.Context(), id, payload.Amount, payload.Method)
	var ledgerErr *apperr.LedgerPostingError
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"message": "payment recorded", "result": result})
	case errors.As(err, &ledgerErr) && result != nil:
		_ = c.Error(err)
		_, body := errorResponse(err)
		c.JSON(http.StatusCreated, gin.H{
			"message":      "payment recorded, ledger posting failed",
			"result":       result,
			"ledger_error": body,
		})
	default:
		respondError(c, err)
	}
}

func (h *BillingHandler) Reconcile(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	inv, changed, err := h.invoices.Reconcile(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": inv, "changed": changed})
}

func (h *BillingHandler) ListLedger(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit", "limit must be an integer")
			return
		}
		limit = n
	}

	cursor := c.Query("cursor")
	if cursor != "" {
		if _, err := uuid.Parse(cursor); err != nil {
			badRequest(c, "cursor", "invalid cursor")
			return
		}
	}

	items, next, hasMore, err := h.ledger.List(c.Request.Context(), cursor, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": next,
		"has_more":    hasMore,
	})
}

func (h *BillingHandler) Balance(c *gin.Context) {
	b, err := h.ledger.Balance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BillingHandler) Coverage(c *gin.Context) {
	cov, err := h.ledger.VerifyPaymentCoverage(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cov)
}
