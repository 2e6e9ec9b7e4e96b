package handler

import (
	"errors"
	"net/http"

	"clinic-operations-backend/internal/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// errorResponse maps an application error onto a status code and body.
func errorResponse(err error) (int, ErrorResponse) {
	var (
		v  *apperr.ValidationError
		c  *apperr.StateConflictError
		b  *apperr.BillingNotSettledError
		nf *apperr.NotFoundError
		lp *apperr.LedgerPostingError
	)

	switch {
	case errors.As(err, &v):
		details := withRule(v.Details, v.Rule)
		details["field"] = v.Field
		return http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Message: v.Message,
			Code:    apperr.CodeValidation,
			Details: details,
		}
	case errors.As(err, &c):
		details := withRule(c.Details, c.Rule)
		details["status"] = c.Status
		return http.StatusConflict, ErrorResponse{
			Error:   "State conflict",
			Message: c.Message,
			Code:    apperr.CodeStateConflict,
			Details: details,
		}
	case errors.As(err, &b):
		return http.StatusPaymentRequired, ErrorResponse{
			Error:   "Billing not settled",
			Message: b.Error(),
			Code:    apperr.CodeBillingNotSettled,
			Details: map[string]any{
				"appointment_id": b.AppointmentID,
				"invoice_id":     b.InvoiceID,
				"invoice_status": b.InvoiceStatus,
				"paid":           b.Paid.StringFixed(2),
				"remaining":      b.Remaining.StringFixed(2),
			},
		}
	case errors.As(err, &nf):
		return http.StatusNotFound, ErrorResponse{
			Error:   "Resource not found",
			Message: nf.Error(),
			Code:    apperr.CodeNotFound,
			Details: map[string]any{"resource": nf.Resource, "id": nf.ID},
		}
	case errors.As(err, &lp):
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "Ledger posting failed",
			Message: lp.Error(),
			Code:    apperr.CodeLedgerPosting,
			Details: map[string]any{"payment_id": lp.PaymentID},
		}
	default:
		// storage failures are not echoed back to clients
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "Internal server error",
			Message: "the operation could not be completed, please retry",
			Code:    apperr.CodePersistence,
		}
	}
}

func withRule(details map[string]any, rule string) map[string]any {
	out := make(map[string]any, len(details)+2)
	for k, v := range details {
		out[k] = v
	}
	out["rule"] = rule
	return out
}

// respondError writes err and records it on the context for the request
// logger.
func respondError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, field, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request",
		Message: message,
		Code:    apperr.CodeValidation,
		Details: map[string]any{"field": field},
	})
}
