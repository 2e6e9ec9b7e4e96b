// Package billing holds the single predicate that decides whether an
// appointment may be executed.
package billing

import (
	"context"

	"clinic-operations-backend/internal/apperr"
	"clinic-operations-backend/internal/models"
	"clinic-operations-backend/internal/services/reconciliation"

	"github.com/google/uuid"
)

// InvoiceLookup resolves the invoice state of a billable appointment.
type InvoiceLookup interface {
	InvoiceForAppointment(ctx context.Context, appointmentID uuid.UUID) (*reconciliation.InvoiceSummary, error)
}

type Gate struct {
	invoices InvoiceLookup
}

func NewGate(invoices InvoiceLookup) *Gate {
	return &Gate{invoices: invoices}
}

// CanExecute reports whether appt is pending and either not billable or
// backed by a paid invoice.
func (g *Gate) CanExecute(ctx context.Context, appt *models.Appointment) (bool, error) {
	err := g.Authorize(ctx, appt)
	switch {
	case err == nil:
		return true, nil
	case apperr.IsConflict(err), apperr.IsBillingNotSettled(err):
		return false, nil
	default:
		return false, err
	}
}

// Authorize evaluates the same predicate as CanExecute and explains a
// refusal with a typed error.
func (g *Gate) Authorize(ctx context.Context, appt *models.Appointment) error {
	if appt.Status != models.AppointmentPending {
		return apperr.Conflict(apperr.RuleTerminalStatus, string(appt.Status),
			"appointment is no longer pending",
			map[string]any{"appointment_id": appt.ID})
	}
	if !appt.IsBillable() {
		return nil
	}

	summary, err := g.invoices.InvoiceForAppointment(ctx, appt.ID)
	if err != nil {
		return err
	}
	if summary.Invoice.Status != models.InvoicePaid {
		return &apperr.BillingNotSettledError{
			AppointmentID: appt.ID,
			InvoiceID:     summary.Invoice.ID,
			InvoiceStatus: string(summary.Invoice.Status),
			Paid:          summary.Paid,
			Remaining:     summary.Remaining,
		}
	}
	return nil
}
