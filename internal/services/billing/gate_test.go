package billing

import (
	"context"
	"testing"

	"clinic-operations-backend/internal/apperr"
	"clinic-operations-backend/internal/models"
	"clinic-operations-backend/internal/services/reconciliation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLookup struct {
	summary *reconciliation.InvoiceSummary
	err     error
	calls   int
}

func (s *stubLookup) InvoiceForAppointment(context.Context, uuid.UUID) (*reconciliation.InvoiceSummary, error) {
	s.calls++
	return s.summary, s.err
}

func summary(status models.InvoiceStatus, paid int64) *reconciliation.InvoiceSummary {
	total := decimal.NewFromInt(15000)
	return &reconciliation.InvoiceSummary{
		Invoice:   &models.Invoice{ID: uuid.New(), Total: total, Status: status},
		Paid:      decimal.NewFromInt(paid),
		Remaining: total.Sub(decimal.NewFromInt(paid)),
	}
}

func TestGate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		status  models.AppointmentStatus
		kind    models.VisitKind
		invoice *reconciliation.InvoiceSummary
		want    bool
		check   func(error) bool
	}{
		{"plain pending", models.AppointmentPending, models.KindAppointment, nil, true, nil},
		{"billable paid", models.AppointmentPending, models.KindBillableConsultation, summary(models.InvoicePaid, 15000), true, nil},
		{"billable partial", models.AppointmentPending, models.KindBillableConsultation, summary(models.InvoicePartiallyPaid, 5000), false, apperr.IsBillingNotSettled},
		{"billable unpaid", models.AppointmentPending, models.KindBillableConsultation, summary(models.InvoiceUnpaid, 0), false, apperr.IsBillingNotSettled},
		{"already done", models.AppointmentDone, models.KindAppointment, nil, false, apperr.IsConflict},
		{"cancelled billable", models.AppointmentCancelled, models.KindBillableConsultation, summary(models.InvoicePaid, 15000), false, apperr.IsConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(&stubLookup{summary: tt.invoice})
			appt := &models.Appointment{ID: uuid.New(), Status: tt.status, Kind: tt.kind}

			ok, err := gate.CanExecute(ctx, appt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)

			err = gate.Authorize(ctx, appt)
			if tt.check == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, tt.check(err), "unexpected error %v", err)
			}
		})
	}
}

func TestGateCarriesRemainingBalance(t *testing.T) {
	gate := NewGate(&stubLookup{summary: summary(models.InvoicePartiallyPaid, 5000)})
	appt := &models.Appointment{ID: uuid.New(), Status: models.AppointmentPending, Kind: models.KindBillableConsultation}

	var b *apperr.BillingNotSettledError
	require.ErrorAs(t, gate.Authorize(context.Background(), appt), &b)
	assert.Equal(t, appt.ID, b.AppointmentID)
	assert.True(t, b.Remaining.Equal(decimal.NewFromInt(10000)))
}

func TestGateSurfacesLookupFailures(t *testing.T) {
	lookup := &stubLookup{err: apperr.Persistence("get invoice", assert.AnError)}
	gate := NewGate(lookup)
	appt := &models.Appointment{ID: uuid.New(), Status: models.AppointmentPending, Kind: models.KindBillableConsultation}

	ok, err := gate.CanExecute(context.Background(), appt)
	assert.False(t, ok)
	assert.True(t, apperr.IsPersistence(err))

	// plain appointments never consult billing
	lookup.calls = 0
	_, _ = gate.CanExecute(context.Background(), &models.Appointment{Status: models.AppointmentPending, Kind: models.KindAppointment})
	assert.Zero(t, lookup.calls)
}
