package reconciliation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinic-operations-backend/internal/apperr"
	"clinic-operations-backend/internal/clock"
	"clinic-operations-backend/internal/models"
	"clinic-operations-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerPoster receives every committed payment.
type LedgerPoster interface {
	OnPaymentRecorded(ctx context.Context, payment *models.Payment, invoice *models.Invoice) (*models.CashLedgerEntry, error)
}

// ReconciliationService owns invoices and payments. It is the only writer of
// an invoice's status.
type ReconciliationService struct {
	invoiceRepo *repository.InvoiceRepository
	paymentRepo *repository.PaymentRepository
	ledger      LedgerPoster
	db          *gorm.DB
	now         clock.Clock
	log         zerolog.Logger
}

func NewReconciliationService(
	invoiceRepo *repository.InvoiceRepository,
	paymentRepo *repository.PaymentRepository,
	ledger LedgerPoster,
	now clock.Clock,
	log zerolog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		ledger:      ledger,
		db:          invoiceRepo.DB(),
		now:         now,
		log:         log.With().Str("component", "reconciliation").Logger(),
	}
}

// SumPayments totals the payments that belong to invoiceID. Addition is
// exact, so the order of payments does not matter.
func SumPayments(invoiceID uuid.UUID, payments []models.Payment) decimal.Decimal {
	paid := decimal.Zero
	for _, p := range payments {
		if p.InvoiceID == invoiceID {
			paid = paid.Add(p.Amount)
		}
	}
	return paid
}

// RecomputeStatus derives an invoice's status from its payments. It is pure
// and idempotent.
func RecomputeStatus(inv *models.Invoice, payments []models.Payment) models.InvoiceStatus {
	paid := SumPayments(inv.ID, payments)
	switch {
	case paid.GreaterThanOrEqual(inv.Total):
		return models.InvoicePaid
	case paid.IsPositive():
		return models.InvoicePartiallyPaid
	default:
		return models.InvoiceUnpaid
	}
}

func invoiceNumber(id uuid.UUID, issued time.Time) string {
	return fmt.Sprintf("INV-%s-%s", issued.Format("20060102"), strings.ToUpper(id.String()[:8]))
}

// CreateInvoice issues the invoice of a billable appointment. Pass the
// transaction that created the appointment so both rows commit together; a
// nil tx uses the service's own connection.
func (s *ReconciliationService) CreateInvoice(ctx context.Context, tx *gorm.DB, appt *models.Appointment) (*models.Invoice, error) {
	if !appt.IsBillable() {
		return nil, apperr.Validation(apperr.RuleNotBillable, "kind",
			"only billable consultations are invoiced",
			map[string]any{"appointment_id": appt.ID, "kind": appt.Kind})
	}

	repo := s.invoiceRepo
	if tx != nil {
		repo = repo.WithTx(tx)
	}

	issued := s.now()
	inv := &models.Invoice{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Total:         appt.Amount,
		Status:        models.InvoiceUnpaid,
		IssuedAt:      issued,
		UpdatedAt:     issued,
	}
	inv.InvoiceNumber = invoiceNumber(inv.ID, issued)

	if err := repo.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

type PaymentResult struct {
	Payment     *models.Payment         `json:"payment"`
	Invoice     *models.Invoice         `json:"invoice"`
	Paid        decimal.Decimal         `json:"paid"`
	Remaining   decimal.Decimal         `json:"remaining"`
	LedgerEntry *models.CashLedgerEntry `json:"ledger_entry,omitempty"`
}

// RecordPayment applies a payment to an invoice. The balance check, the
// insert and the status update run in one transaction holding the invoice
// row lock, so concurrent payments cannot both pass against the same
// balance.
//
// Ledger posting happens after commit. If it fails the payment stands and
// the result is returned together with an *apperr.LedgerPostingError.
func (s *ReconciliationService) RecordPayment(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod) (*PaymentResult, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation(apperr.RuleNonPositive, "amount",
			"payment amount must be greater than zero",
			map[string]any{"amount": amount.String()})
	}
	if !models.FitsAmountScale(amount) {
		return nil, apperr.Validation(apperr.RuleAmountPrecision, "amount",
			"amounts are kept to two decimal places",
			map[string]any{"amount": amount.String(), "scale": models.AmountScale})
	}
	if !method.Valid() {
		return nil, apperr.Validation(apperr.RulePaymentMethod, "method",
			fmt.Sprintf("unknown payment method %q", method),
			map[string]any{"allowed": []models.PaymentMethod{
				models.MethodCash, models.MethodCard, models.MethodMobileTransfer,
				models.MethodCheque, models.MethodBankTransfer,
			}})
	}

	var result PaymentResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoices := s.invoiceRepo.WithTx(tx)
		payments := s.paymentRepo.WithTx(tx)

		inv, err := invoices.LockByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		existing, err := payments.ListByInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}

		paid := SumPayments(inv.ID, existing)
		remaining := inv.Total.Sub(paid)
		if amount.GreaterThan(remaining) {
			return apperr.Validation(apperr.RuleOverpayment, "amount",
				fmt.Sprintf("payment of %s exceeds the remaining balance of %s",
					amount.StringFixed(2), remaining.StringFixed(2)),
				map[string]any{
					"total":     inv.Total.StringFixed(2),
					"paid":      paid.StringFixed(2),
					"remaining": remaining.StringFixed(2),
					"attempted": amount.StringFixed(2),
				})
		}

		p := &models.Payment{
			ID:        uuid.New(),
			InvoiceID: inv.ID,
			Amount:    amount,
			Method:    method,
			PaidAt:    s.now(),
		}
		if err := payments.Create(ctx, p); err != nil {
			return err
		}

		all := append(existing, *p)
		if status := RecomputeStatus(inv, all); status != inv.Status {
			if err := invoices.UpdateStatus(ctx, inv, status); err != nil {
				return err
			}
			inv.Status = status
		}

		result.Payment = p
		result.Invoice = inv
		result.Paid = paid.Add(amount)
		result.Remaining = inv.Total.Sub(result.Paid)
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence("record payment", err)
	}

	s.log.Info().
		Str("invoice_id", invoiceID.String()).
		Str("payment_id", result.Payment.ID.String()).
		Str("amount", amount.StringFixed(2)).
		Str("status", string(result.Invoice.Status)).
		Msg("payment recorded")

	entry, err := s.ledger.OnPaymentRecorded(ctx, result.Payment, result.Invoice)
	if err != nil {
		s.log.Error().Err(err).
			Str("payment_id", result.Payment.ID.String()).
			Msg("ledger posting failed, payment kept")
		return &result, &apperr.LedgerPostingError{PaymentID: result.Payment.ID, Err: err}
	}
	result.LedgerEntry = entry
	return &result, nil
}

type InvoiceSummary struct {
	Invoice   *models.Invoice  `json:"invoice"`
	Payments  []models.Payment `json:"payments"`
	Paid      decimal.Decimal  `json:"paid"`
	Remaining decimal.Decimal  `json:"remaining"`
}

func (s *ReconciliationService) summarize(ctx context.Context, inv *models.Invoice) (*InvoiceSummary, error) {
	payments, err := s.paymentRepo.ListByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	paid := SumPayments(inv.ID, payments)
	return &InvoiceSummary{
		Invoice:   inv,
		Payments:  payments,
		Paid:      paid,
		Remaining: inv.Total.Sub(paid),
	}, nil
}

func (s *ReconciliationService) Summary(ctx context.Context, invoiceID uuid.UUID) (*InvoiceSummary, error) {
	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, inv)
}

// InvoiceForAppointment returns the invoice state of a billable appointment.
func (s *ReconciliationService) InvoiceForAppointment(ctx context.Context, appointmentID uuid.UUID) (*InvoiceSummary, error) {
	inv, err := s.invoiceRepo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, inv)
}

// Reconcile recomputes an invoice's status from its stored payments and
// persists it when the stored value has drifted.
func (s *ReconciliationService) Reconcile(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, bool, error) {
	var (
		inv     *models.Invoice
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoices := s.invoiceRepo.WithTx(tx)

		var err error
		inv, err = invoices.LockByID(ctx, invoiceID)
		if err != nil {
			return err
		}
		payments, err := s.paymentRepo.WithTx(tx).ListByInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}

		status := RecomputeStatus(inv, payments)
		if status == inv.Status {
			return nil
		}
		s.log.Warn().
			Str("invoice_id", inv.ID.String()).
			Str("stored", string(inv.Status)).
			Str("derived", string(status)).
			Msg("invoice status drifted, correcting")
		if err := invoices.UpdateStatus(ctx, inv, status); err != nil {
			return err
		}
		inv.Status = status
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, apperr.Persistence("reconcile invoice", err)
	}
	return inv, changed, nil
}

func (s *ReconciliationService) ListInvoices(ctx context.Context, statuses []models.InvoiceStatus) ([]models.Invoice, error) {
	return s.invoiceRepo.SearchInvoices(ctx, statuses)
}

func (s *ReconciliationService) DB() *gorm.DB {
	return s.db
}
