// Package cashledger mirrors recorded payments into the cash ledger and
// derives balances from the entries.
package cashledger

import (
	"context"
	"encoding/json"
	"fmt"

	"clinic-operations-backend/internal/clock"
	"clinic-operations-backend/internal/models"
	"clinic-operations-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Poster struct {
	entries  *repository.LedgerRepository
	payments *repository.PaymentRepository
	now      clock.Clock
	log      zerolog.Logger
}

func NewPoster(entries *repository.LedgerRepository, payments *repository.PaymentRepository, now clock.Clock, log zerolog.Logger) *Poster {
	return &Poster{
		entries:  entries,
		payments: payments,
		now:      now,
		log:      log.With().Str("component", "cashledger").Logger(),
	}
}

// OnPaymentRecorded appends the "in" entry mirroring a payment.
func (p *Poster) OnPaymentRecorded(ctx context.Context, payment *models.Payment, invoice *models.Invoice) (*models.CashLedgerEntry, error) {
	meta, err := json.Marshal(map[string]string{
		"method":         string(payment.Method),
		"appointment_id": invoice.AppointmentID.String(),
	})
	if err != nil {
		return nil, err
	}

	invoiceID := invoice.ID
	paymentID := payment.ID
	entry := &models.CashLedgerEntry{
		ID:          uuid.Must(uuid.NewV7()),
		Direction:   models.DirectionIn,
		Amount:      payment.Amount,
		EntryDate:   payment.PaidAt,
		Description: fmt.Sprintf("Payment for invoice %s", invoice.InvoiceNumber),
		Category:    models.CategoryPatientPayments,
		InvoiceID:   &invoiceID,
		PaymentID:   &paymentID,
		Metadata:    datatypes.JSON(meta),
		CreatedAt:   p.now(),
	}

	stored, err := p.entries.Post(ctx, entry)
	if err != nil {
		return nil, err
	}

	p.log.Info().
		Str("entry_id", stored.ID.String()).
		Str("payment_id", paymentID.String()).
		Str("amount", stored.Amount.StringFixed(2)).
		Msg("ledger entry posted")
	return stored, nil
}

type Balance struct {
	In       decimal.Decimal `json:"in"`
	Out      decimal.Decimal `json:"out"`
	Net      decimal.Decimal `json:"net"`
	InCount  int64           `json:"in_count"`
	OutCount int64           `json:"out_count"`
}

// Balance aggregates the ledger; there is no stored running total.
func (p *Poster) Balance(ctx context.Context) (Balance, error) {
	b := Balance{In: decimal.Zero, Out: decimal.Zero}

	rows, err := p.entries.Totals(ctx)
	if err != nil {
		return b, err
	}
	for _, r := range rows {
		switch r.Direction {
		case models.DirectionIn:
			b.In = r.Sum
			b.InCount = r.Count
		case models.DirectionOut:
			b.Out = r.Sum
			b.OutCount = r.Count
		}
	}
	b.Net = b.In.Sub(b.Out)
	return b, nil
}

func (p *Poster) List(ctx context.Context, cursor string, limit int) ([]models.CashLedgerEntry, string, bool, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return p.entries.List(ctx, cursor, limit)
}

type Coverage struct {
	Payments decimal.Decimal `json:"payments"`
	Ledger   decimal.Decimal `json:"ledger"`
	Missing  decimal.Decimal `json:"missing"`
	Balanced bool            `json:"balanced"`
}

// VerifyPaymentCoverage compares recorded payments with the ledger inflow
// that references them. A positive Missing means some postings failed.
func (p *Poster) VerifyPaymentCoverage(ctx context.Context) (Coverage, error) {
	paid, err := p.payments.Total(ctx)
	if err != nil {
		return Coverage{}, err
	}
	inflow, err := p.entries.PaymentLinkedInflow(ctx)
	if err != nil {
		return Coverage{}, err
	}

	c := Coverage{
		Payments: paid,
		Ledger:   inflow,
		Missing:  paid.Sub(inflow),
	}
	c.Balanced = c.Missing.IsZero()
	if !c.Balanced {
		p.log.Warn().
			Str("payments", paid.StringFixed(2)).
			Str("ledger", inflow.StringFixed(2)).
			Msg("ledger does not cover recorded payments")
	}
	return c, nil
}
