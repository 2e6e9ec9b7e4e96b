package cashledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"clinic-operations-backend/internal/clock"
	"clinic-operations-backend/internal/models"
	"clinic-operations-backend/internal/repository"
	"clinic-operations-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Poster, *repository.PaymentRepository, *repository.LedgerRepository) {
	t.Helper()
	db := testutil.NewDB(t)
	payments := repository.NewPaymentRepository(db)
	entries := repository.NewLedgerRepository(db)
	return NewPoster(entries, payments, clock.Fixed(testNow), zerolog.Nop()), payments, entries
}

func recordPayment(t *testing.T, payments *repository.PaymentRepository, amount int64) (*models.Payment, *models.Invoice) {
	t.Helper()
	inv := &models.Invoice{ID: uuid.New(), AppointmentID: uuid.New(), InvoiceNumber: "INV-20260310-ABCDEF01"}
	p := &models.Payment{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Amount:    decimal.NewFromInt(amount),
		Method:    models.MethodCard,
		PaidAt:    testNow,
	}
	require.NoError(t, payments.Create(context.Background(), p))
	return p, inv
}

func TestOnPaymentRecordedBuildsInEntry(t *testing.T) {
	poster, payments, _ := setup(t)
	p, inv := recordPayment(t, payments, 15000)

	entry, err := poster.OnPaymentRecorded(context.Background(), p, inv)
	require.NoError(t, err)

	assert.Equal(t, models.DirectionIn, entry.Direction)
	assert.True(t, entry.Amount.Equal(p.Amount))
	assert.Equal(t, models.CategoryPatientPayments, entry.Category)
	assert.Contains(t, entry.Description, inv.InvoiceNumber)
	assert.Equal(t, inv.ID, *entry.InvoiceID)
	assert.Equal(t, p.ID, *entry.PaymentID)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(entry.Metadata, &meta))
	assert.Equal(t, "card", meta["method"])
	assert.Equal(t, inv.AppointmentID.String(), meta["appointment_id"])
}

func TestOnPaymentRecordedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	poster, payments, entries := setup(t)
	p, inv := recordPayment(t, payments, 5000)

	first, err := poster.OnPaymentRecorded(ctx, p, inv)
	require.NoError(t, err)
	second, err := poster.OnPaymentRecorded(ctx, p, inv)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	list, _, _, err := entries.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBalanceAggregatesEntries(t *testing.T) {
	ctx := context.Background()
	poster, payments, entries := setup(t)

	for _, amount := range []int64{15000, 5000} {
		p, inv := recordPayment(t, payments, amount)
		_, err := poster.OnPaymentRecorded(ctx, p, inv)
		require.NoError(t, err)
	}
	_, err := entries.Post(ctx, &models.CashLedgerEntry{
		ID:          uuid.Must(uuid.NewV7()),
		Direction:   models.DirectionOut,
		Amount:      decimal.NewFromInt(3000),
		EntryDate:   testNow,
		Description: "Supplies",
		Category:    "supplies",
	})
	require.NoError(t, err)

	b, err := poster.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, b.In.Equal(decimal.NewFromInt(20000)), b.In.String())
	assert.True(t, b.Out.Equal(decimal.NewFromInt(3000)), b.Out.String())
	assert.True(t, b.Net.Equal(decimal.NewFromInt(17000)), b.Net.String())
	assert.EqualValues(t, 2, b.InCount)
	assert.EqualValues(t, 1, b.OutCount)
}

func TestBalanceOfEmptyLedger(t *testing.T) {
	poster, _, _ := setup(t)
	b, err := poster.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, b.Net.IsZero())
}

func TestVerifyPaymentCoverage(t *testing.T) {
	ctx := context.Background()
	poster, payments, _ := setup(t)

	p, inv := recordPayment(t, payments, 15000)
	_, err := poster.OnPaymentRecorded(ctx, p, inv)
	require.NoError(t, err)

	cov, err := poster.VerifyPaymentCoverage(ctx)
	require.NoError(t, err)
	assert.True(t, cov.Balanced)

	// a payment whose posting never happened
	recordPayment(t, payments, 2500)

	cov, err = poster.VerifyPaymentCoverage(ctx)
	require.NoError(t, err)
	assert.False(t, cov.Balanced)
	assert.True(t, cov.Missing.Equal(decimal.NewFromInt(2500)), cov.Missing.String())
}

func TestListPaginatesInPostingOrder(t *testing.T) {
	ctx := context.Background()
	poster, payments, _ := setup(t)

	var posted []uuid.UUID
	for i := 0; i < 3; i++ {
		p, inv := recordPayment(t, payments, int64(100*(i+1)))
		e, err := poster.OnPaymentRecorded(ctx, p, inv)
		require.NoError(t, err)
		posted = append(posted, e.ID)
	}

	page, next, more, err := poster.List(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, more)
	assert.Equal(t, posted[0], page[0].ID)
	assert.Equal(t, posted[1], page[1].ID)

	page, _, more, err = poster.List(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.False(t, more)
	assert.Equal(t, posted[2], page[0].ID)
}
