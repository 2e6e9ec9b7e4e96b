package repository

import (
	"context"

	"clinic-operations-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Post appends an entry in its own transaction. A second post for the same
// payment is a no-op that returns the entry already on file.
func (r *LedgerRepository) Post(ctx context.Context, e *models.CashLedgerEntry) (*models.CashLedgerEntry, error) {
	var stored models.CashLedgerEntry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(e)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 || e.PaymentID == nil {
			stored = *e
			return nil
		}
		return tx.First(&stored, "payment_id = ?", *e.PaymentID).Error
	})
	if err != nil {
		return nil, translate("post ledger entry", "ledger entry", e.ID.String(), err)
	}
	return &stored, nil
}

func (r *LedgerRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.CashLedgerEntry, error) {
	var e models.CashLedgerEntry
	err := r.db.WithContext(ctx).First(&e, "payment_id = ?", paymentID).Error
	if err != nil {
		return nil, translate("get ledger entry", "ledger entry for payment", paymentID.String(), err)
	}
	return &e, nil
}

// List pages through entries in id order. Entry ids are UUIDv7 so id order
// is posting order.
func (r *LedgerRepository) List(ctx context.Context, cursor string, limit int) ([]models.CashLedgerEntry, string, bool, error) {
	var entries []models.CashLedgerEntry

	q := r.db.WithContext(ctx).Order("id ASC").Limit(limit + 1)
	if cursor != "" {
		q = q.Where("id > ?", cursor)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, "", false, translate("list ledger entries", "ledger entry", "", err)
	}

	hasMore := false
	var nextCursor string
	if len(entries) > limit {
		hasMore = true
		nextCursor = entries[limit-1].ID.String()
		entries = entries[:limit]
	}
	return entries, nextCursor, hasMore, nil
}

type DirectionTotal struct {
	Direction models.LedgerDirection
	Count     int64
	Sum       decimal.Decimal
}

// Totals aggregates entries per direction.
func (r *LedgerRepository) Totals(ctx context.Context) ([]DirectionTotal, error) {
	var rows []DirectionTotal
	err := r.db.WithContext(ctx).Model(&models.CashLedgerEntry{}).
		Select("direction, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("direction").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("aggregate ledger", "ledger entry", "", err)
	}
	return rows, nil
}

// PaymentLinkedInflow sums the "in" entries that point at a payment.
func (r *LedgerRepository) PaymentLinkedInflow(ctx context.Context) (decimal.Decimal, error) {
	var row struct {
		Sum decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&models.CashLedgerEntry{}).
		Select("COALESCE(SUM(amount),0) as sum").
		Where("direction = ? AND payment_id IS NOT NULL", models.DirectionIn).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, translate("sum ledger inflow", "ledger entry", "", err)
	}
	return row.Sum, nil
}
