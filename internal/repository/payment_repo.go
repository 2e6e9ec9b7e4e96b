package repository

import (
	"context"

	"clinic-operations-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	err := r.db.WithContext(ctx).Create(p).Error
	return translate("create payment", "payment", p.ID.String(), err)
}

func (r *PaymentRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("paid_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate("list payments", "payment", "", err)
	}
	return out, nil
}

// Total sums every recorded payment across all invoices.
func (r *PaymentRepository) Total(ctx context.Context) (decimal.Decimal, error) {
	var row struct {
		Sum decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&models.Payment{}).
		Select("COALESCE(SUM(amount),0) as sum").
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, translate("sum payments", "payment", "", err)
	}
	return row.Sum, nil
}
