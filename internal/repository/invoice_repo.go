package repository

import (
	"context"

	"clinic-operations-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) WithTx(tx *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: tx}
}

// Expose DB if needed
func (r *InvoiceRepository) DB() *gorm.DB {
	return r.db
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	err := r.db.WithContext(ctx).Create(inv).Error
	return translate("create invoice", "invoice", inv.ID.String(), err)
}

// GetByID fetch a single invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error
	if err != nil {
		return nil, translate("get invoice", "invoice", id.String(), err)
	}
	return &inv, nil
}

// GetByAppointment returns the invoice linked to a billable appointment.
func (r *InvoiceRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).First(&inv, "appointment_id = ?", appointmentID).Error
	if err != nil {
		return nil, translate("get invoice by appointment", "invoice for appointment", appointmentID.String(), err)
	}
	return &inv, nil
}

// LockByID reads the invoice row with SELECT ... FOR UPDATE. It must run
// inside a transaction; SQLite ignores the locking clause and serializes
// writers on its own.
func (r *InvoiceRepository) LockByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&inv, "id = ?", id).Error
	if err != nil {
		return nil, translate("lock invoice", "invoice", id.String(), err)
	}
	return &inv, nil
}

func (r *InvoiceRepository) UpdateStatus(ctx context.Context, inv *models.Invoice, status models.InvoiceStatus) error {
	err := r.db.WithContext(ctx).Model(inv).Update("status", status).Error
	return translate("update invoice status", "invoice", inv.ID.String(), err)
}

// SearchInvoices lists invoices, optionally restricted to some statuses.
func (r *InvoiceRepository) SearchInvoices(ctx context.Context, statuses []models.InvoiceStatus) ([]models.Invoice, error) {
	var invoices []models.Invoice

	q := r.db.WithContext(ctx).Model(&models.Invoice{}).Order("issued_at DESC")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	if err := q.Find(&invoices).Error; err != nil {
		return nil, translate("search invoices", "invoice", "", err)
	}
	return invoices, nil
}
