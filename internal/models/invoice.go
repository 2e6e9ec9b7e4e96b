package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceUnpaid        InvoiceStatus = "unpaid"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
)

// Invoice bills exactly one billable appointment. Status is derived from the
// invoice's payments and written only by the reconciliation service.
type Invoice struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AppointmentID uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"appointment_id"`
	InvoiceNumber string          `gorm:"uniqueIndex;size:32" json:"invoice_number"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	Status        InvoiceStatus   `gorm:"size:20;index;not null" json:"status"`
	IssuedAt      time.Time       `json:"issued_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
