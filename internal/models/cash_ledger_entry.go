package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type LedgerDirection string

const (
	DirectionIn  LedgerDirection = "in"
	DirectionOut LedgerDirection = "out"
)

const CategoryPatientPayments = "patient_payments"

// CashLedgerEntry is an append-only cash movement. The running balance is
// always aggregated from entries, never stored.
type CashLedgerEntry struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Direction   LedgerDirection `gorm:"size:3;index;not null" json:"direction"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	EntryDate   time.Time       `gorm:"index" json:"entry_date"`
	Description string          `json:"description"`
	Category    string          `gorm:"size:64;index" json:"category"`
	InvoiceID   *uuid.UUID      `gorm:"type:uuid;index" json:"invoice_id,omitempty"`
	PaymentID   *uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"payment_id,omitempty"`
	Metadata    datatypes.JSON  `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
