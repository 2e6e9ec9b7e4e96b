package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionScheduled   = "scheduled"
	ActionRescheduled = "rescheduled"
	ActionCancelled   = "cancelled"
	ActionDone        = "done"
)

// AppointmentEvent is the audit trail of lifecycle transitions.
type AppointmentEvent struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	AppointmentID uuid.UUID         `gorm:"type:uuid;index;not null" json:"appointment_id"`
	Action        string            `gorm:"size:20" json:"action"`
	FromStatus    AppointmentStatus `gorm:"size:20" json:"from_status,omitempty"`
	ToStatus      AppointmentStatus `gorm:"size:20" json:"to_status"`
	PreviousTime  *time.Time        `json:"previous_time,omitempty"`
	NewTime       *time.Time        `json:"new_time,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&Appointment{},
		&Invoice{},
		&Payment{},
		&CashLedgerEntry{},
		&AppointmentEvent{},
	}
}
