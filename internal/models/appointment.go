package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentDone      AppointmentStatus = "done"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentDone || s == AppointmentCancelled
}

type VisitKind string

const (
	KindAppointment          VisitKind = "appointment"
	KindBillableConsultation VisitKind = "billable_consultation"
)

func (k VisitKind) Valid() bool {
	return k == KindAppointment || k == KindBillableConsultation
}

type Appointment struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	PatientRef  string            `gorm:"index;not null" json:"patient_ref"`
	ScheduledAt time.Time         `gorm:"index;not null" json:"scheduled_at"`
	Reason      string            `gorm:"type:text" json:"reason"`
	Kind        VisitKind         `gorm:"size:32;not null" json:"kind"`
	Status      AppointmentStatus `gorm:"size:20;index;not null" json:"status"`
	Amount      decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (a *Appointment) IsBillable() bool {
	return a.Kind == KindBillableConsultation
}

// IsOverdue is a display-time predicate; overdue is never persisted.
func (a *Appointment) IsOverdue(now time.Time) bool {
	return a.Status == AppointmentPending && a.ScheduledAt.Before(now)
}
