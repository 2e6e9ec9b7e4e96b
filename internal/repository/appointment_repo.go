package repository

import (
	"context"
	"time"

	"clinic-operations-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *AppointmentRepository) WithTx(tx *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: tx}
}

func (r *AppointmentRepository) DB() *gorm.DB {
	return r.db
}

func (r *AppointmentRepository) Create(ctx context.Context, a *models.Appointment) error {
	err := r.db.WithContext(ctx).Create(a).Error
	return translate("create appointment", "appointment", a.ID.String(), err)
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	var a models.Appointment
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if err != nil {
		return nil, translate("get appointment", "appointment", id.String(), err)
	}
	return &a, nil
}

type AppointmentFilter struct {
	Status     models.AppointmentStatus
	PatientRef string
	From       *time.Time
	To         *time.Time
	Limit      int
}

// List returns appointments ordered by scheduled time, with optional filters.
func (r *AppointmentRepository) List(ctx context.Context, f AppointmentFilter) ([]models.Appointment, error) {
	var out []models.Appointment

	q := r.db.WithContext(ctx).Model(&models.Appointment{}).Order("scheduled_at ASC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PatientRef != "" {
		q = q.Where("patient_ref = ?", f.PatientRef)
	}
	if f.From != nil {
		q = q.Where("scheduled_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("scheduled_at < ?", *f.To)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	if err := q.Find(&out).Error; err != nil {
		return nil, translate("list appointments", "appointment", "", err)
	}
	return out, nil
}

// ListPending is the reminder scheduler's input set.
func (r *AppointmentRepository) ListPending(ctx context.Context) ([]models.Appointment, error) {
	return r.List(ctx, AppointmentFilter{Status: models.AppointmentPending})
}

// Finish moves a pending appointment into a terminal status. The update is
// conditional on the row still being pending; false means another caller
// got there first.
func (r *AppointmentRepository) Finish(ctx context.Context, id uuid.UUID, to models.AppointmentStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case models.AppointmentDone:
		updates["completed_at"] = at
	case models.AppointmentCancelled:
		updates["cancelled_at"] = at
	}

	res := r.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ? AND status = ?", id, models.AppointmentPending).
		Updates(updates)
	if res.Error != nil {
		return false, translate("finish appointment", "appointment", id.String(), res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Reschedule moves the scheduled time of a pending appointment.
func (r *AppointmentRepository) Reschedule(ctx context.Context, id uuid.UUID, when, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ? AND status = ?", id, models.AppointmentPending).
		Updates(map[string]interface{}{
			"scheduled_at": when,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, translate("reschedule appointment", "appointment", id.String(), res.Error)
	}
	return res.RowsAffected == 1, nil
}
