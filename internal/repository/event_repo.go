package repository

import (
	"context"

	"clinic-operations-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) WithTx(tx *gorm.DB) *EventRepository {
	return &EventRepository{db: tx}
}

func (r *EventRepository) Record(ctx context.Context, ev *models.AppointmentEvent) error {
	err := r.db.WithContext(ctx).Create(ev).Error
	return translate("record appointment event", "appointment event", ev.ID.String(), err)
}

// ListByAppointment returns events oldest first. Event ids are UUIDv7, so
// id order settles created_at ties.
func (r *EventRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.AppointmentEvent, error) {
	var out []models.AppointmentEvent
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate("list appointment events", "appointment event", "", err)
	}
	return out, nil
}
