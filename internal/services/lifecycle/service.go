// Package lifecycle owns the appointment state machine:
//
//	pending -> done | cancelled
//	pending -> pending (reschedule)
//
// done and cancelled are terminal. Terminal transitions are conditional
// updates on status = pending, so two racing callers cannot both win.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinic-operations-backend/internal/apperr"
	"clinic-operations-backend/internal/clock"
	"clinic-operations-backend/internal/models"
	"clinic-operations-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Business window for rescheduling, in clinic-local minutes of the day.
// Both bounds are inclusive.
const (
	OpenMinute  = 9 * 60
	CloseMinute = 17 * 60
)

// GraceDays is how many full days a missed appointment may still be marked
// done.
const GraceDays = 1

// Invoicer issues the invoice of a billable appointment inside tx.
type Invoicer interface {
	CreateInvoice(ctx context.Context, tx *gorm.DB, appt *models.Appointment) (*models.Invoice, error)
}

// Authorizer decides whether an appointment may be executed.
type Authorizer interface {
	Authorize(ctx context.Context, appt *models.Appointment) error
	CanExecute(ctx context.Context, appt *models.Appointment) (bool, error)
}

// Rearmer is told whenever the pending set changes.
type Rearmer interface {
	Rearm(ctx context.Context) error
}

type Service struct {
	db       *gorm.DB
	appts    *repository.AppointmentRepository
	events   *repository.EventRepository
	invoicer Invoicer
	gate     Authorizer
	rearmer  Rearmer
	now      clock.Clock
	loc      *time.Location
	log      zerolog.Logger
}

func NewService(
	appts *repository.AppointmentRepository,
	events *repository.EventRepository,
	invoicer Invoicer,
	gate Authorizer,
	rearmer Rearmer,
	now clock.Clock,
	loc *time.Location,
	log zerolog.Logger,
) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		db:       appts.DB(),
		appts:    appts,
		events:   events,
		invoicer: invoicer,
		gate:     gate,
		rearmer:  rearmer,
		now:      now,
		loc:      loc,
		log:      log.With().Str("component", "lifecycle").Logger(),
	}
}

type ScheduleRequest struct {
	PatientRef string           `json:"patient_ref"`
	When       time.Time        `json:"when"`
	Reason     string           `json:"reason"`
	Kind       models.VisitKind `json:"kind"`
	Amount     decimal.Decimal  `json:"amount"`
}

type ScheduleResult struct {
	Appointment *models.Appointment `json:"appointment"`
	Invoice     *models.Invoice     `json:"invoice,omitempty"`
}

// AppointmentView adds the display-time overdue flag.
type AppointmentView struct {
	models.Appointment
	Overdue bool `json:"overdue"`
}

// WithinBusinessHours reports whether t falls in [09:00, 17:00] clinic time
// at minute granularity.
func WithinBusinessHours(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	minute := local.Hour()*60 + local.Minute()
	return minute >= OpenMinute && minute <= CloseMinute
}

func (s *Service) validateSchedule(req *ScheduleRequest, now time.Time) error {
	req.PatientRef = strings.TrimSpace(req.PatientRef)
	if req.PatientRef == "" {
		return apperr.Validation(apperr.RulePatientRequired, "patient_ref",
			"a patient reference is required", nil)
	}
	if req.Kind == "" {
		req.Kind = models.KindAppointment
	}
	if !req.Kind.Valid() {
		return apperr.Validation(apperr.RuleVisitKind, "kind",
			fmt.Sprintf("unknown visit kind %q", req.Kind),
			map[string]any{"allowed": []models.VisitKind{models.KindAppointment, models.KindBillableConsultation}})
	}
	if req.When.Before(now) {
		return apperr.Validation(apperr.RulePastDate, "when",
			"cannot schedule in the past",
			map[string]any{"when": req.When, "now": now})
	}

	if req.Kind == models.KindBillableConsultation {
		if !req.Amount.IsPositive() {
			return apperr.Validation(apperr.RuleAmountRequired, "amount",
				"billable consultations need an amount greater than zero",
				map[string]any{"amount": req.Amount.String()})
		}
		if !models.FitsAmountScale(req.Amount) {
			return apperr.Validation(apperr.RuleAmountPrecision, "amount",
				"amounts are kept to two decimal places",
				map[string]any{"amount": req.Amount.String(), "scale": models.AmountScale})
		}
		return nil
	}
	if !req.Amount.IsZero() {
		return apperr.Validation(apperr.RuleAmountForbidden, "amount",
			"only billable consultations carry an amount",
			map[string]any{"amount": req.Amount.String()})
	}
	return nil
}

// Schedule creates a pending appointment and, when billable, its invoice in
// the same transaction.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error) {
	now := s.now()
	if err := s.validateSchedule(&req, now); err != nil {
		return nil, err
	}

	appt := &models.Appointment{
		ID:          uuid.New(),
		PatientRef:  req.PatientRef,
		ScheduledAt: req.When,
		Reason:      req.Reason,
		Kind:        req.Kind,
		Status:      models.AppointmentPending,
		Amount:      req.Amount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	result := &ScheduleResult{Appointment: appt}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.appts.WithTx(tx).Create(ctx, appt); err != nil {
			return err
		}
		if appt.IsBillable() {
			inv, err := s.invoicer.CreateInvoice(ctx, tx, appt)
			if err != nil {
				return err
			}
			result.Invoice = inv
		}
		when := appt.ScheduledAt
		return s.events.WithTx(tx).Record(ctx, &models.AppointmentEvent{
			ID:            uuid.Must(uuid.NewV7()),
			AppointmentID: appt.ID,
			Action:        models.ActionScheduled,
			ToStatus:      models.AppointmentPending,
			NewTime:       &when,
			Reason:        req.Reason,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, apperr.Persistence("schedule appointment", err)
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("kind", string(appt.Kind)).
		Time("scheduled_at", appt.ScheduledAt).
		Msg("appointment scheduled")
	s.rearm(ctx)
	return result, nil
}

func (s *Service) requirePending(appt *models.Appointment, action string) error {
	if appt.Status == models.AppointmentPending {
		return nil
	}
	return apperr.Conflict(apperr.RuleTerminalStatus, string(appt.Status),
		fmt.Sprintf("cannot %s an appointment that is %s", action, appt.Status),
		map[string]any{"appointment_id": appt.ID})
}

// Cancel moves a pending appointment to cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Appointment, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requirePending(appt, "cancel"); err != nil {
		return nil, err
	}
	if err := s.finish(ctx, appt, models.AppointmentCancelled, models.ActionCancelled, reason); err != nil {
		return nil, err
	}
	return appt, nil
}

// Reschedule moves a pending appointment to newWhen, which must be in the
// future and inside business hours.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newWhen time.Time) (*models.Appointment, error) {
	now := s.now()
	if newWhen.Before(now) {
		return nil, apperr.Validation(apperr.RulePastDate, "when",
			"cannot reschedule into the past",
			map[string]any{"when": newWhen, "now": now})
	}
	if !WithinBusinessHours(newWhen, s.loc) {
		return nil, apperr.Validation(apperr.RuleBusinessHours, "when",
			"new time is outside business hours",
			map[string]any{
				"when":     newWhen.In(s.loc).Format("15:04"),
				"opens":    "09:00",
				"closes":   "17:00",
				"timezone": s.loc.String(),
			})
	}

	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requirePending(appt, "reschedule"); err != nil {
		return nil, err
	}

	previous := appt.ScheduledAt
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.appts.WithTx(tx).Reschedule(ctx, id, newWhen, now)
		if err != nil {
			return err
		}
		if !ok {
			return s.lostRace(ctx, tx, id)
		}
		return s.events.WithTx(tx).Record(ctx, &models.AppointmentEvent{
			ID:            uuid.Must(uuid.NewV7()),
			AppointmentID: id,
			Action:        models.ActionRescheduled,
			FromStatus:    models.AppointmentPending,
			ToStatus:      models.AppointmentPending,
			PreviousTime:  &previous,
			NewTime:       &newWhen,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, apperr.Persistence("reschedule appointment", err)
	}

	appt.ScheduledAt = newWhen
	appt.UpdatedAt = now
	s.log.Info().
		Str("appointment_id", id.String()).
		Time("from", previous).
		Time("to", newWhen).
		Msg("appointment rescheduled")
	s.rearm(ctx)
	return appt, nil
}

// DaysElapsed is the number of full days between scheduled and now.
func DaysElapsed(scheduled, now time.Time) int {
	if !now.After(scheduled) {
		return 0
	}
	return int(now.Sub(scheduled) / (24 * time.Hour))
}

// checkGrace enforces the late-completion window. Same-day and future
// appointments always pass.
func (s *Service) checkGrace(appt *models.Appointment, now time.Time) error {
	if !appt.ScheduledAt.Before(clock.StartOfDay(now, s.loc)) {
		return nil
	}
	days := DaysElapsed(appt.ScheduledAt, now)
	if days <= GraceDays {
		return nil
	}
	return apperr.Conflict(apperr.RuleGracePeriod, string(appt.Status),
		"too late to mark done",
		map[string]any{
			"appointment_id": appt.ID,
			"days_elapsed":   days,
			"grace_days":     GraceDays,
		})
}

// MarkDone executes a pending appointment. Billable appointments also need a
// paid invoice.
func (s *Service) MarkDone(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requirePending(appt, "complete"); err != nil {
		return nil, err
	}
	if err := s.checkGrace(appt, s.now()); err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, appt); err != nil {
		return nil, err
	}
	if err := s.finish(ctx, appt, models.AppointmentDone, models.ActionDone, ""); err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) finish(ctx context.Context, appt *models.Appointment, to models.AppointmentStatus, action, reason string) error {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.appts.WithTx(tx).Finish(ctx, appt.ID, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return s.lostRace(ctx, tx, appt.ID)
		}
		return s.events.WithTx(tx).Record(ctx, &models.AppointmentEvent{
			ID:            uuid.Must(uuid.NewV7()),
			AppointmentID: appt.ID,
			Action:        action,
			FromStatus:    models.AppointmentPending,
			ToStatus:      to,
			Reason:        reason,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return apperr.Persistence(action+" appointment", err)
	}

	appt.Status = to
	appt.UpdatedAt = now
	switch to {
	case models.AppointmentDone:
		appt.CompletedAt = &now
	case models.AppointmentCancelled:
		appt.CancelledAt = &now
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("status", string(to)).
		Msg("appointment finished")
	s.rearm(ctx)
	return nil
}

// lostRace explains a conditional update that matched no row.
func (s *Service) lostRace(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	current, err := s.appts.WithTx(tx).GetByID(ctx, id)
	if err != nil {
		return err
	}
	return apperr.Conflict(apperr.RuleConcurrentUpdate, string(current.Status),
		"appointment changed while the request was in flight",
		map[string]any{"appointment_id": id})
}

func (s *Service) rearm(ctx context.Context) {
	if s.rearmer == nil {
		return
	}
	// the transition has already committed
	if err := s.rearmer.Rearm(context.WithoutCancel(ctx)); err != nil {
		s.log.Error().Err(err).Msg("reminder re-arm failed")
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AppointmentView{Appointment: *appt, Overdue: appt.IsOverdue(s.now())}, nil
}

func (s *Service) List(ctx context.Context, f repository.AppointmentFilter) ([]AppointmentView, error) {
	appts, err := s.appts.List(ctx, f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]AppointmentView, len(appts))
	for i := range appts {
		out[i] = AppointmentView{Appointment: appts[i], Overdue: appts[i].IsOverdue(now)}
	}
	return out, nil
}

// History returns the recorded transitions of an appointment, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]models.AppointmentEvent, error) {
	if _, err := s.appts.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.events.ListByAppointment(ctx, id)
}

// CanExecute loads the appointment and asks the billing gate.
func (s *Service) CanExecute(ctx context.Context, id uuid.UUID) (bool, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return s.gate.CanExecute(ctx, appt)
}
