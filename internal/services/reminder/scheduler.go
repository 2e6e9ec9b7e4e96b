// Package reminder keeps one in-process timer per upcoming pending
// appointment. The timer set is thrown away and rebuilt on every change of
// the pending set, and it does not survive a restart: Start re-arms from
// the appointments table.
package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"clinic-operations-backend/internal/clock"
	"clinic-operations-backend/internal/models"
	"clinic-operations-backend/internal/notify"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultLead = 5 * time.Minute

// Source supplies the current pending appointments.
type Source interface {
	ListPending(ctx context.Context) ([]models.Appointment, error)
}

// Timer is the cancellation handle of an armed reminder.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func systemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type armed struct {
	timer Timer
	at    time.Time
}

type Scheduler struct {
	source Source
	sink   notify.Sink
	now    clock.Clock
	after  AfterFunc
	lead   time.Duration
	loc    *time.Location
	log    zerolog.Logger

	rearmMu sync.Mutex // one rebuild at a time
	mu      sync.Mutex // guards timers and stopped
	timers  map[uuid.UUID]armed
	stopped bool
}

type Option func(*Scheduler)

func WithLead(d time.Duration) Option {
	return func(s *Scheduler) { s.lead = d }
}

func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) { s.after = f }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

func WithClock(now clock.Clock) Option {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(source Source, sink notify.Sink, log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		source: source,
		sink:   sink,
		now:    clock.System,
		after:  systemAfterFunc,
		lead:   DefaultLead,
		loc:    time.Local,
		log:    log.With().Str("component", "reminder").Logger(),
		timers: make(map[uuid.UUID]armed),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start arms reminders for the pending set on load.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
	return s.Rearm(ctx)
}

// Rearm discards every armed timer and arms one per pending appointment
// whose reminder time is still ahead. If the pending set cannot be loaded
// the current timers stay in place.
func (s *Scheduler) Rearm(ctx context.Context) error {
	s.rearmMu.Lock()
	defer s.rearmMu.Unlock()

	pending, err := s.source.ListPending(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.timers {
		a.timer.Stop()
	}
	next := make(map[uuid.UUID]armed, len(pending))
	if s.stopped {
		s.timers = next
		return nil
	}

	now := s.now()
	for i := range pending {
		appt := pending[i]
		if appt.Status != models.AppointmentPending {
			continue
		}
		at := appt.ScheduledAt.Add(-s.lead)
		if !at.After(now) {
			continue
		}
		next[appt.ID] = armed{
			timer: s.after(at.Sub(now), func() { s.fire(appt) }),
			at:    at,
		}
	}
	s.timers = next

	s.log.Debug().Int("pending", len(pending)).Int("armed", len(next)).Msg("reminders re-armed")
	return nil
}

// Stop cancels every armed reminder. Later Rearm calls arm nothing until
// Start is called again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.timers {
		a.timer.Stop()
	}
	s.timers = make(map[uuid.UUID]armed)
	s.stopped = true
}

type ArmedReminder struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	FiresAt       time.Time `json:"fires_at"`
}

// Armed lists the reminders that have not fired yet, soonest first.
func (s *Scheduler) Armed() []ArmedReminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]ArmedReminder, 0, len(s.timers))
	for id, a := range s.timers {
		if a.at.After(now) {
			out = append(out, ArmedReminder{AppointmentID: id, FiresAt: a.at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiresAt.Before(out[j].FiresAt) })
	return out
}

func (s *Scheduler) fire(appt models.Appointment) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := fmt.Sprintf("Upcoming appointment at %s", appt.ScheduledAt.In(s.loc).Format("15:04"))
	if appt.Reason != "" {
		msg += ": " + appt.Reason
	}

	err := s.sink.Notify(ctx, notify.Reminder{
		PatientRef:     appt.PatientRef,
		AppointmentRef: appt.ID.String(),
		Message:        msg,
	})
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("reminder delivery failed")
	}
}
