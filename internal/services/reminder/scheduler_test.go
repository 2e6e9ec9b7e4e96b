package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clinic-operations-backend/internal/clock"
	"clinic-operations-backend/internal/models"
	"clinic-operations-backend/internal/notify"
	"clinic-operations-backend/internal/repository"
	"clinic-operations-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) after(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (ft *fakeTimers) live() []*fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

type stubSource struct {
	appts []models.Appointment
	err   error
}

func (s *stubSource) ListPending(context.Context) ([]models.Appointment, error) {
	return s.appts, s.err
}

type recordingSink struct {
	mu   sync.Mutex
	sent []notify.Reminder
}

func (s *recordingSink) Notify(_ context.Context, r notify.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, r)
	return nil
}

func pending(at time.Time) models.Appointment {
	return models.Appointment{
		ID:          uuid.New(),
		PatientRef:  "patient-1",
		ScheduledAt: at,
		Reason:      "check-up",
		Status:      models.AppointmentPending,
	}
}

func newScheduler(src Source, sink notify.Sink, timers *fakeTimers) *Scheduler {
	return NewScheduler(src, sink, zerolog.Nop(),
		WithClock(clock.Fixed(testNow)),
		WithAfterFunc(timers.after),
		WithLocation(time.UTC),
	)
}

func TestRearmArmsOnlyUpcomingReminders(t *testing.T) {
	soon := pending(testNow.Add(time.Hour))
	tooClose := pending(testNow.Add(3 * time.Minute))
	past := pending(testNow.Add(-time.Hour))
	done := pending(testNow.Add(2 * time.Hour))
	done.Status = models.AppointmentDone

	timers := &fakeTimers{}
	s := newScheduler(&stubSource{appts: []models.Appointment{soon, tooClose, past, done}}, &recordingSink{}, timers)

	require.NoError(t, s.Rearm(context.Background()))

	live := timers.live()
	require.Len(t, live, 1)
	assert.Equal(t, 55*time.Minute, live[0].d)

	armed := s.Armed()
	require.Len(t, armed, 1)
	assert.Equal(t, soon.ID, armed[0].AppointmentID)
	assert.Equal(t, testNow.Add(55*time.Minute), armed[0].FiresAt)
}

func TestRearmReplacesTheWholeSet(t *testing.T) {
	first := pending(testNow.Add(time.Hour))
	second := pending(testNow.Add(2 * time.Hour))
	src := &stubSource{appts: []models.Appointment{first, second}}
	timers := &fakeTimers{}
	s := newScheduler(src, &recordingSink{}, timers)

	require.NoError(t, s.Rearm(context.Background()))
	require.Len(t, timers.live(), 2)

	// first was cancelled elsewhere
	src.appts = []models.Appointment{second}
	require.NoError(t, s.Rearm(context.Background()))

	assert.Len(t, timers.live(), 1)
	assert.Len(t, timers.timers, 3)
	armed := s.Armed()
	require.Len(t, armed, 1)
	assert.Equal(t, second.ID, armed[0].AppointmentID)
}

func TestRearmKeepsTimersWhenSourceFails(t *testing.T) {
	src := &stubSource{appts: []models.Appointment{pending(testNow.Add(time.Hour))}}
	timers := &fakeTimers{}
	s := newScheduler(src, &recordingSink{}, timers)
	require.NoError(t, s.Rearm(context.Background()))

	src.err = errors.New("db down")
	assert.Error(t, s.Rearm(context.Background()))
	assert.Len(t, timers.live(), 1)
}

func TestFiredReminderReachesSink(t *testing.T) {
	appt := pending(time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	timers := &fakeTimers{}
	s := newScheduler(&stubSource{appts: []models.Appointment{appt}}, sink, timers)
	require.NoError(t, s.Rearm(context.Background()))

	timers.live()[0].f()

	require.Len(t, sink.sent, 1)
	assert.Equal(t, "patient-1", sink.sent[0].PatientRef)
	assert.Equal(t, appt.ID.String(), sink.sent[0].AppointmentRef)
	assert.Contains(t, sink.sent[0].Message, "11:00")
	assert.Contains(t, sink.sent[0].Message, "check-up")
}

func TestStopCancelsEverything(t *testing.T) {
	src := &stubSource{appts: []models.Appointment{pending(testNow.Add(time.Hour)), pending(testNow.Add(2 * time.Hour))}}
	timers := &fakeTimers{}
	s := newScheduler(src, &recordingSink{}, timers)

	require.NoError(t, s.Start(context.Background()))
	require.Len(t, timers.live(), 2)

	s.Stop()
	assert.Empty(t, timers.live())
	assert.Empty(t, s.Armed())

	require.NoError(t, s.Rearm(context.Background()))
	assert.Empty(t, timers.live(), "a stopped scheduler arms nothing")

	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, timers.live(), 2)
}

func TestRearmFromAppointmentsTable(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := repository.NewAppointmentRepository(db)

	keep := pending(testNow.Add(time.Hour))
	drop := pending(testNow.Add(2 * time.Hour))
	for _, a := range []*models.Appointment{&keep, &drop} {
		a.Kind = models.KindAppointment
		a.Amount = decimal.Zero
		require.NoError(t, repo.Create(ctx, a))
	}

	timers := &fakeTimers{}
	s := newScheduler(repo, &recordingSink{}, timers)
	require.NoError(t, s.Start(ctx))
	require.Len(t, s.Armed(), 2)

	ok, err := repo.Finish(ctx, drop.ID, models.AppointmentCancelled, testNow)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Rearm(ctx))
	armed := s.Armed()
	require.Len(t, armed, 1)
	assert.Equal(t, keep.ID, armed[0].AppointmentID)
}
