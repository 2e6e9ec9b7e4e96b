// Package notify delivers reminder signals to the notification collaborator.
// Delivery and display are the collaborator's business; sinks only hand the
// message over.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

type Reminder struct {
	PatientRef     string `json:"patient_ref"`
	AppointmentRef string `json:"appointment_ref"`
	Message        string `json:"message"`
}

type Sink interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogSink writes reminders to the structured log.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Notify(_ context.Context, r Reminder) error {
	s.Log.Info().
		Str("patient_ref", r.PatientRef).
		Str("appointment_ref", r.AppointmentRef).
		Msg(r.Message)
	return nil
}

// MultiSink fans a reminder out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, r Reminder) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
