package notify

import (
	"context"
	"fmt"

	"github.com/go-gomail/gomail"
)

// RecipientResolver maps an opaque patient reference to an email address.
type RecipientResolver interface {
	EmailFor(ctx context.Context, patientRef string) (string, error)
}

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailSink struct {
	sender   Sender
	resolver RecipientResolver
	from     string
}

func NewEmailSink(sender Sender, resolver RecipientResolver, from string) *EmailSink {
	return &EmailSink{sender: sender, resolver: resolver, from: from}
}

func (s *EmailSink) Notify(ctx context.Context, r Reminder) error {
	to, err := s.resolver.EmailFor(ctx, r.PatientRef)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Appointment reminder")
	m.SetBody("text/plain", r.Message)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("error sending reminder email: %w", err)
	}
	return nil
}
