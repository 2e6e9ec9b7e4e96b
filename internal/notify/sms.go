package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// PhoneResolver maps an opaque patient reference to an E.164 number.
type PhoneResolver interface {
	PhoneFor(ctx context.Context, patientRef string) (string, error)
}

// MessageCreator is satisfied by the Api service of a twilio RestClient.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// NewTwilioCreator builds the messaging client from account credentials.
func NewTwilioCreator(accountSID, authToken string) MessageCreator {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return client.Api
}

// SMSSink texts reminders through Twilio.
type SMSSink struct {
	messages MessageCreator
	resolver PhoneResolver
	from     string
}

func NewSMSSink(messages MessageCreator, resolver PhoneResolver, from string) *SMSSink {
	return &SMSSink{messages: messages, resolver: resolver, from: from}
}

func (s *SMSSink) Notify(ctx context.Context, r Reminder) error {
	to, err := s.resolver.PhoneFor(ctx, r.PatientRef)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(r.Message)

	if _, err := s.messages.CreateMessage(params); err != nil {
		return fmt.Errorf("error sending reminder sms: %w", err)
	}
	return nil
}
