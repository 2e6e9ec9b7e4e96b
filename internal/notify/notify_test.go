package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-gomail/gomail"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

var sample = Reminder{PatientRef: "patient-1", AppointmentRef: "appt-1", Message: "Upcoming appointment at 11:00"}

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

type fakeGetter map[string]string

func (f fakeGetter) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if v, ok := f[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

type failingSink struct{}

func (failingSink) Notify(context.Context, Reminder) error { return errors.New("sink down") }

func TestLogSinkWritesReminder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, LogSink{Log: zerolog.New(&buf)}.Notify(context.Background(), sample))
	assert.Contains(t, buf.String(), `"appointment_ref":"appt-1"`)
	assert.Contains(t, buf.String(), sample.Message)
}

func TestRedisSinkPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, NewRedisSink(pub, "clinic:reminders").Notify(context.Background(), sample))

	assert.Equal(t, "clinic:reminders", pub.channel)
	var got Reminder
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, sample, got)

	pub.err = errors.New("connection refused")
	err := NewRedisSink(pub, "clinic:reminders").Notify(context.Background(), sample)
	assert.ErrorContains(t, err, "clinic:reminders")
}

func TestEmailSinkResolvesRecipient(t *testing.T) {
	sender := &fakeSender{}
	resolver := NewRedisResolver(fakeGetter{"patient:patient-1:email": "ada@example.com"})
	sink := NewEmailSink(sender, resolver, "clinic@example.com")

	require.NoError(t, sink.Notify(context.Background(), sample))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"ada@example.com"}, sender.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Appointment reminder"}, sender.sent[0].GetHeader("Subject"))

	err := sink.Notify(context.Background(), Reminder{PatientRef: "unknown"})
	assert.ErrorContains(t, err, "no email on file")
	assert.Len(t, sender.sent, 1)
}

func TestMultiSinkDeliversToAll(t *testing.T) {
	pub := &fakePublisher{}
	var buf bytes.Buffer
	multi := MultiSink{failingSink{}, LogSink{Log: zerolog.New(&buf)}, NewRedisSink(pub, "c")}

	err := multi.Notify(context.Background(), sample)
	assert.ErrorContains(t, err, "sink down")
	assert.NotEmpty(t, buf.String())
	assert.NotEmpty(t, pub.payload)
}

type fakeMessages struct {
	sent []*twilioApi.CreateMessageParams
}

func (f *fakeMessages) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.sent = append(f.sent, params)
	return &twilioApi.ApiV2010Message{}, nil
}

func TestSMSSinkTextsPatient(t *testing.T) {
	messages := &fakeMessages{}
	resolver := NewRedisResolver(fakeGetter{"patient:patient-1:phone": "+2348000000000"})
	sink := NewSMSSink(messages, resolver, "+15550001111")

	require.NoError(t, sink.Notify(context.Background(), sample))
	require.Len(t, messages.sent, 1)
	assert.Equal(t, "+2348000000000", *messages.sent[0].To)
	assert.Equal(t, "+15550001111", *messages.sent[0].From)
	assert.Equal(t, sample.Message, *messages.sent[0].Body)

	err := sink.Notify(context.Background(), Reminder{PatientRef: "unknown"})
	assert.ErrorContains(t, err, "no phone on file")
}
