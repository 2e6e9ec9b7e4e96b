package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher is the subset of *redis.Client used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes reminders as JSON on a pub/sub channel.
type RedisSink struct {
	client  Publisher
	channel string
}

func NewRedisSink(client Publisher, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Notify(ctx context.Context, r Reminder) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish reminder to %s: %w", s.channel, err)
	}
	return nil
}

// Getter is the subset of *redis.Client used by RedisResolver.
type Getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisResolver reads patient contact details that the patient-record
// service keeps under "patient:<ref>:email" and "patient:<ref>:phone".
type RedisResolver struct {
	client Getter
}

func NewRedisResolver(client Getter) *RedisResolver {
	return &RedisResolver{client: client}
}

func (r *RedisResolver) EmailFor(ctx context.Context, patientRef string) (string, error) {
	return r.lookup(ctx, patientRef, "email")
}

func (r *RedisResolver) PhoneFor(ctx context.Context, patientRef string) (string, error) {
	return r.lookup(ctx, patientRef, "phone")
}

func (r *RedisResolver) lookup(ctx context.Context, patientRef, kind string) (string, error) {
	v, err := r.client.Get(ctx, "patient:"+patientRef+":"+kind).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("no %s on file for patient %s", kind, patientRef)
	}
	return v, err
}
