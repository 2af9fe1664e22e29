// Package alert publishes operator-visible alerts for failures that are not
// surfaced to API callers.
package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riskguard/riskguard/internal/logger"
)

// Alert kinds
const (
	KindPersistenceFailure = "persistence_failure"
)

// Alert is the JSON message published on the alert channel
type Alert struct {
	Kind       string    `json:"kind"`
	Store      string    `json:"store,omitempty"`
	Message    string    `json:"message"`
	UserID     string    `json:"user_id,omitempty"`
	EventType  string    `json:"event_type,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers alerts to operators
type Notifier interface {
	Notify(ctx context.Context, a Alert)
}

// Publisher is the part of *redis.Client the notifier needs
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes alerts on a Redis pub/sub channel and mirrors them
// to the error log, so an alert survives a Redis outage at least in the logs.
type RedisNotifier struct {
	pub     Publisher
	channel string
	log     *logger.Logger
}

// NewRedisNotifier creates a notifier publishing to channel
func NewRedisNotifier(pub Publisher, channel string, log *logger.Logger) *RedisNotifier {
	return &RedisNotifier{
		pub:     pub,
		channel: channel,
		log:     log.WithComponent("alert"),
	}
}

// Notify logs and publishes a. It never returns an error; a failed publish is
// logged.
func (n *RedisNotifier) Notify(ctx context.Context, a Alert) {
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now().UTC()
	}

	n.log.Error().
		Str("kind", a.Kind).
		Str("store", a.Store).
		Str("user_id", a.UserID).
		Str("event_type", a.EventType).
		Interface("payload", a.Payload).
		Msg(a.Message)

	body, err := json.Marshal(a)
	if err != nil {
		n.log.Error().Err(err).Str("kind", a.Kind).Msg("failed to encode alert")
		return
	}
	if err := n.pub.Publish(ctx, n.channel, body).Err(); err != nil {
		n.log.Error().Err(err).Str("channel", n.channel).Str("kind", a.Kind).Msg("failed to publish alert")
	}
}

// LogNotifier only writes alerts to the log. Used when no alert channel is
// configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithComponent("alert")}
}

// Notify writes a at error level
func (n *LogNotifier) Notify(_ context.Context, a Alert) {
	n.log.Error().
		Str("kind", a.Kind).
		Str("store", a.Store).
		Str("user_id", a.UserID).
		Interface("payload", a.Payload).
		Msg(a.Message)
}
