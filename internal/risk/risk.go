// Package risk implements behavioral risk scoring for security-sensitive actions.
//
// Every evaluation reads a handful of independent signals (device sharing,
// short and daily event velocity, account age and graph-degree features,
// keystroke timing) concurrently, then feeds the resulting Observation through
// an ordered table of rule groups. The summed weights are capped at 100 and
// mapped onto allow / step_up / hold / block.
package risk

import (
	"context"
	"time"

	"github.com/riskguard/riskguard/internal/model"
)

// Velocity windows
const (
	ShortWindow = 10 * time.Minute
	DailyWindow = 24 * time.Hour
)

// MaxScore caps the summed signal weights
const MaxScore = 100

// Signal names used in logs and metrics when a read degrades
const (
	SignalDeviceUsers = "device_users"
	SignalVelocity10m = "velocity_10m"
	SignalVelocity24h = "velocity_24h"
	SignalFeatures    = "user_features"
)

// DeviceRegistry maps device tokens to the users seen on them
type DeviceRegistry interface {
	// Upsert records that reg.UserID was seen on reg.DeviceToken at reg.LastSeenAt
	Upsert(ctx context.Context, reg *model.DeviceRegistration) error
	// CountDistinctUsers returns how many users were ever registered on the device
	CountDistinctUsers(ctx context.Context, deviceToken string) (int, error)
}

// EventLedger is the append-only history of scored events
type EventLedger interface {
	Append(ctx context.Context, event *model.RiskEvent) (string, error)
	// CountByUserAndType counts events with since <= created_at < until
	CountByUserAndType(ctx context.Context, userID string, eventType model.EventType, since, until time.Time) (int, error)
	GetByID(ctx context.Context, id string) (*model.RiskEvent, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.RiskEvent, error)
}

// FeatureStore exposes the offline per-user aggregates. A user without a row
// yields (nil, nil).
type FeatureStore interface {
	GetFeatures(ctx context.Context, userID string) (*model.UserRiskFeatures, error)
}

// Observation is everything the rules look at for one evaluation. A nil
// pointer means the signal was unavailable (absent or degraded).
type Observation struct {
	Features    *model.UserRiskFeatures
	DeviceUsers *int
	Velocity10m *int
	Velocity24h *int
	Typing      *model.TypingSample
	// Degraded lists the signals whose reads failed
	Degraded []string
}
