package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riskguard/riskguard/internal/model"
)

// In-memory stores with the same semantics as the Postgres repositories,
// used by engine and service tests.

// MemoryDeviceRegistry is an in-memory device registry
type MemoryDeviceRegistry struct {
	mu   sync.RWMutex
	regs map[string]map[string]model.DeviceRegistration // device token -> user id
}

// NewMemoryDeviceRegistry creates an empty in-memory device registry
func NewMemoryDeviceRegistry() *MemoryDeviceRegistry {
	return &MemoryDeviceRegistry{regs: make(map[string]map[string]model.DeviceRegistration)}
}

// Upsert inserts or refreshes a registration
func (m *MemoryDeviceRegistry) Upsert(_ context.Context, reg *model.DeviceRegistration) error {
	if reg.DeviceToken == "" || reg.UserID == "" {
		return ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	users, ok := m.regs[reg.DeviceToken]
	if !ok {
		users = make(map[string]model.DeviceRegistration)
		m.regs[reg.DeviceToken] = users
	}

	existing, ok := users[reg.UserID]
	if !ok {
		stored := *reg
		if stored.FirstSeenAt.IsZero() {
			stored.FirstSeenAt = stored.LastSeenAt
		}
		users[reg.UserID] = stored
		return nil
	}

	if reg.LastSeenAt.After(existing.LastSeenAt) {
		existing.LastSeenAt = reg.LastSeenAt
	}
	existing.UAFamily = reg.UAFamily
	existing.OSFamily = reg.OSFamily
	existing.BrowserFamily = reg.BrowserFamily
	users[reg.UserID] = existing
	return nil
}

// CountDistinctUsers returns the number of users registered on the device
func (m *MemoryDeviceRegistry) CountDistinctUsers(_ context.Context, deviceToken string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.regs[deviceToken]), nil
}

// MemoryEventLedger is an in-memory append-only event ledger
type MemoryEventLedger struct {
	mu     sync.RWMutex
	events []*model.RiskEvent
	byID   map[string]*model.RiskEvent
}

// NewMemoryEventLedger creates an empty in-memory ledger
func NewMemoryEventLedger() *MemoryEventLedger {
	return &MemoryEventLedger{byID: make(map[string]*model.RiskEvent)}
}

// Append stores a copy of event and returns its ID
func (m *MemoryEventLedger) Append(_ context.Context, event *model.RiskEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	stored := copyEvent(event)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, stored)
	m.byID[stored.ID] = stored
	return stored.ID, nil
}

// CountByUserAndType counts matching events with since <= created_at < until
func (m *MemoryEventLedger) CountByUserAndType(_ context.Context, userID string, eventType model.EventType, since, until time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.events {
		if e.UserID != userID || e.EventType != eventType {
			continue
		}
		if e.CreatedAt.Before(since) || !e.CreatedAt.Before(until) {
			continue
		}
		n++
	}
	return n, nil
}

// GetByID returns a copy of one event
func (m *MemoryEventLedger) GetByID(_ context.Context, id string) (*model.RiskEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEvent(e), nil
}

// ListByUser returns up to limit of the user's events, newest first
func (m *MemoryEventLedger) ListByUser(_ context.Context, userID string, limit int) ([]*model.RiskEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*model.RiskEvent{}
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].UserID == userID {
			out = append(out, copyEvent(m.events[i]))
		}
	}
	slices.SortStableFunc(out, func(a, b *model.RiskEvent) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyEvent(e *model.RiskEvent) *model.RiskEvent {
	c := *e
	c.Reasons = slices.Clone(e.Reasons)
	if e.TypingFeatures != nil {
		t := *e.TypingFeatures
		c.TypingFeatures = &t
	}
	return &c
}

// MemoryFeatureStore is an in-memory feature store
type MemoryFeatureStore struct {
	mu       sync.RWMutex
	features map[string]model.UserRiskFeatures
}

// NewMemoryFeatureStore creates an empty in-memory feature store
func NewMemoryFeatureStore() *MemoryFeatureStore {
	return &MemoryFeatureStore{features: make(map[string]model.UserRiskFeatures)}
}

// GetFeatures returns a copy of the user's features, or nil when absent
func (m *MemoryFeatureStore) GetFeatures(_ context.Context, userID string) (*model.UserRiskFeatures, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.features[userID]
	if !ok {
		return nil, nil
	}
	return copyFeatures(&f), nil
}

// Upsert stores a copy of f
func (m *MemoryFeatureStore) Upsert(_ context.Context, f *model.UserRiskFeatures) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[f.UserID] = *copyFeatures(f)
	return nil
}

func copyFeatures(f *model.UserRiskFeatures) *model.UserRiskFeatures {
	c := *f
	if f.AvgTypingDwell != nil {
		v := *f.AvgTypingDwell
		c.AvgTypingDwell = &v
	}
	if f.StdTypingDwell != nil {
		v := *f.StdTypingDwell
		c.StdTypingDwell = &v
	}
	return &c
}
