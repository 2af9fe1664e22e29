package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskguard/riskguard/internal/model"
)

func (m *MemoryDeviceRegistry) registration(deviceToken, userID string) (model.DeviceRegistration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.regs[deviceToken][userID]
	return reg, ok
}

func TestMemoryDeviceRegistry_UpsertIsIdempotentPerPair(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryDeviceRegistry()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, reg.Upsert(ctx, &model.DeviceRegistration{DeviceToken: "tok", UserID: "a", LastSeenAt: t0}))
	require.NoError(t, reg.Upsert(ctx, &model.DeviceRegistration{DeviceToken: "tok", UserID: "a", LastSeenAt: t0.Add(time.Minute)}))
	require.NoError(t, reg.Upsert(ctx, &model.DeviceRegistration{DeviceToken: "tok", UserID: "b", LastSeenAt: t0}))
	require.NoError(t, reg.Upsert(ctx, &model.DeviceRegistration{DeviceToken: "other", UserID: "c", LastSeenAt: t0}))

	n, err := reg.CountDistinctUsers(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = reg.CountDistinctUsers(ctx, "unseen")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryDeviceRegistry_LastSeenNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryDeviceRegistry()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, reg.Upsert(ctx, &model.DeviceRegistration{DeviceToken: "tok", UserID: "a", LastSeenAt: t0.Add(time.Hour)}))
	require.NoError(t, reg.Upsert(ctx, &model.DeviceRegistration{DeviceToken: "tok", UserID: "a", LastSeenAt: t0, OSFamily: "linux"}))

	got, ok := reg.registration("tok", "a")
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), got.LastSeenAt)
	assert.Equal(t, t0.Add(time.Hour), got.FirstSeenAt)
	assert.Equal(t, "linux", got.OSFamily)
}

func TestMemoryDeviceRegistry_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryDeviceRegistry()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = reg.Upsert(ctx, &model.DeviceRegistration{
				DeviceToken: "tok",
				UserID:      "a",
				LastSeenAt:  base.Add(time.Duration(i) * time.Second),
			})
		}(i)
	}
	wg.Wait()

	got, ok := reg.registration("tok", "a")
	require.True(t, ok)
	assert.Equal(t, base.Add(49*time.Second), got.LastSeenAt)
}

func TestMemoryEventLedger_RoundTripPreservesReasonsOrder(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryEventLedger()

	reasons := []model.ReasonCode{model.ReasonYoungAccount, model.ReasonDeviceMultiUser, model.ReasonTypingVariation}
	id, err := ledger.Append(ctx, &model.RiskEvent{
		UserID:    "a",
		EventType: model.EventTypeLogin,
		Reasons:   reasons,
	})
	require.NoError(t, err)

	got, err := ledger.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, reasons, got.Reasons)

	// the stored copy is isolated from the caller
	got.Reasons[0] = model.ReasonNormalBehavior
	again, err := ledger.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonYoungAccount, again.Reasons[0])

	_, err = ledger.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryEventLedger_CountWindowIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryEventLedger()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	since := now.Add(-10 * time.Minute)

	for _, at := range []time.Time{
		since.Add(-time.Second), // before the window
		since,                   // inclusive lower bound
		now.Add(-time.Minute),   // inside
		now,                     // exclusive upper bound
	} {
		_, err := ledger.Append(ctx, &model.RiskEvent{UserID: "a", EventType: model.EventTypeLogin, CreatedAt: at})
		require.NoError(t, err)
	}
	_, err := ledger.Append(ctx, &model.RiskEvent{UserID: "a", EventType: model.EventTypePayment, CreatedAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = ledger.Append(ctx, &model.RiskEvent{UserID: "b", EventType: model.EventTypeLogin, CreatedAt: now.Add(-time.Minute)})
	require.NoError(t, err)

	n, err := ledger.CountByUserAndType(ctx, "a", model.EventTypeLogin, since, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryEventLedger_ListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryEventLedger()
	now := time.Now().UTC()

	for i := range 5 {
		_, err := ledger.Append(ctx, &model.RiskEvent{
			UserID:    "a",
			EventType: model.EventTypeLogin,
			RiskScore: i,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	_, err := ledger.Append(ctx, &model.RiskEvent{UserID: "b", EventType: model.EventTypeLogin, CreatedAt: now})
	require.NoError(t, err)

	events, err := ledger.ListByUser(ctx, "a", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 4, events[0].RiskScore)
	assert.Equal(t, 3, events[1].RiskScore)
	assert.Equal(t, 2, events[2].RiskScore)
}

func TestMemoryFeatureStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFeatureStore()

	f, err := store.GetFeatures(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, f)

	avg := 100.0
	require.NoError(t, store.Upsert(ctx, &model.UserRiskFeatures{UserID: "a", AccountAgeDays: 3, AvgTypingDwell: &avg}))
	avg = 1

	f, err = store.GetFeatures(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.InDelta(t, 100.0, *f.AvgTypingDwell, 1e-9)
	assert.Nil(t, f.StdTypingDwell)
}
