package repository

import (
	"context"
	"fmt"

	"github.com/riskguard/riskguard/internal/model"
)

// DeviceRegistryRepository persists device/user registrations
type DeviceRegistryRepository struct {
	db DBTX
}

// NewDeviceRegistryRepository creates a new DeviceRegistryRepository
func NewDeviceRegistryRepository(db DBTX) *DeviceRegistryRepository {
	return &DeviceRegistryRepository{db: db}
}

// Upsert inserts the (device, user) pair or refreshes its last-seen time and
// families. first_seen_at is never touched after insert and last_seen_at
// never moves backwards.
func (r *DeviceRegistryRepository) Upsert(ctx context.Context, reg *model.DeviceRegistration) error {
	if reg.DeviceToken == "" || reg.UserID == "" {
		return ErrInvalidInput
	}
	firstSeen := reg.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = reg.LastSeenAt
	}

	query := `
		INSERT INTO device_registrations (device_token, user_id, ua_family, os_family,
		    browser_family, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_token, user_id) DO UPDATE
		SET last_seen_at = GREATEST(device_registrations.last_seen_at, EXCLUDED.last_seen_at),
		    ua_family = EXCLUDED.ua_family,
		    os_family = EXCLUDED.os_family,
		    browser_family = EXCLUDED.browser_family
	`
	_, err := r.db.ExecContext(ctx, query,
		reg.DeviceToken,
		reg.UserID,
		reg.UAFamily,
		reg.OSFamily,
		reg.BrowserFamily,
		firstSeen,
		reg.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device registration: %w", err)
	}
	return nil
}

// CountDistinctUsers returns the number of users ever registered on the device
func (r *DeviceRegistryRepository) CountDistinctUsers(ctx context.Context, deviceToken string) (int, error) {
	query := `SELECT COUNT(DISTINCT user_id) FROM device_registrations WHERE device_token = $1`

	var n int
	if err := r.db.QueryRowContext(ctx, query, deviceToken).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count device users: %w", err)
	}
	return n, nil
}
