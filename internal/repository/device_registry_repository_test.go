package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskguard/riskguard/internal/model"
)

func TestDeviceRegistryUpsert_KeepsNewestLastSeen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeviceRegistryRepository(db)
	seen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := &model.DeviceRegistration{
		DeviceToken:   "tok",
		UserID:        "user-1",
		UAFamily:      "desktop",
		OSFamily:      "macos",
		BrowserFamily: "safari",
		LastSeenAt:    seen,
	}

	mock.ExpectExec(`INSERT INTO device_registrations .* ON CONFLICT \(device_token, user_id\) DO UPDATE\s+SET last_seen_at = GREATEST`).
		WithArgs("tok", "user-1", "desktop", "macos", "safari", seen, seen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), reg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRegistryUpsert_RejectsIncompleteKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeviceRegistryRepository(db)
	err = repo.Upsert(context.Background(), &model.DeviceRegistration{DeviceToken: "tok"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRegistryUpsert_WrapsDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO device_registrations`).WillReturnError(boom)

	repo := NewDeviceRegistryRepository(db)
	err = repo.Upsert(context.Background(), &model.DeviceRegistration{DeviceToken: "tok", UserID: "u", LastSeenAt: time.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestDeviceRegistryCountDistinctUsers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(DISTINCT user_id\) FROM device_registrations WHERE device_token = \$1`).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := NewDeviceRegistryRepository(db).CountDistinctUsers(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
