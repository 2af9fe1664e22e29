package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/riskguard/riskguard/internal/model"
)

// RiskEventRepository is the Postgres-backed append-only event ledger
type RiskEventRepository struct {
	db DBTX
}

// NewRiskEventRepository creates a new RiskEventRepository
func NewRiskEventRepository(db DBTX) *RiskEventRepository {
	return &RiskEventRepository{db: db}
}

const riskEventColumns = `id, user_id, device_token, event_type, ip_prefix, ua_family, os_family,
		       browser_family, risk_score, action, reasons, typing_features, created_at`

// Append writes a new event and returns its ID. An empty event.ID is filled
// with a fresh UUID; a zero CreatedAt is set to the current time.
func (r *RiskEventRepository) Append(ctx context.Context, event *model.RiskEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	reasons := event.Reasons
	if reasons == nil {
		reasons = []model.ReasonCode{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("failed to encode reasons: %w", err)
	}

	var typingJSON any
	if event.TypingFeatures != nil {
		b, err := json.Marshal(event.TypingFeatures)
		if err != nil {
			return "", fmt.Errorf("failed to encode typing features: %w", err)
		}
		typingJSON = b
	}

	query := `
		INSERT INTO risk_events (id, user_id, device_token, event_type, ip_prefix, ua_family,
		    os_family, browser_family, risk_score, action, reasons, typing_features, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.DeviceToken,
		event.EventType,
		event.IPPrefix,
		event.UAFamily,
		event.OSFamily,
		event.BrowserFamily,
		event.RiskScore,
		event.Action,
		reasonsJSON,
		typingJSON,
		event.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to append risk event: %w", err)
	}
	return event.ID, nil
}

// CountByUserAndType counts the user's events of the given type with
// since <= created_at < until
func (r *RiskEventRepository) CountByUserAndType(ctx context.Context, userID string, eventType model.EventType, since, until time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM risk_events
		WHERE user_id = $1 AND event_type = $2 AND created_at >= $3 AND created_at < $4
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, userID, eventType, since, until).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count risk events: %w", err)
	}
	return n, nil
}

// GetByID retrieves a single event
func (r *RiskEventRepository) GetByID(ctx context.Context, id string) (*model.RiskEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT ` + riskEventColumns + ` FROM risk_events WHERE id = $1`

	event, err := scanRiskEvent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get risk event: %w", err)
	}
	return event, nil
}

// ListByUser returns the user's most recent events, newest first
func (r *RiskEventRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.RiskEvent, error) {
	query := `
		SELECT ` + riskEventColumns + `
		FROM risk_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk events: %w", err)
	}
	defer rows.Close()

	events := []*model.RiskEvent{}
	for rows.Next() {
		event, err := scanRiskEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk event rows: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRiskEvent(s scanner) (*model.RiskEvent, error) {
	var (
		event       model.RiskEvent
		reasonsJSON []byte
		typingJSON  []byte
	)
	err := s.Scan(
		&event.ID,
		&event.UserID,
		&event.DeviceToken,
		&event.EventType,
		&event.IPPrefix,
		&event.UAFamily,
		&event.OSFamily,
		&event.BrowserFamily,
		&event.RiskScore,
		&event.Action,
		&reasonsJSON,
		&typingJSON,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(reasonsJSON, &event.Reasons); err != nil {
		return nil, fmt.Errorf("failed to decode reasons: %w", err)
	}
	if len(typingJSON) > 0 {
		event.TypingFeatures = &model.TypingSample{}
		if err := json.Unmarshal(typingJSON, event.TypingFeatures); err != nil {
			return nil, fmt.Errorf("failed to decode typing features: %w", err)
		}
	}
	return &event, nil
}
