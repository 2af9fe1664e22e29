package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/riskguard/riskguard/internal/model"
)

// RiskFeatureRepository reads the offline per-user feature rows
type RiskFeatureRepository struct {
	db DBTX
}

// NewRiskFeatureRepository creates a new RiskFeatureRepository
func NewRiskFeatureRepository(db DBTX) *RiskFeatureRepository {
	return &RiskFeatureRepository{db: db}
}

// GetFeatures returns the user's features, or nil without error when the
// user has no row yet
func (r *RiskFeatureRepository) GetFeatures(ctx context.Context, userID string) (*model.UserRiskFeatures, error) {
	query := `
		SELECT user_id, account_age_days, device_degree, ip_degree, avg_typing_dwell,
		       std_typing_dwell, typing_baseline_count, updated_at
		FROM user_risk_features
		WHERE user_id = $1
	`
	var (
		f        model.UserRiskFeatures
		avgDwell sql.NullFloat64
		stdDwell sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&f.UserID,
		&f.AccountAgeDays,
		&f.DeviceDegree,
		&f.IPDegree,
		&avgDwell,
		&stdDwell,
		&f.TypingBaselineCount,
		&f.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user risk features: %w", err)
	}

	if avgDwell.Valid {
		f.AvgTypingDwell = &avgDwell.Float64
	}
	if stdDwell.Valid {
		f.StdTypingDwell = &stdDwell.Float64
	}
	return &f, nil
}
