package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/database"
)

type statisticsRow struct {
	UserID            string         `db:"user_id"`
	RejectionsByState types.JSONText `db:"rejections_by_state"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// StatisticsRepository persists per-user rejection counters and the
// singleton job bookkeeping row.
type StatisticsRepository struct {
	db *sqlx.DB
}

// NewStatisticsRepository constructs the repository.
func NewStatisticsRepository(db *sqlx.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// Get returns the user's counters, or empty counters when none exist yet.
func (r *StatisticsRepository) Get(ctx context.Context, tx *sqlx.Tx, userID string) (*models.Statistics, error) {
	const query = `SELECT user_id, rejections_by_state, updated_at FROM user_statistics WHERE user_id = $1`
	var row statisticsRow
	if err := sqlx.GetContext(ctx, database.Ext(r.db, tx), &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewStatistics(userID), nil
		}
		return nil, fmt.Errorf("get statistics for %s: %w", userID, err)
	}
	stats := models.NewStatistics(row.UserID)
	stats.UpdatedAt = row.UpdatedAt
	if len(row.RejectionsByState) > 0 {
		if err := json.Unmarshal(row.RejectionsByState, &stats.RejectionsByState); err != nil {
			return nil, fmt.Errorf("decode statistics for %s: %w", userID, err)
		}
	}
	return stats, nil
}

// Save upserts the user's counters.
func (r *StatisticsRepository) Save(ctx context.Context, tx *sqlx.Tx, stats *models.Statistics) error {
	counters := stats.RejectionsByState
	if counters == nil {
		counters = map[string]int{}
	}
	raw, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("encode statistics for %s: %w", stats.UserID, err)
	}
	const query = `INSERT INTO user_statistics (user_id, rejections_by_state, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id) DO UPDATE SET rejections_by_state = EXCLUDED.rejections_by_state, updated_at = EXCLUDED.updated_at`
	if _, err := database.Ext(r.db, tx).ExecContext(ctx, query, stats.UserID, types.JSONText(raw), stats.UpdatedAt); err != nil {
		return fmt.Errorf("save statistics for %s: %w", stats.UserID, err)
	}
	return nil
}

// GetSystemState reads the bookkeeping row, locking it when tx is set.
// A missing row yields a zero state.
func (r *StatisticsRepository) GetSystemState(ctx context.Context, tx *sqlx.Tx) (*models.SystemState, error) {
	query := `SELECT last_statistics_run_utc, updated_at FROM system_state WHERE id = 1`
	if tx != nil {
		query += ` FOR UPDATE`
	}
	var state models.SystemState
	if err := sqlx.GetContext(ctx, database.Ext(r.db, tx), &state, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.SystemState{}, nil
		}
		return nil, fmt.Errorf("get system state: %w", err)
	}
	return &state, nil
}

// SaveSystemState upserts the bookkeeping row.
func (r *StatisticsRepository) SaveSystemState(ctx context.Context, tx *sqlx.Tx, state *models.SystemState) error {
	const query = `INSERT INTO system_state (id, last_statistics_run_utc, updated_at)
	VALUES (1, $1, $2)
	ON CONFLICT (id) DO UPDATE SET last_statistics_run_utc = EXCLUDED.last_statistics_run_utc, updated_at = EXCLUDED.updated_at`
	if _, err := database.Ext(r.db, tx).ExecContext(ctx, query, state.LastStatisticsRunUTC, state.UpdatedAt); err != nil {
		return fmt.Errorf("save system state: %w", err)
	}
	return nil
}
