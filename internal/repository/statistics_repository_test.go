package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
)

func TestStatisticsRepositoryGetMissingReturnsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_statistics WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnError(sql.ErrNoRows)

	stats, err := NewStatisticsRepository(db).Get(context.Background(), nil, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", stats.UserID)
	assert.Empty(t, stats.RejectionsByState)
}

func TestStatisticsRepositoryGetDecodesCounters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM user_statistics WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "rejections_by_state", "updated_at"}).
			AddRow("user-1", `{"screening":2,"applied":1}`, now))

	stats, err := NewStatisticsRepository(db).Get(context.Background(), nil, "user-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"screening": 2, "applied": 1}, stats.RejectionsByState)
}

func TestStatisticsRepositorySaveAndWatermarkShareTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	repo := NewStatisticsRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM system_state WHERE id = 1 FOR UPDATE")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_statistics")).
		WithArgs("user-1", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO system_state")).
		WithArgs(now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	state, err := repo.GetSystemState(context.Background(), tx)
	require.NoError(t, err)
	assert.Nil(t, state.LastStatisticsRunUTC)

	stats := models.NewStatistics("user-1")
	stats.Increment("screening")
	stats.UpdatedAt = now
	require.NoError(t, repo.Save(context.Background(), tx, stats))

	state.LastStatisticsRunUTC = &now
	state.UpdatedAt = now
	require.NoError(t, repo.SaveSystemState(context.Background(), tx, state))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
