package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingoria/school-ops-api/internal/models"
)

func newFollowUpMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestFollowUpRepositoryAdvanceGuardsStepAndStatus(t *testing.T) {
	db, mock, cleanup := newFollowUpMock(t)
	defer cleanup()
	repo := NewFollowUpRepository(db)

	due := time.Now().UTC().Add(48 * time.Hour)
	mock.ExpectExec("UPDATE automated_follow_ups").
		WithArgs("fu-1", models.FollowUpOngoing, sqlmock.AnyArg(), sqlmock.AnyArg(), 1,
			models.FollowUpActivated, models.FollowUpOngoing).
		WillReturnResult(sqlmock.NewResult(0, 1))

	advanced, err := repo.Advance(context.Background(), "fu-1", 1, models.FollowUpOngoing, &due)
	require.NoError(t, err)
	assert.True(t, advanced)

	// A stale step or terminal status matches no row.
	mock.ExpectExec("UPDATE automated_follow_ups").
		WithArgs("fu-1", models.FollowUpOngoing, sqlmock.AnyArg(), sqlmock.AnyArg(), 1,
			models.FollowUpActivated, models.FollowUpOngoing).
		WillReturnResult(sqlmock.NewResult(0, 0))

	advanced, err = repo.Advance(context.Background(), "fu-1", 1, models.FollowUpOngoing, &due)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFollowUpRepositoryFindActiveInstanceMatchesAnySequence(t *testing.T) {
	db, mock, cleanup := newFollowUpMock(t)
	defer cleanup()
	repo := NewFollowUpRepository(db)

	columns := []string{"id", "student_id", "sequence_id", "current_step", "status", "next_due_at", "last_advanced_at", "created_at", "updated_at"}
	mock.ExpectQuery(`WHERE student_id = \$1 AND status IN \(\$2, \$3\)`).
		WithArgs("s-1", models.FollowUpActivated, models.FollowUpOngoing).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("fu-1", "s-1", "seq-2", 1, models.FollowUpOngoing, nil, nil, time.Now(), time.Now()))

	instance, err := repo.FindActiveInstance(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "seq-2", instance.SequenceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFollowUpRepositorySetStatusOnlyTouchesRunningRows(t *testing.T) {
	db, mock, cleanup := newFollowUpMock(t)
	defer cleanup()
	repo := NewFollowUpRepository(db)

	mock.ExpectExec("UPDATE automated_follow_ups").
		WithArgs("fu-1", models.FollowUpCompleted, sqlmock.AnyArg(),
			models.FollowUpActivated, models.FollowUpOngoing).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.SetStatus(context.Background(), "fu-1", models.FollowUpCompleted)
	require.NoError(t, err)
	assert.True(t, updated)

	mock.ExpectExec("UPDATE automated_follow_ups").
		WithArgs("fu-1", models.FollowUpDisabled, sqlmock.AnyArg(),
			models.FollowUpActivated, models.FollowUpOngoing).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err = repo.SetStatus(context.Background(), "fu-1", models.FollowUpDisabled)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
