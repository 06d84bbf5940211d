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

func newEnrollmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryUpdateStatusStampsChangeTime(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("e-1", models.EnrollmentPaid, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "e-1", models.EnrollmentPaid)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListStalledInStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	cutoff := time.Now().UTC().Add(-14 * 24 * time.Hour)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "cohort_id", "status", "status_changed_at",
		"notes", "created_at", "updated_at",
		"student_name", "student_email", "product_name", "cohort_level_code",
	}).AddRow("e-1", "s-1", "c-1", "interested", now.Add(-20*24*time.Hour),
		nil, now, now, "Ada Pohl", "ada@example.com", "Group Course", "a1.1")

	mock.ExpectQuery("FROM enrollments e").
		WithArgs(models.EnrollmentInterested, cutoff).
		WillReturnRows(rows)

	stalled, err := repo.ListStalledInStatus(context.Background(), models.EnrollmentInterested, cutoff)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "e-1", stalled[0].ID)
	assert.Equal(t, models.EnrollmentInterested, stalled[0].Status)
	assert.Equal(t, "Ada Pohl", stalled[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
