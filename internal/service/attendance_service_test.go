package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
)

type mockAttendanceRepo struct {
	upserted []*models.AttendanceRecord
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	return nil, 0, nil
}

func (m *mockAttendanceRepo) ListForExport(ctx context.Context, cohortID string, from, to *time.Time) ([]models.AttendanceRecordDetail, error) {
	return nil, nil
}

func (m *mockAttendanceRepo) UpsertBatch(ctx context.Context, records []*models.AttendanceRecord) error {
	m.upserted = append(m.upserted, records...)
	return nil
}

func (m *mockAttendanceRepo) Summary(ctx context.Context, cohortID string) ([]models.AttendanceSummary, error) {
	return nil, nil
}

type mockAttendanceCohorts struct {
	cohorts map[string]*models.CohortDetail
}

func (m *mockAttendanceCohorts) FindByID(ctx context.Context, id string) (*models.CohortDetail, error) {
	if c, ok := m.cohorts[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockAttendanceEnrollments struct {
	studentIDs []string
}

func (m *mockAttendanceEnrollments) ListActiveStudentIDs(ctx context.Context, cohortID string) ([]string, error) {
	return m.studentIDs, nil
}

func newAttendanceFixture() (*AttendanceService, *mockAttendanceRepo) {
	repo := &mockAttendanceRepo{}
	cohorts := &mockAttendanceCohorts{cohorts: map[string]*models.CohortDetail{
		"c1": {Cohort: models.Cohort{ID: "c1"}},
	}}
	enrollments := &mockAttendanceEnrollments{studentIDs: []string{"s1", "s2"}}
	svc := NewAttendanceService(repo, cohorts, enrollments, nil, nil, nil, nil, nil, zap.NewNop())
	return svc, repo
}

func TestBulkMarkUpsertsRosterMarks(t *testing.T) {
	svc, repo := newAttendanceFixture()

	count, err := svc.BulkMark(context.Background(), BulkMarkRequest{
		CohortID: "c1",
		Date:     "2026-03-04",
		Marks: []models.AttendanceMark{
			{StudentID: "s1", Status: models.AttendanceAttended},
			{StudentID: "s2", Status: models.AttendanceNotAttended},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, repo.upserted, 2)
	assert.Equal(t, "c1", repo.upserted[0].CohortID)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), repo.upserted[0].Date)
}

func TestBulkMarkRejectsStudentOutsideRoster(t *testing.T) {
	svc, repo := newAttendanceFixture()

	_, err := svc.BulkMark(context.Background(), BulkMarkRequest{
		CohortID: "c1",
		Date:     "2026-03-04",
		Marks: []models.AttendanceMark{
			{StudentID: "s1", Status: models.AttendanceAttended},
			{StudentID: "s9", Status: models.AttendanceAttended},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.upserted)
}
