package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/webhook"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.EnrollmentDetail
	active      map[string]bool
	stalled     map[models.EnrollmentStatus][]models.EnrollmentDetail
	created     *models.Enrollment
	statuses    map[string]models.EnrollmentStatus
	stalledFor  []models.EnrollmentStatus
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		if status, ok := m.statuses[id]; ok {
			e.Status = status
		}
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindActiveByStudentCohort(ctx context.Context, studentID, cohortID string) (*models.Enrollment, error) {
	if m.active[studentID+cohortID] {
		return &models.Enrollment{ID: "existing", StudentID: studentID, CohortID: cohortID}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "new-enrollment"
	}
	m.created = enrollment
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.EnrollmentDetail)
	}
	m.enrollments[enrollment.ID] = models.EnrollmentDetail{Enrollment: *enrollment}
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.EnrollmentStatus)
	}
	m.statuses[id] = status
	return nil
}

func (m *mockEnrollmentRepo) UpdateNotes(ctx context.Context, id string, notes string) error {
	return nil
}

func (m *mockEnrollmentRepo) ListStalledInStatus(ctx context.Context, status models.EnrollmentStatus, before time.Time) ([]models.EnrollmentDetail, error) {
	m.stalledFor = append(m.stalledFor, status)
	return m.stalled[status], nil
}

type mockEnrollmentStudentReader struct {
	students map[string]*models.StudentDetail
}

func (m *mockEnrollmentStudentReader) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockEnrollmentCohortReader struct {
	cohorts map[string]*models.CohortDetail
}

func (m *mockEnrollmentCohortReader) FindByID(ctx context.Context, id string) (*models.CohortDetail, error) {
	if c, ok := m.cohorts[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockAbandonedDispatcher struct {
	payloads []webhook.AbandonedEnrollmentPayload
}

func (m *mockAbandonedDispatcher) EnqueueAbandonedEnrollment(payload webhook.AbandonedEnrollmentPayload) error {
	m.payloads = append(m.payloads, payload)
	return nil
}

func newEnrollmentFixture(status models.EnrollmentStatus) (*EnrollmentService, *mockEnrollmentRepo, *mockAbandonedDispatcher) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.EnrollmentDetail{
			"e1": {Enrollment: models.Enrollment{ID: "e1", StudentID: "s1", CohortID: "c1", Status: status}, StudentName: "Ada Pohl", StudentEmail: "ada@example.com"},
		},
	}
	dispatcher := &mockAbandonedDispatcher{}
	svc := NewEnrollmentService(repo,
		&mockEnrollmentStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}},
		&mockEnrollmentCohortReader{cohorts: map[string]*models.CohortDetail{"c1": {Cohort: models.Cohort{ID: "c1", Status: models.CohortEnrollmentOpen, MaxStudents: 8}}}},
		dispatcher, validator.New(), zap.NewNop())
	return svc, repo, dispatcher
}

func TestEnrollmentTransitionFollowsEdge(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture(models.EnrollmentInterested)

	detail, err := svc.Transition(context.Background(), "e1", TransitionRequest{Status: "beginner_form_filled"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentBeginnerFormFilled, detail.Status)
	assert.Equal(t, models.EnrollmentBeginnerFormFilled, repo.statuses["e1"])
}

func TestEnrollmentTransitionRejectsUndefinedEdge(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture(models.EnrollmentInterested)

	_, err := svc.Transition(context.Background(), "e1", TransitionRequest{Status: "paid"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.statuses)
}

func TestEnrollmentTransitionForceSkipsEdgeCheck(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture(models.EnrollmentInterested)

	detail, err := svc.Transition(context.Background(), "e1", TransitionRequest{Status: "paid", Force: true})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentPaid, detail.Status)
	assert.Equal(t, models.EnrollmentPaid, repo.statuses["e1"])
}

func TestEnrollmentTransitionForceCannotLeaveTerminal(t *testing.T) {
	svc, _, _ := newEnrollmentFixture(models.EnrollmentDeclined)

	_, err := svc.Transition(context.Background(), "e1", TransitionRequest{Status: "interested", Force: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentTransitionToAbandonedNotifies(t *testing.T) {
	svc, _, dispatcher := newEnrollmentFixture(models.EnrollmentBeginnerFormFilled)

	_, err := svc.Transition(context.Background(), "e1", TransitionRequest{Status: "abandoned"})
	require.NoError(t, err)
	require.Len(t, dispatcher.payloads, 1)
	assert.Equal(t, "e1", dispatcher.payloads[0].EnrollmentID)
	assert.Equal(t, string(models.EnrollmentBeginnerFormFilled), dispatcher.payloads[0].LastStatus)
}

func TestEnrollmentCreateRejectsDuplicateActive(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture(models.EnrollmentInterested)
	repo.active = map[string]bool{"s1c1": true}

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "s1", CohortID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentCreateRejectsFullCohort(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := NewEnrollmentService(repo,
		&mockEnrollmentStudentReader{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}},
		&mockEnrollmentCohortReader{cohorts: map[string]*models.CohortDetail{
			"c1": {Cohort: models.Cohort{ID: "c1", Status: models.CohortEnrollmentOpen, MaxStudents: 8}, EnrolledCount: 8},
		}},
		&mockAbandonedDispatcher{}, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "s1", CohortID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestEnrollmentCreateRejectsTerminalStatus(t *testing.T) {
	svc, _, _ := newEnrollmentFixture(models.EnrollmentInterested)

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "s1", CohortID: "c1", Status: "declined"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSweepStalledAbandonsOnlyEarlyStatuses(t *testing.T) {
	svc, repo, dispatcher := newEnrollmentFixture(models.EnrollmentInterested)
	repo.stalled = map[models.EnrollmentStatus][]models.EnrollmentDetail{
		models.EnrollmentInterested: {
			{Enrollment: models.Enrollment{ID: "e2", StudentID: "s2", CohortID: "c1", Status: models.EnrollmentInterested}, StudentName: "Ben Ito"},
		},
	}

	swept, err := svc.SweepStalled(context.Background(), 14*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Equal(t, models.EnrollmentAbandoned, repo.statuses["e2"])
	assert.Equal(t, []models.EnrollmentStatus{models.EnrollmentInterested, models.EnrollmentBeginnerFormFilled}, repo.stalledFor)
	require.Len(t, dispatcher.payloads, 1)
	assert.Equal(t, string(models.EnrollmentInterested), dispatcher.payloads[0].LastStatus)
}
