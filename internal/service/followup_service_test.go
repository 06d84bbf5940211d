package service

import (
	"context"
	"database/sql"
	"errors"
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

type mockFollowUpRepo struct {
	sequences map[string]models.TemplateFollowUpSequence
	messages  map[string][]models.TemplateFollowUpMessage
	instances map[string]*models.AutomatedFollowUpDetail
	active    map[string]string
	due       []models.AutomatedFollowUpDetail

	advanceRaceLost bool
	statusCalls     []models.FollowUpStatus
}

func (m *mockFollowUpRepo) ListSequences(ctx context.Context, activeOnly bool) ([]models.TemplateFollowUpSequence, error) {
	return nil, nil
}

func (m *mockFollowUpRepo) FindSequenceByID(ctx context.Context, id string) (*models.TemplateFollowUpSequence, error) {
	if seq, ok := m.sequences[id]; ok {
		return &seq, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFollowUpRepo) CreateSequence(ctx context.Context, sequence *models.TemplateFollowUpSequence) error {
	sequence.ID = "seq-new"
	return nil
}

func (m *mockFollowUpRepo) UpdateSequence(ctx context.Context, sequence *models.TemplateFollowUpSequence) error {
	return nil
}

func (m *mockFollowUpRepo) ListMessages(ctx context.Context, sequenceID string) ([]models.TemplateFollowUpMessage, error) {
	return m.messages[sequenceID], nil
}

func (m *mockFollowUpRepo) FindMessageByStep(ctx context.Context, sequenceID string, step int) (*models.TemplateFollowUpMessage, error) {
	for _, msg := range m.messages[sequenceID] {
		if msg.StepIndex == step {
			found := msg
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockFollowUpRepo) ReplaceMessages(ctx context.Context, sequenceID string, messages []*models.TemplateFollowUpMessage) error {
	return nil
}

func (m *mockFollowUpRepo) ListInstances(ctx context.Context, filter models.FollowUpFilter) ([]models.AutomatedFollowUpDetail, int, error) {
	return nil, 0, nil
}

func (m *mockFollowUpRepo) FindInstanceByID(ctx context.Context, id string) (*models.AutomatedFollowUpDetail, error) {
	if instance, ok := m.instances[id]; ok {
		copied := *instance
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFollowUpRepo) FindActiveInstance(ctx context.Context, studentID string) (*models.AutomatedFollowUp, error) {
	if id, ok := m.active[studentID]; ok {
		return &m.instances[id].AutomatedFollowUp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFollowUpRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]models.AutomatedFollowUpDetail, error) {
	if limit > 0 && len(m.due) > limit {
		return m.due[:limit], nil
	}
	return m.due, nil
}

func (m *mockFollowUpRepo) CreateInstance(ctx context.Context, instance *models.AutomatedFollowUp) error {
	instance.ID = "fu-new"
	if m.instances == nil {
		m.instances = make(map[string]*models.AutomatedFollowUpDetail)
	}
	m.instances[instance.ID] = &models.AutomatedFollowUpDetail{AutomatedFollowUp: *instance}
	return nil
}

func (m *mockFollowUpRepo) Advance(ctx context.Context, id string, fromStep int, toStatus models.FollowUpStatus, nextDueAt *time.Time) (bool, error) {
	if m.advanceRaceLost {
		return false, nil
	}
	instance, ok := m.instances[id]
	if !ok || instance.CurrentStep != fromStep || instance.Status.Terminal() {
		return false, nil
	}
	instance.CurrentStep = fromStep + 1
	instance.Status = toStatus
	instance.NextDueAt = nextDueAt
	return true, nil
}

func (m *mockFollowUpRepo) SetStatus(ctx context.Context, id string, status models.FollowUpStatus) (bool, error) {
	m.statusCalls = append(m.statusCalls, status)
	instance, ok := m.instances[id]
	if !ok || instance.Status.Terminal() {
		return false, nil
	}
	instance.Status = status
	return true, nil
}

type mockFollowUpStudents struct {
	students map[string]*models.StudentDetail
}

func (m *mockFollowUpStudents) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockFollowUpEnrollments struct {
	rows []models.EnrollmentDetail
}

func (m *mockFollowUpEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return m.rows, len(m.rows), nil
}

type mockFollowUpDispatcher struct {
	payloads []webhook.FollowUpMessagePayload
	err      error
}

func (m *mockFollowUpDispatcher) EnqueueFollowUpMessage(payload webhook.FollowUpMessagePayload) error {
	if m.err != nil {
		return m.err
	}
	m.payloads = append(m.payloads, payload)
	return nil
}

type mockTouchpointWriter struct {
	touchpoints []models.Touchpoint
}

func (m *mockTouchpointWriter) Create(ctx context.Context, touchpoint *models.Touchpoint) error {
	m.touchpoints = append(m.touchpoints, *touchpoint)
	return nil
}

func newFollowUpFixture() (*FollowUpService, *mockFollowUpRepo, *mockFollowUpDispatcher, *mockTouchpointWriter) {
	repo := &mockFollowUpRepo{
		sequences: map[string]models.TemplateFollowUpSequence{
			"seq1": {ID: "seq1", Name: "Trial nurture", Trigger: "trial_no_show", Active: true},
		},
		messages: map[string][]models.TemplateFollowUpMessage{
			"seq1": {
				{ID: "m1", SequenceID: "seq1", StepIndex: 1, DelayHours: 0, Content: "Hi {{name}}"},
				{ID: "m2", SequenceID: "seq1", StepIndex: 2, DelayHours: 48, Content: "Still interested?"},
			},
		},
		instances: map[string]*models.AutomatedFollowUpDetail{},
		active:    map[string]string{},
	}
	dispatcher := &mockFollowUpDispatcher{}
	touchpoints := &mockTouchpointWriter{}
	svc := NewFollowUpService(repo,
		&mockFollowUpStudents{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}},
		&mockFollowUpEnrollments{},
		dispatcher, touchpoints, validator.New(), zap.NewNop())
	return svc, repo, dispatcher, touchpoints
}

func TestFollowUpStartActivatesWithFirstDelay(t *testing.T) {
	svc, repo, _, _ := newFollowUpFixture()

	instance, err := svc.Start(context.Background(), StartFollowUpRequest{StudentID: "s1", SequenceID: "seq1"})
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpActivated, instance.Status)
	assert.Equal(t, 0, instance.CurrentStep)
	require.NotNil(t, repo.instances["fu-new"].NextDueAt)
}

func TestFollowUpStartRejectsRunningInstance(t *testing.T) {
	svc, repo, _, _ := newFollowUpFixture()
	repo.instances["fu1"] = &models.AutomatedFollowUpDetail{
		AutomatedFollowUp: models.AutomatedFollowUp{ID: "fu1", StudentID: "s1", SequenceID: "seq1", Status: models.FollowUpOngoing},
	}
	repo.active["s1"] = "fu1"

	_, err := svc.Start(context.Background(), StartFollowUpRequest{StudentID: "s1", SequenceID: "seq1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestFollowUpStartRejectsWhileAnotherSequenceRuns(t *testing.T) {
	svc, repo, _, _ := newFollowUpFixture()
	repo.sequences["seq2"] = models.TemplateFollowUpSequence{ID: "seq2", Name: "Post trial", Trigger: "trial_completed", Active: true}
	repo.messages["seq2"] = []models.TemplateFollowUpMessage{
		{ID: "m3", SequenceID: "seq2", StepIndex: 1, DelayHours: 0, Content: "How was it?"},
	}
	repo.instances["fu1"] = &models.AutomatedFollowUpDetail{
		AutomatedFollowUp: models.AutomatedFollowUp{ID: "fu1", StudentID: "s1", SequenceID: "seq1", Status: models.FollowUpOngoing},
	}
	repo.active["s1"] = "fu1"

	_, err := svc.Start(context.Background(), StartFollowUpRequest{StudentID: "s1", SequenceID: "seq2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.NotContains(t, repo.instances, "fu-new")
}

func TestFollowUpStartRejectsConvertedStudent(t *testing.T) {
	_, repo, _, _ := newFollowUpFixture()
	converted := NewFollowUpService(repo,
		&mockFollowUpStudents{students: map[string]*models.StudentDetail{"s1": {Student: models.Student{ID: "s1"}}}},
		&mockFollowUpEnrollments{rows: []models.EnrollmentDetail{
			{Enrollment: models.Enrollment{ID: "e1", StudentID: "s1", Status: models.EnrollmentPaid}},
		}},
		&mockFollowUpDispatcher{}, &mockTouchpointWriter{}, validator.New(), zap.NewNop())

	_, err := converted.Start(context.Background(), StartFollowUpRequest{StudentID: "s1", SequenceID: "seq1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEligible.Code, appErrors.FromError(err).Code)
}

func TestFollowUpStartRejectsInactiveSequence(t *testing.T) {
	svc, repo, _, _ := newFollowUpFixture()
	repo.sequences["seq1"] = models.TemplateFollowUpSequence{ID: "seq1", Trigger: "trial_no_show", Active: false}

	_, err := svc.Start(context.Background(), StartFollowUpRequest{StudentID: "s1", SequenceID: "seq1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEligible.Code, appErrors.FromError(err).Code)
}

func TestFollowUpAdvanceDeliversAndRecordsTouchpoint(t *testing.T) {
	svc, repo, dispatcher, touchpoints := newFollowUpFixture()
	phone := "+4915112345678"
	repo.instances["fu1"] = &models.AutomatedFollowUpDetail{
		AutomatedFollowUp: models.AutomatedFollowUp{ID: "fu1", StudentID: "s1", SequenceID: "seq1", CurrentStep: 0, Status: models.FollowUpActivated},
		StudentName:       "Ada Pohl",
		StudentEmail:      "ada@example.com",
		StudentPhone:      &phone,
	}

	instance, err := svc.Advance(context.Background(), "fu1")
	require.NoError(t, err)
	assert.Equal(t, 1, instance.CurrentStep)
	assert.Equal(t, models.FollowUpOngoing, instance.Status)
	require.NotNil(t, instance.NextDueAt)

	require.Len(t, dispatcher.payloads, 1)
	assert.Equal(t, 1, dispatcher.payloads[0].StepIndex)
	assert.Equal(t, "Hi {{name}}", dispatcher.payloads[0].Content)
	assert.Equal(t, phone, dispatcher.payloads[0].Phone)

	require.Len(t, touchpoints.touchpoints, 1)
	assert.Equal(t, models.TouchpointOutbound, touchpoints.touchpoints[0].Direction)
	require.NotNil(t, touchpoints.touchpoints[0].FollowUpID)
	assert.Equal(t, "fu1", *touchpoints.touchpoints[0].FollowUpID)
}

func TestFollowUpAdvancePastLastMessageCompletes(t *testing.T) {
	svc, repo, dispatcher, _ := newFollowUpFixture()
	repo.instances["fu1"] = &models.AutomatedFollowUpDetail{
		AutomatedFollowUp: models.AutomatedFollowUp{ID: "fu1", StudentID: "s1", SequenceID: "seq1", CurrentStep: 2, Status: models.FollowUpOngoing},
	}

	instance, err := svc.Advance(context.Background(), "fu1")
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpCompleted, instance.Status)
	assert.Empty(t, dispatcher.payloads)

	// A second advance hits the frozen terminal state.
	_, err = svc.Advance(context.Background(), "fu1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFollowUpFrozen.Code, appErrors.FromError(err).Code)
}

func TestFollowUpAdvanceLostRaceIsNoOp(t *testing.T) {
	svc, repo, dispatcher, _ := newFollowUpFixture()
	repo.advanceRaceLost = true
	repo.instances["fu1"] = &models.AutomatedFollowUpDetail{
		AutomatedFollowUp: models.AutomatedFollowUp{ID: "fu1", StudentID: "s1", SequenceID: "seq1", CurrentStep: 0, Status: models.FollowUpActivated},
	}

	instance, err := svc.Advance(context.Background(), "fu1")
	require.NoError(t, err)
	assert.Equal(t, 0, instance.CurrentStep)
	assert.Empty(t, dispatcher.payloads)
}

func TestFollowUpAdvanceEnqueueFailureMarksFailed(t *testing.T) {
	svc, repo, dispatcher, _ := newFollowUpFixture()
	dispatcher.err = errors.New("queue full")
	repo.instances["fu1"] = &models.AutomatedFollowUpDetail{
		AutomatedFollowUp: models.AutomatedFollowUp{ID: "fu1", StudentID: "s1", SequenceID: "seq1", CurrentStep: 0, Status: models.FollowUpActivated},
	}

	_, err := svc.Advance(context.Background(), "fu1")
	require.Error(t, err)
	assert.Contains(t, repo.statusCalls, models.FollowUpFailed)
}

func TestFollowUpStopDisables(t *testing.T) {
	svc, repo, _, _ := newFollowUpFixture()
	repo.instances["fu1"] = &models.AutomatedFollowUpDetail{
		AutomatedFollowUp: models.AutomatedFollowUp{ID: "fu1", StudentID: "s1", SequenceID: "seq1", Status: models.FollowUpOngoing},
	}

	instance, err := svc.Stop(context.Background(), "fu1")
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpDisabled, instance.Status)

	_, err = svc.Stop(context.Background(), "fu1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFollowUpFrozen.Code, appErrors.FromError(err).Code)
}

func TestFollowUpAdvanceDueContinuesPastFailures(t *testing.T) {
	svc, repo, _, _ := newFollowUpFixture()
	repo.instances["fu1"] = &models.AutomatedFollowUpDetail{
		AutomatedFollowUp: models.AutomatedFollowUp{ID: "fu1", StudentID: "s1", SequenceID: "seq1", CurrentStep: 0, Status: models.FollowUpActivated},
	}
	repo.instances["fu2"] = &models.AutomatedFollowUpDetail{
		AutomatedFollowUp: models.AutomatedFollowUp{ID: "fu2", StudentID: "s1", SequenceID: "seq1", CurrentStep: 0, Status: models.FollowUpDisabled},
	}
	repo.due = []models.AutomatedFollowUpDetail{*repo.instances["fu2"], *repo.instances["fu1"]}

	advanced, err := svc.AdvanceDue(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, advanced)
	assert.Equal(t, 1, repo.instances["fu1"].CurrentStep)
}

func TestSequenceMessagesMustBeContiguous(t *testing.T) {
	svc, _, _, _ := newFollowUpFixture()

	_, err := svc.CreateSequence(context.Background(), SaveSequenceRequest{
		Name:    "Broken",
		Trigger: "trial_no_show",
		Messages: []SequenceMessageInput{
			{StepIndex: 1, Content: "a"},
			{StepIndex: 3, Content: "b"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateSequence(context.Background(), SaveSequenceRequest{
		Name:    "Duplicated",
		Trigger: "trial_no_show",
		Messages: []SequenceMessageInput{
			{StepIndex: 1, Content: "a"},
			{StepIndex: 1, Content: "b"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
