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
	"github.com/lingoria/school-ops-api/pkg/config"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/webhook"
)

type mockCohortRepo struct {
	cohorts   map[string]*models.CohortDetail
	finalized map[string]bool
}

func (m *mockCohortRepo) List(ctx context.Context, filter models.CohortFilter) ([]models.CohortDetail, int, error) {
	return nil, 0, nil
}

func (m *mockCohortRepo) FindByID(ctx context.Context, id string) (*models.CohortDetail, error) {
	if c, ok := m.cohorts[id]; ok {
		copied := *c
		copied.SetupFinalized = copied.SetupFinalized || m.finalized[id]
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCohortRepo) ListOpenByLevelGroups(ctx context.Context, groups []string) ([]models.CohortDetail, error) {
	return nil, nil
}

func (m *mockCohortRepo) Create(ctx context.Context, cohort *models.Cohort) error { return nil }
func (m *mockCohortRepo) Update(ctx context.Context, cohort *models.Cohort) error { return nil }

func (m *mockCohortRepo) MarkSetupFinalized(ctx context.Context, id string) (int64, error) {
	if m.finalized == nil {
		m.finalized = make(map[string]bool)
	}
	if m.finalized[id] || m.cohorts[id].SetupFinalized {
		return 0, nil
	}
	m.finalized[id] = true
	return 1, nil
}

type mockSessionRepo struct {
	sessions map[string][]models.WeeklySessionDetail
}

func (m *mockSessionRepo) ListByCohort(ctx context.Context, cohortID string) ([]models.WeeklySessionDetail, error) {
	return m.sessions[cohortID], nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.WeeklySessionDetail, error) {
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.WeeklySession) error { return nil }
func (m *mockSessionRepo) Update(ctx context.Context, session *models.WeeklySession) error { return nil }
func (m *mockSessionRepo) Delete(ctx context.Context, id string) error                     { return nil }

type mockClassWriter struct {
	existing map[time.Time]bool
	created  []*models.Class
}

func (m *mockClassWriter) CreateBatch(ctx context.Context, classes []*models.Class) error {
	m.created = classes
	return nil
}

func (m *mockClassWriter) ExistingStartTimes(ctx context.Context, cohortID string) (map[time.Time]bool, error) {
	if m.existing == nil {
		return map[time.Time]bool{}, nil
	}
	return m.existing, nil
}

type mockCohortEnrollments struct {
	emails []string
}

func (m *mockCohortEnrollments) ListActiveStudentEmails(ctx context.Context, cohortID string) ([]string, error) {
	return m.emails, nil
}

type mockCohortProducts struct{}

func (m *mockCohortProducts) FindByID(ctx context.Context, id string) (*models.Product, error) {
	return &models.Product{ID: id, Active: true}, nil
}

type mockCohortTeachers struct{}

func (m *mockCohortTeachers) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	return &models.Teacher{ID: id}, nil
}

type mockCalendarDispatcher struct {
	payloads []webhook.CalendarEventPayload
}

func (m *mockCalendarDispatcher) EnqueueCalendarEvent(payload webhook.CalendarEventPayload) error {
	m.payloads = append(m.payloads, payload)
	return nil
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (noopCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (noopCache) DeleteByPattern(ctx context.Context, pattern string) error { return nil }

func newCohortFixture(startDate time.Time, sessions []models.WeeklySessionDetail) (*CohortService, *mockCohortRepo, *mockClassWriter, *mockCalendarDispatcher) {
	repo := &mockCohortRepo{
		cohorts: map[string]*models.CohortDetail{
			"c1": {
				Cohort:           models.Cohort{ID: "c1", ProductID: "p1", Status: models.CohortEnrollmentOpen, MaxStudents: 8, StartDate: startDate},
				ProductName:      "Group Course",
				CurrentLevelCode: "a1.1",
			},
		},
	}
	classes := &mockClassWriter{}
	dispatcher := &mockCalendarDispatcher{}
	svc := NewCohortService(repo,
		&mockSessionRepo{sessions: map[string][]models.WeeklySessionDetail{"c1": sessions}},
		classes,
		&mockCohortEnrollments{emails: []string{"ada@example.com", "ben@example.com"}},
		&mockCohortProducts{}, &mockCohortTeachers{}, dispatcher, noopCache{},
		config.CohortConfig{DefaultGenerateWeeks: 12}, nil, zap.NewNop())
	return svc, repo, classes, dispatcher
}

func wednesdaySession() models.WeeklySessionDetail {
	return models.WeeklySessionDetail{
		WeeklySession: models.WeeklySession{
			ID: "ws1", CohortID: "c1", DayOfWeek: "wednesday",
			StartTime: "18:00", EndTime: "19:30", TeacherID: "t1",
		},
		TeacherName:  "Mia Kranz",
		TeacherEmail: "mia@school.example",
	}
}

func TestFinalizeSetupQueuesEventPerSession(t *testing.T) {
	// 2026-03-02 is a Monday; the first Wednesday on or after it is 03-04.
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	svc, _, _, dispatcher := newCohortFixture(start, []models.WeeklySessionDetail{wednesdaySession()})

	result, err := svc.FinalizeSetup(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.EventsQueued)

	require.Len(t, dispatcher.payloads, 1)
	payload := dispatcher.payloads[0]
	assert.Equal(t, "2026-03-04T18:00:00Z", payload.FirstStartsAt)
	assert.Equal(t, "2026-03-04T19:30:00Z", payload.FirstEndsAt)
	assert.Equal(t, "WE", payload.RecurrenceDay)
	assert.Equal(t, "Group Course A1.1", payload.Title)
	assert.Equal(t, []string{"mia@school.example", "ada@example.com", "ben@example.com"}, payload.AttendeeEmails)
}

func TestFinalizeSetupIsOneShot(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	svc, _, _, dispatcher := newCohortFixture(start, []models.WeeklySessionDetail{wednesdaySession()})

	_, err := svc.FinalizeSetup(context.Background(), "c1")
	require.NoError(t, err)

	_, err = svc.FinalizeSetup(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFinalized.Code, appErrors.FromError(err).Code)
	assert.Len(t, dispatcher.payloads, 1)
}

func TestFinalizeSetupRequiresSessions(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	svc, _, _, _ := newCohortFixture(start, nil)

	_, err := svc.FinalizeSetup(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGenerateClassesSkipsExistingStartTimes(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	svc, _, classes, _ := newCohortFixture(start, []models.WeeklySessionDetail{wednesdaySession()})
	classes.existing = map[time.Time]bool{
		time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC): true,
	}

	result, err := svc.GenerateClasses(context.Background(), "c1", 4)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 1, result.Skipped)

	require.Len(t, classes.created, 3)
	first := classes.created[0]
	assert.Equal(t, time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC), first.StartsAt)
	assert.Equal(t, time.Date(2026, 3, 11, 19, 30, 0, 0, time.UTC), first.EndsAt)
	assert.Equal(t, models.ClassScheduled, first.Status)
	require.NotNil(t, first.WeeklySessionID)
	assert.Equal(t, "ws1", *first.WeeklySessionID)
}

func TestGenerateClassesDefaultsWeeksFromConfig(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	svc, _, classes, _ := newCohortFixture(start, []models.WeeklySessionDetail{wednesdaySession()})

	result, err := svc.GenerateClasses(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, 12, result.Weeks)
	assert.Len(t, classes.created, 12)
}

func TestSessionOccurrenceStartsOnSessionWeekday(t *testing.T) {
	session := models.WeeklySession{DayOfWeek: "wednesday", StartTime: "18:00", EndTime: "19:30"}

	// Start date already on the session weekday.
	first, last, err := sessionOccurrence(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), session)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC), first)
	assert.Equal(t, time.Date(2026, 3, 4, 19, 30, 0, 0, time.UTC), last)

	// Start date after the weekday rolls to the following week.
	first, _, err = sessionOccurrence(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), session)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC), first)

	_, _, err = sessionOccurrence(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), models.WeeklySession{DayOfWeek: "wednesday", StartTime: "19:30", EndTime: "18:00"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
