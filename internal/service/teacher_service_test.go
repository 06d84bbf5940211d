package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
)

type mockTeacherRepo struct {
	teachers map[string]*models.Teacher
	bookable []models.Teacher
	loads    []models.TeacherSessionLoad
}

func (m *mockTeacherRepo) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	return m.bookable, len(m.bookable), nil
}

func (m *mockTeacherRepo) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := m.teachers[id]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherRepo) ListBookable(ctx context.Context) ([]models.Teacher, error) {
	return m.bookable, nil
}

func (m *mockTeacherRepo) SessionLoads(ctx context.Context) ([]models.TeacherSessionLoad, error) {
	return m.loads, nil
}

func (m *mockTeacherRepo) SessionLoadsForTeacher(ctx context.Context, teacherID string) ([]models.TeacherSessionLoad, error) {
	var out []models.TeacherSessionLoad
	for _, load := range m.loads {
		if load.TeacherID == teacherID {
			out = append(out, load)
		}
	}
	return out, nil
}

func (m *mockTeacherRepo) Create(ctx context.Context, teacher *models.Teacher) error {
	teacher.ID = "t-new"
	return nil
}

func (m *mockTeacherRepo) Update(ctx context.Context, teacher *models.Teacher) error {
	return nil
}

func bookableTeacher(id string) models.Teacher {
	return models.Teacher{
		ID:                  id,
		FullName:            "Teacher " + id,
		AvailableOnline:     true,
		AvailableInPerson:   true,
		AvailableForBooking: true,
		QualifiedUnder16:    true,
		AvailableDays:       pq.StringArray{"monday", "wednesday"},
		MaxWeeklyHours:      10,
		MaxDailyHours:       4,
	}
}

func TestAvailabilityExcludesTeacherAtWeeklyCap(t *testing.T) {
	capped := bookableTeacher("t1")
	free := bookableTeacher("t2")
	repo := &mockTeacherRepo{
		bookable: []models.Teacher{capped, free},
		loads: []models.TeacherSessionLoad{
			// 9.5 committed hours: one more 1h class would exceed the 10h cap.
			{TeacherID: "t1", DayOfWeek: "monday", StartTime: "09:00", EndTime: "12:30"},
			{TeacherID: "t1", DayOfWeek: "wednesday", StartTime: "10:00", EndTime: "13:00"},
			{TeacherID: "t1", DayOfWeek: "friday", StartTime: "14:00", EndTime: "17:00"},
		},
	}
	svc := NewTeacherService(repo, nil, zap.NewNop())

	candidates, err := svc.AvailableForPrivateClass(context.Background(), AvailabilityRequest{
		DayOfWeek: "Monday", Format: "online", DurationHours: 1,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "t2", candidates[0].Teacher.ID)
}

func TestAvailabilityExcludesTeacherAtDailyCap(t *testing.T) {
	teacher := bookableTeacher("t1")
	repo := &mockTeacherRepo{
		bookable: []models.Teacher{teacher},
		loads: []models.TeacherSessionLoad{
			{TeacherID: "t1", DayOfWeek: "monday", StartTime: "09:00", EndTime: "12:30"},
		},
	}
	svc := NewTeacherService(repo, nil, zap.NewNop())

	candidates, err := svc.AvailableForPrivateClass(context.Background(), AvailabilityRequest{
		DayOfWeek: "monday", Format: "online", DurationHours: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)

	// Same teacher still fits on a day with no committed hours.
	candidates, err = svc.AvailableForPrivateClass(context.Background(), AvailabilityRequest{
		DayOfWeek: "wednesday", Format: "online", DurationHours: 1,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 3.5, candidates[0].CommittedWeek)
	assert.Equal(t, 0.0, candidates[0].CommittedOnDay)
}

func TestAvailabilityFiltersDayFormatAndAge(t *testing.T) {
	wrongDay := bookableTeacher("t1")
	wrongDay.AvailableDays = pq.StringArray{"friday"}
	onlineOnly := bookableTeacher("t2")
	onlineOnly.AvailableInPerson = false
	adultsOnly := bookableTeacher("t3")
	adultsOnly.QualifiedUnder16 = false
	match := bookableTeacher("t4")
	repo := &mockTeacherRepo{bookable: []models.Teacher{wrongDay, onlineOnly, adultsOnly, match}}
	svc := NewTeacherService(repo, nil, zap.NewNop())

	candidates, err := svc.AvailableForPrivateClass(context.Background(), AvailabilityRequest{
		DayOfWeek: "monday", Format: "in_person", DurationHours: 1, UnderSixteen: true,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "t4", candidates[0].Teacher.ID)
}

func TestAvailabilityRejectsUnknownWeekday(t *testing.T) {
	svc := NewTeacherService(&mockTeacherRepo{}, nil, zap.NewNop())

	_, err := svc.AvailableForPrivateClass(context.Background(), AvailabilityRequest{
		DayOfWeek: "someday", Format: "online", DurationHours: 1,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAvailabilityIgnoresZeroCaps(t *testing.T) {
	teacher := bookableTeacher("t1")
	teacher.MaxWeeklyHours = 0
	teacher.MaxDailyHours = 0
	repo := &mockTeacherRepo{
		bookable: []models.Teacher{teacher},
		loads: []models.TeacherSessionLoad{
			{TeacherID: "t1", DayOfWeek: "monday", StartTime: "08:00", EndTime: "20:00"},
		},
	}
	svc := NewTeacherService(repo, nil, zap.NewNop())

	candidates, err := svc.AvailableForPrivateClass(context.Background(), AvailabilityRequest{
		DayOfWeek: "monday", Format: "online", DurationHours: 2,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 12.0, candidates[0].CommittedWeek)
}
