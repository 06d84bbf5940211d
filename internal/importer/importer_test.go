package importer

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
)

type stubSource struct {
	tables map[string][]Record
}

func (s *stubSource) ListRecords(ctx context.Context, table string) ([]Record, error) {
	return s.tables[table], nil
}

type stubLevels struct {
	levels map[string]*models.LanguageLevel
}

func (s *stubLevels) FindByCode(ctx context.Context, code string) (*models.LanguageLevel, error) {
	if l, ok := s.levels[code]; ok {
		return l, nil
	}
	return nil, sql.ErrNoRows
}

type captureWriters struct {
	students    []*models.Student
	teachers    []*models.Teacher
	products    []*models.Product
	cohorts     []*models.Cohort
	sessions    []*models.WeeklySession
	enrollments []*models.Enrollment
}

type studentCapture struct{ w *captureWriters }

func (c studentCapture) Create(ctx context.Context, student *models.Student) error {
	student.ID = fmt.Sprintf("student-%d", len(c.w.students)+1)
	c.w.students = append(c.w.students, student)
	return nil
}

type teacherCapture struct{ w *captureWriters }

func (c teacherCapture) Create(ctx context.Context, teacher *models.Teacher) error {
	teacher.ID = fmt.Sprintf("teacher-%d", len(c.w.teachers)+1)
	c.w.teachers = append(c.w.teachers, teacher)
	return nil
}

type productCapture struct{ w *captureWriters }

func (c productCapture) Create(ctx context.Context, product *models.Product) error {
	product.ID = fmt.Sprintf("product-%d", len(c.w.products)+1)
	c.w.products = append(c.w.products, product)
	return nil
}

type cohortCapture struct{ w *captureWriters }

func (c cohortCapture) Create(ctx context.Context, cohort *models.Cohort) error {
	cohort.ID = fmt.Sprintf("cohort-%d", len(c.w.cohorts)+1)
	c.w.cohorts = append(c.w.cohorts, cohort)
	return nil
}

type sessionCapture struct{ w *captureWriters }

func (c sessionCapture) Create(ctx context.Context, session *models.WeeklySession) error {
	session.ID = fmt.Sprintf("session-%d", len(c.w.sessions)+1)
	c.w.sessions = append(c.w.sessions, session)
	return nil
}

type enrollmentCapture struct{ w *captureWriters }

func (c enrollmentCapture) Create(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.ID = fmt.Sprintf("enrollment-%d", len(c.w.enrollments)+1)
	c.w.enrollments = append(c.w.enrollments, enrollment)
	return nil
}

func newTestImporter(source *stubSource) (*Importer, *captureWriters) {
	writers := &captureWriters{}
	levels := &stubLevels{levels: map[string]*models.LanguageLevel{
		"a1.1": {ID: "lvl-a11", Code: "a1.1", LevelGroup: "beginner"},
	}}
	imp := NewImporter(source, nil, levels,
		studentCapture{writers}, teacherCapture{writers}, productCapture{writers},
		cohortCapture{writers}, sessionCapture{writers}, enrollmentCapture{writers},
		zap.NewNop())
	return imp, writers
}

func TestRunResolvesReferencesAcrossTables(t *testing.T) {
	source := &stubSource{tables: map[string][]Record{
		tableTeachers: {
			{ID: "recT1", Fields: map[string]interface{}{"Name": "Mia Kranz", "Email": "mia@school.example", "Onboarding Status": "Active"}},
		},
		tableStudents: {
			{ID: "recS1", Fields: map[string]interface{}{"Name": "Ada Pohl", "Email": "ada@example.com", "Channel": "Word of Mouth", "Desired Level": "A1.1"}},
		},
		tableProducts: {
			{ID: "recP1", Fields: map[string]interface{}{"Name": "Group Course", "Format": "Group", "Location": "Online", "Active": true}},
		},
		tableCohorts: {
			{ID: "recC1", Fields: map[string]interface{}{
				"Product": []interface{}{"recP1"}, "Status": "Enrollment Open",
				"Start Date": "2026-03-02", "Starting Level": "A1.1",
			}},
		},
		tableSessions: {
			{ID: "recW1", Fields: map[string]interface{}{
				"Cohort": []interface{}{"recC1"}, "Teacher": []interface{}{"recT1"},
				"Day": "Wednesday", "Start Time": "18:00", "End Time": "19:30",
			}},
		},
		tableEnrollments: {
			{ID: "recE1", Fields: map[string]interface{}{
				"Student": []interface{}{"recS1"}, "Cohort": []interface{}{"recC1"},
				"Status": "Beginner Form Filled",
			}},
		},
	}}
	imp, writers := newTestImporter(source)

	report, err := imp.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Skipped)

	require.Len(t, writers.enrollments, 1)
	assert.Equal(t, "student-1", writers.enrollments[0].StudentID)
	assert.Equal(t, "cohort-1", writers.enrollments[0].CohortID)
	assert.Equal(t, models.EnrollmentBeginnerFormFilled, writers.enrollments[0].Status)

	require.Len(t, writers.cohorts, 1)
	assert.Equal(t, "product-1", writers.cohorts[0].ProductID)
	assert.Equal(t, "lvl-a11", writers.cohorts[0].StartingLevelID)
	assert.Equal(t, 8, writers.cohorts[0].MaxStudents)

	require.Len(t, writers.sessions, 1)
	assert.Equal(t, "wednesday", writers.sessions[0].DayOfWeek)
	assert.Equal(t, "teacher-1", writers.sessions[0].TeacherID)

	require.Len(t, writers.students, 1)
	require.NotNil(t, writers.students[0].Channel)
	assert.Equal(t, "word_of_mouth", *writers.students[0].Channel)
}

func TestRunSkipsUnmappedEnums(t *testing.T) {
	source := &stubSource{tables: map[string][]Record{
		tableStudents: {
			{ID: "recS1", Fields: map[string]interface{}{"Name": "Ada Pohl", "Email": "ada@example.com", "Channel": "Carrier Pigeon"}},
			{ID: "recS2", Fields: map[string]interface{}{"Name": "Ben Ito", "Email": "ben@example.com", "Channel": "Instagram"}},
		},
	}}
	imp, writers := newTestImporter(source)

	report, err := imp.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "Carrier Pigeon")

	require.Len(t, writers.students, 1)
	assert.Equal(t, "Ben Ito", writers.students[0].FullName)
}

func TestRunSkipsUnresolvedReferences(t *testing.T) {
	source := &stubSource{tables: map[string][]Record{
		tableStudents: {
			{ID: "recS1", Fields: map[string]interface{}{"Name": "Ada Pohl", "Email": "ada@example.com"}},
		},
		tableEnrollments: {
			{ID: "recE1", Fields: map[string]interface{}{
				"Student": []interface{}{"recS1"}, "Cohort": []interface{}{"recMissing"},
				"Status": "Interested",
			}},
		},
	}}
	imp, writers := newTestImporter(source)

	report, err := imp.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, writers.enrollments)
}

func TestResolveRefIsIdempotent(t *testing.T) {
	ids := map[string]string{"recA": "pk-1"}

	first, ok := resolveRef(ids, []string{"recA"})
	require.True(t, ok)
	second, ok := resolveRef(ids, []string{"recA"})
	require.True(t, ok)
	assert.Equal(t, first, second)

	_, ok = resolveRef(ids, []string{"recUnknown"})
	assert.False(t, ok)
	_, ok = resolveRef(ids, nil)
	assert.False(t, ok)
}

func TestEnumMappingNeverGuesses(t *testing.T) {
	channel, ok := mapChannel("  Google Search ")
	require.True(t, ok)
	assert.Equal(t, "google", channel)

	_, ok = mapChannel("smoke signals")
	assert.False(t, ok)

	status, ok := mapEnrollmentStatus("Contract Signed")
	require.True(t, ok)
	assert.Equal(t, models.EnrollmentContractSigned, status)

	_, ok = mapCohortStatus("half open")
	assert.False(t, ok)

	format, ok := mapProductFormat("1:1")
	require.True(t, ok)
	assert.Equal(t, models.ProductFormatPrivate, format)

	day, ok := mapWeekday("WEDNESDAY")
	require.True(t, ok)
	assert.Equal(t, "wednesday", day)
}
