package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
)

// Airtable table names in the source base.
const (
	tableTeachers    = "Teachers"
	tableStudents    = "Students"
	tableProducts    = "Products"
	tableCohorts     = "Cohorts"
	tableSessions    = "Weekly Sessions"
	tableEnrollments = "Enrollments"
)

type recordSource interface {
	ListRecords(ctx context.Context, table string) ([]Record, error)
}

type levelReader interface {
	FindByCode(ctx context.Context, code string) (*models.LanguageLevel, error)
}

type studentWriter interface {
	Create(ctx context.Context, student *models.Student) error
}

type teacherWriter interface {
	Create(ctx context.Context, teacher *models.Teacher) error
}

type productWriter interface {
	Create(ctx context.Context, product *models.Product) error
}

type cohortWriter interface {
	Create(ctx context.Context, cohort *models.Cohort) error
}

type sessionWriter interface {
	Create(ctx context.Context, session *models.WeeklySession) error
}

type enrollmentWriter interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
}

// Options controls a migration run.
type Options struct {
	Clean bool
}

// Report accumulates the outcome of one run. Individual record failures are
// recorded and the run continues.
type Report struct {
	Inserted map[string]int
	Skipped  int
	Warnings []string
}

func newReport() *Report {
	return &Report{Inserted: make(map[string]int)}
}

func (r *Report) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) skipf(format string, args ...interface{}) {
	r.Skipped++
	r.warnf(format, args...)
}

// Importer moves records from an Airtable base into the relational schema.
// Pass one inserts tables without foreign keys and builds record-id lookup
// maps; pass two inserts the dependent tables resolving references through
// those maps.
type Importer struct {
	source recordSource
	db     *sqlx.DB

	levels      levelReader
	students    studentWriter
	teachers    teacherWriter
	products    productWriter
	cohorts     cohortWriter
	sessions    sessionWriter
	enrollments enrollmentWriter

	logger *zap.Logger
}

// NewImporter wires an importer. The db handle is only used for --clean.
func NewImporter(
	source recordSource,
	db *sqlx.DB,
	levels levelReader,
	students studentWriter,
	teachers teacherWriter,
	products productWriter,
	cohorts cohortWriter,
	sessions sessionWriter,
	enrollments enrollmentWriter,
	logger *zap.Logger,
) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{
		source:      source,
		db:          db,
		levels:      levels,
		students:    students,
		teachers:    teachers,
		products:    products,
		cohorts:     cohorts,
		sessions:    sessions,
		enrollments: enrollments,
		logger:      logger,
	}
}

// Run executes the two-pass migration and returns its report. A table fetch
// failure aborts the run; a single bad record only produces a warning.
func (i *Importer) Run(ctx context.Context, opts Options) (*Report, error) {
	report := newReport()

	if opts.Clean {
		if err := i.clean(ctx); err != nil {
			return nil, err
		}
	}

	teacherIDs, err := i.importTeachers(ctx, report)
	if err != nil {
		return nil, err
	}
	studentIDs, err := i.importStudents(ctx, report)
	if err != nil {
		return nil, err
	}
	productIDs, err := i.importProducts(ctx, report)
	if err != nil {
		return nil, err
	}

	cohortIDs, err := i.importCohorts(ctx, report, productIDs)
	if err != nil {
		return nil, err
	}
	if err := i.importSessions(ctx, report, cohortIDs, teacherIDs); err != nil {
		return nil, err
	}
	if err := i.importEnrollments(ctx, report, studentIDs, cohortIDs); err != nil {
		return nil, err
	}

	return report, nil
}

// clean empties the target tables in dependency order.
func (i *Importer) clean(ctx context.Context) error {
	tables := []string{
		"attendance_records",
		"classes",
		"weekly_sessions",
		"automated_follow_ups",
		"touchpoints",
		"enrollments",
		"cohorts",
		"students",
		"teachers",
		"products",
	}
	for _, table := range tables {
		if _, err := i.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clean table %s: %w", table, err)
		}
	}
	i.logger.Sugar().Infow("cleaned target tables", "tables", len(tables))
	return nil
}

func (i *Importer) importTeachers(ctx context.Context, report *Report) (map[string]string, error) {
	records, err := i.source.ListRecords(ctx, tableTeachers)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(records))
	for _, rec := range records {
		name := stringField(rec.Fields, "Name")
		email := stringField(rec.Fields, "Email")
		if name == "" || email == "" {
			report.skipf("teacher %s: missing name or email", rec.ID)
			continue
		}

		status := models.TeacherOnboarding
		if raw := stringField(rec.Fields, "Onboarding Status"); raw != "" {
			mapped, ok := mapOnboardingStatus(raw)
			if !ok {
				report.skipf("teacher %s: unmapped onboarding status %q", rec.ID, raw)
				continue
			}
			status = mapped
		}

		days := make([]string, 0)
		for _, raw := range stringSliceField(rec.Fields, "Available Days") {
			day, ok := mapWeekday(raw)
			if !ok {
				report.warnf("teacher %s: unmapped weekday %q dropped", rec.ID, raw)
				continue
			}
			days = append(days, day)
		}

		teacher := &models.Teacher{
			FullName:            name,
			Email:               email,
			OnboardingStatus:    status,
			ContractStatus:      optionalString(rec.Fields, "Contract Status"),
			AvailableOnline:     boolField(rec.Fields, "Available Online"),
			AvailableInPerson:   boolField(rec.Fields, "Available In Person"),
			AvailableForBooking: boolField(rec.Fields, "Available For Booking"),
			QualifiedUnder16:    boolField(rec.Fields, "Qualified Under 16"),
			AvailableDays:       days,
			MaxWeeklyHours:      floatField(rec.Fields, "Max Weekly Hours"),
			MaxDailyHours:       floatField(rec.Fields, "Max Daily Hours"),
			CalendarID:          optionalString(rec.Fields, "Calendar ID"),
		}
		if err := i.teachers.Create(ctx, teacher); err != nil {
			report.warnf("teacher %s: insert failed: %v", rec.ID, err)
			continue
		}
		ids[rec.ID] = teacher.ID
		report.Inserted["teachers"]++
	}
	return ids, nil
}

func (i *Importer) importStudents(ctx context.Context, report *Report) (map[string]string, error) {
	records, err := i.source.ListRecords(ctx, tableStudents)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(records))
	for _, rec := range records {
		name := stringField(rec.Fields, "Name")
		email := stringField(rec.Fields, "Email")
		if name == "" || email == "" {
			report.skipf("student %s: missing name or email", rec.ID)
			continue
		}

		var channel *string
		if raw := stringField(rec.Fields, "Channel"); raw != "" {
			mapped, ok := mapChannel(raw)
			if !ok {
				report.skipf("student %s: unmapped channel %q", rec.ID, raw)
				continue
			}
			channel = &mapped
		}

		var levelID *string
		if code := stringField(rec.Fields, "Desired Level"); code != "" {
			level, err := i.levels.FindByCode(ctx, normalizeEnum(code))
			if err != nil {
				report.warnf("student %s: unknown level code %q, left empty", rec.ID, code)
			} else {
				levelID = &level.ID
			}
		}

		student := &models.Student{
			FullName:       name,
			Email:          email,
			Phone:          optionalString(rec.Fields, "Phone"),
			DesiredLevelID: levelID,
			Channel:        channel,
			Source:         optionalString(rec.Fields, "Source"),
			UnderSixteen:   boolField(rec.Fields, "Under 16"),
		}
		if err := i.students.Create(ctx, student); err != nil {
			report.warnf("student %s: insert failed: %v", rec.ID, err)
			continue
		}
		ids[rec.ID] = student.ID
		report.Inserted["students"]++
	}
	return ids, nil
}

func (i *Importer) importProducts(ctx context.Context, report *Report) (map[string]string, error) {
	records, err := i.source.ListRecords(ctx, tableProducts)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(records))
	for _, rec := range records {
		name := stringField(rec.Fields, "Name")
		if name == "" {
			report.skipf("product %s: missing name", rec.ID)
			continue
		}

		format, ok := mapProductFormat(stringField(rec.Fields, "Format"))
		if !ok {
			report.skipf("product %s: unmapped format %q", rec.ID, stringField(rec.Fields, "Format"))
			continue
		}
		location, ok := mapProductLocation(stringField(rec.Fields, "Location"))
		if !ok {
			report.skipf("product %s: unmapped location %q", rec.ID, stringField(rec.Fields, "Location"))
			continue
		}

		product := &models.Product{
			Name:               name,
			Format:             format,
			Location:           location,
			CheckoutURL:        stringField(rec.Fields, "Checkout URL"),
			ContractTemplateID: optionalString(rec.Fields, "Contract Template"),
			Active:             boolField(rec.Fields, "Active"),
		}
		if err := i.products.Create(ctx, product); err != nil {
			report.warnf("product %s: insert failed: %v", rec.ID, err)
			continue
		}
		ids[rec.ID] = product.ID
		report.Inserted["products"]++
	}
	return ids, nil
}

func (i *Importer) importCohorts(ctx context.Context, report *Report, productIDs map[string]string) (map[string]string, error) {
	records, err := i.source.ListRecords(ctx, tableCohorts)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(records))
	for _, rec := range records {
		productID, ok := resolveRef(productIDs, linkField(rec.Fields, "Product"))
		if !ok {
			report.skipf("cohort %s: unresolved product reference", rec.ID)
			continue
		}

		status, ok := mapCohortStatus(stringField(rec.Fields, "Status"))
		if !ok {
			report.skipf("cohort %s: unmapped status %q", rec.ID, stringField(rec.Fields, "Status"))
			continue
		}

		startDate, err := dateField(rec.Fields, "Start Date")
		if err != nil {
			report.skipf("cohort %s: %v", rec.ID, err)
			continue
		}

		startingLevel, err := i.levels.FindByCode(ctx, normalizeEnum(stringField(rec.Fields, "Starting Level")))
		if err != nil {
			report.skipf("cohort %s: unknown starting level %q", rec.ID, stringField(rec.Fields, "Starting Level"))
			continue
		}
		currentLevel := startingLevel
		if code := stringField(rec.Fields, "Current Level"); code != "" {
			if level, err := i.levels.FindByCode(ctx, normalizeEnum(code)); err == nil {
				currentLevel = level
			} else {
				report.warnf("cohort %s: unknown current level %q, using starting level", rec.ID, code)
			}
		}

		maxStudents := intField(rec.Fields, "Max Students")
		if maxStudents <= 0 {
			maxStudents = 8
		}

		cohort := &models.Cohort{
			ProductID:       productID,
			StartingLevelID: startingLevel.ID,
			CurrentLevelID:  currentLevel.ID,
			Status:          status,
			RoomType:        optionalString(rec.Fields, "Room Type"),
			MaxStudents:     maxStudents,
			StartDate:       startDate,
			SetupFinalized:  boolField(rec.Fields, "Setup Finalized"),
		}
		if err := i.cohorts.Create(ctx, cohort); err != nil {
			report.warnf("cohort %s: insert failed: %v", rec.ID, err)
			continue
		}
		ids[rec.ID] = cohort.ID
		report.Inserted["cohorts"]++
	}
	return ids, nil
}

func (i *Importer) importSessions(ctx context.Context, report *Report, cohortIDs, teacherIDs map[string]string) error {
	records, err := i.source.ListRecords(ctx, tableSessions)
	if err != nil {
		return err
	}

	for _, rec := range records {
		cohortID, ok := resolveRef(cohortIDs, linkField(rec.Fields, "Cohort"))
		if !ok {
			report.skipf("session %s: unresolved cohort reference", rec.ID)
			continue
		}
		teacherID, ok := resolveRef(teacherIDs, linkField(rec.Fields, "Teacher"))
		if !ok {
			report.skipf("session %s: unresolved teacher reference", rec.ID)
			continue
		}
		day, ok := mapWeekday(stringField(rec.Fields, "Day"))
		if !ok {
			report.skipf("session %s: unmapped weekday %q", rec.ID, stringField(rec.Fields, "Day"))
			continue
		}

		session := &models.WeeklySession{
			CohortID:  cohortID,
			TeacherID: teacherID,
			DayOfWeek: day,
			StartTime: stringField(rec.Fields, "Start Time"),
			EndTime:   stringField(rec.Fields, "End Time"),
		}
		if session.StartTime == "" || session.EndTime == "" {
			report.skipf("session %s: missing start or end time", rec.ID)
			continue
		}
		if err := i.sessions.Create(ctx, session); err != nil {
			report.warnf("session %s: insert failed: %v", rec.ID, err)
			continue
		}
		report.Inserted["weekly_sessions"]++
	}
	return nil
}

func (i *Importer) importEnrollments(ctx context.Context, report *Report, studentIDs, cohortIDs map[string]string) error {
	records, err := i.source.ListRecords(ctx, tableEnrollments)
	if err != nil {
		return err
	}

	for _, rec := range records {
		studentID, ok := resolveRef(studentIDs, linkField(rec.Fields, "Student"))
		if !ok {
			report.skipf("enrollment %s: unresolved student reference", rec.ID)
			continue
		}
		cohortID, ok := resolveRef(cohortIDs, linkField(rec.Fields, "Cohort"))
		if !ok {
			report.skipf("enrollment %s: unresolved cohort reference", rec.ID)
			continue
		}
		status, ok := mapEnrollmentStatus(stringField(rec.Fields, "Status"))
		if !ok {
			report.skipf("enrollment %s: unmapped status %q", rec.ID, stringField(rec.Fields, "Status"))
			continue
		}

		enrollment := &models.Enrollment{
			StudentID:       studentID,
			CohortID:        cohortID,
			Status:          status,
			StatusChangedAt: time.Now().UTC(),
			Notes:           optionalString(rec.Fields, "Notes"),
		}
		if err := i.enrollments.Create(ctx, enrollment); err != nil {
			report.warnf("enrollment %s: insert failed: %v", rec.ID, err)
			continue
		}
		report.Inserted["enrollments"]++
	}
	return nil
}

// resolveRef maps the first linked Airtable record id through the lookup map.
// Resolving an already-resolved id returns the same primary key, so running
// the resolution pass twice is harmless.
func resolveRef(ids map[string]string, refs []string) (string, bool) {
	if len(refs) == 0 {
		return "", false
	}
	id, ok := ids[refs[0]]
	return id, ok
}

func stringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func optionalString(fields map[string]interface{}, key string) *string {
	if v, ok := fields[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

func boolField(fields map[string]interface{}, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

func floatField(fields map[string]interface{}, key string) float64 {
	v, _ := fields[key].(float64)
	return v
}

func intField(fields map[string]interface{}, key string) int {
	return int(floatField(fields, key))
}

// linkField extracts an Airtable linked-record field, which arrives as an
// array of record ids.
func linkField(fields map[string]interface{}, key string) []string {
	raw, ok := fields[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringSliceField(fields map[string]interface{}, key string) []string {
	return linkField(fields, key)
}

func dateField(fields map[string]interface{}, key string) (time.Time, error) {
	raw := stringField(fields, key)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing date field %q", key)
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q in field %q", raw, key)
	}
	return t, nil
}
