package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	"github.com/lingoria/school-ops-api/pkg/config"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/webhook"
)

const beginnerCohortsCacheKey = "cohorts:beginner:open"

type cohortRepository interface {
	List(ctx context.Context, filter models.CohortFilter) ([]models.CohortDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.CohortDetail, error)
	ListOpenByLevelGroups(ctx context.Context, groups []string) ([]models.CohortDetail, error)
	Create(ctx context.Context, cohort *models.Cohort) error
	Update(ctx context.Context, cohort *models.Cohort) error
	MarkSetupFinalized(ctx context.Context, id string) (int64, error)
}

type weeklySessionRepository interface {
	ListByCohort(ctx context.Context, cohortID string) ([]models.WeeklySessionDetail, error)
	FindByID(ctx context.Context, id string) (*models.WeeklySessionDetail, error)
	Create(ctx context.Context, session *models.WeeklySession) error
	Update(ctx context.Context, session *models.WeeklySession) error
	Delete(ctx context.Context, id string) error
}

type cohortClassRepository interface {
	CreateBatch(ctx context.Context, classes []*models.Class) error
	ExistingStartTimes(ctx context.Context, cohortID string) (map[time.Time]bool, error)
}

type cohortEnrollmentReader interface {
	ListActiveStudentEmails(ctx context.Context, cohortID string) ([]string, error)
}

type cohortProductReader interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

type cohortTeacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type calendarDispatcher interface {
	EnqueueCalendarEvent(payload webhook.CalendarEventPayload) error
}

type cohortCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CohortService handles cohorts, their weekly sessions, setup finalization
// and class generation.
type CohortService struct {
	repo        cohortRepository
	sessions    weeklySessionRepository
	classes     cohortClassRepository
	enrollments cohortEnrollmentReader
	products    cohortProductReader
	teachers    cohortTeacherReader
	dispatcher  calendarDispatcher
	cache       cohortCache
	cfg         config.CohortConfig
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCohortService constructs the service.
func NewCohortService(
	repo cohortRepository,
	sessions weeklySessionRepository,
	classes cohortClassRepository,
	enrollments cohortEnrollmentReader,
	products cohortProductReader,
	teachers cohortTeacherReader,
	dispatcher calendarDispatcher,
	cache cohortCache,
	cfg config.CohortConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *CohortService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CohortService{
		repo:        repo,
		sessions:    sessions,
		classes:     classes,
		enrollments: enrollments,
		products:    products,
		teachers:    teachers,
		dispatcher:  dispatcher,
		cache:       cache,
		cfg:         cfg,
		validator:   validate,
		logger:      logger,
	}
}

// CohortListRequest describes filters for listing cohorts.
type CohortListRequest struct {
	Status    string `json:"status"`
	ProductID string `json:"product_id"`
	LevelID   string `json:"level_id"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
}

// SaveCohortRequest describes the cohort create/update payload.
type SaveCohortRequest struct {
	ProductID       string  `json:"product_id" validate:"required"`
	StartingLevelID string  `json:"starting_level_id" validate:"required"`
	CurrentLevelID  string  `json:"current_level_id" validate:"required"`
	Status          string  `json:"status" validate:"required"`
	RoomType        *string `json:"room_type"`
	MaxStudents     int     `json:"max_students" validate:"gte=0"`
	StartDate       string  `json:"start_date" validate:"required,datetime=2006-01-02"`
}

// SaveWeeklySessionRequest describes a weekly session payload.
type SaveWeeklySessionRequest struct {
	DayOfWeek string `json:"day_of_week" validate:"required"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
	TeacherID string `json:"teacher_id" validate:"required"`
}

// FinalizeSetupResult reports what finalize-setup queued.
type FinalizeSetupResult struct {
	CohortID     string `json:"cohort_id"`
	EventsQueued int    `json:"events_queued"`
}

// GenerateClassesResult reports what class generation materialised.
type GenerateClassesResult struct {
	CohortID string `json:"cohort_id"`
	Weeks    int    `json:"weeks"`
	Created  int    `json:"created"`
	Skipped  int    `json:"skipped"`
}

// List returns cohorts with pagination.
func (s *CohortService) List(ctx context.Context, req CohortListRequest) ([]models.CohortDetail, *models.Pagination, error) {
	filter := models.CohortFilter{
		Status:    models.CohortStatus(req.Status),
		ProductID: req.ProductID,
		LevelID:   req.LevelID,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown cohort status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cohorts")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns a cohort by id.
func (s *CohortService) Get(ctx context.Context, id string) (*models.CohortDetail, error) {
	cohort, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cohort not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get cohort")
	}
	return cohort, nil
}

// Create registers a new cohort.
func (s *CohortService) Create(ctx context.Context, req SaveCohortRequest) (*models.CohortDetail, error) {
	cohort, err := s.buildCohort(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, cohort); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create cohort")
	}
	s.invalidateBeginnerCache(ctx)
	return s.Get(ctx, cohort.ID)
}

// Update modifies an existing cohort.
func (s *CohortService) Update(ctx context.Context, id string, req SaveCohortRequest) (*models.CohortDetail, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cohort, err := s.buildCohort(ctx, req)
	if err != nil {
		return nil, err
	}
	cohort.ID = id
	cohort.SetupFinalized = existing.SetupFinalized
	cohort.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, cohort); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update cohort")
	}
	s.invalidateBeginnerCache(ctx)
	return s.Get(ctx, id)
}

// ListSessions returns a cohort's weekly sessions.
func (s *CohortService) ListSessions(ctx context.Context, cohortID string) ([]models.WeeklySessionDetail, error) {
	if _, err := s.Get(ctx, cohortID); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByCohort(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// AddSession attaches a weekly session to a cohort.
func (s *CohortService) AddSession(ctx context.Context, cohortID string, req SaveWeeklySessionRequest) (*models.WeeklySessionDetail, error) {
	if _, err := s.Get(ctx, cohortID); err != nil {
		return nil, err
	}
	session, err := s.buildSession(ctx, cohortID, req)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	return s.getSession(ctx, session.ID)
}

// UpdateSession modifies a weekly session.
func (s *CohortService) UpdateSession(ctx context.Context, cohortID, sessionID string, req SaveWeeklySessionRequest) (*models.WeeklySessionDetail, error) {
	existing, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing.CohortID != cohortID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session does not belong to cohort")
	}
	session, err := s.buildSession(ctx, cohortID, req)
	if err != nil {
		return nil, err
	}
	session.ID = sessionID
	session.CreatedAt = existing.CreatedAt
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	return s.getSession(ctx, sessionID)
}

// RemoveSession deletes a weekly session from a cohort.
func (s *CohortService) RemoveSession(ctx context.Context, cohortID, sessionID string) error {
	existing, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if existing.CohortID != cohortID {
		return appErrors.Clone(appErrors.ErrNotFound, "session does not belong to cohort")
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	return nil
}

// FinalizeSetup builds one calendar-event payload per weekly session and
// queues it for the automation service, then flips setup_finalized. The
// operation succeeds at most once per cohort; repeats get a conflict.
func (s *CohortService) FinalizeSetup(ctx context.Context, cohortID string) (*FinalizeSetupResult, error) {
	cohort, err := s.Get(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	if cohort.SetupFinalized {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "")
	}

	sessions, err := s.sessions.ListByCohort(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if len(sessions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cohort has no weekly sessions")
	}

	studentEmails, err := s.enrollments.ListActiveStudentEmails(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}

	payloads := make([]webhook.CalendarEventPayload, 0, len(sessions))
	for _, session := range sessions {
		payload, err := s.buildCalendarPayload(cohort, session, studentEmails)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}

	// Claim the flag before queueing so a concurrent finalize cannot queue
	// the same events twice.
	affected, err := s.repo.MarkSetupFinalized(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize setup")
	}
	if affected == 0 {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "")
	}

	for _, payload := range payloads {
		if err := s.dispatcher.EnqueueCalendarEvent(payload); err != nil {
			s.logger.Error("failed to enqueue calendar event",
				zap.String("cohort_id", cohortID),
				zap.String("session_id", payload.SessionID),
				zap.Error(err))
		}
	}

	s.logger.Info("cohort setup finalized",
		zap.String("cohort_id", cohortID),
		zap.Int("events_queued", len(payloads)))
	return &FinalizeSetupResult{CohortID: cohortID, EventsQueued: len(payloads)}, nil
}

// GenerateClasses materialises dated Class rows from the weekly sessions for
// the requested number of weeks, skipping dates that already have a class.
func (s *CohortService) GenerateClasses(ctx context.Context, cohortID string, weeks int) (*GenerateClassesResult, error) {
	cohort, err := s.Get(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	if weeks <= 0 {
		weeks = s.cfg.DefaultGenerateWeeks
	}
	if weeks <= 0 {
		weeks = 12
	}

	sessions, err := s.sessions.ListByCohort(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if len(sessions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cohort has no weekly sessions")
	}

	existing, err := s.classes.ExistingStartTimes(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect existing classes")
	}

	created := []*models.Class{}
	skipped := 0
	for _, session := range sessions {
		first, last, err := sessionOccurrence(cohort.StartDate, session.WeeklySession)
		if err != nil {
			return nil, err
		}
		duration := last.Sub(first)
		for week := 0; week < weeks; week++ {
			startsAt := first.AddDate(0, 0, 7*week)
			if existing[startsAt] {
				skipped++
				continue
			}
			sessionID := session.ID
			created = append(created, &models.Class{
				CohortID:        cohortID,
				WeeklySessionID: &sessionID,
				TeacherID:       session.TeacherID,
				Status:          models.ClassScheduled,
				StartsAt:        startsAt,
				EndsAt:          startsAt.Add(duration),
			})
			existing[startsAt] = true
		}
	}

	if err := s.classes.CreateBatch(ctx, created); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create classes")
	}

	s.logger.Info("classes generated",
		zap.String("cohort_id", cohortID),
		zap.Int("created", len(created)),
		zap.Int("skipped", skipped))
	return &GenerateClassesResult{CohortID: cohortID, Weeks: weeks, Created: len(created), Skipped: skipped}, nil
}

// AvailableBeginnerCohorts lists open-enrollment cohorts at a beginner level
// with free capacity. Results are cached in Redis with a short TTL.
func (s *CohortService) AvailableBeginnerCohorts(ctx context.Context) ([]models.CohortDetail, error) {
	var cached []models.CohortDetail
	if err := s.cache.Get(ctx, beginnerCohortsCacheKey, &cached); err == nil {
		return cached, nil
	} else if err != appErrors.ErrCacheMiss {
		s.logger.Warn("beginner cohorts cache read failed", zap.Error(err))
	}

	cohorts, err := s.repo.ListOpenByLevelGroups(ctx, models.BeginnerLevelGroups)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list beginner cohorts")
	}

	if err := s.cache.Set(ctx, beginnerCohortsCacheKey, cohorts, s.cfg.BeginnerCacheTTL); err != nil {
		s.logger.Warn("beginner cohorts cache write failed", zap.Error(err))
	}
	return cohorts, nil
}

func (s *CohortService) buildCohort(ctx context.Context, req SaveCohortRequest) (*models.Cohort, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	status := models.CohortStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown cohort status")
	}
	if _, err := s.products.FindByID(ctx, req.ProductID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "product_id does not reference a known product")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve product")
	}
	startDate, err := time.ParseInLocation("2006-01-02", req.StartDate, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be YYYY-MM-DD")
	}
	return &models.Cohort{
		ProductID:       req.ProductID,
		StartingLevelID: req.StartingLevelID,
		CurrentLevelID:  req.CurrentLevelID,
		Status:          status,
		RoomType:        req.RoomType,
		MaxStudents:     req.MaxStudents,
		StartDate:       startDate,
	}, nil
}

func (s *CohortService) buildSession(ctx context.Context, cohortID string, req SaveWeeklySessionRequest) (*models.WeeklySession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	day := strings.ToLower(req.DayOfWeek)
	if _, ok := models.Weekdays[day]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown day_of_week")
	}
	if req.EndTime <= req.StartTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	if _, err := s.teachers.FindByID(ctx, req.TeacherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "teacher_id does not reference a known teacher")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher")
	}
	return &models.WeeklySession{
		CohortID:  cohortID,
		DayOfWeek: day,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		TeacherID: req.TeacherID,
	}, nil
}

func (s *CohortService) getSession(ctx context.Context, id string) (*models.WeeklySessionDetail, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get session")
	}
	return session, nil
}

func (s *CohortService) buildCalendarPayload(cohort *models.CohortDetail, session models.WeeklySessionDetail, studentEmails []string) (webhook.CalendarEventPayload, error) {
	day, ok := models.Weekdays[session.DayOfWeek]
	if !ok {
		return webhook.CalendarEventPayload{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("session %s has unknown day_of_week", session.ID))
	}
	first, last, err := sessionOccurrence(cohort.StartDate, session.WeeklySession)
	if err != nil {
		return webhook.CalendarEventPayload{}, err
	}

	attendees := make([]string, 0, len(studentEmails)+1)
	attendees = append(attendees, session.TeacherEmail)
	attendees = append(attendees, studentEmails...)

	calendarID := ""
	if session.CalendarID != nil {
		calendarID = *session.CalendarID
	}
	roomType := ""
	if cohort.RoomType != nil {
		roomType = *cohort.RoomType
	}

	return webhook.CalendarEventPayload{
		CohortID:       cohort.ID,
		SessionID:      session.ID,
		Title:          fmt.Sprintf("%s %s", cohort.ProductName, strings.ToUpper(cohort.CurrentLevelCode)),
		FirstStartsAt:  first.Format(time.RFC3339),
		FirstEndsAt:    last.Format(time.RFC3339),
		RecurrenceDay:  day.Abbrev,
		TeacherEmail:   session.TeacherEmail,
		CalendarID:     calendarID,
		AttendeeEmails: attendees,
		RoomType:       roomType,
	}, nil
}

func (s *CohortService) invalidateBeginnerCache(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, "cohorts:beginner:*"); err != nil {
		s.logger.Warn("failed to invalidate beginner cohorts cache", zap.Error(err))
	}
}

// sessionOccurrence computes a session's first concrete start and end
// instants: the first date on or after the cohort start date that falls on
// the session's weekday, combined with its wall-clock times in UTC.
func sessionOccurrence(startDate time.Time, session models.WeeklySession) (time.Time, time.Time, error) {
	day, ok := models.Weekdays[session.DayOfWeek]
	if !ok {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "unknown day_of_week")
	}
	startMin, okS := parseClock(session.StartTime)
	endMin, okE := parseClock(session.EndTime)
	if !okS || !okE || endMin <= startMin {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "session times must be valid HH:MM with end after start")
	}

	base := time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday) - int(base.Weekday()) + 7) % 7
	date := base.AddDate(0, 0, offset)

	first := date.Add(time.Duration(startMin) * time.Minute)
	last := date.Add(time.Duration(endMin) * time.Minute)
	return first, last, nil
}
