package service

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	ListBookable(ctx context.Context) ([]models.Teacher, error)
	SessionLoads(ctx context.Context) ([]models.TeacherSessionLoad, error)
	SessionLoadsForTeacher(ctx context.Context, teacherID string) ([]models.TeacherSessionLoad, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
}

// TeacherService handles teacher records, workload math and the
// private-class availability matcher.
type TeacherService struct {
	repo      teacherRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs the service.
func NewTeacherService(repo teacherRepository, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TeacherService{repo: repo, validator: validate, logger: logger}
	svc.validator.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := models.Weekdays[strings.ToLower(fl.Field().String())]
		return ok
	})
	return svc
}

// TeacherListRequest describes filters for listing teachers.
type TeacherListRequest struct {
	Search           string `json:"search"`
	OnboardingStatus string `json:"onboarding_status"`
	BookingOnly      bool   `json:"booking_only"`
	Page             int    `json:"page"`
	PageSize         int    `json:"page_size"`
	SortBy           string `json:"sort_by"`
	SortOrder        string `json:"sort_order"`
}

// SaveTeacherRequest describes the create/update payload.
type SaveTeacherRequest struct {
	FullName            string   `json:"full_name" validate:"required,min=2"`
	Email               string   `json:"email" validate:"required,email"`
	OnboardingStatus    string   `json:"onboarding_status" validate:"required"`
	ContractStatus      *string  `json:"contract_status"`
	AvailableOnline     bool     `json:"available_online"`
	AvailableInPerson   bool     `json:"available_in_person"`
	AvailableForBooking bool     `json:"available_for_booking"`
	QualifiedUnder16    bool     `json:"qualified_under_16"`
	AvailableDays       []string `json:"available_days" validate:"dive,weekday"`
	MaxWeeklyHours      float64  `json:"max_weekly_hours" validate:"gte=0"`
	MaxDailyHours       float64  `json:"max_daily_hours" validate:"gte=0"`
	CalendarID          *string  `json:"calendar_id"`
}

// AvailabilityRequest is the matcher input.
type AvailabilityRequest struct {
	DayOfWeek     string  `json:"day_of_week" validate:"required,weekday"`
	Format        string  `json:"format" validate:"required,oneof=online in_person"`
	DurationHours float64 `json:"duration_hours" validate:"required,gt=0,lte=8"`
	UnderSixteen  bool    `json:"under_sixteen"`
}

// List returns teachers with pagination.
func (s *TeacherService) List(ctx context.Context, req TeacherListRequest) ([]models.Teacher, *models.Pagination, error) {
	filter := models.TeacherFilter{
		Search:           strings.TrimSpace(req.Search),
		OnboardingStatus: models.TeacherOnboardingStatus(req.OnboardingStatus),
		BookingOnly:      req.BookingOnly,
		Page:             req.Page,
		PageSize:         req.PageSize,
		SortBy:           req.SortBy,
		SortOrder:        req.SortOrder,
	}
	if filter.OnboardingStatus != "" && !filter.OnboardingStatus.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown onboarding_status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get teacher")
	}
	return teacher, nil
}

// Create registers a new teacher.
func (s *TeacherService) Create(ctx context.Context, req SaveTeacherRequest) (*models.Teacher, error) {
	teacher, err := s.buildTeacher(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// Update modifies an existing teacher.
func (s *TeacherService) Update(ctx context.Context, id string, req SaveTeacherRequest) (*models.Teacher, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	teacher, err := s.buildTeacher(req)
	if err != nil {
		return nil, err
	}
	teacher.ID = id
	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return s.Get(ctx, id)
}

// Workload reports a teacher's committed weekly and per-day hours against
// the configured caps.
func (s *TeacherService) Workload(ctx context.Context, id string) (*models.TeacherWorkload, error) {
	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	loads, err := s.repo.SessionLoadsForTeacher(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	weekly, daily := aggregateLoads(loads)
	return &models.TeacherWorkload{
		TeacherID:   id,
		WeeklyHours: weekly,
		DailyHours:  daily,
		MaxWeekly:   teacher.MaxWeeklyHours,
		MaxDaily:    teacher.MaxDailyHours,
	}, nil
}

// AvailableForPrivateClass runs the availability matcher: filter bookable
// teachers by day, format and under-16 qualification, then exclude anyone
// whose committed hours plus the requested duration would exceed a cap.
func (s *TeacherService) AvailableForPrivateClass(ctx context.Context, req AvailabilityRequest) ([]models.TeacherCandidate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	day := strings.ToLower(req.DayOfWeek)
	format := models.ProductLocation(req.Format)

	teachers, err := s.repo.ListBookable(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookable teachers")
	}
	loads, err := s.repo.SessionLoads(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}

	weeklyByTeacher := map[string]float64{}
	dailyByTeacher := map[string]map[string]float64{}
	for _, load := range loads {
		hours := sessionHours(load.StartTime, load.EndTime)
		weeklyByTeacher[load.TeacherID] += hours
		if dailyByTeacher[load.TeacherID] == nil {
			dailyByTeacher[load.TeacherID] = map[string]float64{}
		}
		dailyByTeacher[load.TeacherID][load.DayOfWeek] += hours
	}

	candidates := []models.TeacherCandidate{}
	for _, teacher := range teachers {
		if !teacher.AvailableOn(day) {
			continue
		}
		if format == models.ProductLocationOnline && !teacher.AvailableOnline {
			continue
		}
		if format == models.ProductLocationInPerson && !teacher.AvailableInPerson {
			continue
		}
		if req.UnderSixteen && !teacher.QualifiedUnder16 {
			continue
		}

		committedWeek := weeklyByTeacher[teacher.ID]
		committedDay := dailyByTeacher[teacher.ID][day]
		if teacher.MaxWeeklyHours > 0 && committedWeek+req.DurationHours > teacher.MaxWeeklyHours {
			continue
		}
		if teacher.MaxDailyHours > 0 && committedDay+req.DurationHours > teacher.MaxDailyHours {
			continue
		}

		candidates = append(candidates, models.TeacherCandidate{
			Teacher:        teacher,
			CommittedWeek:  committedWeek,
			CommittedOnDay: committedDay,
		})
	}
	return candidates, nil
}

func (s *TeacherService) buildTeacher(req SaveTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	status := models.TeacherOnboardingStatus(req.OnboardingStatus)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown onboarding_status")
	}
	days := make([]string, 0, len(req.AvailableDays))
	for _, day := range req.AvailableDays {
		days = append(days, strings.ToLower(day))
	}
	return &models.Teacher{
		FullName:            strings.TrimSpace(req.FullName),
		Email:               strings.ToLower(strings.TrimSpace(req.Email)),
		OnboardingStatus:    status,
		ContractStatus:      req.ContractStatus,
		AvailableOnline:     req.AvailableOnline,
		AvailableInPerson:   req.AvailableInPerson,
		AvailableForBooking: req.AvailableForBooking,
		QualifiedUnder16:    req.QualifiedUnder16,
		AvailableDays:       days,
		MaxWeeklyHours:      req.MaxWeeklyHours,
		MaxDailyHours:       req.MaxDailyHours,
		CalendarID:          req.CalendarID,
	}, nil
}

func aggregateLoads(loads []models.TeacherSessionLoad) (float64, map[string]float64) {
	weekly := 0.0
	daily := map[string]float64{}
	for _, load := range loads {
		hours := sessionHours(load.StartTime, load.EndTime)
		weekly += hours
		daily[load.DayOfWeek] += hours
	}
	return weekly, daily
}

// sessionHours converts a wall-clock "HH:MM" range into fractional hours.
// Malformed or inverted ranges count as zero rather than poisoning the sum.
func sessionHours(start, end string) float64 {
	s, okS := parseClock(start)
	e, okE := parseClock(end)
	if !okS || !okE || e <= s {
		return 0
	}
	return float64(e-s) / 60.0
}

func parseClock(raw string) (int, bool) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
