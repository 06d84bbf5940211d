package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	Update(ctx context.Context, class *models.Class) error
	RolloverStatuses(ctx context.Context, now time.Time) (int64, error)
	UpcomingByTeacher(ctx context.Context, teacherID string, from, to time.Time) ([]models.Class, error)
}

type classTeacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// ClassService manages dated class occurrences after generation.
type ClassService struct {
	repo      classRepository
	teachers  classTeacherReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService creates a class service.
func NewClassService(repo classRepository, teachers classTeacherReader, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, teachers: teachers, validator: validate, logger: logger}
}

// ClassListRequest describes filters for listing classes.
type ClassListRequest struct {
	CohortID  string `json:"cohort_id"`
	TeacherID string `json:"teacher_id"`
	Status    string `json:"status"`
	From      string `json:"from"`
	To        string `json:"to"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
	SortOrder string `json:"sort_order"`
}

// UpdateClassRequest patches a single occurrence without touching its
// weekly session template.
type UpdateClassRequest struct {
	Status      *string `json:"status,omitempty"`
	MeetingLink *string `json:"meeting_link,omitempty"`
	TeacherID   *string `json:"teacher_id,omitempty"`
}

// List returns classes matching the filter.
func (s *ClassService) List(ctx context.Context, req ClassListRequest) ([]models.ClassDetail, *models.Pagination, error) {
	filter := models.ClassFilter{
		CohortID:  req.CohortID,
		TeacherID: req.TeacherID,
		Status:    models.ClassStatus(req.Status),
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortOrder: req.SortOrder,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown class status")
	}
	if req.From != "" {
		from, err := time.Parse("2006-01-02", req.From)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD")
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := time.Parse("2006-01-02", req.To)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD")
		}
		end := to.Add(24 * time.Hour)
		filter.To = &end
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns one class by ID.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get class")
	}
	return class, nil
}

// Update patches status, meeting link or teacher of one occurrence. A
// teacher change here is a one-off substitution and never rewrites the
// weekly session.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.ClassDetail, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	class := detail.Class

	if req.Status != nil {
		status := models.ClassStatus(*req.Status)
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown class status")
		}
		class.Status = status
	}
	if req.MeetingLink != nil {
		class.MeetingLink = req.MeetingLink
	}
	if req.TeacherID != nil && *req.TeacherID != class.TeacherID {
		if _, err := s.teachers.FindByID(ctx, *req.TeacherID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher")
		}
		class.TeacherID = *req.TeacherID
	}

	if err := s.repo.Update(ctx, &class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return s.Get(ctx, id)
}

// UpcomingForTeacher returns a teacher's classes in the next N days.
func (s *ClassService) UpcomingForTeacher(ctx context.Context, teacherID string, days int) ([]models.Class, error) {
	if days <= 0 {
		days = 7
	}
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher")
	}
	now := time.Now().UTC()
	classes, err := s.repo.UpcomingByTeacher(ctx, teacherID, now, now.AddDate(0, 0, days))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list upcoming classes")
	}
	return classes, nil
}

// RolloverStatuses moves scheduled classes into in_progress and in_progress
// ones into completed based on the clock. Called by the scheduler.
func (s *ClassService) RolloverStatuses(ctx context.Context) (int64, error) {
	affected, err := s.repo.RolloverStatuses(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to roll over class statuses")
	}
	if affected > 0 {
		s.logger.Info("class statuses rolled over", zap.Int64("affected", affected))
	}
	return affected, nil
}
