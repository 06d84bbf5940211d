package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SoftDelete(ctx context.Context, id string) error
}

type studentLevelRepository interface {
	FindByID(ctx context.Context, id string) (*models.LanguageLevel, error)
}

// StudentService handles student lifecycle workflows.
type StudentService struct {
	repo      studentRepository
	levels    studentLevelRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(repo studentRepository, levels studentLevelRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, levels: levels, validator: validate, logger: logger}
}

// StudentListRequest describes filters for listing students.
type StudentListRequest struct {
	Search         string `json:"search"`
	DesiredLevelID string `json:"desired_level_id"`
	Channel        string `json:"channel"`
	IncludeDeleted bool   `json:"include_deleted"`
	Page           int    `json:"page"`
	PageSize       int    `json:"page_size"`
	SortBy         string `json:"sort_by"`
	SortOrder      string `json:"sort_order"`
}

// CreateStudentRequest describes the create payload.
type CreateStudentRequest struct {
	FullName       string  `json:"full_name" validate:"required,min=2"`
	Email          string  `json:"email" validate:"required,email"`
	Phone          *string `json:"phone"`
	DesiredLevelID *string `json:"desired_level_id"`
	Channel        *string `json:"channel"`
	Source         *string `json:"source"`
	UnderSixteen   bool    `json:"under_sixteen"`
}

// UpdateStudentRequest describes the update payload.
type UpdateStudentRequest struct {
	FullName       string  `json:"full_name" validate:"required,min=2"`
	Email          string  `json:"email" validate:"required,email"`
	Phone          *string `json:"phone"`
	DesiredLevelID *string `json:"desired_level_id"`
	Channel        *string `json:"channel"`
	Source         *string `json:"source"`
	UnderSixteen   bool    `json:"under_sixteen"`
}

// List returns students with pagination.
func (s *StudentService) List(ctx context.Context, req StudentListRequest) ([]models.StudentDetail, *models.Pagination, error) {
	filter := models.StudentFilter{
		Search:         strings.TrimSpace(req.Search),
		DesiredLevelID: req.DesiredLevelID,
		Channel:        req.Channel,
		IncludeDeleted: req.IncludeDeleted,
		Page:           req.Page,
		PageSize:       req.PageSize,
		SortBy:         req.SortBy,
		SortOrder:      req.SortOrder,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	exists, err := s.repo.ExistsByEmail(ctx, email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this email already exists")
	}
	if err := s.ensureLevel(ctx, req.DesiredLevelID); err != nil {
		return nil, err
	}

	student := &models.Student{
		FullName:       strings.TrimSpace(req.FullName),
		Email:          email,
		Phone:          req.Phone,
		DesiredLevelID: req.DesiredLevelID,
		Channel:        req.Channel,
		Source:         req.Source,
		UnderSixteen:   req.UnderSixteen,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return s.Get(ctx, student.ID)
}

// Update modifies an existing student.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != existing.Email {
		taken, err := s.repo.ExistsByEmail(ctx, email, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this email already exists")
		}
	}
	if err := s.ensureLevel(ctx, req.DesiredLevelID); err != nil {
		return nil, err
	}

	student := existing.Student
	student.FullName = strings.TrimSpace(req.FullName)
	student.Email = email
	student.Phone = req.Phone
	student.DesiredLevelID = req.DesiredLevelID
	student.Channel = req.Channel
	student.Source = req.Source
	student.UnderSixteen = req.UnderSixteen
	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a student, keeping history intact.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

func (s *StudentService) ensureLevel(ctx context.Context, levelID *string) error {
	if levelID == nil || *levelID == "" {
		return nil
	}
	if _, err := s.levels.FindByID(ctx, *levelID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrValidation, "desired_level_id does not reference a known level")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve level")
	}
	return nil
}
