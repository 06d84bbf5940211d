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

type touchpointRepository interface {
	ListByStudent(ctx context.Context, studentID string, page, size int) ([]models.Touchpoint, int, error)
	Create(ctx context.Context, touchpoint *models.Touchpoint) error
}

type touchpointStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// TouchpointService records and lists manual communication events on a
// student's timeline. Automated sends are logged by the follow-up service.
type TouchpointService struct {
	repo      touchpointRepository
	students  touchpointStudentReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTouchpointService creates a touchpoint service.
func NewTouchpointService(repo touchpointRepository, students touchpointStudentReader, validate *validator.Validate, logger *zap.Logger) *TouchpointService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TouchpointService{repo: repo, students: students, validator: validate, logger: logger}
}

// CreateTouchpointRequest logs one communication event.
type CreateTouchpointRequest struct {
	Channel    string     `json:"channel" validate:"required,oneof=email whatsapp phone in_person"`
	Direction  string     `json:"direction" validate:"required,oneof=inbound outbound"`
	Note       *string    `json:"note,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// ListByStudent returns a student's touchpoints newest first.
func (s *TouchpointService) ListByStudent(ctx context.Context, studentID string, page, pageSize int) ([]models.Touchpoint, *models.Pagination, error) {
	if err := s.ensureStudent(ctx, studentID); err != nil {
		return nil, nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	rows, total, err := s.repo.ListByStudent(ctx, studentID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list touchpoints")
	}
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	return rows, pagination, nil
}

// Create logs a manual touchpoint against a student.
func (s *TouchpointService) Create(ctx context.Context, studentID string, req CreateTouchpointRequest) (*models.Touchpoint, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := s.ensureStudent(ctx, studentID); err != nil {
		return nil, err
	}
	touchpoint := &models.Touchpoint{
		StudentID: studentID,
		Channel:   models.TouchpointChannel(req.Channel),
		Direction: models.TouchpointDirection(req.Direction),
		Source:    "manual",
		Note:      req.Note,
	}
	if req.OccurredAt != nil {
		touchpoint.OccurredAt = req.OccurredAt.UTC()
	}
	if err := s.repo.Create(ctx, touchpoint); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create touchpoint")
	}
	return touchpoint, nil
}

func (s *TouchpointService) ensureStudent(ctx context.Context, id string) error {
	if _, err := s.students.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	return nil
}
