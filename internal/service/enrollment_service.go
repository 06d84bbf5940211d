package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/webhook"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindActiveByStudentCohort(ctx context.Context, studentID, cohortID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	UpdateNotes(ctx context.Context, id string, notes string) error
	ListStalledInStatus(ctx context.Context, status models.EnrollmentStatus, before time.Time) ([]models.EnrollmentDetail, error)
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type enrollmentCohortReader interface {
	FindByID(ctx context.Context, id string) (*models.CohortDetail, error)
}

type abandonedDispatcher interface {
	EnqueueAbandonedEnrollment(payload webhook.AbandonedEnrollmentPayload) error
}

// EnrollmentService manages the funnel a student moves through inside a
// cohort, from first interest to welcome package.
type EnrollmentService struct {
	repo       enrollmentRepository
	students   enrollmentStudentReader
	cohorts    enrollmentCohortReader
	dispatcher abandonedDispatcher
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(
	repo enrollmentRepository,
	students enrollmentStudentReader,
	cohorts enrollmentCohortReader,
	dispatcher abandonedDispatcher,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:       repo,
		students:   students,
		cohorts:    cohorts,
		dispatcher: dispatcher,
		validator:  validate,
		logger:     logger,
	}
}

// EnrollmentListRequest describes filters for listing enrollments.
type EnrollmentListRequest struct {
	StudentID string `json:"student_id"`
	CohortID  string `json:"cohort_id"`
	Status    string `json:"status"`
	Search    string `json:"search"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
}

// CreateEnrollmentRequest describes the create payload.
type CreateEnrollmentRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	CohortID  string  `json:"cohort_id" validate:"required"`
	Status    string  `json:"status"`
	Notes     *string `json:"notes"`
}

// TransitionRequest moves an enrollment along the funnel.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
	Force  bool   `json:"force"`
}

// List returns enrollments with pagination.
func (s *EnrollmentService) List(ctx context.Context, req EnrollmentListRequest) ([]models.EnrollmentDetail, *models.Pagination, error) {
	filter := models.EnrollmentFilter{
		StudentID: req.StudentID,
		CohortID:  req.CohortID,
		Status:    models.EnrollmentStatus(req.Status),
		Search:    req.Search,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns an enrollment by id.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get enrollment")
	}
	return enrollment, nil
}

// Create opens a new enrollment. A student may hold at most one active
// enrollment per cohort.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	status := models.EnrollmentStatus(req.Status)
	if status == "" {
		status = models.EnrollmentInterested
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}
	if status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot create an enrollment in a terminal status")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student_id does not reference a known student")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	cohort, err := s.cohorts.FindByID(ctx, req.CohortID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "cohort_id does not reference a known cohort")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve cohort")
	}
	if cohort.Status != models.CohortEnrollmentOpen {
		return nil, appErrors.Clone(appErrors.ErrConflict, "cohort is not open for enrollment")
	}
	if cohort.MaxStudents > 0 && cohort.EnrolledCount >= cohort.MaxStudents {
		return nil, appErrors.Clone(appErrors.ErrConflict, "cohort is full")
	}

	if _, err := s.repo.FindActiveByStudentCohort(ctx, req.StudentID, req.CohortID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an active enrollment in this cohort")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}

	enrollment := &models.Enrollment{
		StudentID: req.StudentID,
		CohortID:  req.CohortID,
		Status:    status,
		Notes:     req.Notes,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return s.Get(ctx, enrollment.ID)
}

// Transition moves an enrollment to a new funnel status. Without Force the
// move must follow a defined edge; Force is the admin override and only
// skips edge checks, never resurrects a terminal enrollment.
func (s *EnrollmentService) Transition(ctx context.Context, id string, req TransitionRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	next := models.EnrollmentStatus(req.Status)
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}

	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	current := enrollment.Status

	if req.Force {
		if current.Terminal() {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "enrollment is in a terminal status")
		}
	} else if !current.CanTransition(next) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move enrollment from %s to %s", current, next))
	}

	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}

	if next == models.EnrollmentAbandoned {
		s.notifyAbandoned(enrollment, current)
	}

	s.logger.Info("enrollment transitioned",
		zap.String("enrollment_id", id),
		zap.String("from", string(current)),
		zap.String("to", string(next)),
		zap.Bool("forced", req.Force))
	return s.Get(ctx, id)
}

// UpdateNotes replaces the notes on an enrollment.
func (s *EnrollmentService) UpdateNotes(ctx context.Context, id string, notes string) (*models.EnrollmentDetail, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateNotes(ctx, id, notes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notes")
	}
	return s.Get(ctx, id)
}

// SweepStalled abandons enrollments that have sat in an early funnel status
// longer than the threshold. Only pre-commitment statuses are swept; once a
// contract is sent the enrollment waits for a human decision.
func (s *EnrollmentService) SweepStalled(ctx context.Context, stallAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-stallAfter)
	swept := 0
	for _, status := range []models.EnrollmentStatus{models.EnrollmentInterested, models.EnrollmentBeginnerFormFilled} {
		stalled, err := s.repo.ListStalledInStatus(ctx, status, cutoff)
		if err != nil {
			return swept, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stalled enrollments")
		}
		for i := range stalled {
			enrollment := &stalled[i]
			if err := s.repo.UpdateStatus(ctx, enrollment.ID, models.EnrollmentAbandoned); err != nil {
				s.logger.Warn("failed to abandon stalled enrollment",
					zap.String("enrollment_id", enrollment.ID),
					zap.Error(err))
				continue
			}
			s.notifyAbandoned(enrollment, enrollment.Status)
			swept++
		}
	}
	if swept > 0 {
		s.logger.Info("stalled enrollments abandoned", zap.Int("count", swept))
	}
	return swept, nil
}

func (s *EnrollmentService) notifyAbandoned(enrollment *models.EnrollmentDetail, lastStatus models.EnrollmentStatus) {
	payload := webhook.AbandonedEnrollmentPayload{
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		CohortID:     enrollment.CohortID,
		StudentName:  enrollment.StudentName,
		Email:        enrollment.StudentEmail,
		LastStatus:   string(lastStatus),
	}
	if err := s.dispatcher.EnqueueAbandonedEnrollment(payload); err != nil {
		s.logger.Error("failed to enqueue abandoned-enrollment webhook",
			zap.String("enrollment_id", enrollment.ID),
			zap.Error(err))
	}
}
