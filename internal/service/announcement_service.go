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

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

type announcementEnrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

// AnnouncementService manages announcements and audience-scoped feeds.
type AnnouncementService struct {
	repo        announcementRepository
	enrollments announcementEnrollmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAnnouncementService creates an announcement service.
func NewAnnouncementService(repo announcementRepository, enrollments announcementEnrollmentReader, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, enrollments: enrollments, validator: validate, logger: logger}
}

// SaveAnnouncementRequest is the create/update payload.
type SaveAnnouncementRequest struct {
	Title          string     `json:"title" validate:"required,min=2,max=200"`
	Content        string     `json:"content" validate:"required"`
	Audience       string     `json:"audience" validate:"required,oneof=all teachers students cohort"`
	TargetCohortID *string    `json:"target_cohort_id,omitempty"`
	Priority       string     `json:"priority" validate:"omitempty,oneof=low normal high"`
	IsPinned       bool       `json:"is_pinned"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// FeedRequest scopes a feed query to one viewer.
type FeedRequest struct {
	Audience  string `json:"audience" validate:"required,oneof=teachers students"`
	StudentID string `json:"student_id"`
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
}

// List returns all announcements for the back office, newest first.
func (s *AnnouncementService) List(ctx context.Context, page, pageSize int) ([]models.Announcement, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	filter := models.AnnouncementFilter{Page: page, PageSize: pageSize}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
	return rows, pagination, nil
}

// Feed returns announcements visible to one viewer: broadcast posts plus,
// for students, posts targeted at cohorts they are actively enrolled in.
func (s *AnnouncementService) Feed(ctx context.Context, req FeedRequest) ([]models.Announcement, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	filter := models.AnnouncementFilter{
		Audiences: []models.AnnouncementAudience{models.AnnouncementAudienceAll, models.AnnouncementAudience(req.Audience)},
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if req.Audience == string(models.AnnouncementAudienceStudents) && req.StudentID != "" {
		cohortIDs, err := s.activeCohortIDs(ctx, req.StudentID)
		if err != nil {
			return nil, nil, err
		}
		filter.CohortIDs = cohortIDs
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feed")
	}
	pagination := &models.Pagination{Page: req.Page, PageSize: req.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Get returns one announcement by ID.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get announcement")
	}
	return announcement, nil
}

// Create publishes a new announcement.
func (s *AnnouncementService) Create(ctx context.Context, req SaveAnnouncementRequest, createdBy string) (*models.Announcement, error) {
	if err := s.validateSave(req); err != nil {
		return nil, err
	}
	announcement := &models.Announcement{
		Title:          req.Title,
		Content:        req.Content,
		Audience:       models.AnnouncementAudience(req.Audience),
		TargetCohortID: req.TargetCohortID,
		Priority:       models.AnnouncementPriorityNormal,
		IsPinned:       req.IsPinned,
		ExpiresAt:      req.ExpiresAt,
		CreatedBy:      createdBy,
	}
	if req.Priority != "" {
		announcement.Priority = models.AnnouncementPriority(req.Priority)
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	s.logger.Info("announcement created",
		zap.String("announcement_id", announcement.ID),
		zap.String("audience", req.Audience))
	return announcement, nil
}

// Update modifies an existing announcement.
func (s *AnnouncementService) Update(ctx context.Context, id string, req SaveAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validateSave(req); err != nil {
		return nil, err
	}
	announcement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	announcement.Title = req.Title
	announcement.Content = req.Content
	announcement.Audience = models.AnnouncementAudience(req.Audience)
	announcement.TargetCohortID = req.TargetCohortID
	announcement.IsPinned = req.IsPinned
	announcement.ExpiresAt = req.ExpiresAt
	if req.Priority != "" {
		announcement.Priority = models.AnnouncementPriority(req.Priority)
	}
	if err := s.repo.Update(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	return announcement, nil
}

// Delete removes an announcement.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	return nil
}

func (s *AnnouncementService) validateSave(req SaveAnnouncementRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if models.AnnouncementAudience(req.Audience) == models.AnnouncementAudienceCohort && (req.TargetCohortID == nil || *req.TargetCohortID == "") {
		return appErrors.Clone(appErrors.ErrValidation, "target_cohort_id is required for cohort announcements")
	}
	return nil
}

func (s *AnnouncementService) activeCohortIDs(ctx context.Context, studentID string) ([]string, error) {
	enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{StudentID: studentID, Page: 1, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve cohorts")
	}
	ids := make([]string, 0, len(enrollments))
	for _, enrollment := range enrollments {
		// welcome_package_sent students are fully onboarded and still
		// belong to the cohort; only funnel exits lose visibility.
		switch enrollment.Status {
		case models.EnrollmentDroppedOut, models.EnrollmentDeclined, models.EnrollmentAbandoned:
			continue
		}
		ids = append(ids, enrollment.CohortID)
	}
	return ids, nil
}
