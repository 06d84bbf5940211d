package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
)

type chatRepository interface {
	List(ctx context.Context, filter models.ChatFilter) ([]models.ChatMessage, int, error)
	Create(ctx context.Context, message *models.ChatMessage) error
}

type chatCohortReader interface {
	FindByID(ctx context.Context, id string) (*models.CohortDetail, error)
}

// ChatService handles cohort chat threads. Clients poll the list endpoint;
// there is no push channel.
type ChatService struct {
	repo      chatRepository
	cohorts   chatCohortReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewChatService creates a chat service.
func NewChatService(repo chatRepository, cohorts chatCohortReader, validate *validator.Validate, logger *zap.Logger) *ChatService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{repo: repo, cohorts: cohorts, validator: validate, logger: logger}
}

// PostMessageRequest is the payload for posting a chat message.
type PostMessageRequest struct {
	AuthorType string `json:"author_type" validate:"required,oneof=admin teacher student"`
	AuthorID   string `json:"author_id" validate:"required"`
	AuthorName string `json:"author_name" validate:"required,min=1,max=120"`
	Body       string `json:"body" validate:"required,max=4000"`
}

// ListMessages returns a cohort's messages newest first, optionally only
// those older than the Before cursor.
func (s *ChatService) ListMessages(ctx context.Context, cohortID string, before *time.Time, pageSize int) ([]models.ChatMessage, *models.Pagination, error) {
	if err := s.ensureCohort(ctx, cohortID); err != nil {
		return nil, nil, err
	}
	filter := models.ChatFilter{CohortID: cohortID, Before: before, Page: 1, PageSize: pageSize}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	pagination := &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// PostMessage appends a message to a cohort's thread.
func (s *ChatService) PostMessage(ctx context.Context, cohortID string, req PostMessageRequest) (*models.ChatMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message body cannot be blank")
	}
	if err := s.ensureCohort(ctx, cohortID); err != nil {
		return nil, err
	}
	message := &models.ChatMessage{
		CohortID:   cohortID,
		AuthorType: models.ChatAuthorType(req.AuthorType),
		AuthorID:   req.AuthorID,
		AuthorName: req.AuthorName,
		Body:       body,
	}
	if err := s.repo.Create(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post message")
	}
	s.logger.Debug("chat message posted",
		zap.String("cohort_id", cohortID),
		zap.String("author_type", req.AuthorType))
	return message, nil
}

func (s *ChatService) ensureCohort(ctx context.Context, cohortID string) error {
	if _, err := s.cohorts.FindByID(ctx, cohortID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "cohort not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve cohort")
	}
	return nil
}
