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

type followUpRepository interface {
	ListSequences(ctx context.Context, activeOnly bool) ([]models.TemplateFollowUpSequence, error)
	FindSequenceByID(ctx context.Context, id string) (*models.TemplateFollowUpSequence, error)
	CreateSequence(ctx context.Context, sequence *models.TemplateFollowUpSequence) error
	UpdateSequence(ctx context.Context, sequence *models.TemplateFollowUpSequence) error
	ListMessages(ctx context.Context, sequenceID string) ([]models.TemplateFollowUpMessage, error)
	FindMessageByStep(ctx context.Context, sequenceID string, step int) (*models.TemplateFollowUpMessage, error)
	ReplaceMessages(ctx context.Context, sequenceID string, messages []*models.TemplateFollowUpMessage) error
	ListInstances(ctx context.Context, filter models.FollowUpFilter) ([]models.AutomatedFollowUpDetail, int, error)
	FindInstanceByID(ctx context.Context, id string) (*models.AutomatedFollowUpDetail, error)
	FindActiveInstance(ctx context.Context, studentID string) (*models.AutomatedFollowUp, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.AutomatedFollowUpDetail, error)
	CreateInstance(ctx context.Context, instance *models.AutomatedFollowUp) error
	Advance(ctx context.Context, id string, fromStep int, toStatus models.FollowUpStatus, nextDueAt *time.Time) (bool, error)
	SetStatus(ctx context.Context, id string, status models.FollowUpStatus) (bool, error)
}

type followUpStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type followUpEnrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type followUpDispatcher interface {
	EnqueueFollowUpMessage(payload webhook.FollowUpMessagePayload) error
}

type touchpointWriter interface {
	Create(ctx context.Context, touchpoint *models.Touchpoint) error
}

// FollowUpService runs sequence templates and the per-student follow-up
// state machine.
type FollowUpService struct {
	repo        followUpRepository
	students    followUpStudentReader
	enrollments followUpEnrollmentReader
	dispatcher  followUpDispatcher
	touchpoints touchpointWriter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewFollowUpService constructs the service.
func NewFollowUpService(
	repo followUpRepository,
	students followUpStudentReader,
	enrollments followUpEnrollmentReader,
	dispatcher followUpDispatcher,
	touchpoints touchpointWriter,
	validate *validator.Validate,
	logger *zap.Logger,
) *FollowUpService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FollowUpService{
		repo:        repo,
		students:    students,
		enrollments: enrollments,
		dispatcher:  dispatcher,
		touchpoints: touchpoints,
		validator:   validate,
		logger:      logger,
	}
}

// SequenceMessageInput is one step of a sequence payload.
type SequenceMessageInput struct {
	StepIndex  int    `json:"step_index" validate:"required,min=1"`
	DelayHours int    `json:"delay_hours" validate:"gte=0"`
	Content    string `json:"content" validate:"required"`
}

// SaveSequenceRequest describes the sequence create/update payload.
type SaveSequenceRequest struct {
	Name     string                 `json:"name" validate:"required,min=2"`
	Trigger  string                 `json:"trigger_slug" validate:"required"`
	Active   bool                   `json:"active"`
	Messages []SequenceMessageInput `json:"messages" validate:"required,min=1,dive"`
}

// StartFollowUpRequest activates a sequence for one student.
type StartFollowUpRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	SequenceID string `json:"sequence_id" validate:"required"`
}

// FollowUpListRequest describes filters for listing instances.
type FollowUpListRequest struct {
	StudentID  string `json:"student_id"`
	SequenceID string `json:"sequence_id"`
	Status     string `json:"status"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}

// SequenceWithMessages bundles a template and its ordered steps.
type SequenceWithMessages struct {
	models.TemplateFollowUpSequence
	Messages []models.TemplateFollowUpMessage `json:"messages"`
}

// ListSequences returns sequence templates with their messages.
func (s *FollowUpService) ListSequences(ctx context.Context, activeOnly bool) ([]SequenceWithMessages, error) {
	sequences, err := s.repo.ListSequences(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sequences")
	}
	result := make([]SequenceWithMessages, 0, len(sequences))
	for _, sequence := range sequences {
		messages, err := s.repo.ListMessages(ctx, sequence.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sequence messages")
		}
		result = append(result, SequenceWithMessages{TemplateFollowUpSequence: sequence, Messages: messages})
	}
	return result, nil
}

// GetSequence returns one sequence with messages.
func (s *FollowUpService) GetSequence(ctx context.Context, id string) (*SequenceWithMessages, error) {
	sequence, err := s.repo.FindSequenceByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sequence not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get sequence")
	}
	messages, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sequence messages")
	}
	return &SequenceWithMessages{TemplateFollowUpSequence: *sequence, Messages: messages}, nil
}

// CreateSequence registers a template with its ordered messages.
func (s *FollowUpService) CreateSequence(ctx context.Context, req SaveSequenceRequest) (*SequenceWithMessages, error) {
	messages, err := s.buildMessages(req)
	if err != nil {
		return nil, err
	}
	sequence := &models.TemplateFollowUpSequence{
		Name:    req.Name,
		Trigger: req.Trigger,
		Active:  req.Active,
	}
	if err := s.repo.CreateSequence(ctx, sequence); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create sequence")
	}
	if err := s.repo.ReplaceMessages(ctx, sequence.ID, messages); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save sequence messages")
	}
	return s.GetSequence(ctx, sequence.ID)
}

// UpdateSequence modifies a template and replaces its messages. Running
// instances keep their current step; only future look-ups see the new steps.
func (s *FollowUpService) UpdateSequence(ctx context.Context, id string, req SaveSequenceRequest) (*SequenceWithMessages, error) {
	existing, err := s.GetSequence(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.buildMessages(req)
	if err != nil {
		return nil, err
	}
	sequence := existing.TemplateFollowUpSequence
	sequence.Name = req.Name
	sequence.Trigger = req.Trigger
	sequence.Active = req.Active
	if err := s.repo.UpdateSequence(ctx, &sequence); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update sequence")
	}
	if err := s.repo.ReplaceMessages(ctx, id, messages); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save sequence messages")
	}
	return s.GetSequence(ctx, id)
}

// ListInstances returns follow-up instances with pagination.
func (s *FollowUpService) ListInstances(ctx context.Context, req FollowUpListRequest) ([]models.AutomatedFollowUpDetail, *models.Pagination, error) {
	filter := models.FollowUpFilter{
		StudentID:  req.StudentID,
		SequenceID: req.SequenceID,
		Status:     models.FollowUpStatus(req.Status),
		Page:       req.Page,
		PageSize:   req.PageSize,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown follow-up status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.ListInstances(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list follow-ups")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// GetInstance returns one follow-up instance.
func (s *FollowUpService) GetInstance(ctx context.Context, id string) (*models.AutomatedFollowUpDetail, error) {
	instance, err := s.repo.FindInstanceByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "follow-up not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get follow-up")
	}
	return instance, nil
}

// Start activates a sequence for a student: no conflicting enrollment status,
// no already-running follow-up in any sequence. The instance begins at step 0
// with next_due_at set from the first message's delay.
func (s *FollowUpService) Start(ctx context.Context, req StartFollowUpRequest) (*models.AutomatedFollowUpDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	sequence, err := s.repo.FindSequenceByID(ctx, req.SequenceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sequence not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve sequence")
	}
	if !sequence.Active {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, "sequence is not active")
	}

	eligible, err := s.studentEligible(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, "student already converted; follow-up not applicable")
	}

	if _, err := s.repo.FindActiveInstance(ctx, req.StudentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an active follow-up")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check running follow-ups")
	}

	first, err := s.repo.FindMessageByStep(ctx, req.SequenceID, 1)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "sequence has no messages")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load first message")
	}

	due := time.Now().UTC().Add(time.Duration(first.DelayHours) * time.Hour)
	instance := &models.AutomatedFollowUp{
		StudentID:  req.StudentID,
		SequenceID: req.SequenceID,
		Status:     models.FollowUpActivated,
		NextDueAt:  &due,
	}
	if err := s.repo.CreateInstance(ctx, instance); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create follow-up")
	}
	s.logger.Info("follow-up started",
		zap.String("follow_up_id", instance.ID),
		zap.String("student_id", req.StudentID),
		zap.String("sequence_id", req.SequenceID))
	return s.GetInstance(ctx, instance.ID)
}

// Advance pushes an instance one step forward: deliver the next message and
// schedule the one after, or complete when no message remains. Terminal
// instances are frozen and return a conflict.
func (s *FollowUpService) Advance(ctx context.Context, id string) (*models.AutomatedFollowUpDetail, error) {
	instance, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrFollowUpFrozen, "")
	}

	nextStep := instance.CurrentStep + 1
	message, err := s.repo.FindMessageByStep(ctx, instance.SequenceID, nextStep)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load next message")
	}

	if err == sql.ErrNoRows {
		// Past the last message: complete exactly once.
		updated, err := s.repo.SetStatus(ctx, id, models.FollowUpCompleted)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete follow-up")
		}
		if !updated {
			return nil, appErrors.Clone(appErrors.ErrFollowUpFrozen, "")
		}
		s.logger.Info("follow-up completed", zap.String("follow_up_id", id))
		return s.GetInstance(ctx, id)
	}

	var nextDue *time.Time
	if following, err := s.repo.FindMessageByStep(ctx, instance.SequenceID, nextStep+1); err == nil {
		due := time.Now().UTC().Add(time.Duration(following.DelayHours) * time.Hour)
		nextDue = &due
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look ahead")
	}

	advanced, err := s.repo.Advance(ctx, id, instance.CurrentStep, models.FollowUpOngoing, nextDue)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance follow-up")
	}
	if !advanced {
		// Lost the race against another scan tick; treat as a no-op.
		return s.GetInstance(ctx, id)
	}

	payload := webhook.FollowUpMessagePayload{
		FollowUpID:  id,
		StudentID:   instance.StudentID,
		StudentName: instance.StudentName,
		Email:       instance.StudentEmail,
		StepIndex:   message.StepIndex,
		Content:     message.Content,
	}
	if instance.StudentPhone != nil {
		payload.Phone = *instance.StudentPhone
	}
	if err := s.dispatcher.EnqueueFollowUpMessage(payload); err != nil {
		s.logger.Error("failed to enqueue follow-up message",
			zap.String("follow_up_id", id),
			zap.Error(err))
		if _, markErr := s.repo.SetStatus(ctx, id, models.FollowUpFailed); markErr != nil {
			s.logger.Error("failed to mark follow-up failed", zap.String("follow_up_id", id), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dispatch follow-up message")
	}

	s.recordTouchpoint(ctx, instance.StudentID, id, message.StepIndex)

	s.logger.Info("follow-up advanced",
		zap.String("follow_up_id", id),
		zap.Int("step", message.StepIndex))
	return s.GetInstance(ctx, id)
}

// Stop disables an instance from any non-terminal state.
func (s *FollowUpService) Stop(ctx context.Context, id string) (*models.AutomatedFollowUpDetail, error) {
	if _, err := s.GetInstance(ctx, id); err != nil {
		return nil, err
	}
	updated, err := s.repo.SetStatus(ctx, id, models.FollowUpDisabled)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stop follow-up")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrFollowUpFrozen, "")
	}
	s.logger.Info("follow-up disabled", zap.String("follow_up_id", id))
	return s.GetInstance(ctx, id)
}

// MarkFailed freezes an instance after a delivery gave up for good.
func (s *FollowUpService) MarkFailed(ctx context.Context, id string) {
	if _, err := s.repo.SetStatus(ctx, id, models.FollowUpFailed); err != nil {
		s.logger.Error("failed to mark follow-up failed", zap.String("follow_up_id", id), zap.Error(err))
	}
}

// AdvanceDue processes every instance whose next step is due. Called by the
// scheduler on each tick; individual failures do not stop the batch.
func (s *FollowUpService) AdvanceDue(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListDue(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list due follow-ups")
	}
	advanced := 0
	for _, instance := range due {
		if _, err := s.Advance(ctx, instance.ID); err != nil {
			s.logger.Warn("scheduled advance failed",
				zap.String("follow_up_id", instance.ID),
				zap.Error(err))
			continue
		}
		advanced++
	}
	return advanced, nil
}

func (s *FollowUpService) buildMessages(req SaveSequenceRequest) ([]*models.TemplateFollowUpMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	seen := map[int]bool{}
	messages := make([]*models.TemplateFollowUpMessage, 0, len(req.Messages))
	for _, input := range req.Messages {
		if seen[input.StepIndex] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate step_index %d", input.StepIndex))
		}
		seen[input.StepIndex] = true
		messages = append(messages, &models.TemplateFollowUpMessage{
			StepIndex:  input.StepIndex,
			DelayHours: input.DelayHours,
			Content:    input.Content,
		})
	}
	for step := 1; step <= len(messages); step++ {
		if !seen[step] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step_index values must be contiguous from 1, missing %d", step))
		}
	}
	return messages, nil
}

// studentEligible rejects students whose enrollment already converted past
// the point where nurturing makes sense.
func (s *FollowUpService) studentEligible(ctx context.Context, studentID string) (bool, error) {
	enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{StudentID: studentID, Page: 1, PageSize: 100})
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect enrollments")
	}
	for _, enrollment := range enrollments {
		switch enrollment.Status {
		case models.EnrollmentPaid, models.EnrollmentWelcomeSent:
			return false, nil
		}
	}
	return true, nil
}

func (s *FollowUpService) recordTouchpoint(ctx context.Context, studentID, followUpID string, step int) {
	note := fmt.Sprintf("automated follow-up step %d sent", step)
	touchpoint := &models.Touchpoint{
		StudentID:  studentID,
		FollowUpID: &followUpID,
		Channel:    models.TouchpointEmail,
		Direction:  models.TouchpointOutbound,
		Source:     "automation",
		Note:       &note,
	}
	if err := s.touchpoints.Create(ctx, touchpoint); err != nil {
		s.logger.Warn("failed to record touchpoint",
			zap.String("follow_up_id", followUpID),
			zap.Error(err))
	}
}
