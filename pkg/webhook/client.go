package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/pkg/config"
)

// CalendarEventPayload describes one recurring session handed to the
// automation service, which performs the actual calendar-event creation.
type CalendarEventPayload struct {
	CohortID       string   `json:"cohort_id"`
	SessionID      string   `json:"session_id"`
	Title          string   `json:"title"`
	FirstStartsAt  string   `json:"first_starts_at"`
	FirstEndsAt    string   `json:"first_ends_at"`
	RecurrenceDay  string   `json:"recurrence_day"`
	TeacherEmail   string   `json:"teacher_email"`
	CalendarID     string   `json:"calendar_id,omitempty"`
	AttendeeEmails []string `json:"attendee_emails"`
	RoomType       string   `json:"room_type,omitempty"`
}

// FollowUpMessagePayload carries one follow-up step to the automation service.
type FollowUpMessagePayload struct {
	FollowUpID  string `json:"follow_up_id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	StepIndex   int    `json:"step_index"`
	Content     string `json:"content"`
}

// AbandonedEnrollmentPayload notifies the automation service that an
// enrollment funnel was abandoned.
type AbandonedEnrollmentPayload struct {
	EnrollmentID string `json:"enrollment_id"`
	StudentID    string `json:"student_id"`
	CohortID     string `json:"cohort_id"`
	StudentName  string `json:"student_name"`
	Email        string `json:"email,omitempty"`
	LastStatus   string `json:"last_status"`
}

// Client posts JSON payloads to the external automation service.
type Client struct {
	baseURL       string
	calendarPath  string
	followUpPath  string
	abandonedPath string
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewClient builds a webhook client from configuration.
func NewClient(cfg config.WebhookConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		calendarPath:  cfg.CalendarPath,
		followUpPath:  cfg.FollowUpPath,
		abandonedPath: cfg.AbandonedPath,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// SendCalendarEvent posts a calendar-event creation request.
func (c *Client) SendCalendarEvent(ctx context.Context, payload CalendarEventPayload) error {
	return c.post(ctx, c.calendarPath, payload)
}

// SendFollowUpMessage posts one follow-up message step.
func (c *Client) SendFollowUpMessage(ctx context.Context, payload FollowUpMessagePayload) error {
	return c.post(ctx, c.followUpPath, payload)
}

// NotifyAbandonedEnrollment posts an abandoned-enrollment notice.
func (c *Client) NotifyAbandonedEnrollment(ctx context.Context, payload AbandonedEnrollmentPayload) error {
	return c.post(ctx, c.abandonedPath, payload)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned status %d", path, resp.StatusCode)
	}

	c.logger.Debug("webhook delivered", zap.String("path", path), zap.Int("status", resp.StatusCode))
	return nil
}
