package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/pkg/config"
	"github.com/lingoria/school-ops-api/pkg/jobs"
	"github.com/lingoria/school-ops-api/pkg/webhook"
)

const (
	jobCalendarEvent       = "calendar_event"
	jobFollowUpMessage     = "follow_up_message"
	jobAbandonedEnrollment = "abandoned_enrollment"
)

type webhookSender interface {
	SendCalendarEvent(ctx context.Context, payload webhook.CalendarEventPayload) error
	SendFollowUpMessage(ctx context.Context, payload webhook.FollowUpMessagePayload) error
	NotifyAbandonedEnrollment(ctx context.Context, payload webhook.AbandonedEnrollmentPayload) error
}

// WebhookDispatcher pushes outbound automation calls through the background
// job queue so request handlers never block on the external service. The
// queue retries transient failures with its bounded policy.
type WebhookDispatcher struct {
	sender  webhookSender
	queue   *jobs.Queue
	logger  *zap.Logger
	metrics *MetricsService

	onFinalFailure func(job jobs.Job)
}

// NewWebhookDispatcher wires a dispatcher and its queue.
func NewWebhookDispatcher(sender webhookSender, cfg config.WebhookConfig, metrics *MetricsService, logger *zap.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &WebhookDispatcher{sender: sender, metrics: metrics, logger: logger}
	d.queue = jobs.NewQueue("webhooks", d.handle, jobs.QueueConfig{
		Workers:    cfg.DispatchWorkers,
		MaxRetries: cfg.DispatchRetries,
		RetryDelay: cfg.DispatchInterval,
		Logger:     logger,
		OnExhausted: func(job jobs.Job, err error) {
			if d.onFinalFailure != nil {
				d.onFinalFailure(job)
			}
		},
	})
	return d
}

// Start launches the dispatch workers.
func (d *WebhookDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the queue and stops the workers.
func (d *WebhookDispatcher) Stop() {
	d.queue.Stop()
}

// SetFinalFailureHook registers a callback invoked after retries are
// exhausted. The follow-up service uses it to mark instances failed.
func (d *WebhookDispatcher) SetFinalFailureHook(fn func(job jobs.Job)) {
	d.onFinalFailure = fn
}

// EnqueueCalendarEvent queues one calendar-event creation call.
func (d *WebhookDispatcher) EnqueueCalendarEvent(payload webhook.CalendarEventPayload) error {
	return d.enqueue(jobCalendarEvent, payload)
}

// EnqueueFollowUpMessage queues one follow-up message send.
func (d *WebhookDispatcher) EnqueueFollowUpMessage(payload webhook.FollowUpMessagePayload) error {
	return d.enqueue(jobFollowUpMessage, payload)
}

// EnqueueAbandonedEnrollment queues an abandoned-enrollment notice.
func (d *WebhookDispatcher) EnqueueAbandonedEnrollment(payload webhook.AbandonedEnrollmentPayload) error {
	return d.enqueue(jobAbandonedEnrollment, payload)
}

func (d *WebhookDispatcher) enqueue(jobType string, payload interface{}) error {
	err := d.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		Payload: payload,
	})
	d.metrics.SetQueueDepth(d.queue.Depth())
	return err
}

func (d *WebhookDispatcher) handle(ctx context.Context, job jobs.Job) error {
	start := time.Now()
	err := d.send(ctx, job)
	d.metrics.ObserveWebhookDispatch(job.Type, err == nil, time.Since(start))
	d.metrics.SetQueueDepth(d.queue.Depth())
	return err
}

func (d *WebhookDispatcher) send(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobCalendarEvent:
		payload, ok := job.Payload.(webhook.CalendarEventPayload)
		if !ok {
			return fmt.Errorf("unexpected payload type for %s", job.Type)
		}
		return d.sender.SendCalendarEvent(ctx, payload)
	case jobFollowUpMessage:
		payload, ok := job.Payload.(webhook.FollowUpMessagePayload)
		if !ok {
			return fmt.Errorf("unexpected payload type for %s", job.Type)
		}
		return d.sender.SendFollowUpMessage(ctx, payload)
	case jobAbandonedEnrollment:
		payload, ok := job.Payload.(webhook.AbandonedEnrollmentPayload)
		if !ok {
			return fmt.Errorf("unexpected payload type for %s", job.Type)
		}
		return d.sender.NotifyAbandonedEnrollment(ctx, payload)
	default:
		return fmt.Errorf("unknown webhook job type %q", job.Type)
	}
}
