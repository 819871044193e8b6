package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openfund-labs/fundflow-api/internal/models"
	"github.com/openfund-labs/fundflow-api/pkg/jobs"
)

// Dispatcher delivers one event to the outside world. Implementations must be
// safe for concurrent use.
type Dispatcher interface {
	Deliver(ctx context.Context, event models.Event) error
}

// DispatcherFunc allows using plain functions.
type DispatcherFunc func(ctx context.Context, event models.Event) error

// Deliver implements Dispatcher.
func (f DispatcherFunc) Deliver(ctx context.Context, event models.Event) error {
	return f(ctx, event)
}

// LogDispatcher writes events to the log. It is the fallback when no broker
// is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher constructs the fallback dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Deliver implements Dispatcher.
func (d *LogDispatcher) Deliver(_ context.Context, event models.Event) error {
	d.logger.Info("notification event",
		zap.String("kind", string(event.Kind)),
		zap.String("case_id", event.CaseID),
		zap.String("project_id", event.ProjectID),
		zap.String("contribution_id", event.ContributionID),
		zap.Strings("recipients", event.Recipients))
	return nil
}

// NotificationConfig sizes the delivery worker pool.
type NotificationConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries int
}

// NotificationService hands events to the dispatcher off the request path.
// Dispatch never blocks a state change and never propagates delivery errors
// back to the caller; failed deliveries retry in the background.
type NotificationService struct {
	dispatcher Dispatcher
	queue      *jobs.Queue
	logger     *zap.Logger
}

// NewNotificationService constructs the service around a retrying worker
// queue.
func NewNotificationService(dispatcher Dispatcher, cfg NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = NewLogDispatcher(logger)
	}
	s := &NotificationService{dispatcher: dispatcher, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.QueueSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues an event for delivery. A full or stopped queue only
// logs; the state change that produced the event already committed.
func (s *NotificationService) Dispatch(_ context.Context, event models.Event) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(event.Kind),
		Payload: event,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.Event)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.dispatcher.Deliver(ctx, event)
}
