package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reservo/internal/domain"
	"reservo/internal/events"
	"reservo/internal/logging"
	"reservo/internal/metrics"
	"reservo/internal/models"
	"reservo/internal/slotclock"

	"github.com/rs/zerolog"
)

// ReminderWorker delivers due reminder jobs: it notifies the user and
// announces the reminder on the event bus. Failed deliveries are retried
// with backoff until the retry policy is exhausted.
type ReminderWorker struct {
	jobs         domain.ReminderJobRepository
	reservations domain.ReservationRepository
	items        domain.ItemRepository
	notifier     domain.NotificationSink
	eventBus     domain.EventPublisher
	retryPolicy  RetryPolicy
	clock        slotclock.Clock
	loc          *time.Location
	pollInterval time.Duration
	batchSize    int
	logger       zerolog.Logger
}

type ReminderWorkerDeps struct {
	Jobs         domain.ReminderJobRepository
	Reservations domain.ReservationRepository
	Items        domain.ItemRepository
	Notifier     domain.NotificationSink
	EventBus     domain.EventPublisher
	Clock        slotclock.Clock
	Location     *time.Location
}

// NewReminderWorker builds a worker with sane defaults.
func NewReminderWorker(deps ReminderWorkerDeps, retry RetryPolicy, pollInterval time.Duration, logger *zerolog.Logger) *ReminderWorker {
	if retry.MaxRetries == 0 {
		retry = DefaultRetryPolicy(0)
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = slotclock.System()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &ReminderWorker{
		jobs:         deps.Jobs,
		reservations: deps.Reservations,
		items:        deps.Items,
		notifier:     deps.Notifier,
		eventBus:     deps.EventBus,
		retryPolicy:  retry,
		clock:        deps.Clock,
		loc:          deps.Location,
		pollInterval: pollInterval,
		batchSize:    50,
		logger:       logging.Component(logger, "reminder-worker"),
	}
}

// Run polls for due jobs until ctx is done.
func (w *ReminderWorker) Run(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.pollInterval).Msg("Reminder worker started")
	defer w.logger.Info().Msg("Reminder worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil {
				w.logger.Error().Err(err).Msg("Reminder poll failed")
			}
		}
	}
}

// ProcessDue handles one batch of due jobs and returns how many were handled.
func (w *ReminderWorker) ProcessDue(ctx context.Context) (int, error) {
	jobs, err := w.jobs.GetDueReminderJobs(ctx, w.clock.Now(), w.batchSize)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to update reminder job")
		}
	}
	return len(jobs), nil
}

func (w *ReminderWorker) processJob(ctx context.Context, job *models.ReminderJob) error {
	err := w.deliver(ctx, job)
	switch {
	case err == nil:
		metrics.IncReminder(job.Kind, models.JobStatusDone)
		return w.jobs.UpdateReminderJobStatus(ctx, job.ID, models.JobStatusDone, "", nil)

	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrValidation):
		metrics.IncReminder(job.Kind, models.JobStatusFailed)
		return w.jobs.UpdateReminderJobStatus(ctx, job.ID, models.JobStatusFailed, err.Error(), nil)

	case w.retryPolicy.Exhausted(job.Attempts + 1):
		metrics.IncReminder(job.Kind, models.JobStatusFailed)
		w.logger.Warn().Err(err).Str("job_id", job.ID).Int("attempts", job.Attempts+1).Msg("Reminder job failed permanently")
		return w.jobs.UpdateReminderJobStatus(ctx, job.ID, models.JobStatusFailed, err.Error(), nil)

	default:
		metrics.IncReminder(job.Kind, models.JobStatusRetry)
		next := w.clock.Now().Add(w.retryPolicy.NextDelay(job.Attempts + 1))
		return w.jobs.UpdateReminderJobStatus(ctx, job.ID, models.JobStatusRetry, err.Error(), &next)
	}
}

func (w *ReminderWorker) deliver(ctx context.Context, job *models.ReminderJob) error {
	r, err := w.reservations.GetReservation(ctx, job.ReservationID)
	if err != nil {
		return err
	}
	itemName := fmt.Sprintf("item %d", r.ItemID)
	if item, err := w.items.GetItem(ctx, r.ItemID); err == nil {
		itemName = item.Name
	}

	var msg string
	switch job.Kind {
	case models.ReminderKindStart:
		msg = fmt.Sprintf("Reminder: your reservation of %s starts at %s.", itemName, r.StartTime.In(w.loc).Format("2006-01-02 15:04"))
	case models.ReminderKindEnd:
		msg = fmt.Sprintf("Reminder: your reservation of %s ends at %s. Please return %d unit(s).", itemName, r.EndTime.In(w.loc).Format("2006-01-02 15:04"), r.Quantity)
	default:
		return domain.NewValidationError("kind", fmt.Sprintf("unknown reminder kind %q", job.Kind))
	}

	id := r.ID
	if err := w.notifier.Notify(ctx, r.UserID, msg, &id); err != nil {
		return err
	}

	if w.eventBus == nil {
		return nil
	}
	return w.eventBus.PublishJSON(events.EventReminderDue, events.ReminderEventPayload{
		JobID:         job.ID,
		ReservationID: r.ID,
		UserID:        r.UserID,
		ItemID:        r.ItemID,
		Kind:          job.Kind,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
	})
}
