// Package worker consumes background jobs from Redis Streams.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"calsync_server/adapter/out/messaging"
	"calsync_server/core/port/in"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"
	"calsync_server/pkg/resilience"
)

// SyncProcessor handles calendar sync jobs from the stream.
type SyncProcessor struct {
	eventService in.EventService
	retryCfg     *resilience.RetryConfig

	windowPastDays   int
	windowFutureDays int
}

var _ messaging.JobHandler = (*SyncProcessor)(nil)

// SyncProcessorConfig holds processor configuration.
type SyncProcessorConfig struct {
	WindowPastDays   int
	WindowFutureDays int
	Retry            *resilience.RetryConfig
}

// NewSyncProcessor creates a new sync processor.
func NewSyncProcessor(eventService in.EventService, cfg *SyncProcessorConfig) *SyncProcessor {
	windowPast := cfg.WindowPastDays
	if windowPast == 0 {
		windowPast = 30
	}
	windowFuture := cfg.WindowFutureDays
	if windowFuture == 0 {
		windowFuture = 90
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = resilience.DefaultRetryConfig()
	}

	return &SyncProcessor{
		eventService:     eventService,
		retryCfg:         retryCfg,
		windowPastDays:   windowPast,
		windowFutureDays: windowFuture,
	}
}

// Handle processes one calendar sync job.
func (p *SyncProcessor) Handle(ctx context.Context, stream string, data []byte) error {
	var job out.CalendarSyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("failed to parse sync job: %w", err)
	}

	userID, err := uuid.Parse(job.UserID)
	if err != nil {
		// A malformed job will never succeed; ack it and move on.
		logger.WithError(err).Warn("dropping sync job with invalid user id %q", job.UserID)
		return nil
	}

	start, end := p.resolveWindow(&job)

	logger.WithFields(map[string]interface{}{
		"user_id": job.UserID,
		"reason":  job.Reason,
		"stream":  stream,
	}).Info("processing calendar sync job")

	err = resilience.Retry(ctx, p.retryCfg, func(ctx context.Context) error {
		stats, err := p.eventService.Sync(ctx, userID, start, end)
		if err != nil {
			// A disconnected or deauthorized integration cannot recover by
			// retrying; surface it once and drop the job.
			if apperr.IsCode(err, apperr.CodeNotConnected) ||
				apperr.IsCode(err, apperr.CodeReauthRequired) ||
				apperr.IsCode(err, apperr.CodeBadRequest) {
				return resilience.MarkPermanent(err)
			}
			return err
		}

		logger.WithFields(map[string]interface{}{
			"user_id": job.UserID,
			"created": stats.Created,
			"updated": stats.Updated,
			"deleted": stats.Deleted,
		}).Info("calendar sync job completed")
		return nil
	})
	if err != nil {
		if resilience.IsPermanent(err) {
			logger.WithError(err).Warn("dropping unrecoverable sync job for user %s", job.UserID)
			return nil
		}
		return err
	}
	return nil
}

// resolveWindow applies the default sync window when the job omits bounds.
func (p *SyncProcessor) resolveWindow(job *out.CalendarSyncJob) (time.Time, time.Time) {
	now := time.Now().UTC()

	start := now.AddDate(0, 0, -p.windowPastDays)
	if job.WindowStart != nil {
		start = *job.WindowStart
	}

	end := now.AddDate(0, 0, p.windowFutureDays)
	if job.WindowEnd != nil {
		end = *job.WindowEnd
	}

	return start, end
}
