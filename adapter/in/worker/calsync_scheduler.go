package worker

import (
	"context"
	"time"

	"calsync_server/core/port/out"
	"calsync_server/pkg/logger"
)

const (
	schedulerStartupDelay = 30 * time.Second
	schedulerBatchLimit   = 100
)

// SyncScheduler periodically enqueues sync jobs for active integrations
// whose mirror has gone stale.
type SyncScheduler struct {
	integrationRepo out.IntegrationRepository
	producer        out.MessageProducer
	checkInterval   time.Duration
	staleAfter      time.Duration
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewSyncScheduler creates a new sync scheduler. checkInterval controls how
// often the scan runs; staleAfter is the age at which a mirror is re-synced.
func NewSyncScheduler(
	integrationRepo out.IntegrationRepository,
	producer out.MessageProducer,
	checkInterval time.Duration,
	staleAfter time.Duration,
) *SyncScheduler {
	if checkInterval == 0 {
		checkInterval = time.Minute
	}
	if staleAfter == 0 {
		staleAfter = 15 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncScheduler{
		integrationRepo: integrationRepo,
		producer:        producer,
		checkInterval:   checkInterval,
		staleAfter:      staleAfter,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start starts the scheduler loop.
func (s *SyncScheduler) Start() {
	logger.Info("[SyncScheduler] starting, interval=%s stale_after=%s", s.checkInterval, s.staleAfter)
	go s.run()
}

// Stop stops the scheduler.
func (s *SyncScheduler) Stop() {
	logger.Info("[SyncScheduler] stopping")
	s.cancel()
}

func (s *SyncScheduler) run() {
	// Let the server settle before the first scan.
	select {
	case <-s.ctx.Done():
		return
	case <-time.After(schedulerStartupDelay):
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[SyncScheduler] stopped")
			return
		case <-ticker.C:
			s.enqueueStaleIntegrations()
		}
	}
}

func (s *SyncScheduler) enqueueStaleIntegrations() {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.staleAfter)
	entities, err := s.integrationRepo.ListDueForSync(ctx, cutoff, schedulerBatchLimit)
	if err != nil {
		logger.WithError(err).Error("[SyncScheduler] failed to list stale integrations")
		return
	}

	if len(entities) == 0 {
		return
	}

	logger.Info("[SyncScheduler] found %d integrations due for sync", len(entities))

	for _, entity := range entities {
		job := &out.CalendarSyncJob{
			UserID:     entity.UserID,
			Reason:     "scheduled",
			EnqueuedAt: time.Now().UTC(),
		}
		if err := s.producer.PublishCalendarSync(ctx, job); err != nil {
			logger.WithError(err).Error("[SyncScheduler] failed to publish sync job for user %s", entity.UserID)
		}
	}
}
