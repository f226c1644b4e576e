package bootstrap

import (
	"context"
	"os"
	"sync"
	"time"

	"calsync_server/adapter/in/worker"
	"calsync_server/adapter/out/messaging"
	"calsync_server/config"
	"calsync_server/pkg/logger"
	"calsync_server/pkg/resilience"

	"github.com/rs/zerolog"
)

type Worker struct {
	consumer  *messaging.Consumer
	scheduler *worker.SyncScheduler
	deps      *Dependencies
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	zlog      zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	retryCfg := resilience.DefaultRetryConfig()
	if cfg.ConsumerRetryDelaySec > 0 {
		retryCfg.InitialDelay = time.Duration(cfg.ConsumerRetryDelaySec) * time.Second
	}

	processor := worker.NewSyncProcessor(deps.EventService, &worker.SyncProcessorConfig{
		WindowPastDays:   cfg.SyncWindowPastDays,
		WindowFutureDays: cfg.SyncWindowFutureDays,
		Retry:            retryCfg,
	})

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		zlog:      zlog,
		scheduler: worker.NewSyncScheduler(deps.IntegrationRepo, deps.MessageProducer, time.Minute, 15*time.Minute),
	}

	w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:                "calsync-workers",
		Consumer:             cfg.WorkerID,
		Streams:              []string{messaging.StreamCalendarSync},
		Handler:              processor,
		Logger:               zlog,
		BatchSize:            int64(cfg.ConsumerBatchSize),
		BlockTime:            time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
		PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
		MaxRetries:           cfg.ConsumerMaxRetries,
	})

	return w, cleanup, nil
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.zlog.Info().Msg("starting stream consumer")
		if err := w.consumer.Run(w.ctx); err != nil && err != context.Canceled {
			w.zlog.Error().Err(err).Msg("stream consumer error")
		}
	}()

	w.scheduler.Start()

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()
	w.scheduler.Stop()
	w.wg.Wait()
	logger.Info("worker stopped")
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
