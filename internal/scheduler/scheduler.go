package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/weatherenergy/pipeline/internal/pipeline"
)

// runTimeout bounds a whole daily batch, fetches included.
const runTimeout = 15 * time.Minute

// Scheduler triggers a full pipeline run once per day when the process runs
// in daemon mode. The default deployment leaves scheduling to the external CI
// cron instead.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *pipeline.Service
	at        string
	log       *slog.Logger
}

// New creates a Scheduler firing daily at the given "HH:MM" UTC time.
func New(at string, service *pipeline.Service, log *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		at:        at,
		log:       log,
	}
}

// Start schedules the daily job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(1).Day().At(s.at).Do(func() {
		s.log.Info("scheduler: running daily pipeline job")

		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		if err := s.service.Run(ctx, pipeline.AllStages); err != nil {
			s.log.Error("scheduler: pipeline run failed", "err", err)
			return
		}
		s.log.Info("scheduler: daily pipeline job completed")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
