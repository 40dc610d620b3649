// Package scheduler periodically enqueues monitor and search passes.
// The passes themselves run as dispatcher jobs so cron ticks stay cheap
// and overlapping work is bounded by the queue workers.
package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/fetcharr/internal/config"
	"github.com/amaumene/fetcharr/internal/jobs"
)

// Queue names shared with the dispatcher wiring
const (
	QueueMonitor = "monitor"
	QueueSearch  = "search"
	QueueImport  = "import"
)

// Scheduler manages the periodic passes
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *jobs.Dispatcher
	cfg        *config.Config
	logger     *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(dispatcher *jobs.Dispatcher, cfg *config.Config, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start registers the cron entries and kicks off an initial pass
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", s.cfg.MonitorIntervalMinutes), func() {
		s.enqueue(QueueMonitor)
	})
	if err != nil {
		return fmt.Errorf("failed to add monitor job: %w", err)
	}

	_, err = s.cron.AddFunc(fmt.Sprintf("@every %dm", s.cfg.SearchIntervalMinutes), func() {
		s.enqueue(QueueSearch)
	})
	if err != nil {
		return fmt.Errorf("failed to add search job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	// Run an initial reconciliation and search right away
	s.enqueue(QueueMonitor)
	s.enqueue(QueueSearch)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) enqueue(queue string) {
	err := s.dispatcher.Enqueue(queue, jobs.Payload{})
	switch {
	case err == nil:
		s.logger.WithField("queue", queue).Debug("Enqueued scheduled pass")
	case err == jobs.ErrDuplicate:
		s.logger.WithField("queue", queue).Debug("Pass already queued, skipping")
	default:
		s.logger.WithError(err).WithField("queue", queue).Warn("Failed to enqueue scheduled pass")
	}
}
