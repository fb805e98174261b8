package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"github.com/nhle/universal-inbox/internal/model"
)

// Scheduler runs SyncAll periodically, one job per sync type.
type Scheduler struct {
	scheduler *gocron.Scheduler
	orch      *Orchestrator
	cfg       model.SyncConfig
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewScheduler creates a Scheduler around orch.
func NewScheduler(orch *Orchestrator, cfg model.SyncConfig) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		orch:      orch,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the jobs and runs them in the background, first right
// away. A sync type without an interval is not scheduled.
func (s *Scheduler) Start() error {
	intervals := []struct {
		syncType model.SyncType
		every    time.Duration
	}{
		{model.SyncNotifications, s.cfg.NotificationsEvery},
		{model.SyncTasks, s.cfg.TasksEvery},
	}

	for _, iv := range intervals {
		if iv.every <= 0 {
			log.Info().Str("sync_type", string(iv.syncType)).Msg("periodic sync disabled")
			continue
		}
		job, err := s.scheduler.Every(iv.every).SingletonMode().Do(s.runSync, iv.syncType)
		if err != nil {
			return fmt.Errorf("scheduling %s sync: %w", iv.syncType, err)
		}
		job.Tag(string(iv.syncType))
		log.Info().
			Str("sync_type", string(iv.syncType)).
			Dur("every", iv.every).
			Msg("scheduled sync")
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop halts the jobs and cancels the running syncs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.cancel()
}

// JobCount returns the number of scheduled jobs.
func (s *Scheduler) JobCount() int {
	return len(s.scheduler.Jobs())
}

func (s *Scheduler) runSync(syncType model.SyncType) {
	started := time.Now()
	if err := s.orch.SyncAll(s.ctx, syncType); err != nil {
		log.Error().Err(err).Str("sync_type", string(syncType)).Msg("scheduled sync failed")
		return
	}
	log.Info().
		Str("sync_type", string(syncType)).
		Dur("elapsed", time.Since(started)).
		Msg("scheduled sync done")
}
