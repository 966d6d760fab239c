package docsource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"invoicepipe/internal/logger"
)

// Scheduler runs a folder sync on a standard 5-field cron schedule
// (minute hour day-of-month month day-of-week).
// Examples: "0 * * * *" (hourly), "*/15 8-18 * * 1-5" (every 15 minutes in office hours).
type Scheduler struct {
	schedule cron.Schedule
	spec     string
	syncer   *Syncer
	folder   string
	log      zerolog.Logger
	now      func() time.Time
}

// ParseSchedule validates a cron expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	return sched, nil
}

// NewScheduler creates a scheduler for folder.
func NewScheduler(spec string, syncer *Syncer, folder string) (*Scheduler, error) {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		schedule: sched,
		spec:     spec,
		syncer:   syncer,
		folder:   folder,
		log:      logger.WithComponent("sync-scheduler"),
		now:      time.Now,
	}, nil
}

// Next returns the next run time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run blocks, syncing at every scheduled time, until ctx is done.
// A sync that is still running when the next tick comes is not doubled up.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Str("cron", s.spec).Str("folder", s.folder).Msg("Folder sync scheduled")

	for {
		now := s.now()
		next := s.schedule.Next(now)
		wait := next.Sub(now)
		s.log.Info().Time("next", next).Dur("in", wait.Round(time.Second)).Msg("Next folder sync")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		res, err := s.syncer.Sync(ctx, s.folder, nil)
		switch {
		case errors.Is(err, ErrSyncRunning):
			s.log.Warn().Msg("Previous sync still running, skipping this run")
		case err != nil:
			s.log.Error().Err(err).Msg("Scheduled sync failed")
		default:
			s.log.Info().
				Int("total", res.Total).
				Int("created", res.Created).
				Int("skipped", res.Skipped).
				Int("errors", res.Errors).
				Msg("Scheduled sync complete")
		}
	}
}
