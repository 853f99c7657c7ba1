// Package trigger runs housekeeping jobs on cron schedules.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/quota"
)

// JobTimeout bounds one job execution.
const JobTimeout = 10 * time.Minute

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs registered jobs.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler returns an idle scheduler. Cron expressions use the standard
// 5-field format (minute hour day-of-month month day-of-week).
func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// Register adds job under name on the spec schedule.
func (s *Scheduler) Register(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
		defer cancel()

		start := time.Now()
		log.Info().Str("job", name).Msg("scheduled_job_fired")
		if err := job(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("scheduled_job_failed")
			return
		}
		log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("scheduled_job_completed")
	})
	if err != nil {
		return fmt.Errorf("registering cron %q for job %s: %w", spec, name, err)
	}
	return nil
}

// RegisterRetention purges memory older than retentionDays on spec. A
// non-positive retention registers nothing.
func (s *Scheduler) RegisterRetention(spec string, store *memory.Store, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	return s.Register("memory_retention", spec, func(ctx context.Context) error {
		memory.RunRetention(ctx, store, retentionDays)
		return nil
	})
}

// RegisterQuotaPrune drops rate limiters of users idle for longer than idle,
// every hour.
func (s *Scheduler) RegisterQuotaPrune(q *quota.Manager, idle time.Duration) error {
	return s.Register("quota_prune", "@hourly", func(context.Context) error {
		if n := q.Prune(idle); n > 0 {
			log.Debug().Int("dropped", n).Msg("quota_limiters_pruned")
		}
		return nil
	})
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
