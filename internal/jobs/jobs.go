// Package jobs runs the clock-anchored background jobs (the nightly
// database backup) on cron schedules. The market-hours replay loop is NOT
// one of these: "every N seconds starting now" lives in internal/scheduler,
// cron expressions model fixed clock times.
package jobs

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one schedulable unit of background work.
type Job interface {
	Run() error
	Name() string
}

// Runner manages cron-scheduled jobs.
type Runner struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a Runner. Schedules use six-field cron expressions with a
// leading seconds field, e.g. "0 0 2 * * *" for 02:00 daily.
func New(log zerolog.Logger) *Runner {
	return &Runner{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "jobs").Logger(),
	}
}

// AddJob registers job on the given cron schedule.
func (r *Runner) AddJob(schedule string, job Job) error {
	_, err := r.cron.AddFunc(schedule, func() {
		r.log.Debug().Str("job", job.Name()).Msg("running job")
		if err := job.Run(); err != nil {
			r.log.Error().Err(err).Str("job", job.Name()).Msg("job failed")
			return
		}
		r.log.Debug().Str("job", job.Name()).Msg("job completed")
	})
	if err != nil {
		return err
	}

	r.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}

// Start begins running registered jobs on their schedules.
func (r *Runner) Start() {
	r.cron.Start()
	r.log.Info().Msg("job runner started")
}

// Stop halts scheduling and waits for any running job to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info().Msg("job runner stopped")
}
