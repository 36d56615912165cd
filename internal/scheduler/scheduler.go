package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/spotter-data-pull/internal/wave"
)

// Runner is the part of wave.Service the scheduler needs.
type Runner interface {
	Run(ctx context.Context, rng wave.DateRange) (wave.Result, error)
}

// Scheduler pulls the previous UTC day once a day.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	at        string
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a new Scheduler that fires every day at "HH:MM" UTC.
func New(at string, runner Runner, log zerolog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		at:        at,
		log:       log,
		now:       time.Now,
	}
}

// Start schedules the daily job and starts the underlying scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(1).Day().At(s.at).Do(func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Info().Msgf("scheduler: daily pull at %s UTC", s.at)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// runOnce pulls yesterday relative to the scheduler clock.
func (s *Scheduler) runOnce(ctx context.Context) {
	yesterday := wave.DayOf(s.now()).Prev()
	rng := wave.DateRange{Start: yesterday, End: yesterday}

	s.log.Info().Msgf("scheduler: pulling %s", yesterday)
	if _, err := s.runner.Run(ctx, rng); err != nil {
		s.log.Error().Err(err).Msgf("scheduler: pull for %s failed", yesterday)
		return
	}
	s.log.Info().Msgf("scheduler: completed pull for %s", yesterday)
}
