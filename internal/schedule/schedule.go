// Package schedule fires budget alerts and the monthly summary at fixed
// wall-clock times.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/budget"
	"github.com/dvloznov/finance-bridge/internal/config"
	"github.com/dvloznov/finance-bridge/internal/logger"
)

// RunTimeout bounds one scheduled run.
const RunTimeout = 2 * time.Minute

// Evaluator is what the scheduler drives.
type Evaluator interface {
	Evaluate(ctx context.Context, month string) (budget.Report, error)
	MonthlySummary(ctx context.Context, month string) (budget.Summary, error)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron     *cron.Cron
	engine   Evaluator
	location *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

// New registers one alert entry per configured time and one daily summary
// entry. It does not start the runner.
func New(engine Evaluator, cfg config.Alerts, log zerolog.Logger) (*Scheduler, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		engine:   engine,
		location: loc,
		now:      time.Now,
		log:      logger.Component(log, "scheduler"),
	}

	for _, at := range cfg.Times {
		if _, err := s.cron.AddFunc(Spec(at), s.alertJob); err != nil {
			return nil, fmt.Errorf("New: alert entry %s: %w", at, err)
		}
	}
	if _, err := s.cron.AddFunc(Spec(cfg.SummaryTime), s.summaryJob); err != nil {
		return nil, fmt.Errorf("New: summary entry %s: %w", cfg.SummaryTime, err)
	}

	return s, nil
}

// Spec converts a clock time to a daily cron expression.
func Spec(at config.ClockTime) string {
	return fmt.Sprintf("%d %d * * *", at.Minute, at.Hour)
}

// Start starts the runner in its own goroutine.
func (s *Scheduler) Start() {
	for _, e := range s.cron.Entries() {
		s.log.Info().Time("next", e.Next).Msg("Scheduled entry")
	}
	s.cron.Start()
	s.log.Info().Str("location", s.location.String()).Int("entries", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the runner. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) alertJob() {
	ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	defer cancel()
	_ = s.RunAlerts(ctx)
}

func (s *Scheduler) summaryJob() {
	ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
	defer cancel()
	_ = s.RunSummary(ctx)
}

// RunAlerts evaluates the current month.
func (s *Scheduler) RunAlerts(ctx context.Context) error {
	month := budget.CurrentMonth(s.now(), s.location)
	log := s.runLogger("alerts", month)
	report, err := s.engine.Evaluate(ctx, month)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled budget alert failed")
		return err
	}
	log.Debug().Bool("notified", report.Notified).Msg("Scheduled budget alert done")
	return nil
}

// RunSummary sends the monthly summary, but only on the first day of the
// month in the scheduler's location.
func (s *Scheduler) RunSummary(ctx context.Context) error {
	now := s.now()
	if !SummaryDue(now, s.location) {
		s.log.Debug().Msg("Not the first of the month, skipping summary")
		return nil
	}
	month := budget.CurrentMonth(now, s.location)
	log := s.runLogger("summary", month)
	summary, err := s.engine.MonthlySummary(ctx, month)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled monthly summary failed")
		return err
	}
	log.Debug().Bool("notified", summary.Notified).Msg("Scheduled monthly summary done")
	return nil
}

func (s *Scheduler) runLogger(job, month string) zerolog.Logger {
	return logger.WithFields(s.log, map[string]interface{}{
		"job":   job,
		"month": month,
	})
}

// SummaryDue reports whether now is the first calendar day in loc.
func SummaryDue(now time.Time, loc *time.Location) bool {
	return now.In(loc).Day() == 1
}
