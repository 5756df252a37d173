package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-bridge/internal/config"
	"github.com/dvloznov/finance-bridge/internal/ledger"
	"github.com/dvloznov/finance-bridge/internal/logger"
	"github.com/dvloznov/finance-bridge/internal/notify"
)

const (
	AlertTitle   = "Budget alert"
	SummaryTitle = "Monthly budget summary"

	// DefaultThreshold is used when no threshold is configured.
	DefaultThreshold = 0.9
)

// Session is the part of ledger.Session the engine needs.
type Session interface {
	EnsureReady(ctx context.Context) error
	Client() ledger.Client
	Invalidate(reason error)
}

// Report is the outcome of one Evaluate call. MonthMissing is set when the
// ledger has no snapshot for the month yet; nothing is sent in that case.
type Report struct {
	Month        string
	MonthMissing bool
	Rows         []Row
	Buckets      Buckets
	Message      string
	Notified     bool
	NotifyErr    error
}

// Summary is the outcome of one MonthlySummary call.
type Summary struct {
	Month        string
	MonthMissing bool
	Totals       Totals
	Message      string
	Notified     bool
	NotifyErr    error
}

// Engine evaluates budget months against the configured thresholds.
type Engine struct {
	session           Session
	sink              notify.Sink
	threshold         float64
	includeZeroBudget bool
	log               zerolog.Logger
}

// NewEngine creates an engine. A zero threshold falls back to DefaultThreshold.
func NewEngine(session Session, sink notify.Sink, cfg config.Alerts, log zerolog.Logger) *Engine {
	if sink == nil {
		sink = notify.Noop{}
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		session:           session,
		sink:              sink,
		threshold:         threshold,
		includeZeroBudget: cfg.IncludeZeroBudget,
		log:               logger.Component(log, "budget"),
	}
}

// Evaluate checks every category for month (YYYY-MM) and sends at most one
// alert covering all of them.
func (e *Engine) Evaluate(ctx context.Context, month string) (Report, error) {
	report := Report{Month: month}
	log := e.log.With().Str("month", month).Logger()

	rows, err := e.rows(ctx, month)
	if errors.Is(err, ledger.ErrMonthNotFound) {
		log.Info().Msg("Budget month not available, skipping alerts")
		report.MonthMissing = true
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("Evaluate: %w", err)
	}

	report.Rows = rows
	report.Buckets = Classify(rows, e.threshold, e.includeZeroBudget)
	if report.Buckets.Empty() {
		log.Info().Int("categories", len(rows)).Msg("No budget alerts")
		return report, nil
	}

	report.Message = report.Buckets.Message()
	report.NotifyErr = e.sink.Notify(ctx, notify.Notification{
		Title:   AlertTitle,
		Message: report.Message,
		Data:    map[string]string{"month": month},
	})
	report.Notified = report.NotifyErr == nil

	log.Info().
		Int("overspent", len(report.Buckets.Overspent)).
		Int("near_limit", len(report.Buckets.NearLimit)).
		Int("unbudgeted", len(report.Buckets.Unbudgeted)).
		Bool("notified", report.Notified).
		Msg("Budget alerts evaluated")
	if report.NotifyErr != nil {
		log.Warn().Err(report.NotifyErr).Msg("Budget alert notification failed")
	}
	return report, nil
}

// MonthlySummary sends one totals notification for month. It does not check
// the calendar; the caller decides when a summary is due.
func (e *Engine) MonthlySummary(ctx context.Context, month string) (Summary, error) {
	summary := Summary{Month: month}
	log := e.log.With().Str("month", month).Logger()

	rows, err := e.rows(ctx, month)
	if errors.Is(err, ledger.ErrMonthNotFound) {
		log.Info().Msg("Budget month not available, skipping summary")
		summary.MonthMissing = true
		return summary, nil
	}
	if err != nil {
		return summary, fmt.Errorf("MonthlySummary: %w", err)
	}

	summary.Totals = Sum(rows)
	summary.Message = summary.Totals.Message()
	summary.NotifyErr = e.sink.Notify(ctx, notify.Notification{
		Title:   SummaryTitle,
		Message: summary.Message,
		Data:    map[string]string{"month": month},
	})
	summary.Notified = summary.NotifyErr == nil

	log.Info().
		Int64("budgeted", summary.Totals.Budgeted).
		Int64("spent", summary.Totals.Spent).
		Bool("notified", summary.Notified).
		Msg("Monthly summary sent")
	if summary.NotifyErr != nil {
		log.Warn().Err(summary.NotifyErr).Msg("Monthly summary notification failed")
	}
	return summary, nil
}

func (e *Engine) rows(ctx context.Context, month string) ([]Row, error) {
	if err := e.session.EnsureReady(ctx); err != nil {
		return nil, err
	}
	client := e.session.Client()

	categories, err := client.Categories(ctx)
	if err != nil {
		return nil, e.remoteErr(fmt.Errorf("categories: %w", err))
	}
	bm, err := client.BudgetMonth(ctx, month)
	if err != nil {
		if errors.Is(err, ledger.ErrMonthNotFound) {
			return nil, err
		}
		return nil, e.remoteErr(fmt.Errorf("budget month: %w", err))
	}
	return Rows(categories, bm), nil
}

func (e *Engine) remoteErr(err error) error {
	if errors.Is(err, ledger.ErrUnauthorized) {
		e.session.Invalidate(err)
	}
	return err
}

// CurrentMonth returns now's calendar month in loc as YYYY-MM.
func CurrentMonth(now time.Time, loc *time.Location) string {
	if loc != nil {
		now = now.In(loc)
	}
	return now.Format("2006-01")
}
