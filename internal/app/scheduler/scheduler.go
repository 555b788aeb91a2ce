package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fernlabs/tally/internal/app/service/analytics"
	"github.com/fernlabs/tally/internal/app/service/invoice"
	"github.com/fernlabs/tally/pkg/config"
)

const retryBatchSize = 100

// Scheduler runs the background sweeps: rolling the weekly analytics
// counters over and resubmitting failed charges with retry budget left.
type Scheduler struct {
	cfg       *config.Config
	analytics *analytics.Service
	invoices  invoice.Aggregator
	log       *zap.SugaredLogger
	cron      *cron.Cron
}

func New(cfg *config.Config, analyticsSvc *analytics.Service, invoices invoice.Aggregator, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		analytics: analyticsSvc,
		invoices:  invoices,
		log:       log,
		cron:      cron.New(),
	}
}

// Start registers the configured jobs and starts the cron loop. An empty
// spec disables the corresponding job.
func (s *Scheduler) Start() error {
	if spec := s.cfg.Scheduler.WeeklyResetSpec; spec != "" {
		if _, err := s.cron.AddFunc(spec, s.runWeeklyResetSweep); err != nil {
			return fmt.Errorf("failed to schedule weekly reset sweep: %w", err)
		}
		s.log.Infow("weekly reset sweep scheduled", "spec", spec)
	}
	if spec := s.cfg.Scheduler.ChargeRetrySpec; spec != "" {
		if _, err := s.cron.AddFunc(spec, s.runChargeRetrySweep); err != nil {
			return fmt.Errorf("failed to schedule charge retry sweep: %w", err)
		}
		s.log.Infow("charge retry sweep scheduled", "spec", spec)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runWeeklyResetSweep() {
	ctx := context.Background()
	now := time.Now()

	ids, err := s.analytics.ListAccountIDs(ctx)
	if err != nil {
		s.log.Errorw("weekly reset sweep failed to list accounts", "err", err)
		return
	}
	var reset int
	for _, id := range ids {
		if err := s.analytics.ResetWeeklyIfDue(ctx, id, now); err != nil {
			s.log.Errorw("weekly reset failed", "account_id", id, "err", err)
			continue
		}
		reset++
	}
	s.log.Infow("weekly reset sweep finished", "accounts", len(ids), "processed", reset)
}

func (s *Scheduler) runChargeRetrySweep() {
	ctx := context.Background()

	items, err := s.invoices.ListRetriable(ctx, retryBatchSize)
	if err != nil {
		s.log.Errorw("charge retry sweep failed to list invoices", "err", err)
		return
	}
	for _, inv := range items {
		if _, err := s.invoices.SubmitCharge(ctx, inv.ID); err != nil {
			// the next sweep picks the invoice up again while budget remains
			s.log.Errorw("charge retry failed", "invoice_id", inv.ID, "err", err)
		}
	}
	if len(items) > 0 {
		s.log.Infow("charge retry sweep finished", "invoices", len(items))
	}
}

func run(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(run),
)
