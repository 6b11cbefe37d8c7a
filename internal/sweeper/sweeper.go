package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/metrics"
	"github.com/longbark/sitewatch/internal/repo"
)

// Sweeper enforces the retention horizons: check results older than
// ResultRetention go away per kind, resolved alerts older than
// AlertRetention go away entirely. Deletions are unconditional, there is no
// soft delete.
type Sweeper struct {
	Log     *zap.Logger
	Results repo.ResultStore
	Alerts  repo.AlertStore

	Schedule        string
	ResultRetention time.Duration
	AlertRetention  time.Duration

	cron *cron.Cron
}

func New(log *zap.Logger, results repo.ResultStore, alerts repo.AlertStore,
	schedule string, resultRetention, alertRetention time.Duration) *Sweeper {
	if schedule == "" {
		schedule = "@daily"
	}
	if resultRetention <= 0 {
		resultRetention = 90 * 24 * time.Hour
	}
	if alertRetention <= 0 {
		alertRetention = 30 * 24 * time.Hour
	}
	return &Sweeper{
		Log:             log,
		Results:         results,
		Alerts:          alerts,
		Schedule:        schedule,
		ResultRetention: resultRetention,
		AlertRetention:  alertRetention,
	}
}

// Start registers the sweep on its cron schedule and begins running it in
// the background.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.Schedule, func() {
		if _, _, err := s.SweepOnce(context.Background()); err != nil {
			s.Log.Warn("sweep_error", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.Log.Info("sweeper_started", zap.String("schedule", s.Schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.Log.Info("sweeper_stopped")
}

// SweepOnce applies both horizons now and reports how many rows went away.
func (s *Sweeper) SweepOnce(ctx context.Context) (results int64, alerts int64, err error) {
	now := time.Now().UTC()

	resultCutoff := now.Add(-s.ResultRetention)
	for _, kind := range domain.Kinds() {
		n, derr := s.Results.DeleteOlderThan(ctx, kind, resultCutoff)
		if derr != nil {
			// Keep sweeping the other kinds; report the first failure.
			if err == nil {
				err = derr
			}
			continue
		}
		results += n
	}

	alertCutoff := now.Add(-s.AlertRetention)
	n, derr := s.Alerts.DeleteResolvedBefore(ctx, alertCutoff)
	if derr != nil && err == nil {
		err = derr
	}
	alerts += n

	metrics.SweeperDeletedTotal.WithLabelValues("check_results").Add(float64(results))
	metrics.SweeperDeletedTotal.WithLabelValues("alerts").Add(float64(alerts))
	s.Log.Info("sweep_finished",
		zap.Int64("results_deleted", results),
		zap.Int64("alerts_deleted", alerts),
	)
	return results, alerts, err
}
