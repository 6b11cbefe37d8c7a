package alert

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/metrics"
	"github.com/longbark/sitewatch/internal/repo"
)

// ErrInvalidState rejects lifecycle transitions out of RESOLVED. The caller
// sees the rejection; nothing is silently ignored.
var ErrInvalidState = errors.New("alert: invalid state transition")

// Dispatcher receives each newly created alert exactly once.
type Dispatcher interface {
	Dispatch(ctx context.Context, a *domain.Alert)
}

// Engine owns the alert lifecycle. Deduplication lives in the store's
// CreateIfAbsent so that concurrent site-check completions cannot race a
// second open alert past the lookup.
type Engine struct {
	Log        *zap.Logger
	Alerts     repo.AlertStore
	Dispatcher Dispatcher
}

func NewEngine(log *zap.Logger, alerts repo.AlertStore, d Dispatcher) *Engine {
	return &Engine{Log: log, Alerts: alerts, Dispatcher: d}
}

// HandleProblems turns each problem into at most one new alert. Storage
// errors on one problem do not stop the rest.
func (e *Engine) HandleProblems(ctx context.Context, problems []domain.Problem) {
	for _, p := range problems {
		if _, _, err := e.CreateIfAbsent(ctx, p); err != nil {
			e.Log.Warn("alert_create_error",
				zap.String("site_id", string(p.SiteID)),
				zap.String("alert_type", string(p.Type)),
				zap.Error(err),
			)
		}
	}
}

// CreateIfAbsent opens a new alert for the problem unless the (site, type)
// key already has one open or acknowledged. A freshly created alert is
// handed to the dispatcher exactly once.
func (e *Engine) CreateIfAbsent(ctx context.Context, p domain.Problem) (*domain.Alert, bool, error) {
	a := &domain.Alert{
		ID:            domain.AlertID(uuid.NewString()),
		SiteID:        p.SiteID,
		Type:          p.Type,
		Severity:      p.Severity,
		Status:        domain.AlertOpen,
		Title:         p.Title,
		Message:       p.Message,
		Notifications: map[string]domain.NotificationAttempt{},
		CreatedAt:     time.Now().UTC(),
	}

	created, err := e.Alerts.CreateIfAbsent(ctx, a)
	if err != nil {
		return nil, false, err
	}
	if !created {
		e.Log.Debug("alert_duplicate_suppressed",
			zap.String("site_id", string(p.SiteID)),
			zap.String("alert_type", string(p.Type)),
		)
		return nil, false, nil
	}

	metrics.AlertsCreatedTotal.WithLabelValues(string(a.Type)).Inc()
	e.Log.Info("alert_created",
		zap.String("alert_id", string(a.ID)),
		zap.String("site_id", string(a.SiteID)),
		zap.String("alert_type", string(a.Type)),
		zap.String("severity", string(a.Severity)),
	)
	if e.Dispatcher != nil {
		e.Dispatcher.Dispatch(ctx, a)
	}
	return a, true, nil
}

// Acknowledge marks an active alert as seen. Re-acknowledging is a no-op
// refresh of the timestamp; a resolved alert cannot come back.
func (e *Engine) Acknowledge(ctx context.Context, id domain.AlertID) (*domain.Alert, error) {
	a, err := e.Alerts.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Terminal() {
		return nil, ErrInvalidState
	}

	now := time.Now().UTC()
	a.Status = domain.AlertAcknowledged
	a.AcknowledgedAt = &now
	if err := e.Alerts.Update(ctx, a); err != nil {
		return nil, err
	}
	e.Log.Info("alert_acknowledged", zap.String("alert_id", string(id)))
	return a, nil
}

// Resolve closes an alert from OPEN or ACKNOWLEDGED, recording who resolved
// it. A second resolve fails rather than double-applying.
func (e *Engine) Resolve(ctx context.Context, id domain.AlertID, by, notes string) (*domain.Alert, error) {
	a, err := e.Alerts.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Terminal() {
		return nil, ErrInvalidState
	}

	now := time.Now().UTC()
	a.Status = domain.AlertResolved
	a.ResolvedAt = &now
	a.ResolvedBy = by
	a.ResolutionNotes = notes
	if err := e.Alerts.Update(ctx, a); err != nil {
		return nil, err
	}
	e.Log.Info("alert_resolved",
		zap.String("alert_id", string(id)),
		zap.String("resolved_by", by),
	)
	return a, nil
}

// Delete removes an alert in any state. Operator action, bypasses the state
// machine.
func (e *Engine) Delete(ctx context.Context, id domain.AlertID) error {
	if err := e.Alerts.Delete(ctx, id); err != nil {
		return err
	}
	e.Log.Info("alert_deleted", zap.String("alert_id", string(id)))
	return nil
}
