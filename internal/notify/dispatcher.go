package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/metrics"
	"github.com/longbark/sitewatch/internal/repo"
)

// Dispatcher fans a newly created alert out to every configured channel.
// Channels run concurrently and independently; a failure is recorded as
// sent=false on the alert and never retried. Wait makes completion
// observable so shutdown (and tests) can drain in-flight sends.
type Dispatcher struct {
	Log       *zap.Logger
	Alerts    repo.AlertStore
	Notifiers []Notifier

	wg sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, alerts repo.AlertStore, notifiers ...Notifier) *Dispatcher {
	ns := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			ns = append(ns, n)
		}
	}
	return &Dispatcher{Log: log, Alerts: alerts, Notifiers: ns}
}

// Dispatch schedules delivery of the alert and returns immediately. The
// sends run on a context detached from the caller; once an alert is
// accepted for delivery, only the channels' own timeouts bound it.
func (d *Dispatcher) Dispatch(ctx context.Context, a *domain.Alert) {
	if len(d.Notifiers) == 0 {
		return
	}
	sendCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(sendCtx, a)
	}()
}

// Wait blocks until every dispatched alert has been delivered and recorded.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) deliver(ctx context.Context, a *domain.Alert) {
	type outcome struct {
		channel   string
		delivered bool
		at        time.Time
	}

	results := make([]outcome, len(d.Notifiers))
	var wg sync.WaitGroup
	for i, n := range d.Notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			delivered := n.Send(ctx, a)
			results[i] = outcome{channel: n.Name(), delivered: delivered, at: time.Now().UTC()}
			metrics.RecordNotification(n.Name(), delivered)
		}(i, n)
	}
	wg.Wait()

	// Attempts go through the store's narrow notification write. A full
	// alert update here could race a concurrent acknowledge or resolve
	// and write the stale status back.
	for _, o := range results {
		at := o.at
		attempt := domain.NotificationAttempt{Sent: o.delivered}
		if o.delivered {
			attempt.SentAt = &at
		}
		if !o.delivered {
			d.Log.Warn("notification_failed",
				zap.String("alert_id", string(a.ID)),
				zap.String("channel", o.channel),
			)
		}
		if err := d.Alerts.RecordNotification(ctx, a.ID, o.channel, attempt); err != nil {
			d.Log.Warn("notification_record_error",
				zap.String("alert_id", string(a.ID)),
				zap.String("channel", o.channel),
				zap.Error(err),
			)
		}
	}
}
