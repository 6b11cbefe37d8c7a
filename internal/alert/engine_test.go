package alert

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/repo"
	"github.com/longbark/sitewatch/internal/repo/memory"
)

type recordingDispatcher struct {
	alerts []*domain.Alert
}

func (d *recordingDispatcher) Dispatch(_ context.Context, a *domain.Alert) {
	d.alerts = append(d.alerts, a)
}

func newTestEngine() (*Engine, *memory.Store, *recordingDispatcher) {
	store := memory.New()
	d := &recordingDispatcher{}
	return NewEngine(zap.NewNop(), store, d), store, d
}

func problem() domain.Problem {
	return domain.Problem{
		SiteID:   "site-1",
		Type:     domain.AlertUptime,
		Severity: domain.SeverityCritical,
		Title:    "Site Example is down",
		Message:  "Status code: 0, Error: connection error",
	}
}

func TestCreateIfAbsent_DispatchesOnce(t *testing.T) {
	e, _, d := newTestEngine()
	ctx := context.Background()

	a, created, err := e.CreateIfAbsent(ctx, problem())
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	if len(d.alerts) != 1 || d.alerts[0].ID != a.ID {
		t.Fatalf("dispatcher should see the new alert once, got %d", len(d.alerts))
	}

	// Same condition persisting: suppressed, not re-dispatched.
	_, created, err = e.CreateIfAbsent(ctx, problem())
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("duplicate open alert must be suppressed")
	}
	if len(d.alerts) != 1 {
		t.Fatalf("suppressed duplicate must not dispatch, got %d", len(d.alerts))
	}
}

func TestCreateIfAbsent_NewAlertAfterResolve(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	a, _, err := e.CreateIfAbsent(ctx, problem())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Resolve(ctx, a.ID, "ops", "fixed"); err != nil {
		t.Fatal(err)
	}

	// Recurrence after resolution opens a fresh alert; the old one stays in
	// history untouched.
	b, created, err := e.CreateIfAbsent(ctx, problem())
	if err != nil || !created {
		t.Fatalf("recurrence should create: created=%v err=%v", created, err)
	}
	if b.ID == a.ID {
		t.Fatal("resolved alerts are never reopened")
	}
}

func TestAcknowledge(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	a, _, _ := e.CreateIfAbsent(ctx, problem())
	got, err := e.Acknowledge(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.AlertAcknowledged || got.AcknowledgedAt == nil {
		t.Fatalf("ack did not stick: %+v", got)
	}

	// Re-ack refreshes, it does not fail.
	if _, err := e.Acknowledge(ctx, a.ID); err != nil {
		t.Fatalf("re-acknowledge: %v", err)
	}
}

func TestLifecycle_NoTransitionLeavesResolved(t *testing.T) {
	e, _, _ := newTestEngine()
	ctx := context.Background()

	a, _, _ := e.CreateIfAbsent(ctx, problem())
	if _, err := e.Resolve(ctx, a.ID, "ops", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Acknowledge(ctx, a.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("ack after resolve = %v, want ErrInvalidState", err)
	}
	if _, err := e.Resolve(ctx, a.ID, "ops", "again"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second resolve = %v, want ErrInvalidState", err)
	}
}

func TestResolve_RecordsResolver(t *testing.T) {
	e, store, _ := newTestEngine()
	ctx := context.Background()

	a, _, _ := e.CreateIfAbsent(ctx, problem())
	if _, err := e.Resolve(ctx, a.ID, "oncall@longbark", "rebooted origin"); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetAlert(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ResolvedBy != "oncall@longbark" || got.ResolutionNotes != "rebooted origin" || got.ResolvedAt == nil {
		t.Fatalf("resolution fields not persisted: %+v", got)
	}
}

func TestDelete_AnyState(t *testing.T) {
	e, store, _ := newTestEngine()
	ctx := context.Background()

	a, _, _ := e.CreateIfAbsent(ctx, problem())
	if _, err := e.Resolve(ctx, a.ID, "ops", ""); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetAlert(ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("alert should be gone, got %v", err)
	}
}
