package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/repo"
)

func TestSites_RoundTrip(t *testing.T) {
	m := New()
	ctx := context.Background()

	m.PutSite(&domain.Site{Name: "a", URL: "https://a.test", Active: true})
	m.PutSite(&domain.Site{Name: "b", URL: "https://b.test", Active: false})

	sites, err := m.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(sites) != 1 || sites[0].Name != "a" {
		t.Fatalf("want only active site a, got %+v", sites)
	}

	ts := time.Now().UTC()
	if err := m.SetLastChecked(ctx, sites[0].ID, ts); err != nil {
		t.Fatalf("SetLastChecked: %v", err)
	}
	got, err := m.GetSite(ctx, sites[0].ID)
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	if got.LastCheckedAt == nil || !got.LastCheckedAt.Equal(ts) {
		t.Fatalf("LastCheckedAt = %v, want %v", got.LastCheckedAt, ts)
	}
}

func TestResults_AppendAndRetention(t *testing.T) {
	m := New()
	ctx := context.Background()
	now := time.Now().UTC()

	old, _ := domain.NewResult("s1", domain.KindUptime, now.Add(-91*24*time.Hour), "", &domain.UptimeResult{IsUp: true})
	fresh, _ := domain.NewResult("s1", domain.KindUptime, now.Add(-89*24*time.Hour), "", &domain.UptimeResult{IsUp: false})
	for _, r := range []*domain.CheckResult{old, fresh} {
		if err := m.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	deleted, err := m.DeleteOlderThan(ctx, domain.KindUptime, now.Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	last, err := m.LastByKind(ctx, "s1", domain.KindUptime)
	if err != nil {
		t.Fatalf("LastByKind: %v", err)
	}
	if last.Uptime == nil || last.Uptime.IsUp {
		t.Fatalf("retained result should be the fresh down one, got %+v", last)
	}
}

func TestAppend_RejectsBadShape(t *testing.T) {
	m := New()
	bad := &domain.CheckResult{SiteID: "s1", Kind: domain.KindTLS, Uptime: &domain.UptimeResult{}}
	if err := m.Append(context.Background(), bad); err == nil {
		t.Fatal("want shape error, got nil")
	}
}

func TestCreateIfAbsent_DedupsConcurrently(t *testing.T) {
	m := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.CreateIfAbsent(ctx, &domain.Alert{
				SiteID:   "s1",
				Type:     domain.AlertUptime,
				Severity: domain.SeverityCritical,
				Status:   domain.AlertOpen,
				Title:    "down",
			})
			if err != nil {
				t.Errorf("CreateIfAbsent: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("created = %d, want exactly 1", created)
	}
}

func TestCreateIfAbsent_NewAlertAfterResolve(t *testing.T) {
	m := New()
	ctx := context.Background()

	a := &domain.Alert{SiteID: "s1", Type: domain.AlertSSL, Status: domain.AlertOpen}
	if ok, _ := m.CreateIfAbsent(ctx, a); !ok {
		t.Fatal("first create should succeed")
	}

	// Acknowledged still blocks a duplicate.
	stored, _ := m.FindOpen(ctx, "s1", domain.AlertSSL)
	stored.Status = domain.AlertAcknowledged
	if err := m.Update(ctx, stored); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok, _ := m.CreateIfAbsent(ctx, &domain.Alert{SiteID: "s1", Type: domain.AlertSSL, Status: domain.AlertOpen}); ok {
		t.Fatal("acknowledged alert must still suppress duplicates")
	}

	// Resolving frees the dedup key.
	now := time.Now().UTC()
	stored.Status = domain.AlertResolved
	stored.ResolvedAt = &now
	if err := m.Update(ctx, stored); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok, _ := m.CreateIfAbsent(ctx, &domain.Alert{SiteID: "s1", Type: domain.AlertSSL, Status: domain.AlertOpen}); !ok {
		t.Fatal("resolved alert must not suppress a new one")
	}
}

func TestRecordNotification_LeavesLifecycleAlone(t *testing.T) {
	m := New()
	ctx := context.Background()

	a := &domain.Alert{SiteID: "s1", Type: domain.AlertUptime, Status: domain.AlertOpen}
	if ok, _ := m.CreateIfAbsent(ctx, a); !ok {
		t.Fatal("first create should succeed")
	}
	now := time.Now().UTC()
	a.Status = domain.AlertResolved
	a.ResolvedAt = &now
	if err := m.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}

	sent := now
	err := m.RecordNotification(ctx, a.ID, "ntfy", domain.NotificationAttempt{Sent: true, SentAt: &sent})
	if err != nil {
		t.Fatalf("RecordNotification: %v", err)
	}

	got, _ := m.GetAlert(ctx, a.ID)
	if got.Status != domain.AlertResolved || got.ResolvedAt == nil {
		t.Fatalf("recording an attempt moved the lifecycle: %+v", got)
	}
	if !got.Notifications["ntfy"].Sent {
		t.Fatalf("attempt missing: %+v", got.Notifications)
	}

	if err := m.RecordNotification(ctx, "missing", "ntfy", domain.NotificationAttempt{}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown alert = %v, want ErrNotFound", err)
	}
}

func TestDeleteResolvedBefore(t *testing.T) {
	m := New()
	ctx := context.Background()
	now := time.Now().UTC()

	oldTS := now.Add(-31 * 24 * time.Hour)
	newTS := now.Add(-10 * 24 * time.Hour)

	a := &domain.Alert{SiteID: "s1", Type: domain.AlertSEO, Status: domain.AlertResolved, ResolvedAt: &oldTS}
	b := &domain.Alert{SiteID: "s2", Type: domain.AlertSEO, Status: domain.AlertResolved, ResolvedAt: &newTS}
	c := &domain.Alert{SiteID: "s3", Type: domain.AlertSEO, Status: domain.AlertOpen}
	for _, al := range []*domain.Alert{a, b, c} {
		if ok, err := m.CreateIfAbsent(ctx, al); err != nil || !ok {
			t.Fatalf("seed create: ok=%v err=%v", ok, err)
		}
	}

	deleted, err := m.DeleteResolvedBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteResolvedBefore: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	left, _ := m.List(ctx, repo.AlertFilter{})
	if len(left) != 2 {
		t.Fatalf("left = %d alerts, want 2", len(left))
	}
}
