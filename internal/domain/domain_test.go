package domain

import (
	"errors"
	"testing"
	"time"
)

func TestSiteDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	def := 5 * time.Minute

	s := &Site{}
	if !s.Due(now, def) {
		t.Fatal("never-checked site should always be due")
	}

	recent := now.Add(-2 * time.Minute)
	s.LastCheckedAt = &recent
	if s.Due(now, def) {
		t.Fatal("site checked 2m ago with 5m default should not be due")
	}

	s.CheckIntervalSec = 60
	if !s.Due(now, def) {
		t.Fatal("site with 60s interval checked 2m ago should be due")
	}
}

func TestNewResult_ValidShape(t *testing.T) {
	r, err := NewResult("s1", KindUptime, time.Now(), "", &UptimeResult{StatusCode: 200, IsUp: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind != KindUptime || r.Uptime == nil {
		t.Fatalf("bad result: %+v", r)
	}
}

func TestNewResult_KindMismatch(t *testing.T) {
	_, err := NewResult("s1", KindTLS, time.Now(), "", &UptimeResult{})
	if !errors.Is(err, ErrResultShape) {
		t.Fatalf("want ErrResultShape, got %v", err)
	}
}

func TestValidate_MultiplePayloads(t *testing.T) {
	r := &CheckResult{
		SiteID: "s1",
		Kind:   KindUptime,
		Uptime: &UptimeResult{},
		TLS:    &TLSResult{},
	}
	if err := r.Validate(); !errors.Is(err, ErrResultShape) {
		t.Fatalf("want ErrResultShape, got %v", err)
	}
}

func TestAlertTerminal(t *testing.T) {
	a := &Alert{Status: AlertOpen}
	if a.Terminal() {
		t.Fatal("open alert is not terminal")
	}
	a.Status = AlertResolved
	if !a.Terminal() {
		t.Fatal("resolved alert is terminal")
	}
}
