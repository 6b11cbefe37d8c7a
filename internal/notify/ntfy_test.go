package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
)

func testAlert() *domain.Alert {
	return &domain.Alert{
		ID:       "a-1",
		SiteID:   "site-1",
		Type:     domain.AlertUptime,
		Severity: domain.SeverityCritical,
		Title:    "Site Example is down",
		Message:  "Status code: 0, Error: connection error",
	}
}

func TestNtfy_SendHeadersAndTopic(t *testing.T) {
	var gotPath, gotTitle, gotTags, gotPriority, gotBody string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		gotPriority = r.Header.Get("Priority")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer s.Close()

	n := NewNtfy(zap.NewNop(), s.URL, "fallback",
		map[string]string{"uptime": "uptime-alerts"}, "high")
	if !n.Send(context.Background(), testAlert()) {
		t.Fatal("200 answer should count as delivered")
	}

	if gotPath != "/uptime-alerts" {
		t.Fatalf("path = %q, want the per-type topic", gotPath)
	}
	if gotTitle != "Site Example is down" {
		t.Fatalf("title = %q", gotTitle)
	}
	if gotPriority != "high" {
		t.Fatalf("priority = %q, want high", gotPriority)
	}
	if !strings.Contains(gotTags, "rotating_light") || !strings.Contains(gotTags, "globe_with_meridians") {
		t.Fatalf("tags = %q, want severity and type emojis", gotTags)
	}
	if gotBody != "Status code: 0, Error: connection error" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestNtfy_FallbackTopic(t *testing.T) {
	var gotPath string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer s.Close()

	n := NewNtfy(zap.NewNop(), s.URL, "fallback", nil, "default")
	a := testAlert()
	a.Type = domain.AlertSEO
	n.Send(context.Background(), a)
	if gotPath != "/fallback" {
		t.Fatalf("path = %q, want /fallback", gotPath)
	}
}

func TestNtfy_RejectionIsNotDelivered(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer s.Close()

	n := NewNtfy(zap.NewNop(), s.URL, "fallback", nil, "default")
	if n.Send(context.Background(), testAlert()) {
		t.Fatal("500 answer must report not delivered")
	}
}

func TestNtfy_DisabledWithoutTopic(t *testing.T) {
	if n := NewNtfy(zap.NewNop(), "https://ntfy.sh", "", nil, "default"); n != nil {
		t.Fatal("no default topic means the channel is off")
	}
}

func TestSlack_Send(t *testing.T) {
	var gotBody string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer s.Close()

	sl := NewSlack(zap.NewNop(), s.URL)
	if !sl.Send(context.Background(), testAlert()) {
		t.Fatal("2xx answer should count as delivered")
	}
	if !strings.Contains(gotBody, "Site Example is down") {
		t.Fatalf("payload = %q, want the alert title", gotBody)
	}
}
