package runner

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/probe"
)

type fakeProber struct {
	kind    domain.CheckKind
	payload any
	errMsg  string
	panics  bool
	block   bool
}

func (f *fakeProber) Kind() domain.CheckKind { return f.kind }

func (f *fakeProber) Check(ctx context.Context, t probe.Target) *domain.CheckResult {
	if f.panics {
		panic("boom")
	}
	if f.block {
		<-ctx.Done()
	}
	r, err := domain.NewResult(t.SiteID, f.kind, time.Now().UTC(), f.errMsg, f.payload)
	if err != nil {
		panic(err)
	}
	return r
}

func testSite() *domain.Site {
	return &domain.Site{
		ID:             "site-1",
		Name:           "Example",
		URL:            "https://example.com",
		UptimeEnabled:  true,
		TLSEnabled:     true,
		SSLWarningDays: 30,
	}
}

func newTestRunner(probers ...probe.Prober) *Runner {
	return New(zap.NewNop(), 2*time.Second, 30, 3000, probers...)
}

func TestRun_OnlyEnabledProbes(t *testing.T) {
	r := newTestRunner(
		&fakeProber{kind: domain.KindUptime, payload: &domain.UptimeResult{IsUp: true, StatusCode: 200}},
		&fakeProber{kind: domain.KindTLS, payload: &domain.TLSResult{IsValid: true, DaysUntilExpiry: 90}},
		&fakeProber{kind: domain.KindSEO, payload: &domain.SEOResult{Score: 95}},
	)

	site := testSite()
	site.SEOEnabled = false
	results, problems := r.Run(context.Background(), site)

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (uptime + tls)", len(results))
	}
	for _, res := range results {
		if res.Kind == domain.KindSEO {
			t.Fatal("disabled probe produced a result")
		}
	}
	if len(problems) != 0 {
		t.Fatalf("healthy site should yield no problems: %+v", problems)
	}
}

func TestRun_TLSSkippedForPlainHTTP(t *testing.T) {
	r := newTestRunner(
		&fakeProber{kind: domain.KindUptime, payload: &domain.UptimeResult{IsUp: true, StatusCode: 200}},
		&fakeProber{kind: domain.KindTLS, payload: &domain.TLSResult{IsValid: true}},
	)

	site := testSite()
	site.URL = "http://example.com"
	results, _ := r.Run(context.Background(), site)
	if len(results) != 1 || results[0].Kind != domain.KindUptime {
		t.Fatalf("plain http site should only get the uptime probe: %+v", results)
	}
}

func TestRun_PanicIsolation(t *testing.T) {
	r := newTestRunner(
		&fakeProber{kind: domain.KindUptime, panics: true},
		&fakeProber{kind: domain.KindTLS, payload: &domain.TLSResult{IsValid: true, DaysUntilExpiry: 90}},
	)

	results, _ := r.Run(context.Background(), testSite())
	if len(results) != 1 || results[0].Kind != domain.KindTLS {
		t.Fatalf("panicking probe must not take the others down: %+v", results)
	}
}

func TestRun_HangingProbeIsBounded(t *testing.T) {
	r := newTestRunner(
		&fakeProber{kind: domain.KindUptime, block: true,
			payload: &domain.UptimeResult{IsUp: false}, errMsg: "timeout"},
		&fakeProber{kind: domain.KindTLS, payload: &domain.TLSResult{IsValid: true, DaysUntilExpiry: 90}},
	)
	r.Timeout = 100 * time.Millisecond

	start := time.Now()
	results, _ := r.Run(context.Background(), testSite())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("run took %s, the per-probe deadline did not bite", elapsed)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
}

func TestProblems_Thresholds(t *testing.T) {
	site := testSite()
	site.PerformanceEnabled = true
	site.BrokenLinksEnabled = true
	site.SEOEnabled = true
	site.PlatformEnabled = true

	r := newTestRunner(
		&fakeProber{kind: domain.KindUptime, errMsg: "connection error: refused",
			payload: &domain.UptimeResult{IsUp: false}},
		&fakeProber{kind: domain.KindTLS,
			payload: &domain.TLSResult{IsValid: true, DaysUntilExpiry: 10}},
		&fakeProber{kind: domain.KindPerformance,
			payload: &domain.PerformanceResult{LoadTimeMS: 5000, Score: 40}},
		&fakeProber{kind: domain.KindBrokenLinks,
			payload: &domain.LinkResult{TotalLinks: 12, BrokenLinks: 3}},
		&fakeProber{kind: domain.KindSEO,
			payload: &domain.SEOResult{Score: 42}},
		&fakeProber{kind: domain.KindPlatform,
			payload: &domain.PlatformResult{UpdateAvailable: true, SecurityScore: 90}},
	)

	_, problems := r.Run(context.Background(), site)
	if len(problems) != 6 {
		t.Fatalf("problems = %d, want 6: %+v", len(problems), problems)
	}

	bySeverity := map[domain.AlertType]domain.Severity{}
	for _, p := range problems {
		bySeverity[p.Type] = p.Severity
		if p.SiteID != site.ID {
			t.Fatalf("problem carries wrong site: %+v", p)
		}
	}
	if bySeverity[domain.AlertUptime] != domain.SeverityCritical {
		t.Fatalf("down site = %q, want critical", bySeverity[domain.AlertUptime])
	}
	if bySeverity[domain.AlertSSL] != domain.SeverityWarning {
		t.Fatalf("expiring cert = %q, want warning", bySeverity[domain.AlertSSL])
	}
	if bySeverity[domain.AlertWordPress] != domain.SeverityInfo {
		t.Fatalf("pending updates = %q, want info", bySeverity[domain.AlertWordPress])
	}
}

func TestProblems_SSLWarningWindow(t *testing.T) {
	// valid_until 10 days out with a 30 day warning window must alert.
	r := newTestRunner(&fakeProber{kind: domain.KindTLS,
		payload: &domain.TLSResult{IsValid: true, DaysUntilExpiry: 10}})

	site := testSite()
	site.UptimeEnabled = false
	_, problems := r.Run(context.Background(), site)
	if len(problems) != 1 || problems[0].Type != domain.AlertSSL || problems[0].Severity != domain.SeverityWarning {
		t.Fatalf("want one WARNING ssl problem, got %+v", problems)
	}
}

func TestProblems_ErroredResultDoesNotAlert(t *testing.T) {
	// A link probe that could not even fetch the page says nothing about
	// link health.
	r := newTestRunner(&fakeProber{kind: domain.KindBrokenLinks,
		errMsg: "failed to fetch page: HTTP 500", payload: &domain.LinkResult{}})

	site := testSite()
	site.UptimeEnabled = false
	site.TLSEnabled = false
	site.BrokenLinksEnabled = true
	_, problems := r.Run(context.Background(), site)
	if len(problems) != 0 {
		t.Fatalf("errored link result must not alert: %+v", problems)
	}
}

func TestProblems_HealthyBoundaries(t *testing.T) {
	site := testSite()
	site.UptimeEnabled = false
	site.TLSEnabled = false
	site.PerformanceEnabled = true
	site.SEOEnabled = true
	site.PerformanceThresholdMS = 3000

	r := newTestRunner(
		&fakeProber{kind: domain.KindPerformance,
			payload: &domain.PerformanceResult{LoadTimeMS: 3000, Score: 80}},
		&fakeProber{kind: domain.KindSEO, payload: &domain.SEOResult{Score: 50}},
	)

	_, problems := r.Run(context.Background(), site)
	if len(problems) != 0 {
		t.Fatalf("load == threshold and score == 50 sit on the healthy side: %+v", problems)
	}
}
