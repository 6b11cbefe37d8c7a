package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/metrics"
	"github.com/longbark/sitewatch/internal/probe"
)

// Runner executes the enabled probes for one site. Probes run concurrently
// and independently: a hang, panic or error in one never cancels the others
// and never aborts the run. Each probe gets its own deadline.
type Runner struct {
	Log     *zap.Logger
	Timeout time.Duration

	// Fleet-wide fallbacks when the site carries no override.
	DefaultSSLWarningDays         int
	DefaultPerformanceThresholdMS int

	probers map[domain.CheckKind]probe.Prober
}

func New(log *zap.Logger, timeout time.Duration, sslWarningDays, perfThresholdMS int, probers ...probe.Prober) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	m := make(map[domain.CheckKind]probe.Prober, len(probers))
	for _, p := range probers {
		m[p.Kind()] = p
	}
	return &Runner{
		Log:                           log,
		Timeout:                       timeout,
		DefaultSSLWarningDays:         sslWarningDays,
		DefaultPerformanceThresholdMS: perfThresholdMS,
		probers:                       m,
	}
}

// Run executes every enabled probe for the site and maps each result to at
// most one Problem. Results for disabled probes are never produced.
func (r *Runner) Run(ctx context.Context, site *domain.Site) ([]*domain.CheckResult, []domain.Problem) {
	start := time.Now()
	defer func() { metrics.RecordRun(time.Since(start)) }()

	t := r.target(site)
	kinds := r.enabledKinds(site)

	results := make([]*domain.CheckResult, len(kinds))
	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(i int, p probe.Prober) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.Log.Error("probe_panic",
						zap.String("site_id", string(site.ID)),
						zap.String("kind", string(p.Kind())),
						zap.Any("panic", rec),
					)
				}
			}()

			pctx, cancel := context.WithTimeout(ctx, r.Timeout)
			defer cancel()
			results[i] = p.Check(pctx, t)
		}(i, r.probers[kind])
	}
	wg.Wait()

	// A panicked probe leaves a hole; compact before deriving problems.
	out := results[:0]
	for _, res := range results {
		if res != nil {
			out = append(out, res)
		}
	}

	problems := make([]domain.Problem, 0, len(out))
	for _, res := range out {
		metrics.RecordCheck(string(res.Kind), res.ErrorMessage != "")
		if p, ok := r.problemFor(site, t, res); ok {
			metrics.ProblemsTotal.WithLabelValues(string(p.Type), string(p.Severity)).Inc()
			problems = append(problems, p)
		}
	}
	return out, problems
}

func (r *Runner) target(site *domain.Site) probe.Target {
	t := probe.Target{
		SiteID:                 site.ID,
		URL:                    site.URL,
		Platform:               site.Platform,
		SSLWarningDays:         site.SSLWarningDays,
		PerformanceThresholdMS: site.PerformanceThresholdMS,
	}
	if t.SSLWarningDays <= 0 {
		t.SSLWarningDays = r.DefaultSSLWarningDays
	}
	if t.PerformanceThresholdMS <= 0 {
		t.PerformanceThresholdMS = r.DefaultPerformanceThresholdMS
	}
	return t
}

// enabledKinds maps the site's flags to the probes that will run. The TLS
// probe only makes sense for https origins.
func (r *Runner) enabledKinds(site *domain.Site) []domain.CheckKind {
	var kinds []domain.CheckKind
	add := func(enabled bool, kind domain.CheckKind) {
		if enabled && r.probers[kind] != nil {
			kinds = append(kinds, kind)
		}
	}
	add(site.UptimeEnabled, domain.KindUptime)
	add(site.TLSEnabled && strings.HasPrefix(site.URL, "https"), domain.KindTLS)
	add(site.PerformanceEnabled, domain.KindPerformance)
	add(site.BrokenLinksEnabled, domain.KindBrokenLinks)
	add(site.SEOEnabled, domain.KindSEO)
	add(site.PlatformEnabled, domain.KindPlatform)
	return kinds
}

// problemFor applies the fixed alerting thresholds to one result. Probes
// other than uptime skip derivation when the probe itself failed: a fetch
// error says nothing about link health or SEO, while for uptime the failure
// is exactly the problem.
func (r *Runner) problemFor(site *domain.Site, t probe.Target, res *domain.CheckResult) (domain.Problem, bool) {
	if res.ErrorMessage != "" && res.Kind != domain.KindUptime && res.Kind != domain.KindTLS {
		return domain.Problem{}, false
	}

	switch res.Kind {
	case domain.KindUptime:
		if !res.Uptime.IsUp {
			return domain.Problem{
				SiteID:   site.ID,
				Type:     domain.AlertUptime,
				Severity: domain.SeverityCritical,
				Title:    fmt.Sprintf("Site %s is down", site.Name),
				Message:  fmt.Sprintf("Status code: %d, Error: %s", res.Uptime.StatusCode, res.ErrorMessage),
			}, true
		}

	case domain.KindTLS:
		switch {
		case !res.TLS.IsValid:
			return domain.Problem{
				SiteID:   site.ID,
				Type:     domain.AlertSSL,
				Severity: domain.SeverityWarning,
				Title:    fmt.Sprintf("SSL certificate problem for %s", site.Name),
				Message:  res.ErrorMessage,
			}, true
		case res.TLS.DaysUntilExpiry < t.SSLWarningDays:
			return domain.Problem{
				SiteID:   site.ID,
				Type:     domain.AlertSSL,
				Severity: domain.SeverityWarning,
				Title:    fmt.Sprintf("SSL certificate expiring soon for %s", site.Name),
				Message:  fmt.Sprintf("Certificate expires in %d days", res.TLS.DaysUntilExpiry),
			}, true
		}

	case domain.KindPerformance:
		if res.Performance.LoadTimeMS > t.PerformanceThresholdMS {
			return domain.Problem{
				SiteID:   site.ID,
				Type:     domain.AlertPerformance,
				Severity: domain.SeverityWarning,
				Title:    fmt.Sprintf("Slow page load for %s", site.Name),
				Message:  fmt.Sprintf("Load time: %dms (threshold: %dms)", res.Performance.LoadTimeMS, t.PerformanceThresholdMS),
			}, true
		}

	case domain.KindBrokenLinks:
		if res.Links.BrokenLinks > 0 {
			return domain.Problem{
				SiteID:   site.ID,
				Type:     domain.AlertBrokenLinks,
				Severity: domain.SeverityWarning,
				Title:    fmt.Sprintf("Broken links found on %s", site.Name),
				Message:  fmt.Sprintf("%d broken links out of %d total", res.Links.BrokenLinks, res.Links.TotalLinks),
			}, true
		}

	case domain.KindPlatform:
		updates := res.Platform.PluginsToUpdate + res.Platform.ThemesToUpdate
		if res.Platform.UpdateAvailable || updates > 0 {
			return domain.Problem{
				SiteID:   site.ID,
				Type:     domain.AlertWordPress,
				Severity: domain.SeverityInfo,
				Title:    fmt.Sprintf("WordPress updates available for %s", site.Name),
				Message: fmt.Sprintf("Core update: %t, Plugins: %d, Themes: %d",
					res.Platform.UpdateAvailable, res.Platform.PluginsToUpdate, res.Platform.ThemesToUpdate),
			}, true
		}

	case domain.KindSEO:
		if res.SEO.Score < 50 {
			return domain.Problem{
				SiteID:   site.ID,
				Type:     domain.AlertSEO,
				Severity: domain.SeverityWarning,
				Title:    fmt.Sprintf("Low SEO score for %s", site.Name),
				Message:  fmt.Sprintf("SEO score: %d/100", res.SEO.Score),
			}, true
		}
	}
	return domain.Problem{}, false
}
