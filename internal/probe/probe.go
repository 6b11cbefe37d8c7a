package probe

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/longbark/sitewatch/internal/domain"
)

// Target is the slice of a Site a probe needs: where to look and the
// per-site thresholds.
type Target struct {
	SiteID                 domain.SiteID
	URL                    string
	Platform               domain.Platform
	SSLWarningDays         int
	PerformanceThresholdMS int
}

// Prober performs a single check of one health dimension. Check never
// returns an error and never panics past its boundary: any internal failure
// lands in the result's ErrorMessage together with a conservative unhealthy
// payload. The caller bounds the call with ctx.
type Prober interface {
	Kind() domain.CheckKind
	Check(ctx context.Context, t Target) *domain.CheckResult
}

// newHTTPClient builds the client the network probes share the shape of:
// bounded redirects, no TLS verification (certificate health is the TLS
// probe's job, not a reason to fail an uptime or link check).
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// result wraps domain.NewResult for probes, which construct payloads they
// know match their kind.
func result(t Target, kind domain.CheckKind, errMsg string, payload any) *domain.CheckResult {
	r, err := domain.NewResult(t.SiteID, kind, time.Now().UTC(), errMsg, payload)
	if err != nil {
		// Only reachable by a programming error in the probe itself.
		panic(err)
	}
	return r
}
