package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/longbark/sitewatch/internal/domain"
)

// UptimeProber issues a GET following redirects and classifies 2xx/3xx as
// up. Network errors and timeouts are down, never probe failures.
type UptimeProber struct {
	Client  *http.Client
	Timeout time.Duration
}

func NewUptimeProber(timeout time.Duration) *UptimeProber {
	return &UptimeProber{Client: newHTTPClient(timeout), Timeout: timeout}
}

func (p *UptimeProber) Kind() domain.CheckKind { return domain.KindUptime }

func (p *UptimeProber) Check(ctx context.Context, t Target) *domain.CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return result(t, domain.KindUptime, fmt.Sprintf("invalid URL: %v", err), &domain.UptimeResult{IsUp: false})
	}

	resp, err := p.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		return result(t, domain.KindUptime, p.downReason(t.URL, err), &domain.UptimeResult{
			IsUp:         false,
			ResponseTime: latency,
		})
	}
	defer resp.Body.Close()

	up := resp.StatusCode >= 200 && resp.StatusCode < 400
	out := &domain.UptimeResult{
		StatusCode:   resp.StatusCode,
		ResponseTime: latency,
		IsUp:         up,
	}
	if final := resp.Request.URL.String(); final != t.URL {
		out.RedirectURL = final
	}
	errMsg := ""
	if !up {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return result(t, domain.KindUptime, errMsg, out)
}

// downReason turns a transport error into a stable reason string, running a
// DNS classification so "domain gone" is distinguishable from "server gone".
func (p *UptimeProber) downReason(rawURL string, err error) string {
	if isTimeout(err) {
		return fmt.Sprintf("timeout after %s", p.Timeout)
	}
	reason := fmt.Sprintf("connection error: %v", err)
	if host := extractHost(rawURL); host != "" {
		if class := classifyDNS(host); class != dnsResolves {
			reason = fmt.Sprintf("%s dns=%s", reason, class)
		}
	}
	return reason
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return true
	}
	return false
}

// extractHost pulls the hostname from a URL string.
func extractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
