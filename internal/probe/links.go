package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/longbark/sitewatch/internal/domain"
)

// LinksProber fetches a page, extracts every anchor, and probes each unique
// link once. A link is broken when it answers >= 400 or does not answer at
// all. HEAD is tried first; a 4xx or transport failure falls back to GET,
// since some servers reject HEAD outright.
type LinksProber struct {
	Client      *http.Client
	Timeout     time.Duration
	Concurrency int
	Limiter     *rate.Limiter

	// PerLinkTimeout bounds each individual link probe inside the page
	// budget.
	PerLinkTimeout time.Duration
}

func NewLinksProber(timeout time.Duration, concurrency int, rps float64) *LinksProber {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &LinksProber{
		Client:         newHTTPClient(timeout),
		Timeout:        timeout,
		Concurrency:    concurrency,
		Limiter:        rate.NewLimiter(rate.Limit(rps), concurrency),
		PerLinkTimeout: 10 * time.Second,
	}
}

func (p *LinksProber) Kind() domain.CheckKind { return domain.KindBrokenLinks }

func (p *LinksProber) Check(ctx context.Context, t Target) *domain.CheckResult {
	out := &domain.LinkResult{}

	body, errMsg := p.fetchPage(ctx, t.URL)
	if errMsg != "" {
		return result(t, domain.KindBrokenLinks, errMsg, out)
	}

	base, err := url.Parse(t.URL)
	if err != nil {
		return result(t, domain.KindBrokenLinks, fmt.Sprintf("invalid base URL: %v", err), out)
	}

	links := extractLinks(body, base)
	out.TotalLinks = len(links)
	for _, l := range links {
		if isInternal(base, l) {
			out.InternalLinks++
		} else {
			out.ExternalLinks++
		}
	}
	if len(links) == 0 {
		return result(t, domain.KindBrokenLinks, "", out)
	}

	broken := p.checkAll(ctx, base, links)
	out.BrokenLinks = len(broken)
	out.Broken = broken
	return result(t, domain.KindBrokenLinks, "", out)
}

// fetchPage retrieves the page HTML. A non-200 answer or transport failure
// ends the check early; there is nothing to extract links from.
func (p *LinksProber) fetchPage(ctx context.Context, pageURL string) (string, string) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Sprintf("invalid URL: %v", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Sprintf("failed to fetch page: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Sprintf("failed to fetch page: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Sprintf("failed to read page: %v", err)
	}
	return string(body), ""
}

// checkAll probes every link with a bounded worker group and shared rate
// limiter, then returns the broken ones in a stable order.
func (p *LinksProber) checkAll(ctx context.Context, base *url.URL, links []string) []domain.BrokenLink {
	var (
		mu     sync.Mutex
		broken []domain.BrokenLink
		wg     sync.WaitGroup
		sem    = make(chan struct{}, p.Concurrency)
	)

	for _, link := range links {
		wg.Add(1)
		go func(link string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			if p.Limiter != nil {
				if err := p.Limiter.Wait(ctx); err != nil {
					return
				}
			}

			status, checkErr := p.checkLink(ctx, link)
			if checkErr == "" && status < 400 {
				return
			}
			mu.Lock()
			broken = append(broken, domain.BrokenLink{
				URL:        link,
				StatusCode: status,
				Error:      checkErr,
				Internal:   isInternal(base, link),
			})
			mu.Unlock()
		}(link)
	}
	wg.Wait()

	sort.Slice(broken, func(i, j int) bool { return broken[i].URL < broken[j].URL })
	return broken
}

// checkLink returns the final status code of a link, or an error string when
// the link never answered. HEAD first; GET when HEAD is rejected or fails.
func (p *LinksProber) checkLink(ctx context.Context, link string) (int, string) {
	ctx, cancel := context.WithTimeout(ctx, p.PerLinkTimeout)
	defer cancel()

	status, err := p.request(ctx, http.MethodHead, link)
	if err == nil && status < 400 {
		return status, ""
	}

	status, err = p.request(ctx, http.MethodGet, link)
	if err != nil {
		if isTimeout(err) {
			return 0, "timeout"
		}
		return 0, fmt.Sprintf("connection error: %v", err)
	}
	return status, ""
}

func (p *LinksProber) request(ctx context.Context, method, link string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, link, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	return resp.StatusCode, nil
}

// extractLinks walks the parsed HTML collecting anchor hrefs, resolved
// against base, normalized, deduplicated in first-seen order. Fragment-only,
// javascript:, mailto: and tel: links are not page links and are skipped.
func extractLinks(htmlContent string, base *url.URL) []string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				normalized, ok := normalizeLink(attr.Val, base)
				if ok && !seen[normalized] {
					seen[normalized] = true
					links = append(links, normalized)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

// normalizeLink resolves href against base, strips the fragment, and trims a
// trailing slash from non-root paths so /about and /about/ count once.
func normalizeLink(href string, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") {
		return "", false
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u = base.ResolveReference(u)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), true
}

// isInternal reports whether link shares base's host. Relative links resolve
// to base's host and so are always internal.
func isInternal(base *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Host == "" {
		return true
	}
	return strings.EqualFold(u.Host, base.Host)
}
