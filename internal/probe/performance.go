package probe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/longbark/sitewatch/internal/domain"
)

// PerformanceProber loads the page in a headless browser so the measured
// load includes scripts, styles and images, not just the document fetch.
// Network events are tallied while the navigation runs; the timing numbers
// come from the browser's own navigation timing API.
type PerformanceProber struct {
	Timeout time.Duration

	// ExecPath overrides the browser binary, empty means chromedp's default
	// lookup.
	ExecPath string
}

func NewPerformanceProber(timeout time.Duration) *PerformanceProber {
	return &PerformanceProber{Timeout: timeout}
}

func (p *PerformanceProber) Kind() domain.CheckKind { return domain.KindPerformance }

// resourceTally accumulates network activity for one navigation. chromedp
// delivers events from the browser's message loop, so the counters are
// mutex-guarded.
type resourceTally struct {
	mu       sync.Mutex
	requests int
	css      int
	js       int
	images   int
	bytes    int
}

func (rt *resourceTally) response(mimeType, url string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.requests++
	switch classifyResource(mimeType, url) {
	case "css":
		rt.css++
	case "js":
		rt.js++
	case "image":
		rt.images++
	}
}

func (rt *resourceTally) data(n int) {
	rt.mu.Lock()
	rt.bytes += n
	rt.mu.Unlock()
}

// classifyResource buckets a response by MIME type, falling back to the URL
// extension for servers that send generic types.
func classifyResource(mimeType, url string) string {
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.Contains(mimeType, "css") || strings.HasSuffix(url, ".css"):
		return "css"
	case strings.Contains(mimeType, "javascript") || strings.HasSuffix(url, ".js"):
		return "js"
	case strings.Contains(mimeType, "image"):
		return "image"
	default:
		return "other"
	}
}

type navigationTiming struct {
	TTFBMS    float64 `json:"ttfb"`
	DOMLoadMS float64 `json:"domLoad"`
}

const timingScript = `(() => {
	const t = window.performance.timing;
	return {
		ttfb: t.responseStart > 0 ? t.responseStart - t.navigationStart : 0,
		domLoad: t.domContentLoadedEventEnd > 0 ? t.domContentLoadedEventEnd - t.navigationStart : 0,
	};
})()`

func (p *PerformanceProber) Check(ctx context.Context, t Target) *domain.CheckResult {
	out := &domain.PerformanceResult{}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
	)
	if p.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	tally := &resourceTally{}
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			tally.response(e.Response.MimeType, e.Response.URL)
		case *network.EventDataReceived:
			tally.data(int(e.DataLength))
		}
	})

	start := time.Now()
	var timing navigationTiming
	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(t.URL),
		chromedp.Evaluate(timingScript, &timing),
	)
	loadMS := int(time.Since(start).Milliseconds())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return result(t, domain.KindPerformance, fmt.Sprintf("page load timeout after %s", p.Timeout), out)
		}
		return result(t, domain.KindPerformance, fmt.Sprintf("browser error: %v", err), out)
	}

	tally.mu.Lock()
	out.NumRequests = tally.requests
	out.NumCSS = tally.css
	out.NumJS = tally.js
	out.NumImages = tally.images
	out.PageSize = tally.bytes
	tally.mu.Unlock()

	out.LoadTimeMS = loadMS
	out.TTFBMS = int(timing.TTFBMS)
	out.DOMLoadMS = int(timing.DOMLoadMS)
	out.Score = perfScore(out.LoadTimeMS, out.TTFBMS, out.PageSize, out.NumRequests)
	return result(t, domain.KindPerformance, "", out)
}

// perfScore grades a page load 0-100. Each metric deducts up to a fixed cap
// once it passes its free threshold.
func perfScore(loadMS, ttfbMS, pageSize, numRequests int) int {
	score := 100

	if loadMS > 1000 {
		score -= minInt(30, (loadMS-1000)/100)
	}
	if ttfbMS > 200 {
		score -= minInt(20, (ttfbMS-200)/50)
	}
	if pageSize > 2<<20 {
		score -= minInt(20, (pageSize-2<<20)/(500<<10))
	}
	if numRequests > 50 {
		score -= minInt(15, (numRequests-50)/10)
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
