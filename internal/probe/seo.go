package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/longbark/sitewatch/internal/domain"
)

var wordRe = regexp.MustCompile(`\w+`)

// SEOProber parses a page for on-page SEO signals and separately probes
// robots.txt and the sitemap. Every finding lands in the issue list with a
// severity; the score is derived from the issues plus bonuses for the good
// signals, clamped to [0,100].
type SEOProber struct {
	Client  *http.Client
	Timeout time.Duration

	// AuxTimeout bounds the robots.txt and sitemap side requests.
	AuxTimeout time.Duration
}

func NewSEOProber(timeout time.Duration) *SEOProber {
	return &SEOProber{
		Client:     newHTTPClient(timeout),
		Timeout:    timeout,
		AuxTimeout: 10 * time.Second,
	}
}

func (p *SEOProber) Kind() domain.CheckKind { return domain.KindSEO }

func (p *SEOProber) Check(ctx context.Context, t Target) *domain.CheckResult {
	out := &domain.SEOResult{}

	doc, errMsg := p.fetchDocument(ctx, t.URL)
	if errMsg != "" {
		return result(t, domain.KindSEO, errMsg, out)
	}

	issues := &issueList{}
	analyzeTitle(doc, out, issues)
	analyzeMetaDescription(doc, out, issues)
	analyzeHeaders(doc, out, issues)
	analyzeContent(doc, out, issues)
	analyzeImages(doc, out, issues)
	analyzePageLinks(doc, t.URL, out)
	analyzeSocialTags(doc, out, issues)
	analyzeSchemaMarkup(doc, out, issues)
	analyzeViewport(doc, out, issues)

	out.HasRobotsTxt = p.pathExists(ctx, t.URL, "/robots.txt")
	if !out.HasRobotsTxt {
		issues.add("robots", domain.SeverityInfo, "no robots.txt file found")
	}
	out.HasSitemap = p.pathExists(ctx, t.URL, "/sitemap.xml") || p.pathExists(ctx, t.URL, "/sitemap_index.xml")
	if !out.HasSitemap {
		issues.add("sitemap", domain.SeverityInfo, "no XML sitemap found")
	}

	out.Issues = issues.items
	out.Score = seoScore(out)
	return result(t, domain.KindSEO, "", out)
}

func (p *SEOProber) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, string) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Sprintf("invalid URL: %v", err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Sprintf("failed to fetch page: %v", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Sprintf("failed to parse page: %v", err)
	}
	return doc, ""
}

// pathExists fetches a well-known path on the page's origin, true on a 200.
func (p *SEOProber) pathExists(ctx context.Context, pageURL, path string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	probeURL := u.Scheme + "://" + u.Host + path

	ctx, cancel := context.WithTimeout(ctx, p.AuxTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type issueList struct {
	items []domain.SEOIssue
}

func (l *issueList) add(typ string, sev domain.Severity, msg string) {
	l.items = append(l.items, domain.SEOIssue{Type: typ, Severity: sev, Message: msg})
}

func analyzeTitle(doc *goquery.Document, out *domain.SEOResult, issues *issueList) {
	title := doc.Find("title").First()
	if title.Length() == 0 {
		issues.add("title", domain.SeverityError, "page title is missing")
		return
	}
	out.Title = strings.TrimSpace(title.Text())
	out.TitleLength = len(out.Title)
	switch {
	case out.TitleLength == 0:
		issues.add("title", domain.SeverityError, "page title is empty")
	case out.TitleLength < 30:
		issues.add("title", domain.SeverityWarning,
			fmt.Sprintf("page title is too short (%d chars, recommend 50-60)", out.TitleLength))
	case out.TitleLength > 60:
		issues.add("title", domain.SeverityWarning,
			fmt.Sprintf("page title is too long (%d chars, recommend 50-60)", out.TitleLength))
	}
}

func analyzeMetaDescription(doc *goquery.Document, out *domain.SEOResult, issues *issueList) {
	desc, exists := doc.Find(`meta[name="description"]`).First().Attr("content")
	if !exists {
		issues.add("meta_description", domain.SeverityError, "meta description is missing")
		return
	}
	out.MetaDescription = strings.TrimSpace(desc)
	out.MetaDescLength = len(out.MetaDescription)
	switch {
	case out.MetaDescLength == 0:
		issues.add("meta_description", domain.SeverityError, "meta description is empty")
	case out.MetaDescLength < 120:
		issues.add("meta_description", domain.SeverityWarning,
			fmt.Sprintf("meta description is too short (%d chars, recommend 150-160)", out.MetaDescLength))
	case out.MetaDescLength > 160:
		issues.add("meta_description", domain.SeverityWarning,
			fmt.Sprintf("meta description is too long (%d chars, recommend 150-160)", out.MetaDescLength))
	}
}

func analyzeHeaders(doc *goquery.Document, out *domain.SEOResult, issues *issueList) {
	out.H1Count = doc.Find("h1").Length()
	out.H2Count = doc.Find("h2").Length()
	switch {
	case out.H1Count == 0:
		issues.add("headers", domain.SeverityError, "no H1 tag found")
	case out.H1Count > 1:
		issues.add("headers", domain.SeverityWarning,
			fmt.Sprintf("multiple H1 tags found (%d), recommend only one", out.H1Count))
	}
}

func analyzeContent(doc *goquery.Document, out *domain.SEOResult, issues *issueList) {
	out.WordCount = len(wordRe.FindAllString(doc.Text(), -1))
	if out.WordCount < 300 {
		issues.add("content", domain.SeverityWarning,
			fmt.Sprintf("low word count (%d words, recommend 300+)", out.WordCount))
	}
}

func analyzeImages(doc *goquery.Document, out *domain.SEOResult, issues *issueList) {
	imgs := doc.Find("img")
	out.ImagesTotal = imgs.Length()
	imgs.Each(func(_ int, s *goquery.Selection) {
		if alt, _ := s.Attr("alt"); alt == "" {
			out.ImagesWithoutAlt++
		}
	})
	if out.ImagesWithoutAlt > 0 {
		issues.add("images", domain.SeverityWarning,
			fmt.Sprintf("%d of %d images missing alt text", out.ImagesWithoutAlt, out.ImagesTotal))
	}
}

func analyzePageLinks(doc *goquery.Document, pageURL string, out *domain.SEOResult) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if u.Host == "" || strings.EqualFold(u.Host, base.Host) {
			out.InternalLinks++
		} else {
			out.ExternalLinks++
		}
	})
}

func analyzeSocialTags(doc *goquery.Document, out *domain.SEOResult, issues *issueList) {
	doc.Find("meta[property]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if prop, _ := s.Attr("property"); strings.HasPrefix(prop, "og:") {
			out.HasOpenGraphTags = true
			return false
		}
		return true
	})
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if name, _ := s.Attr("name"); strings.HasPrefix(name, "twitter:") {
			out.HasTwitterTags = true
			return false
		}
		return true
	})
	if !out.HasOpenGraphTags {
		issues.add("social", domain.SeverityInfo, "no Open Graph tags found")
	}
	if !out.HasTwitterTags {
		issues.add("social", domain.SeverityInfo, "no Twitter Card tags found")
	}
}

func analyzeSchemaMarkup(doc *goquery.Document, out *domain.SEOResult, issues *issueList) {
	jsonLD := doc.Find(`script[type="application/ld+json"]`).Length()
	microdata := doc.Find("[itemscope]").Length()
	out.HasSchemaMarkup = jsonLD > 0 || microdata > 0
	if !out.HasSchemaMarkup {
		issues.add("schema", domain.SeverityInfo, "no schema.org markup found")
	}
}

func analyzeViewport(doc *goquery.Document, out *domain.SEOResult, issues *issueList) {
	out.IsMobileFriendly = doc.Find(`meta[name="viewport"]`).Length() > 0
	if !out.IsMobileFriendly {
		issues.add("mobile", domain.SeverityWarning, "no viewport meta tag found (not mobile-friendly)")
	}
}

// seoScore starts at 100, deducts per issue severity and adds fixed bonuses
// for present signals, clamped to [0,100].
func seoScore(r *domain.SEOResult) int {
	score := 100
	for _, iss := range r.Issues {
		switch iss.Severity {
		case domain.SeverityError:
			score -= 10
		case domain.SeverityWarning:
			score -= 5
		case domain.SeverityInfo:
			score -= 2
		}
	}

	if r.HasOpenGraphTags {
		score += 5
	}
	if r.HasTwitterTags {
		score += 5
	}
	if r.HasSchemaMarkup {
		score += 5
	}
	if r.IsMobileFriendly {
		score += 10
	}
	if r.HasRobotsTxt {
		score += 2
	}
	if r.HasSitemap {
		score += 5
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
