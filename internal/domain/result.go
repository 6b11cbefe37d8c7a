package domain

import (
	"errors"
	"time"
)

// CheckKind tags the variant carried by a CheckResult.
type CheckKind string

const (
	KindUptime      CheckKind = "uptime"
	KindTLS         CheckKind = "tls"
	KindPerformance CheckKind = "performance"
	KindBrokenLinks CheckKind = "broken_links"
	KindSEO         CheckKind = "seo"
	KindPlatform    CheckKind = "platform"
)

// Kinds lists every check kind, in the order probes usually run.
func Kinds() []CheckKind {
	return []CheckKind{KindUptime, KindTLS, KindPerformance, KindBrokenLinks, KindSEO, KindPlatform}
}

var ErrResultShape = errors.New("check result payload does not match its kind")

// CheckResult is a closed tagged union over the six probe kinds. Exactly one
// payload pointer is non-nil, matching Kind. Results are immutable once
// written; history per site is append-only.
type CheckResult struct {
	SiteID       SiteID    `json:"site_id"`
	Kind         CheckKind `json:"kind"`
	CheckedAt    time.Time `json:"checked_at"`
	ErrorMessage string    `json:"error_message,omitempty"`

	Uptime      *UptimeResult      `json:"uptime,omitempty"`
	TLS         *TLSResult         `json:"tls,omitempty"`
	Performance *PerformanceResult `json:"performance,omitempty"`
	Links       *LinkResult        `json:"links,omitempty"`
	SEO         *SEOResult         `json:"seo,omitempty"`
	Platform    *PlatformResult    `json:"platform,omitempty"`
}

// Validate rejects results whose payload does not match the declared kind.
func (r *CheckResult) Validate() error {
	present := map[CheckKind]bool{
		KindUptime:      r.Uptime != nil,
		KindTLS:         r.TLS != nil,
		KindPerformance: r.Performance != nil,
		KindBrokenLinks: r.Links != nil,
		KindSEO:         r.SEO != nil,
		KindPlatform:    r.Platform != nil,
	}
	set := 0
	for _, ok := range present {
		if ok {
			set++
		}
	}
	if set != 1 || !present[r.Kind] {
		return ErrResultShape
	}
	return nil
}

type UptimeResult struct {
	StatusCode   int     `json:"status_code,omitempty"`
	ResponseTime float64 `json:"response_time_ms"`
	IsUp         bool    `json:"is_up"`
	RedirectURL  string  `json:"redirect_url,omitempty"`
}

type TLSResult struct {
	IsValid         bool       `json:"is_valid"`
	Subject         string     `json:"subject,omitempty"`
	Issuer          string     `json:"issuer,omitempty"`
	ValidFrom       *time.Time `json:"valid_from,omitempty"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
}

type PerformanceResult struct {
	LoadTimeMS  int `json:"load_time_ms"`
	TTFBMS      int `json:"ttfb_ms"`
	DOMLoadMS   int `json:"dom_load_ms"`
	PageSize    int `json:"page_size"`
	NumRequests int `json:"num_requests"`
	NumCSS      int `json:"num_css"`
	NumJS       int `json:"num_js"`
	NumImages   int `json:"num_images"`
	Score       int `json:"score"`
}

// BrokenLink is one link on the page that answered >= 400 or errored.
type BrokenLink struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	Internal   bool   `json:"internal"`
}

type LinkResult struct {
	TotalLinks    int          `json:"total_links"`
	BrokenLinks   int          `json:"broken_links"`
	InternalLinks int          `json:"internal_links"`
	ExternalLinks int          `json:"external_links"`
	Broken        []BrokenLink `json:"broken,omitempty"`
}

// SEOIssue severities follow the scoring weights: error -10, warning -5,
// info -2.
type SEOIssue struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

type SEOResult struct {
	Title             string     `json:"title,omitempty"`
	TitleLength       int        `json:"title_length"`
	MetaDescription   string     `json:"meta_description,omitempty"`
	MetaDescLength    int        `json:"meta_description_length"`
	H1Count           int        `json:"h1_count"`
	H2Count           int        `json:"h2_count"`
	WordCount         int        `json:"word_count"`
	ImagesTotal       int        `json:"images_total"`
	ImagesWithoutAlt  int        `json:"images_without_alt"`
	InternalLinks     int        `json:"internal_links"`
	ExternalLinks     int        `json:"external_links"`
	HasRobotsTxt      bool       `json:"has_robots_txt"`
	HasSitemap        bool       `json:"has_sitemap"`
	IsMobileFriendly  bool       `json:"is_mobile_friendly"`
	HasSchemaMarkup   bool       `json:"has_schema_markup"`
	HasOpenGraphTags  bool       `json:"has_og_tags"`
	HasTwitterTags    bool       `json:"has_twitter_tags"`
	Score             int        `json:"score"`
	Issues            []SEOIssue `json:"issues,omitempty"`
}

// SecurityIssue is one misconfiguration signal found by the platform audit.
type SecurityIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type PlatformResult struct {
	Version          string          `json:"version,omitempty"`
	UpdateAvailable  bool            `json:"update_available"`
	PluginsToUpdate  int             `json:"plugins_to_update"`
	ThemesToUpdate   int             `json:"themes_to_update"`
	SecurityIssues   []SecurityIssue `json:"security_issues,omitempty"`
	SecurityScore    int             `json:"security_score"`
}

// NewResult builds a validated CheckResult. payload must be one of the six
// payload pointer types; a mismatch with kind returns ErrResultShape.
func NewResult(siteID SiteID, kind CheckKind, checkedAt time.Time, errMsg string, payload any) (*CheckResult, error) {
	r := &CheckResult{SiteID: siteID, Kind: kind, CheckedAt: checkedAt, ErrorMessage: errMsg}
	switch p := payload.(type) {
	case *UptimeResult:
		r.Uptime = p
	case *TLSResult:
		r.TLS = p
	case *PerformanceResult:
		r.Performance = p
	case *LinkResult:
		r.Links = p
	case *SEOResult:
		r.SEO = p
	case *PlatformResult:
		r.Platform = p
	default:
		return nil, ErrResultShape
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
