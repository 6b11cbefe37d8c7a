package domain

import "time"

type SiteID string

type AlertID string

// Platform is the publishing platform a site runs on. The platform audit
// probe only knows how to inspect WordPress-style installs.
type Platform string

const (
	PlatformWordPress Platform = "wordpress"
	PlatformStatic    Platform = "static"
	PlatformCustom    Platform = "custom"
)

// Site is the read-only projection of a monitored site. The CRUD layer owns
// it; the engine only reads it and writes back LastCheckedAt.
type Site struct {
	ID       SiteID   `json:"id"`
	Name     string   `json:"name"`
	URL      string   `json:"url"`
	Platform Platform `json:"platform"`
	Active   bool     `json:"active"`

	CheckIntervalSec int `json:"check_interval"`

	UptimeEnabled      bool `json:"uptime_enabled"`
	TLSEnabled         bool `json:"tls_enabled"`
	PerformanceEnabled bool `json:"performance_enabled"`
	BrokenLinksEnabled bool `json:"broken_links_enabled"`
	SEOEnabled         bool `json:"seo_enabled"`
	PlatformEnabled    bool `json:"platform_enabled"`

	SSLWarningDays         int `json:"ssl_warning_days"`
	PerformanceThresholdMS int `json:"performance_threshold_ms"`

	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CheckInterval returns the per-site interval, falling back to def when the
// site carries no override.
func (s *Site) CheckInterval(def time.Duration) time.Duration {
	if s.CheckIntervalSec <= 0 {
		return def
	}
	return time.Duration(s.CheckIntervalSec) * time.Second
}

// Due reports whether the site should be checked at now. Never-checked
// sites are always due.
func (s *Site) Due(now time.Time, def time.Duration) bool {
	if s.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*s.LastCheckedAt) >= s.CheckInterval(def)
}

type AlertType string

const (
	AlertUptime      AlertType = "uptime"
	AlertSSL         AlertType = "ssl"
	AlertPerformance AlertType = "performance"
	AlertBrokenLinks AlertType = "broken_links"
	AlertWordPress   AlertType = "wordpress"
	AlertSEO         AlertType = "seo"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type AlertStatus string

const (
	AlertOpen         AlertStatus = "open"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Problem is the ephemeral signal a probe result produces when it crosses an
// alert-worthy threshold. It is never persisted; the alert engine turns it
// into an Alert (or drops it when one is already open).
type Problem struct {
	SiteID   SiteID    `json:"site_id"`
	Type     AlertType `json:"alert_type"`
	Severity Severity  `json:"severity"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
}

// NotificationAttempt records one best-effort delivery of an alert to a
// channel. The engine never retries a failed attempt on its own.
type NotificationAttempt struct {
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sent_at,omitempty"`
}

// Alert is a deduplicated, lifecycle-tracked problem. For a given
// (site_id, alert_type) at most one alert may be open or acknowledged.
type Alert struct {
	ID       AlertID     `json:"id"`
	SiteID   SiteID      `json:"site_id"`
	Type     AlertType   `json:"alert_type"`
	Severity Severity    `json:"severity"`
	Status   AlertStatus `json:"status"`
	Title    string      `json:"title"`
	Message  string      `json:"message"`

	Notifications map[string]NotificationAttempt `json:"notifications,omitempty"`

	CreatedAt       time.Time  `json:"created_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
}

// Terminal reports whether the alert has left the active part of its
// lifecycle. Resolved alerts never transition again.
func (a *Alert) Terminal() bool { return a.Status == AlertResolved }
