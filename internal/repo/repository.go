package repo

import (
	"context"
	"errors"
	"time"

	"github.com/longbark/sitewatch/internal/domain"
)

// ErrNotFound is returned by lookups for ids that do not exist.
var ErrNotFound = errors.New("repo: not found")

// Ports (interfaces) — swap in any DB adapter later.

// SiteStore exposes the read-only site projection plus the single field the
// engine writes back.
type SiteStore interface {
	GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error)
	ListActive(ctx context.Context) ([]*domain.Site, error)
	SetLastChecked(ctx context.Context, id domain.SiteID, ts time.Time) error
}

// ResultStore holds the append-only check history.
type ResultStore interface {
	Append(ctx context.Context, r *domain.CheckResult) error
	LastByKind(ctx context.Context, id domain.SiteID, kind domain.CheckKind) (*domain.CheckResult, error)
	// DeleteOlderThan purges results of one kind checked before cutoff and
	// returns how many rows went away.
	DeleteOlderThan(ctx context.Context, kind domain.CheckKind, cutoff time.Time) (int64, error)
}

// AlertFilter narrows List. Zero values mean "any".
type AlertFilter struct {
	SiteID   domain.SiteID
	Type     domain.AlertType
	Status   domain.AlertStatus
	Severity domain.Severity
	Limit    int
}

// AlertStore owns alert records. CreateIfAbsent is the engine's dedup point
// and must be atomic: implementations may not allow two alerts with the same
// (site_id, alert_type) in a non-resolved status, even under concurrent calls.
type AlertStore interface {
	GetAlert(ctx context.Context, id domain.AlertID) (*domain.Alert, error)
	List(ctx context.Context, f AlertFilter) ([]*domain.Alert, error)
	// FindOpen returns the open-or-acknowledged alert for the dedup key, or
	// ErrNotFound.
	FindOpen(ctx context.Context, siteID domain.SiteID, t domain.AlertType) (*domain.Alert, error)
	// CreateIfAbsent inserts the alert unless the dedup key already has a
	// non-resolved alert. It reports whether the insert happened.
	CreateIfAbsent(ctx context.Context, a *domain.Alert) (bool, error)
	// Update persists status, timestamps, resolution fields and notification
	// attempts of an existing alert.
	Update(ctx context.Context, a *domain.Alert) error
	// RecordNotification writes one channel's delivery attempt without
	// touching any other field, so it cannot race a lifecycle transition.
	RecordNotification(ctx context.Context, id domain.AlertID, channel string, att domain.NotificationAttempt) error
	Delete(ctx context.Context, id domain.AlertID) error
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
