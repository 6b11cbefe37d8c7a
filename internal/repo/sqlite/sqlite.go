package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/repo"
)

var (
	_ repo.SiteStore   = (*Store)(nil)
	_ repo.ResultStore = (*Store)(nil)
	_ repo.AlertStore  = (*Store)(nil)
)

// Store is the zero-config file-backed adapter. It is the default when no
// DATABASE_URL is configured.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS sites (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	url                     TEXT NOT NULL,
	platform                TEXT NOT NULL DEFAULT 'wordpress',
	active                  INTEGER NOT NULL DEFAULT 1,
	check_interval          INTEGER NOT NULL DEFAULT 300,
	uptime_enabled          INTEGER NOT NULL DEFAULT 1,
	tls_enabled             INTEGER NOT NULL DEFAULT 1,
	performance_enabled     INTEGER NOT NULL DEFAULT 1,
	broken_links_enabled    INTEGER NOT NULL DEFAULT 1,
	seo_enabled             INTEGER NOT NULL DEFAULT 1,
	platform_enabled        INTEGER NOT NULL DEFAULT 0,
	ssl_warning_days        INTEGER NOT NULL DEFAULT 30,
	performance_threshold   INTEGER NOT NULL DEFAULT 3000,
	last_checked_at         TEXT,
	created_at              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS check_results (
	id            TEXT PRIMARY KEY,
	site_id       TEXT NOT NULL,
	kind          TEXT NOT NULL,
	checked_at    TEXT NOT NULL,
	error_message TEXT,
	payload       TEXT NOT NULL,
	FOREIGN KEY(site_id) REFERENCES sites(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_results_site_kind_at ON check_results (site_id, kind, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_kind_at ON check_results (kind, checked_at);

CREATE TABLE IF NOT EXISTS alerts (
	id               TEXT PRIMARY KEY,
	site_id          TEXT NOT NULL,
	alert_type       TEXT NOT NULL,
	severity         TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'open',
	title            TEXT NOT NULL,
	message          TEXT NOT NULL,
	notifications    TEXT,
	created_at       TEXT NOT NULL,
	acknowledged_at  TEXT,
	resolved_at      TEXT,
	resolved_by      TEXT,
	resolution_notes TEXT,
	FOREIGN KEY(site_id) REFERENCES sites(id) ON DELETE CASCADE
);
-- The dedup invariant: one non-resolved alert per (site, type).
CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open_dedup
	ON alerts (site_id, alert_type) WHERE status != 'resolved';
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts (status, resolved_at);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ---- SiteStore ----

// PutSite upserts a site projection. Kept for the CRUD layer and tests; the
// engine itself never calls it.
func (s *Store) PutSite(ctx context.Context, site *domain.Site) error {
	if site.ID == "" {
		site.ID = domain.SiteID(uuid.NewString())
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sites (id, name, url, platform, active, check_interval,
	uptime_enabled, tls_enabled, performance_enabled, broken_links_enabled,
	seo_enabled, platform_enabled, ssl_warning_days, performance_threshold,
	last_checked_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name, url = excluded.url, platform = excluded.platform,
	active = excluded.active, check_interval = excluded.check_interval,
	uptime_enabled = excluded.uptime_enabled, tls_enabled = excluded.tls_enabled,
	performance_enabled = excluded.performance_enabled,
	broken_links_enabled = excluded.broken_links_enabled,
	seo_enabled = excluded.seo_enabled, platform_enabled = excluded.platform_enabled,
	ssl_warning_days = excluded.ssl_warning_days,
	performance_threshold = excluded.performance_threshold`,
		string(site.ID), site.Name, site.URL, string(site.Platform), boolInt(site.Active),
		site.CheckIntervalSec, boolInt(site.UptimeEnabled), boolInt(site.TLSEnabled),
		boolInt(site.PerformanceEnabled), boolInt(site.BrokenLinksEnabled),
		boolInt(site.SEOEnabled), boolInt(site.PlatformEnabled),
		site.SSLWarningDays, site.PerformanceThresholdMS,
		formatNullableTime(site.LastCheckedAt), site.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert site: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const siteColumns = `id, name, url, platform, active, check_interval,
	uptime_enabled, tls_enabled, performance_enabled, broken_links_enabled,
	seo_enabled, platform_enabled, ssl_warning_days, performance_threshold,
	last_checked_at, created_at`

func (s *Store) GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, string(id))
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return site, err
}

func (s *Store) ListActive(ctx context.Context) ([]*domain.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active sites: %w", err)
	}
	defer rows.Close()

	var out []*domain.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *Store) SetLastChecked(ctx context.Context, id domain.SiteID, ts time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET last_checked_at = ? WHERE id = ?`,
		ts.UTC().Format(time.RFC3339Nano), string(id))
	if err != nil {
		return fmt.Errorf("set last_checked_at: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSite(row scannable) (*domain.Site, error) {
	var st domain.Site
	var lastChecked, createdAt sql.NullString
	var active, up, tls, perf, links, seo, plat int
	err := row.Scan(&st.ID, &st.Name, &st.URL, &st.Platform, &active, &st.CheckIntervalSec,
		&up, &tls, &perf, &links, &seo, &plat,
		&st.SSLWarningDays, &st.PerformanceThresholdMS, &lastChecked, &createdAt)
	if err != nil {
		return nil, err
	}
	st.Active = active == 1
	st.UptimeEnabled = up == 1
	st.TLSEnabled = tls == 1
	st.PerformanceEnabled = perf == 1
	st.BrokenLinksEnabled = links == 1
	st.SEOEnabled = seo == 1
	st.PlatformEnabled = plat == 1
	if lastChecked.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastChecked.String); err == nil {
			st.LastCheckedAt = &t
		}
	}
	if createdAt.Valid {
		st.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt.String)
	}
	return &st, nil
}

// ---- ResultStore ----

func (s *Store) Append(ctx context.Context, r *domain.CheckResult) error {
	if err := r.Validate(); err != nil {
		return err
	}
	payload, err := marshalPayload(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO check_results (id, site_id, kind, checked_at, error_message, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(r.SiteID), string(r.Kind),
		r.CheckedAt.UTC().Format(time.RFC3339Nano), nullable(r.ErrorMessage), payload)
	if err != nil {
		return fmt.Errorf("insert check result: %w", err)
	}
	return nil
}

func (s *Store) LastByKind(ctx context.Context, id domain.SiteID, kind domain.CheckKind) (*domain.CheckResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT site_id, kind, checked_at, error_message, payload
		 FROM check_results WHERE site_id = ? AND kind = ?
		 ORDER BY checked_at DESC LIMIT 1`, string(id), string(kind))

	var r domain.CheckResult
	var checkedAt string
	var errMsg sql.NullString
	var payload []byte
	if err := row.Scan(&r.SiteID, &r.Kind, &checkedAt, &errMsg, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}
	r.CheckedAt, _ = time.Parse(time.RFC3339Nano, checkedAt)
	r.ErrorMessage = errMsg.String
	if err := unmarshalPayload(&r, payload); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, kind domain.CheckKind, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM check_results WHERE kind = ? AND checked_at < ?`,
		string(kind), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("delete old results: %w", err)
	}
	return res.RowsAffected()
}

// ---- AlertStore ----

const alertColumns = `id, site_id, alert_type, severity, status, title, message,
	notifications, created_at, acknowledged_at, resolved_at, resolved_by, resolution_notes`

func (s *Store) GetAlert(ctx context.Context, id domain.AlertID) (*domain.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, string(id))
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return a, err
}

func (s *Store) List(ctx context.Context, f repo.AlertFilter) ([]*domain.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any
	if f.SiteID != "" {
		q += ` AND site_id = ?`
		args = append(args, string(f.SiteID))
	}
	if f.Type != "" {
		q += ` AND alert_type = ?`
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Severity != "" {
		q += ` AND severity = ?`
		args = append(args, string(f.Severity))
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) FindOpen(ctx context.Context, siteID domain.SiteID, t domain.AlertType) (*domain.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE site_id = ? AND alert_type = ? AND status != 'resolved'`,
		string(siteID), string(t))
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return a, err
}

// CreateIfAbsent relies on the partial unique index idx_alerts_open_dedup:
// INSERT OR IGNORE makes lookup-then-create a single atomic statement.
func (s *Store) CreateIfAbsent(ctx context.Context, a *domain.Alert) (bool, error) {
	if a.ID == "" {
		a.ID = domain.AlertID(uuid.NewString())
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	notif, err := marshalNotifications(a.Notifications)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO alerts
		 (id, site_id, alert_type, severity, status, title, message, notifications, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(a.SiteID), string(a.Type), string(a.Severity),
		string(a.Status), a.Title, a.Message, notif,
		a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Update(ctx context.Context, a *domain.Alert) error {
	notif, err := marshalNotifications(a.Notifications)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET severity = ?, status = ?, title = ?, message = ?, notifications = ?,
		 acknowledged_at = ?, resolved_at = ?, resolved_by = ?, resolution_notes = ?
		 WHERE id = ?`,
		string(a.Severity), string(a.Status), a.Title, a.Message, notif,
		formatNullableTime(a.AcknowledgedAt), formatNullableTime(a.ResolvedAt),
		nullable(a.ResolvedBy), nullable(a.ResolutionNotes), string(a.ID))
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) RecordNotification(ctx context.Context, id domain.AlertID, channel string, att domain.NotificationAttempt) error {
	attJSON, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts
		 SET notifications = json_set(coalesce(notifications, '{}'), '$.' || ?, json(?))
		 WHERE id = ?`,
		channel, string(attJSON), string(id))
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.AlertID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE status = 'resolved' AND resolved_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("delete resolved alerts: %w", err)
	}
	return res.RowsAffected()
}

func scanAlert(row scannable) (*domain.Alert, error) {
	var a domain.Alert
	var notif, ackAt, resAt, resolvedBy, notes sql.NullString
	var createdAt string
	err := row.Scan(&a.ID, &a.SiteID, &a.Type, &a.Severity, &a.Status, &a.Title, &a.Message,
		&notif, &createdAt, &ackAt, &resAt, &resolvedBy, &notes)
	if err != nil {
		return nil, err
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.AcknowledgedAt = parseNullableTime(ackAt)
	a.ResolvedAt = parseNullableTime(resAt)
	a.ResolvedBy = resolvedBy.String
	a.ResolutionNotes = notes.String
	if notif.Valid && notif.String != "" {
		if err := json.Unmarshal([]byte(notif.String), &a.Notifications); err != nil {
			return nil, fmt.Errorf("decode notifications: %w", err)
		}
	}
	return &a, nil
}

// marshalPayload serializes the single non-nil variant of a result.
func marshalPayload(r *domain.CheckResult) ([]byte, error) {
	var v any
	switch r.Kind {
	case domain.KindUptime:
		v = r.Uptime
	case domain.KindTLS:
		v = r.TLS
	case domain.KindPerformance:
		v = r.Performance
	case domain.KindBrokenLinks:
		v = r.Links
	case domain.KindSEO:
		v = r.SEO
	case domain.KindPlatform:
		v = r.Platform
	default:
		return nil, domain.ErrResultShape
	}
	return json.Marshal(v)
}

func unmarshalPayload(r *domain.CheckResult, payload []byte) error {
	var dst any
	switch r.Kind {
	case domain.KindUptime:
		r.Uptime = &domain.UptimeResult{}
		dst = r.Uptime
	case domain.KindTLS:
		r.TLS = &domain.TLSResult{}
		dst = r.TLS
	case domain.KindPerformance:
		r.Performance = &domain.PerformanceResult{}
		dst = r.Performance
	case domain.KindBrokenLinks:
		r.Links = &domain.LinkResult{}
		dst = r.Links
	case domain.KindSEO:
		r.SEO = &domain.SEOResult{}
		dst = r.SEO
	case domain.KindPlatform:
		r.Platform = &domain.PlatformResult{}
		dst = r.Platform
	default:
		return domain.ErrResultShape
	}
	return json.Unmarshal(payload, dst)
}

func marshalNotifications(n map[string]domain.NotificationAttempt) (any, error) {
	if len(n) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notifications: %w", err)
	}
	return string(b), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}
