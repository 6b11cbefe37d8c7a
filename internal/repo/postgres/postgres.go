package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/repo"
)

var (
	_ repo.SiteStore   = (*Store)(nil)
	_ repo.ResultStore = (*Store)(nil)
	_ repo.AlertStore  = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS sites (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	url                   TEXT NOT NULL,
	platform              TEXT NOT NULL DEFAULT 'wordpress',
	active                BOOLEAN NOT NULL DEFAULT TRUE,
	check_interval        INTEGER NOT NULL DEFAULT 300,
	uptime_enabled        BOOLEAN NOT NULL DEFAULT TRUE,
	tls_enabled           BOOLEAN NOT NULL DEFAULT TRUE,
	performance_enabled   BOOLEAN NOT NULL DEFAULT TRUE,
	broken_links_enabled  BOOLEAN NOT NULL DEFAULT TRUE,
	seo_enabled           BOOLEAN NOT NULL DEFAULT TRUE,
	platform_enabled      BOOLEAN NOT NULL DEFAULT FALSE,
	ssl_warning_days      INTEGER NOT NULL DEFAULT 30,
	performance_threshold INTEGER NOT NULL DEFAULT 3000,
	last_checked_at       TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS check_results (
	id            TEXT PRIMARY KEY,
	site_id       TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	kind          TEXT NOT NULL,
	checked_at    TIMESTAMPTZ NOT NULL,
	error_message TEXT,
	payload       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_site_kind_at ON check_results (site_id, kind, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_results_kind_at ON check_results (kind, checked_at);

CREATE TABLE IF NOT EXISTS alerts (
	id               TEXT PRIMARY KEY,
	site_id          TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	alert_type       TEXT NOT NULL,
	severity         TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'open',
	title            TEXT NOT NULL,
	message          TEXT NOT NULL,
	notifications    JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	acknowledged_at  TIMESTAMPTZ,
	resolved_at      TIMESTAMPTZ,
	resolved_by      TEXT,
	resolution_notes TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open_dedup
	ON alerts (site_id, alert_type) WHERE status <> 'resolved';
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts (status, resolved_at);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// ---- SiteStore ----

const siteColumns = `id, name, url, platform, active, check_interval,
	uptime_enabled, tls_enabled, performance_enabled, broken_links_enabled,
	seo_enabled, platform_enabled, ssl_warning_days, performance_threshold,
	last_checked_at, created_at`

func (s *Store) GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, string(id))
	site, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return site, err
}

func (s *Store) ListActive(ctx context.Context) ([]*domain.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites WHERE active ORDER BY id`)
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
	tag, err := s.pool.Exec(ctx, `UPDATE sites SET last_checked_at = $1 WHERE id = $2`, ts.UTC(), string(id))
	if err != nil {
		return fmt.Errorf("set last_checked_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanSite(row pgx.Row) (*domain.Site, error) {
	var st domain.Site
	var lastChecked *time.Time
	err := row.Scan(&st.ID, &st.Name, &st.URL, &st.Platform, &st.Active, &st.CheckIntervalSec,
		&st.UptimeEnabled, &st.TLSEnabled, &st.PerformanceEnabled, &st.BrokenLinksEnabled,
		&st.SEOEnabled, &st.PlatformEnabled, &st.SSLWarningDays, &st.PerformanceThresholdMS,
		&lastChecked, &st.CreatedAt)
	if err != nil {
		return nil, err
	}
	st.LastCheckedAt = lastChecked
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO check_results (id, site_id, kind, checked_at, error_message, payload)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		uuid.NewString(), string(r.SiteID), string(r.Kind), r.CheckedAt.UTC(), r.ErrorMessage, payload)
	if err != nil {
		return fmt.Errorf("insert check result: %w", err)
	}
	return nil
}

func (s *Store) LastByKind(ctx context.Context, id domain.SiteID, kind domain.CheckKind) (*domain.CheckResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT site_id, kind, checked_at, COALESCE(error_message, ''), payload
		 FROM check_results WHERE site_id = $1 AND kind = $2
		 ORDER BY checked_at DESC LIMIT 1`, string(id), string(kind))

	var r domain.CheckResult
	var payload []byte
	if err := row.Scan(&r.SiteID, &r.Kind, &r.CheckedAt, &r.ErrorMessage, &payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}
	if err := unmarshalPayload(&r, payload); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, kind domain.CheckKind, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM check_results WHERE kind = $1 AND checked_at < $2`,
		string(kind), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old results: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- AlertStore ----

const alertColumns = `id, site_id, alert_type, severity, status, title, message,
	notifications, created_at, acknowledged_at, resolved_at,
	COALESCE(resolved_by, ''), COALESCE(resolution_notes, '')`

func (s *Store) GetAlert(ctx context.Context, id domain.AlertID) (*domain.Alert, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, string(id))
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return a, err
}

func (s *Store) List(ctx context.Context, f repo.AlertFilter) ([]*domain.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		q += fmt.Sprintf(cond, len(args))
	}
	if f.SiteID != "" {
		add(` AND site_id = $%d`, string(f.SiteID))
	}
	if f.Type != "" {
		add(` AND alert_type = $%d`, string(f.Type))
	}
	if f.Status != "" {
		add(` AND status = $%d`, string(f.Status))
	}
	if f.Severity != "" {
		add(` AND severity = $%d`, string(f.Severity))
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		add(` LIMIT $%d`, f.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
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
	row := s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE site_id = $1 AND alert_type = $2 AND status <> 'resolved'`,
		string(siteID), string(t))
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	return a, err
}

// CreateIfAbsent leans on idx_alerts_open_dedup: ON CONFLICT DO NOTHING makes
// the check-and-create race-free under concurrent site-check completions.
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
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO alerts
		 (id, site_id, alert_type, severity, status, title, message, notifications, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT DO NOTHING`,
		string(a.ID), string(a.SiteID), string(a.Type), string(a.Severity),
		string(a.Status), a.Title, a.Message, notif, a.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Update(ctx context.Context, a *domain.Alert) error {
	notif, err := marshalNotifications(a.Notifications)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET severity = $1, status = $2, title = $3, message = $4,
		 notifications = $5, acknowledged_at = $6, resolved_at = $7,
		 resolved_by = NULLIF($8, ''), resolution_notes = NULLIF($9, '')
		 WHERE id = $10`,
		string(a.Severity), string(a.Status), a.Title, a.Message, notif,
		a.AcknowledgedAt, a.ResolvedAt, a.ResolvedBy, a.ResolutionNotes, string(a.ID))
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) RecordNotification(ctx context.Context, id domain.AlertID, channel string, att domain.NotificationAttempt) error {
	attJSON, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts
		 SET notifications = jsonb_set(coalesce(notifications, '{}'::jsonb), ARRAY[$2], $3::jsonb)
		 WHERE id = $1`,
		string(id), channel, string(attJSON))
	if err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.AlertID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM alerts WHERE status = 'resolved' AND resolved_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete resolved alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAlert(row pgx.Row) (*domain.Alert, error) {
	var a domain.Alert
	var notif []byte
	err := row.Scan(&a.ID, &a.SiteID, &a.Type, &a.Severity, &a.Status, &a.Title, &a.Message,
		&notif, &a.CreatedAt, &a.AcknowledgedAt, &a.ResolvedAt, &a.ResolvedBy, &a.ResolutionNotes)
	if err != nil {
		return nil, err
	}
	if len(notif) > 0 {
		if err := json.Unmarshal(notif, &a.Notifications); err != nil {
			return nil, fmt.Errorf("decode notifications: %w", err)
		}
	}
	return &a, nil
}

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

func marshalNotifications(n map[string]domain.NotificationAttempt) ([]byte, error) {
	if len(n) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notifications: %w", err)
	}
	return b, nil
}
