package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/repo"
)

var (
	_ repo.SiteStore   = (*Store)(nil)
	_ repo.ResultStore = (*Store)(nil)
	_ repo.AlertStore  = (*Store)(nil)
)

// Store is the in-memory adapter used in tests and DB-less dev runs.
type Store struct {
	mu      sync.RWMutex
	sites   map[domain.SiteID]*domain.Site
	results []*domain.CheckResult
	alerts  map[domain.AlertID]*domain.Alert
}

func New() *Store {
	return &Store{
		sites:   make(map[domain.SiteID]*domain.Site),
		results: make([]*domain.CheckResult, 0, 128),
		alerts:  make(map[domain.AlertID]*domain.Alert),
	}
}

// PutSite upserts a site projection. The CRUD layer owns sites; this is its
// write path into the dev store.
func (m *Store) PutSite(s *domain.Site) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = domain.SiteID(uuid.NewString())
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.sites[s.ID] = s
}

func (m *Store) GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Store) ListActive(ctx context.Context) ([]*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Site, 0, len(m.sites))
	for _, s := range m.sites {
		if s.Active {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) SetLastChecked(ctx context.Context, id domain.SiteID, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return repo.ErrNotFound
	}
	t := ts
	s.LastCheckedAt = &t
	return nil
}

func (m *Store) Append(ctx context.Context, r *domain.CheckResult) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.results = append(m.results, &cp)
	return nil
}

func (m *Store) LastByKind(ctx context.Context, id domain.SiteID, kind domain.CheckKind) (*domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *domain.CheckResult
	for _, r := range m.results {
		if r.SiteID != id || r.Kind != kind {
			continue
		}
		if last == nil || r.CheckedAt.After(last.CheckedAt) {
			last = r
		}
	}
	if last == nil {
		return nil, repo.ErrNotFound
	}
	cp := *last
	return &cp, nil
}

func (m *Store) DeleteOlderThan(ctx context.Context, kind domain.CheckKind, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.results[:0]
	var deleted int64
	for _, r := range m.results {
		if r.Kind == kind && r.CheckedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.results = kept
	return deleted, nil
}

// ---- AlertStore ----

func (m *Store) GetAlert(ctx context.Context, id domain.AlertID) (*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := cloneAlert(a)
	return cp, nil
}

func (m *Store) List(ctx context.Context, f repo.AlertFilter) ([]*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if f.SiteID != "" && a.SiteID != f.SiteID {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		out = append(out, cloneAlert(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Store) FindOpen(ctx context.Context, siteID domain.SiteID, t domain.AlertType) (*domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a := m.findOpenLocked(siteID, t); a != nil {
		return cloneAlert(a), nil
	}
	return nil, repo.ErrNotFound
}

func (m *Store) CreateIfAbsent(ctx context.Context, a *domain.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.findOpenLocked(a.SiteID, a.Type); existing != nil {
		return false, nil
	}
	if a.ID == "" {
		a.ID = domain.AlertID(uuid.NewString())
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.alerts[a.ID] = cloneAlert(a)
	return true, nil
}

func (m *Store) Update(ctx context.Context, a *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[a.ID]; !ok {
		return repo.ErrNotFound
	}
	m.alerts[a.ID] = cloneAlert(a)
	return nil
}

func (m *Store) RecordNotification(ctx context.Context, id domain.AlertID, channel string, att domain.NotificationAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return repo.ErrNotFound
	}
	if a.Notifications == nil {
		a.Notifications = make(map[string]domain.NotificationAttempt)
	}
	a.Notifications[channel] = att
	return nil
}

func (m *Store) Delete(ctx context.Context, id domain.AlertID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.alerts, id)
	return nil
}

func (m *Store) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, a := range m.alerts {
		if a.Status == domain.AlertResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(m.alerts, id)
			deleted++
		}
	}
	return deleted, nil
}

// findOpenLocked is the dedup lookup; callers hold the mutex, which is what
// makes CreateIfAbsent atomic here.
func (m *Store) findOpenLocked(siteID domain.SiteID, t domain.AlertType) *domain.Alert {
	for _, a := range m.alerts {
		if a.SiteID == siteID && a.Type == t && !a.Terminal() {
			return a
		}
	}
	return nil
}

func cloneAlert(a *domain.Alert) *domain.Alert {
	cp := *a
	if a.Notifications != nil {
		cp.Notifications = make(map[string]domain.NotificationAttempt, len(a.Notifications))
		for k, v := range a.Notifications {
			cp.Notifications[k] = v
		}
	}
	return &cp
}
