package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/longbark/sitewatch/internal/domain"
	"github.com/longbark/sitewatch/internal/metrics"
	"github.com/longbark/sitewatch/internal/repo"
)

// Runner executes the enabled probes for one site.
type Runner interface {
	Run(ctx context.Context, site *domain.Site) ([]*domain.CheckResult, []domain.Problem)
}

// ProblemSink receives the threshold crossings of a completed run.
type ProblemSink interface {
	HandleProblems(ctx context.Context, problems []domain.Problem)
}

// Scheduler drives the whole engine: a single tick loop that finds due
// sites and a bounded pool of concurrent site runs. Excess due sites wait
// for a free slot rather than the next tick.
type Scheduler struct {
	Log     *zap.Logger
	Sites   repo.SiteStore
	Results repo.ResultStore
	Runner  Runner
	Sink    ProblemSink

	Tick            time.Duration
	DefaultInterval time.Duration
	Concurrency     int

	sem chan struct{}
	wg  sync.WaitGroup

	mu       sync.Mutex
	inflight map[domain.SiteID]struct{}

	quit     chan struct{}
	stopOnce sync.Once
}

func New(
	log *zap.Logger,
	sites repo.SiteStore,
	results repo.ResultStore,
	runner Runner,
	sink ProblemSink,
	tick time.Duration,
	defaultInterval time.Duration,
	concurrency int,
) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if tick <= 0 {
		tick = 5 * time.Minute
	}
	if defaultInterval <= 0 {
		defaultInterval = tick
	}
	return &Scheduler{
		Log:             log,
		Sites:           sites,
		Results:         results,
		Runner:          runner,
		Sink:            sink,
		Tick:            tick,
		DefaultInterval: defaultInterval,
		Concurrency:     concurrency,
		sem:             make(chan struct{}, concurrency),
		inflight:        make(map[domain.SiteID]struct{}),
		quit:            make(chan struct{}),
	}
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Stops when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.Tick)
	defer t.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.stop()
			s.Log.Info("scheduler_stopped")
			return
		case <-t.C:
			s.runOnce(ctx)
		}
	}
}

// stop releases queued runs that have not claimed a slot yet. Runs already
// in flight keep going until Drain's grace expires.
func (s *Scheduler) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

// Drain waits up to grace for in-flight site runs to finish, then gives up
// on them.
func (s *Scheduler) Drain(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		s.Log.Warn("scheduler_drain_timeout")
	}
}

// TriggerImmediateCheck runs one site outside the normal schedule. The run
// has the same semantics as a scheduled one and competes for the same
// concurrency slots.
func (s *Scheduler) TriggerImmediateCheck(ctx context.Context, id domain.SiteID) error {
	site, err := s.Sites.GetSite(ctx, id)
	if err != nil {
		return err
	}
	s.dispatch(ctx, site)
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	sites, err := s.Sites.ListActive(ctx)
	if err != nil {
		// Retry on the next tick rather than crashing.
		s.Log.Warn("scheduler_list_error", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	due := 0
	for _, site := range sites {
		if !site.Due(now, s.DefaultInterval) {
			continue
		}
		due++
		s.dispatch(ctx, site)
	}
	metrics.SitesDue.Set(float64(due))
	if due > 0 {
		s.Log.Debug("scheduler_tick", zap.Int("due", due), zap.Int("active", len(sites)))
	}
}

// dispatch queues one site run. The run executes on a context detached
// from the caller: a trigger request finishing or the loop stopping must
// not cancel probes mid-flight, only Drain bounds them. A site already
// queued or running is not queued again; its last_checked_at has not
// advanced yet, so the next tick would otherwise double-dispatch it.
func (s *Scheduler) dispatch(ctx context.Context, site *domain.Site) {
	s.mu.Lock()
	if _, dup := s.inflight[site.ID]; dup {
		s.mu.Unlock()
		s.Log.Debug("site_check_already_queued", zap.String("site_id", string(site.ID)))
		return
	}
	s.inflight[site.ID] = struct{}{}
	s.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, site.ID)
			s.mu.Unlock()
		}()
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-s.quit:
			return
		}
		s.checkSite(runCtx, site)
	}()
}

// checkSite runs the probes, persists every result, then advances
// last_checked_at unconditionally so a failing site is not rechecked on
// every tick. Problems are forwarded only after all results are written.
func (s *Scheduler) checkSite(ctx context.Context, site *domain.Site) {
	metrics.ActiveChecks.Inc()
	defer metrics.ActiveChecks.Dec()

	s.Log.Info("site_check_started",
		zap.String("site_id", string(site.ID)),
		zap.String("url", site.URL),
	)

	results, problems := s.Runner.Run(ctx, site)

	for _, r := range results {
		if err := s.Results.Append(ctx, r); err != nil {
			s.Log.Warn("result_append_error",
				zap.String("site_id", string(site.ID)),
				zap.String("kind", string(r.Kind)),
				zap.Error(err),
			)
		}
	}

	if err := s.Sites.SetLastChecked(ctx, site.ID, time.Now().UTC()); err != nil {
		s.Log.Warn("last_checked_update_error",
			zap.String("site_id", string(site.ID)),
			zap.Error(err),
		)
	}

	s.Sink.HandleProblems(ctx, problems)

	s.Log.Info("site_check_finished",
		zap.String("site_id", string(site.ID)),
		zap.Int("results", len(results)),
		zap.Int("problems", len(problems)),
	)
}
