// Package scheduler drives the periodic collection cycle: a ticker fans
// out one collector task per configured router, each following the
// strict acquire -> issue -> parse -> registry-update -> pool-state-update
// -> release ordering, and every N cycles runs the cleanup cascade that
// keeps the registry's dynamic label sets bounded.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/metricsmith/routeros_exporter/internal/mikrotik"
	"github.com/metricsmith/routeros_exporter/internal/pool"
	"github.com/metricsmith/routeros_exporter/internal/registry"
	"github.com/metricsmith/routeros_exporter/internal/replycache"
)

// perCollectorTimeout bounds a single router's collection within a cycle,
// so one dead target cannot stall the whole cycle's fan-out.
const perCollectorTimeout = 30 * time.Second

// cleanupCycleInterval runs the cleanup cascade every Nth cycle rather
// than every cycle, since it walks every dynamic label set.
const cleanupCycleInterval = 20

// dynamicLabelTTL bounds how long an unobserved dynamic-label series
// (connection-tracking, VPN peer) survives before outright deletion.
const dynamicLabelTTL = 30 * time.Minute

// RouterHealth is the point-in-time health view of one configured router,
// as surfaced over /health.
type RouterHealth struct {
	Name                string
	Status              string
	ConsecutiveErrors   int
	HasSuccessfulScrape bool
}

type routerCounters struct {
	scrapeSuccesses uint64
	scrapeErrors    uint64
}

// Scheduler owns the fleet's collection loop.
type Scheduler struct {
	targets  []pool.Target
	pool     *pool.Pool
	registry *registry.Registry
	cache    *replycache.Cache
	logger   *slog.Logger
	interval time.Duration

	mu             sync.Mutex
	counters       map[string]*routerCounters
	lastInterfaces map[string][]string
	cycle          int
	inFlight       sync.WaitGroup
}

// New constructs a Scheduler over targets, polling every interval.
func New(targets []pool.Target, p *pool.Pool, reg *registry.Registry, cache *replycache.Cache, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	counters := make(map[string]*routerCounters, len(targets))
	for _, t := range targets {
		counters[t.Name] = &routerCounters{}
	}
	return &Scheduler{
		targets:        targets,
		pool:           p,
		registry:       reg,
		cache:          cache,
		logger:         logger,
		interval:       interval,
		counters:       counters,
		lastInterfaces: make(map[string][]string, len(targets)),
	}
}

// Run blocks, ticking every s.interval until ctx is cancelled. On
// cancellation it awaits any in-flight collectors, bounded by the
// per-collector timeout, so a collector mid-scrape at shutdown is not
// abandoned but also cannot block shutdown indefinitely.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.awaitDrain()
			return
		case <-ticker.C:
			s.runCycle()
		}
	}
}

func (s *Scheduler) awaitDrain() {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(perCollectorTimeout):
		s.logger.Warn("scheduler: shutdown drain timed out waiting for in-flight collectors")
	}
}

func (s *Scheduler) runCycle() {
	start := time.Now()

	var g errgroup.Group
	for _, target := range s.targets {
		target := target
		g.Go(func() error {
			names, ok := s.collectOne(target)
			if ok {
				s.mu.Lock()
				s.lastInterfaces[target.Name] = names
				s.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// Stale-interface pruning runs every cycle, since interface
	// additions/removals are ordinary device churn, not a fleet-membership
	// change. A router that failed this cycle keeps its last-known
	// interface set so a transient scrape failure doesn't look like every
	// interface vanished.
	s.mu.Lock()
	current := make(map[string][]string, len(s.lastInterfaces))
	for router, names := range s.lastInterfaces {
		current[router] = names
	}
	s.mu.Unlock()
	s.registry.CleanupStaleInterfaces(current)

	s.registry.SetCollectionCycleDuration(time.Since(start))
	total, active := s.pool.Stats()
	s.registry.SetPoolStats(total, active)

	s.mu.Lock()
	s.cycle++
	runCleanup := s.cycle%cleanupCycleInterval == 0
	s.mu.Unlock()

	if runCleanup {
		s.cleanup()
	}
}

// collectOne runs the acquire -> issue -> parse -> registry-update ->
// pool-state-update -> release sequence for one target, off the cycle's
// own goroutine so a single slow device cannot hold up the cycle past
// perCollectorTimeout. The pool's error/success record happens inside the
// Use callback, strictly before the lease Use releases on return,
// satisfying the ordering guarantee named in the scheduling model. A
// collector that outlives the timeout keeps running detached (there is no
// way to forcibly abort a blocking socket read without a context-aware
// Conn) but is tracked by inFlight so shutdown still awaits it, bounded.
func (s *Scheduler) collectOne(target pool.Target) (interfaceNames []string, succeeded bool) {
	s.inFlight.Add(1)
	done := make(chan struct{})
	var names []string
	var ok bool
	go func() {
		defer s.inFlight.Done()
		defer close(done)
		names, ok = s.runCollect(target)
	}()

	select {
	case <-done:
		return names, ok
	case <-time.After(perCollectorTimeout):
		s.logger.Warn("scrape exceeded per-collector budget, continuing in background", "router", target.Name)
		return nil, false
	}
}

func (s *Scheduler) runCollect(target pool.Target) (interfaceNames []string, succeeded bool) {
	key := pool.KeyOf(target)
	client := mikrotik.NewClient(s.pool, target, s.cache)
	scrapeStart := time.Now()

	var names []string
	err := s.pool.Use(key, target.Secret, func(conn pool.Conn) error {
		snapshot, collectErr := client.Collect(conn)
		if collectErr != nil {
			s.pool.RecordError(key)
			return collectErr
		}
		s.registry.Update(snapshot)
		s.pool.RecordSuccess(key)
		names = make([]string, 0, len(snapshot.Interfaces))
		for _, iface := range snapshot.Interfaces {
			names = append(names, iface.Name)
		}
		return nil
	})

	duration := time.Since(scrapeStart)
	s.mu.Lock()
	counters := s.counters[target.Name]
	if counters == nil {
		counters = &routerCounters{}
		s.counters[target.Name] = counters
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("scrape failed", "router", target.Name, "err", err)
		s.registry.RecordScrapeError(target.Name, duration)
		s.mu.Lock()
		counters.scrapeErrors++
		s.mu.Unlock()
	} else {
		s.registry.RecordScrapeSuccess(target.Name, duration, time.Now())
		s.mu.Lock()
		counters.scrapeSuccesses++
		s.mu.Unlock()
	}

	if consecutive, _, ok := s.pool.State(key); ok {
		s.registry.SetConsecutiveErrors(target.Name, consecutive)
	}

	return names, err == nil
}

// cleanup runs the periodic pruning paths: stale-router purge, TTL-based
// dynamic-label expiry, pool-state purge, and reply-cache purge for removed
// routers. Stale-interface pruning is not done here; runCycle does it every
// cycle. Dropping any of these produces a slow memory leak that is only
// visible in long-running processes.
func (s *Scheduler) cleanup() {
	activeNames := make(map[string]struct{}, len(s.targets))
	activeKeys := make(map[pool.Key]struct{}, len(s.targets))
	for _, t := range s.targets {
		activeNames[t.Name] = struct{}{}
		activeKeys[pool.KeyOf(t)] = struct{}{}
	}

	s.registry.CleanupStaleRouters(activeNames)
	s.registry.CleanupExpiredDynamicLabels(dynamicLabelTTL)
	s.pool.CleanupStates(activeKeys)

	s.mu.Lock()
	var staleRouters []string
	for router := range s.lastInterfaces {
		if _, ok := activeNames[router]; !ok {
			staleRouters = append(staleRouters, router)
		}
	}
	for _, router := range staleRouters {
		delete(s.lastInterfaces, router)
	}
	s.mu.Unlock()

	if s.cache != nil {
		for _, router := range staleRouters {
			s.cache.PurgeRouter(router)
		}
	}

	cacheItems := 0
	if s.cache != nil {
		cacheItems = s.cache.ItemCount()
	}
	s.logger.Debug("scheduler: cleanup cascade complete", "cache_items", cacheItems)
}

// Health returns the current per-router health view for the /health
// endpoint.
func (s *Scheduler) Health() []RouterHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	health := make([]RouterHealth, 0, len(s.targets))
	for _, t := range s.targets {
		c := s.counters[t.Name]
		var successes, errs uint64
		if c != nil {
			successes, errs = c.scrapeSuccesses, c.scrapeErrors
		}
		consecutive, everSucceeded, _ := s.pool.State(pool.KeyOf(t))

		status := "unknown"
		switch {
		case successes > 0 && consecutive < 3:
			status = "healthy"
		case errs > 0 || consecutive >= 3:
			status = "degraded"
		}

		health = append(health, RouterHealth{
			Name:                t.Name,
			Status:              status,
			ConsecutiveErrors:   consecutive,
			HasSuccessfulScrape: everSucceeded,
		})
	}
	return health
}
