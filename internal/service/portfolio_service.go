package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/retry"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

// PortfolioService runs refresh cycles over the configured positions and
// keeps the latest result plus the last known good record per symbol.
type PortfolioService struct {
	positions        []models.PositionConfig
	resolver         *Resolver
	cache            storage.QuoteCache
	cacheTTL         time.Duration
	interSymbolDelay time.Duration
	refreshInterval  time.Duration
	sleep            retry.Sleeper
	now              func() time.Time
	monitor          *PerformanceMonitor

	// cycleMu serializes cycles; mu guards the fields below it
	cycleMu sync.Mutex
	mu      sync.RWMutex
	store   storage.RecordStore
	latest  *models.CycleResult
	cycles  int64
}

// PortfolioServiceOption customizes a PortfolioService
type PortfolioServiceOption func(*PortfolioService)

// WithServiceSleeper replaces the inter-symbol and refresh-interval sleep
func WithServiceSleeper(sleep retry.Sleeper) PortfolioServiceOption {
	return func(s *PortfolioService) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithServiceClock replaces the clock used for buckets and timestamps
func WithServiceClock(now func() time.Time) PortfolioServiceOption {
	return func(s *PortfolioService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInterSymbolDelay overrides the pause between positions
func WithInterSymbolDelay(d time.Duration) PortfolioServiceOption {
	return func(s *PortfolioService) {
		if d >= 0 {
			s.interSymbolDelay = d
		}
	}
}

// WithRefreshInterval overrides the auto-refresh interval. The value is
// clamped like the configured one.
func WithRefreshInterval(d time.Duration) PortfolioServiceOption {
	return func(s *PortfolioService) {
		if d > 0 {
			s.refreshInterval = config.ClampRefreshInterval(d)
		}
	}
}

// NewPortfolioService creates a new portfolio service. The cache must have
// been built around resolver.Resolve.
func NewPortfolioService(
	cfg *config.Config,
	resolver *Resolver,
	cache storage.QuoteCache,
	opts ...PortfolioServiceOption,
) *PortfolioService {
	s := &PortfolioService{
		positions:        append([]models.PositionConfig(nil), cfg.Positions...),
		resolver:         resolver,
		cache:            cache,
		cacheTTL:         cfg.Cache.TTL,
		interSymbolDelay: cfg.Resolver.InterSymbolDelay,
		refreshInterval:  config.ClampRefreshInterval(cfg.Refresh.Interval),
		sleep:            retry.SleepContext,
		now:              time.Now,
		store:            storage.NewRecordStore(),
		monitor:          NewPerformanceMonitor(DefaultSlowCycle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCycle resolves every position in order, normalizes against the last
// known good records and aggregates the result. Only one cycle runs at a
// time; concurrent callers queue.
func (s *PortfolioService) RunCycle(ctx context.Context) *models.CycleResult {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	cycleID := uuid.New().String()
	logger := logging.FromContext(ctx).WithCycle(cycleID)
	ctx = logging.WithLogger(ctx, logger)

	result := &models.CycleResult{
		CycleID:   cycleID,
		StartedAt: s.now(),
	}
	logger.WithField("positions", len(s.positions)).Info("Starting refresh cycle")

	resolutions := make(map[string]*types.Resolution, len(s.positions))
	for i, position := range s.positions {
		if i > 0 && s.interSymbolDelay > 0 {
			if err := s.sleep(ctx, s.interSymbolDelay); err != nil {
				logger.WithError(err).Warn("Cycle interrupted, remaining positions skipped")
				break
			}
		}
		resolutions[position.Symbol] = s.cache.Get(ctx, position, storage.Bucket(s.now(), s.cacheTTL))
	}

	s.mu.RLock()
	previous := s.store
	s.mu.RUnlock()

	records, next, warnings := Normalize(s.positions, resolutions, previous, s.now())
	for _, w := range warnings {
		logger.Warn(w)
	}

	result.Records = records
	result.Warnings = warnings
	result.Snapshot = Aggregate(records, len(s.positions))
	result.FinishedAt = s.now()
	Summarize(result)

	s.mu.Lock()
	s.store = next
	s.latest = result
	s.cycles++
	s.mu.Unlock()
	s.monitor.RecordCycle(result.FinishedAt.Sub(result.StartedAt), result.Status)

	log := logger.WithFields(map[string]interface{}{
		"status":        string(result.Status),
		"fetch_success": result.Snapshot.FetchSuccess,
		"fetch_total":   result.Snapshot.FetchTotal,
		"duration":      result.FinishedAt.Sub(result.StartedAt).String(),
	})
	if result.Status == types.CycleStatusFailed {
		log.Error(result.Summary)
	} else {
		log.Info(result.Summary)
	}
	return result
}

// Refresh clears the quote cache and runs a cycle
func (s *PortfolioService) Refresh(ctx context.Context) *models.CycleResult {
	if err := s.cache.Clear(ctx); err != nil {
		logging.FromContext(ctx).WithError(errors.NewCacheError("clear", err)).Warn("Cache clear failed, refreshing anyway")
	}
	return s.RunCycle(ctx)
}

// Portfolio returns the latest cycle result, running a first cycle if none
// has completed yet
func (s *PortfolioService) Portfolio(ctx context.Context) *models.CycleResult {
	if latest := s.Latest(); latest != nil {
		return latest
	}
	return s.RunCycle(ctx)
}

// Latest returns the most recent cycle result, or nil before the first cycle
func (s *PortfolioService) Latest() *models.CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Positions returns a copy of the configured positions
func (s *PortfolioService) Positions() []models.PositionConfig {
	return append([]models.PositionConfig(nil), s.positions...)
}

// Record returns the latest record for a configured symbol
func (s *PortfolioService) Record(symbol string) (models.NormalizedRecord, error) {
	if r, ok := s.Latest().Record(symbol); ok {
		return r, nil
	}
	return models.NormalizedRecord{}, errors.NewNotFoundError("record", symbol)
}

// LastKnownGood returns the record store carried between cycles
func (s *PortfolioService) LastKnownGood() storage.RecordStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// RefreshInterval is the clamped auto-refresh interval
func (s *PortfolioService) RefreshInterval() time.Duration {
	return s.refreshInterval
}

// Run is the auto-refresh loop: run a cycle, wait the refresh interval,
// repeat until ctx is cancelled. onCycle, if set, receives every result.
func (s *PortfolioService) Run(ctx context.Context, onCycle func(*models.CycleResult)) error {
	logger := logging.FromContext(ctx)
	logger.WithField("interval", s.refreshInterval.String()).Info("Auto-refresh started")
	for {
		result := s.RunCycle(ctx)
		if onCycle != nil {
			onCycle(result)
		}
		if err := s.sleep(ctx, s.refreshInterval); err != nil {
			logger.Info("Auto-refresh stopped")
			return ctx.Err()
		}
	}
}

// ServiceStatus describes the service for the status endpoint
type ServiceStatus struct {
	Positions       int                `json:"positions"`
	Cycles          int64              `json:"cycles"`
	RefreshInterval string             `json:"refreshInterval"`
	LastCycleID     string             `json:"lastCycleId,omitempty"`
	LastStatus      types.CycleStatus  `json:"lastStatus,omitempty"`
	LastSummary     string             `json:"lastSummary,omitempty"`
	LastFinishedAt  *time.Time         `json:"lastFinishedAt,omitempty"`
	LastKnownGood   []string           `json:"lastKnownGood"`
	Cache           storage.CacheStats `json:"cache"`
	Retries         retry.RetryStats   `json:"retries"`
	Performance     *PerformanceStats  `json:"performance"`
	Health          *PerformanceCheck  `json:"health"`
}

// Status reports cycle, cache and retry state
func (s *PortfolioService) Status() ServiceStatus {
	s.mu.RLock()
	latest, cycles, store := s.latest, s.cycles, s.store
	s.mu.RUnlock()

	status := ServiceStatus{
		Positions:       len(s.positions),
		Cycles:          cycles,
		RefreshInterval: s.refreshInterval.String(),
		LastKnownGood:   store.Symbols(),
		Cache:           s.cache.Stats(),
		Performance:     s.monitor.GetStats(),
		Health:          s.monitor.CheckPerformance(),
	}
	if s.resolver != nil {
		status.Retries = s.resolver.Stats()
	}
	if latest != nil {
		finished := latest.FinishedAt
		status.LastCycleID = latest.CycleID
		status.LastStatus = latest.Status
		status.LastSummary = latest.Summary
		status.LastFinishedAt = &finished
	}
	return status
}
