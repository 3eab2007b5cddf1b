package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/portfolio-tracker/internal/circuitbreaker"
	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
)

// EndpointHealth represents the health status of one provider endpoint
type EndpointHealth struct {
	URL              string               `json:"url"`
	Current          bool                 `json:"current"`
	TotalRequests    int64                `json:"totalRequests"`
	SuccessfulReqs   int64                `json:"successfulRequests"`
	FailedReqs       int64                `json:"failedRequests"`
	RateLimitedReqs  int64                `json:"rateLimitedRequests"`
	SuccessRate      float64              `json:"successRate"`
	AverageLatency   time.Duration        `json:"averageLatency"`
	LastSuccess      time.Time            `json:"lastSuccess"`
	LastFailure      time.Time            `json:"lastFailure"`
	ConsecutiveFails int                  `json:"consecutiveFails"`
	CooldownUntil    time.Time            `json:"cooldownUntil,omitempty"`
	Breaker          circuitbreaker.State `json:"breaker,omitempty"`
	IsHealthy        bool                 `json:"isHealthy"`
}

// endpoint is one base URL plus its health counters
type endpoint struct {
	url     string
	breaker *circuitbreaker.CircuitBreaker

	mu               sync.Mutex
	totalRequests    int64
	successfulReqs   int64
	failedReqs       int64
	rateLimitedReqs  int64
	totalLatency     time.Duration
	lastSuccess      time.Time
	lastFailure      time.Time
	consecutiveFails int
	cooldownUntil    time.Time
}

// EndpointPool rotates between equivalent provider hosts. It sticks to the
// current endpoint until it fails or is rate limited, then moves on.
// A rate-limited endpoint is skipped until its cooldown expires.
type EndpointPool struct {
	mu        sync.RWMutex
	endpoints []*endpoint
	current   int
	cooldown  time.Duration
	now       func() time.Time
}

// EndpointPoolConfig holds configuration for creating an endpoint pool
type EndpointPoolConfig struct {
	URLs []string
	// Breakers supplies one breaker per URL. Nil disables circuit breaking.
	Breakers *circuitbreaker.Manager
	// Cooldown is how long a rate-limited endpoint is skipped. Default 30s.
	Cooldown time.Duration
	Now      func() time.Time
}

// NewEndpointPool creates a pool from the non-empty URLs, in priority order
func NewEndpointPool(cfg EndpointPoolConfig) (*EndpointPool, error) {
	pool := &EndpointPool{
		cooldown: cfg.Cooldown,
		now:      cfg.Now,
	}
	if pool.cooldown <= 0 {
		pool.cooldown = 30 * time.Second
	}
	if pool.now == nil {
		pool.now = time.Now
	}

	seen := make(map[string]bool)
	for _, u := range cfg.URLs {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		ep := &endpoint{url: u}
		if cfg.Breakers != nil {
			ep.breaker = cfg.Breakers.GetOrCreate(u)
		}
		pool.endpoints = append(pool.endpoints, ep)
	}
	if len(pool.endpoints) == 0 {
		return nil, fmt.Errorf("at least one provider URL is required")
	}
	return pool, nil
}

// EndpointFailure reports whether err says something about the endpoint
// itself. Rate limits and empty answers do not.
func EndpointFailure(err error) bool {
	return apperrors.ClassifyFetch(err) == apperrors.OutcomeInvalid
}

// CurrentURL returns the currently preferred endpoint
func (p *EndpointPool) CurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.current].url
}

// Do runs fn against endpoints in order starting from the current one.
// It returns on the first success or on an error that failover cannot fix.
func (p *EndpointPool) Do(ctx context.Context, fn func(ctx context.Context, baseURL string) error) error {
	logger := logging.FromContext(ctx)

	p.mu.RLock()
	start := p.current
	n := len(p.endpoints)
	p.mu.RUnlock()

	var lastErr error
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		ep := p.endpoints[idx]

		if !p.available(ep) {
			continue
		}

		began := p.now()
		err := p.execute(ctx, ep, fn)
		latency := p.now().Sub(began)

		switch apperrors.ClassifyFetch(err) {
		case apperrors.OutcomeSuccess, apperrors.OutcomeNoData:
			ep.recordSuccess(p.now(), latency)
			p.setCurrent(idx)
			return err
		case apperrors.OutcomeRateLimited:
			ep.recordRateLimited(p.now(), p.cooldown)
			logger.WithFields(map[string]interface{}{
				"endpoint": ep.url,
				"cooldown": p.cooldown,
			}).Warn("Provider endpoint rate limited, rotating")
		default:
			ep.recordFailure(p.now())
			logger.WithError(err).WithField("endpoint", ep.url).Warn("Provider endpoint failed, rotating")
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if lastErr == nil {
		return ErrProviderUnavailable
	}
	return lastErr
}

func (p *EndpointPool) execute(ctx context.Context, ep *endpoint, fn func(ctx context.Context, baseURL string) error) error {
	if ep.breaker == nil {
		return fn(ctx, ep.url)
	}
	return ep.breaker.Execute(ctx, func(ctx context.Context) error {
		return fn(ctx, ep.url)
	})
}

func (p *EndpointPool) available(ep *endpoint) bool {
	ep.mu.Lock()
	cooling := p.now().Before(ep.cooldownUntil)
	ep.mu.Unlock()
	if cooling {
		return false
	}
	return ep.breaker == nil || ep.breaker.Allow()
}

func (p *EndpointPool) setCurrent(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != idx {
		logging.WithFields(map[string]interface{}{
			"from": p.endpoints[p.current].url,
			"to":   p.endpoints[idx].url,
		}).Info("Provider endpoint failover")
		p.current = idx
	}
}

// Reset returns to the primary endpoint and clears cooldowns
func (p *EndpointPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = 0
	for _, ep := range p.endpoints {
		ep.mu.Lock()
		ep.cooldownUntil = time.Time{}
		ep.consecutiveFails = 0
		ep.mu.Unlock()
	}
}

// GetAllHealth returns health status of all endpoints
func (p *EndpointPool) GetAllHealth() []*EndpointHealth {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()

	health := make([]*EndpointHealth, len(p.endpoints))
	for i, ep := range p.endpoints {
		h := ep.health(p.now())
		h.Current = i == current
		health[i] = h
	}
	return health
}

func (ep *endpoint) recordSuccess(now time.Time, latency time.Duration) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.totalRequests++
	ep.successfulReqs++
	ep.totalLatency += latency
	ep.lastSuccess = now
	ep.consecutiveFails = 0
}

func (ep *endpoint) recordFailure(now time.Time) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.totalRequests++
	ep.failedReqs++
	ep.lastFailure = now
	ep.consecutiveFails++
}

func (ep *endpoint) recordRateLimited(now time.Time, cooldown time.Duration) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.totalRequests++
	ep.rateLimitedReqs++
	ep.lastFailure = now
	ep.cooldownUntil = now.Add(cooldown)
}

func (ep *endpoint) health(now time.Time) *EndpointHealth {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	var successRate float64
	if ep.totalRequests > 0 {
		successRate = float64(ep.successfulReqs) / float64(ep.totalRequests)
	}
	var avgLatency time.Duration
	if ep.successfulReqs > 0 {
		avgLatency = ep.totalLatency / time.Duration(ep.successfulReqs)
	}

	h := &EndpointHealth{
		URL:              ep.url,
		TotalRequests:    ep.totalRequests,
		SuccessfulReqs:   ep.successfulReqs,
		FailedReqs:       ep.failedReqs,
		RateLimitedReqs:  ep.rateLimitedReqs,
		SuccessRate:      successRate,
		AverageLatency:   avgLatency,
		LastSuccess:      ep.lastSuccess,
		LastFailure:      ep.lastFailure,
		ConsecutiveFails: ep.consecutiveFails,
		IsHealthy:        ep.consecutiveFails < 5 && !now.Before(ep.cooldownUntil),
	}
	if now.Before(ep.cooldownUntil) {
		h.CooldownUntil = ep.cooldownUntil
	}
	if ep.breaker != nil {
		h.Breaker = ep.breaker.GetState()
		if h.Breaker == circuitbreaker.StateOpen {
			h.IsHealthy = false
		}
	}
	return h
}
