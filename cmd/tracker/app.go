package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/portfolio-tracker/internal/adapter"
	"github.com/portfolio-tracker/internal/api"
	"github.com/portfolio-tracker/internal/circuitbreaker"
	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/retry"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/synthetic"
)

// app is the wired object graph shared by every subcommand
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	client   *adapter.YahooClient
	breakers *circuitbreaker.Manager
	service  *service.PortfolioService
	redis    *storage.RedisCache
}

// newApp loads configuration, initializes logging and wires the provider
// client, resolver, quote cache and portfolio service. Logs go to logOut.
func newApp(ctx context.Context, logOut io.Writer, opts ...service.PortfolioServiceOption) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logger := logging.InitGlobalLoggerWithOutput(logLevel, logFormat, logOut)
	logger.WithFields(map[string]interface{}{
		"level":     cfg.Logging.Level,
		"format":    cfg.Logging.Format,
		"positions": len(cfg.Positions),
	}).Info("Structured logging initialized")

	a := &app{cfg: cfg, logger: logger}

	if cfg.Breaker.Enabled {
		a.breakers = circuitbreaker.NewManager(&circuitbreaker.Config{
			MaxFailures:      cfg.Breaker.MaxFailures,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Timeout:          cfg.Breaker.Timeout,
			HalfOpenMaxCalls: 1,
			IsFailure:        adapter.EndpointFailure,
		})
	}

	pool, err := adapter.NewEndpointPool(adapter.EndpointPoolConfig{
		URLs:     []string{cfg.Provider.BaseURL, cfg.Provider.SecondaryURL},
		Breakers: a.breakers,
	})
	if err != nil {
		return nil, err
	}
	a.client, err = adapter.NewYahooClient(adapter.YahooConfig{
		Pool:              pool,
		Timeout:           cfg.Provider.Timeout,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		UserAgent:         cfg.Provider.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	var generator *synthetic.Generator
	if cfg.Resolver.SyntheticFallback {
		generator = synthetic.NewSeeded(cfg.Resolver.Seed, cfg.Resolver.FallbackPrices, cfg.Resolver.DefaultFallbackPrice)
	}
	resolver := service.NewResolver(a.client, generator, &cfg.Resolver)

	cache, err := a.quoteCache(ctx, resolver)
	if err != nil {
		return nil, err
	}

	a.service = service.NewPortfolioService(cfg, resolver, cache, opts...)
	logger.WithFields(map[string]interface{}{
		"provider":  pool.CurrentURL(),
		"cache":     cfg.Cache.Backend,
		"synthetic": cfg.Resolver.SyntheticFallback,
	}).Info("Portfolio service initialized")
	return a, nil
}

// quoteCache builds the configured cache backend around the resolver
func (a *app) quoteCache(ctx context.Context, resolver *service.Resolver) (storage.QuoteCache, error) {
	if a.cfg.Cache.Backend != "redis" {
		return storage.NewMemoryQuoteCache(resolver.Resolve), nil
	}

	a.logger.WithFields(map[string]interface{}{
		"host": a.cfg.Redis.Host,
		"port": a.cfg.Redis.Port,
	}).Info("Connecting to Redis...")

	err := retry.WithRetry(ctx, retry.ConnectRetryConfig(), func(ctx context.Context, attempt int) error {
		redis, err := storage.NewRedisCache(ctx, &a.cfg.Redis)
		if err != nil {
			a.logger.WithError(err).WithField("attempt", attempt).Warn("Redis connection failed")
			return err
		}
		a.redis = redis
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return storage.NewRedisQuoteCache(a.redis, a.cfg.Cache.TTL, resolver.Resolve), nil
}

// server builds the HTTP API over the portfolio service
func (a *app) server() *api.Server {
	serverConfig := &api.ServerConfig{
		Host:            a.cfg.Server.Host,
		Port:            a.cfg.Server.Port,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    a.cfg.Server.RateLimitRPS,
		RateBurst:       a.cfg.Server.RateBurst,
	}

	var breakers api.BreakerStatsSource
	if a.breakers != nil {
		breakers = a.breakers
	}
	return api.NewServer(serverConfig, a.service, a.client.Pool(), breakers)
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close Redis connection")
		}
	}
}
