// internal/usecase/rates_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/LavaJover/shvark-rates-service/internal/domain"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/breaker"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/cache"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/metrics"
)

type RatesUsecase interface {
	GetRate(ctx context.Context, pair string, useCache bool) (*domain.Rate, error)
	GetMultipleRates(ctx context.Context, pairs []string) map[string]*domain.Rate
	HealthCheck(ctx context.Context) *domain.HealthReport
	PerformanceStats() PerformanceStats
}

// PerformanceStats - счетчики менеджера вместе со снапшотами кеша и цепей
type PerformanceStats struct {
	TotalRequests   uint64                      `json:"total_requests"`
	CacheHits       uint64                      `json:"cache_hits"`
	CacheMisses     uint64                      `json:"cache_misses"`
	CircuitBlocked  uint64                      `json:"circuit_blocked"`
	BatchRequests   uint64                      `json:"batch_requests"`
	RoutingFailures uint64                      `json:"routing_failures"`
	Cache           cache.Stats                 `json:"cache"`
	Circuits        map[string]breaker.Snapshot `json:"circuits"`
}

type registeredSource struct {
	source    domain.RateSource
	probePair string
}

type DefaultRatesUsecase struct {
	router  *PairRouter
	sources map[string]registeredSource
	cache   *cache.Cache[*domain.Rate]
	breaker *breaker.Breaker
	metrics *metrics.RatesMetrics
	logger  *slog.Logger

	fetchTimeout time.Duration
	batchTimeout time.Duration

	// конкурентные промахи по одной паре сводятся в один поход к апстриму
	flight singleflight.Group

	mu              sync.Mutex
	totalRequests   uint64
	cacheHits       uint64
	cacheMisses     uint64
	circuitBlocked  uint64
	batchRequests   uint64
	routingFailures uint64
}

func NewDefaultRatesUsecase(
	router *PairRouter,
	rateCache *cache.Cache[*domain.Rate],
	circuitBreaker *breaker.Breaker,
	ratesMetrics *metrics.RatesMetrics,
	logger *slog.Logger,
	fetchTimeout time.Duration,
	batchTimeout time.Duration,
) *DefaultRatesUsecase {
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultRatesUsecase{
		router:       router,
		sources:      make(map[string]registeredSource),
		cache:        rateCache,
		breaker:      circuitBreaker,
		metrics:      ratesMetrics,
		logger:       logger,
		fetchTimeout: fetchTimeout,
		batchTimeout: batchTimeout,
	}
}

// RegisterSource регистрирует апстрим под именем маршрута. probePair -
// представительная пара источника, по ней ходит health-check.
func (u *DefaultRatesUsecase) RegisterSource(name string, source domain.RateSource, probePair string) {
	u.sources[name] = registeredSource{source: source, probePair: probePair}
}

// GetRate возвращает курс пары: кеш, затем circuit breaker, затем апстрим.
// useCache=false пропускает чтение кеша, но успешный результат все равно
// сохраняется - так прелоадер прогревает кеш принудительными обновлениями.
func (u *DefaultRatesUsecase) GetRate(ctx context.Context, pair string, useCache bool) (*domain.Rate, error) {
	u.inc(&u.totalRequests)

	pairType := u.router.DeterminePairType(pair)

	route, err := u.router.BestRoute(pair)
	if err != nil {
		u.inc(&u.routingFailures)
		u.metrics.RecordRateRequest(string(pairType), outcomeOf(err))
		u.logger.Warn("No route for pair", "pair", pair, "error", err)
		return nil, err
	}

	if useCache {
		if rate, ok := u.cache.Get(route.Pair); ok {
			u.inc(&u.cacheHits)
			u.metrics.RecordCacheHit(string(pairType))
			u.metrics.RecordRateRequest(string(pairType), "cache_hit")
			return rate, nil
		}
		u.inc(&u.cacheMisses)
		u.metrics.RecordCacheMiss(string(pairType))
	}

	if u.breaker.IsOpen(route.Upstream) {
		u.inc(&u.circuitBlocked)
		u.metrics.RecordCircuitBlocked(route.Upstream)
		u.metrics.RecordCircuitState(route.Upstream, true)
		u.metrics.RecordRateRequest(string(pairType), "circuit_open")
		u.logger.Warn("Request blocked by open circuit", "pair", route.Pair, "upstream", route.Upstream)
		return nil, domain.ErrCircuitOpen
	}

	registered, ok := u.sources[route.Upstream]
	if !ok {
		u.inc(&u.routingFailures)
		u.metrics.RecordRateRequest(string(pairType), "no_route")
		return nil, fmt.Errorf("upstream %s is not registered: %w", route.Upstream, domain.ErrNoRoute)
	}

	rate, err := u.fetchShared(ctx, registered.source, route)
	if err != nil {
		u.metrics.RecordRateRequest(string(pairType), outcomeOf(err))
		return nil, err
	}

	u.metrics.RecordRateRequest(string(pairType), "fetched")
	return rate, nil
}

func (u *DefaultRatesUsecase) fetchShared(ctx context.Context, source domain.RateSource, route Route) (*domain.Rate, error) {
	v, err, _ := u.flight.Do(route.Pair, func() (any, error) {
		fctx, cancel := context.WithTimeout(ctx, u.fetchTimeout)
		defer cancel()

		started := time.Now()
		rate, err := source.Fetch(fctx, route.Pair)
		elapsed := time.Since(started)

		u.metrics.RecordFetchDuration(route.Upstream, elapsed.Seconds(), err == nil)

		if err != nil {
			u.breaker.RecordFailure(route.Upstream)
			u.metrics.RecordCircuitState(route.Upstream, u.breaker.IsOpen(route.Upstream))
			u.logger.Error("Upstream fetch failed",
				"pair", route.Pair,
				"upstream", route.Upstream,
				"duration", elapsed,
				"error", err)
			return nil, classifyFetchError(err)
		}

		u.breaker.RecordSuccess(route.Upstream)
		u.metrics.RecordCircuitState(route.Upstream, false)
		u.cache.Set(route.Pair, rate, route.TTL)
		return rate, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Rate), nil
}

// GetMultipleRates запрашивает пары конкурентно под общим дедлайном.
// Пары, не успевшие или не сумевшие разрешиться, остаются в карте как nil.
func (u *DefaultRatesUsecase) GetMultipleRates(ctx context.Context, pairs []string) map[string]*domain.Rate {
	u.inc(&u.batchRequests)

	batchID := uuid.New().String()
	started := time.Now()

	bctx, cancel := context.WithTimeout(ctx, u.batchTimeout)
	defer cancel()

	results := make(map[string]*domain.Rate, len(pairs))
	for _, pair := range pairs {
		results[pair] = nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, pair := range pairs {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()

			rate, err := u.GetRate(bctx, p, true)
			if err != nil {
				u.logger.Warn("Batch rate lookup failed", "batch_id", batchID, "pair", p, "error", err)
				return
			}
			mu.Lock()
			results[p] = rate
			mu.Unlock()
		}(pair)
	}
	wg.Wait()

	elapsed := time.Since(started)
	u.metrics.RecordBatch(elapsed.Seconds())

	resolved := 0
	for _, rate := range results {
		if rate != nil {
			resolved++
		}
	}
	u.logger.Info("Batch rate lookup finished",
		"batch_id", batchID,
		"pairs", len(pairs),
		"resolved", resolved,
		"duration", elapsed)
	return results
}

// HealthCheck прощупывает каждый апстрим его представительной парой и сводит
// результат с состоянием цепей и заполненностью кеша
func (u *DefaultRatesUsecase) HealthCheck(ctx context.Context) *domain.HealthReport {
	circuits := u.breaker.Snapshot()
	report := &domain.HealthReport{
		Upstreams: make(map[string]domain.UpstreamHealth, len(u.sources)),
		Timestamp: time.Now(),
	}

	okCount := 0
	for name, registered := range u.sources {
		pctx, cancel := context.WithTimeout(ctx, u.fetchTimeout)
		started := time.Now()
		_, err := registered.source.Fetch(pctx, registered.probePair)
		cancel()

		health := domain.UpstreamHealth{
			Healthy:   err == nil,
			LatencyMs: time.Since(started).Milliseconds(),
		}
		if err != nil {
			health.Error = err.Error()
		}
		if snap, ok := circuits[name]; ok {
			health.CircuitOpen = snap.Open
			health.ConsecutiveFailures = snap.Failures
		}
		if health.Healthy && !health.CircuitOpen {
			okCount++
		}
		report.Upstreams[name] = health
	}

	switch {
	case okCount == len(u.sources):
		report.Status = domain.HealthStatusHealthy
	case okCount == 0:
		report.Status = domain.HealthStatusUnhealthy
	default:
		report.Status = domain.HealthStatusDegraded
	}

	cacheStats := u.cache.Stats()
	report.CacheEntries = cacheStats.Entries
	report.CacheUtilization = cacheStats.Utilization
	u.metrics.RecordCacheSnapshot(cacheStats.Entries, cacheStats.Utilization, cacheStats.MemoryBytes)

	return report
}

func (u *DefaultRatesUsecase) PerformanceStats() PerformanceStats {
	u.mu.Lock()
	stats := PerformanceStats{
		TotalRequests:   u.totalRequests,
		CacheHits:       u.cacheHits,
		CacheMisses:     u.cacheMisses,
		CircuitBlocked:  u.circuitBlocked,
		BatchRequests:   u.batchRequests,
		RoutingFailures: u.routingFailures,
	}
	u.mu.Unlock()

	stats.Cache = u.cache.Stats()
	stats.Circuits = u.breaker.Snapshot()
	return stats
}

func (u *DefaultRatesUsecase) inc(counter *uint64) {
	u.mu.Lock()
	*counter++
	u.mu.Unlock()
}

func classifyFetchError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrUpstreamTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamError, err)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidPair):
		return "invalid_pair"
	case errors.Is(err, domain.ErrNoRoute):
		return "no_route"
	case errors.Is(err, domain.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrUpstreamError):
		return "upstream_error"
	default:
		return "error"
	}
}
