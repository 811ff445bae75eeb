// internal/usecase/preloader.go
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/LavaJover/shvark-rates-service/internal/domain"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/cache"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/kafka"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/metrics"
)

const (
	minPreloadInterval = 30 * time.Second
	maxPreloadInterval = 10 * time.Minute
	pairRefreshTimeout = 3 * time.Second
	failedPassBackoff  = 30 * time.Second
)

// PreloadCategory - группа пар с общим интервалом фонового обновления
type PreloadCategory struct {
	Name     string
	Priority int
	Interval time.Duration
	Pairs    []string
}

func DefaultPreloadCategories() []PreloadCategory {
	return []PreloadCategory{
		{
			Name:     "critical",
			Priority: 1,
			Interval: time.Minute,
			Pairs:    []string{"USDT/RUB", "USD/RUB", "EUR/RUB"},
		},
		{
			Name:     "popular",
			Priority: 2,
			Interval: 2 * time.Minute,
			Pairs:    []string{"BTC/USDT", "ETH/USDT", "BTC/RUB", "ETH/RUB"},
		},
		{
			Name:     "fiat_cross",
			Priority: 2,
			Interval: 3 * time.Minute,
			Pairs:    []string{"USD/EUR", "EUR/USD", "GBP/USD", "JPY/USD"},
		},
		{
			Name:     "secondary",
			Priority: 3,
			Interval: 5 * time.Minute,
			Pairs:    []string{"TON/USDT", "SOL/USDT", "LTC/USDT", "TRX/USDT", "NOT/USDT", "XMR/USDT"},
		},
	}
}

type PreloadStatus struct {
	Category     string        `json:"category"`
	Priority     int           `json:"priority"`
	Pairs        int           `json:"pairs"`
	Interval     string        `json:"interval"`
	Attempts     uint64        `json:"attempts"`
	Loaded       uint64        `json:"loaded"`
	Failed       uint64        `json:"failed"`
	AvgDuration  time.Duration `json:"avg_duration"`
	SuccessRatio float64       `json:"success_ratio"`
	FreshRatio   float64       `json:"fresh_ratio"`
	LastRun      time.Time     `json:"last_run"`
	NextRun      time.Time     `json:"next_run"`
	LastLoaded   int           `json:"last_loaded"`
	LastFresh    int           `json:"last_fresh"`
	LastFailed   int           `json:"last_failed"`
}

type categoryState struct {
	category PreloadCategory

	interval     time.Duration
	attempts     uint64
	totalLoaded  uint64
	totalFailed  uint64
	avgDuration  time.Duration
	successRatio float64
	freshRatio   float64
	lastRun      time.Time
	nextRun      time.Time
	lastLoaded   int
	lastFresh    int
	lastFailed   int
}

// RatePreloader держит горячие пары в кеше фоновыми обновлениями.
// Каждая категория живет в своей горутине, интервал подстраивается под
// долю успешных обновлений.
type RatePreloader struct {
	rates     RatesUsecase
	router    *PairRouter
	cache     *cache.Cache[*domain.Rate]
	publisher kafka.RatesPublisher
	metrics   *metrics.RatesMetrics
	logger    *slog.Logger

	mu      sync.Mutex
	states  []*categoryState
	running bool
	wg      sync.WaitGroup
}

func NewRatePreloader(
	rates RatesUsecase,
	router *PairRouter,
	rateCache *cache.Cache[*domain.Rate],
	publisher kafka.RatesPublisher,
	ratesMetrics *metrics.RatesMetrics,
	logger *slog.Logger,
	categories []PreloadCategory,
) *RatePreloader {
	if logger == nil {
		logger = slog.Default()
	}
	if len(categories) == 0 {
		categories = DefaultPreloadCategories()
	}

	states := make([]*categoryState, 0, len(categories))
	for _, category := range categories {
		states = append(states, &categoryState{
			category: category,
			interval: clampInterval(category.Interval),
		})
	}
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].category.Priority < states[j].category.Priority
	})

	return &RatePreloader{
		rates:     rates,
		router:    router,
		cache:     rateCache,
		publisher: publisher,
		metrics:   ratesMetrics,
		logger:    logger,
		states:    states,
	}
}

func (p *RatePreloader) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	for _, state := range p.states {
		p.wg.Add(1)
		go p.run(ctx, state)
	}
	p.logger.Info("Rate preloader started", "categories", len(p.states))
}

// Stop дожидается завершения всех категорий после отмены контекста Start
func (p *RatePreloader) Stop() {
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.logger.Info("Rate preloader stopped")
}

func (p *RatePreloader) run(ctx context.Context, state *categoryState) {
	defer p.wg.Done()

	// первый прогон сразу, прогреваем кеш на старте
	wait := p.refreshCategory(ctx, state)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			wait = p.refreshCategory(ctx, state)
			timer.Reset(wait)
		}
	}
}

// ForceRefresh прогоняет категорию вне расписания. Таймер фонового цикла
// не трогаем, он продолжит со своего интервала.
func (p *RatePreloader) ForceRefresh(ctx context.Context, category string) error {
	var target *categoryState
	p.mu.Lock()
	for _, state := range p.states {
		if state.category.Name == category {
			target = state
			break
		}
	}
	p.mu.Unlock()

	if target == nil {
		return fmt.Errorf("unknown preload category: %s", category)
	}
	p.refreshCategory(ctx, target)
	return nil
}

func (p *RatePreloader) Status() []PreloadStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]PreloadStatus, 0, len(p.states))
	for _, state := range p.states {
		statuses = append(statuses, PreloadStatus{
			Category:     state.category.Name,
			Priority:     state.category.Priority,
			Pairs:        len(state.category.Pairs),
			Interval:     state.interval.String(),
			Attempts:     state.attempts,
			Loaded:       state.totalLoaded,
			Failed:       state.totalFailed,
			AvgDuration:  state.avgDuration,
			SuccessRatio: state.successRatio,
			FreshRatio:   state.freshRatio,
			LastRun:      state.lastRun,
			NextRun:      state.nextRun,
			LastLoaded:   state.lastLoaded,
			LastFresh:    state.lastFresh,
			LastFailed:   state.lastFailed,
		})
	}
	return statuses
}

// refreshCategory обновляет пары категории конкурентно и возвращает паузу
// до следующего прогона. Пары со свежим кешем пропускаются и считаются
// успехом наравне с загруженными.
func (p *RatePreloader) refreshCategory(ctx context.Context, state *categoryState) time.Duration {
	started := time.Now()
	window := freshnessWindow(state.category.Name)

	var (
		mu     sync.Mutex
		loaded int
		fresh  int
		failed int
		events []kafka.RateEvent
	)

	var wg sync.WaitGroup
	for _, pair := range state.category.Pairs {
		wg.Add(1)
		go func(rawPair string) {
			defer wg.Done()

			route, err := p.router.BestRoute(rawPair)
			if err != nil {
				p.logger.Warn("Preload pair is not routable",
					"category", state.category.Name, "pair", rawPair, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			if cached, ok := p.cache.Peek(route.Pair); ok && time.Since(cached.Timestamp) < window {
				mu.Lock()
				fresh++
				mu.Unlock()
				return
			}

			pctx, cancel := context.WithTimeout(ctx, pairRefreshTimeout)
			rate, err := p.rates.GetRate(pctx, route.Pair, false)
			cancel()
			if err != nil {
				p.logger.Warn("Preload refresh failed",
					"category", state.category.Name, "pair", route.Pair, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			mu.Lock()
			loaded++
			events = append(events, kafka.RateEvent{
				Pair:      rate.Pair,
				Price:     rate.Price,
				Source:    rate.Source,
				Category:  state.category.Name,
				Timestamp: rate.Timestamp,
			})
			mu.Unlock()
		}(pair)
	}
	wg.Wait()

	elapsed := time.Since(started)
	total := len(state.category.Pairs)
	ratio := 1.0
	if total > 0 {
		ratio = float64(loaded+fresh) / float64(total)
	}

	p.metrics.RecordPreloadRun(state.category.Name, loaded, failed, fresh, elapsed.Seconds())

	if p.publisher != nil && len(events) > 0 {
		if err := p.publisher.BatchPublishRates(ctx, events); err != nil {
			p.logger.Warn("Failed to publish preloaded rates",
				"category", state.category.Name, "error", err)
		}
	}

	p.mu.Lock()
	state.attempts++
	state.totalLoaded += uint64(loaded)
	state.totalFailed += uint64(failed)
	state.avgDuration += (elapsed - state.avgDuration) / time.Duration(state.attempts)
	state.lastRun = started
	state.lastLoaded = loaded
	state.lastFresh = fresh
	state.lastFailed = failed
	state.successRatio = ratio
	for i := 0; i < fresh; i++ {
		state.freshRatio = state.freshRatio*0.9 + 0.1
	}
	for i := 0; i < loaded+failed; i++ {
		state.freshRatio = state.freshRatio * 0.9
	}
	state.interval = adaptInterval(state.interval, ratio)

	wait := state.interval
	if total > 0 && loaded+fresh == 0 {
		wait = failedPassBackoff
	}
	state.nextRun = time.Now().Add(wait)
	nextInterval := state.interval
	p.mu.Unlock()

	if total > 0 && loaded+fresh == 0 {
		p.logger.Error("Preload pass failed for all pairs",
			"category", state.category.Name, "pairs", total, "retry_in", wait)
	} else {
		p.logger.Info("Preload pass finished",
			"category", state.category.Name,
			"loaded", loaded,
			"fresh", fresh,
			"failed", failed,
			"ratio", ratio,
			"interval", nextInterval,
			"duration", elapsed)
	}

	return wait
}

// freshnessWindow - предел возраста кеша, после которого пара обновляется
// принудительно. У критичных пар окно заметно короче их TTL.
func freshnessWindow(category string) time.Duration {
	switch category {
	case "critical":
		return 45 * time.Second
	case "popular":
		return 90 * time.Second
	default:
		return 3 * time.Minute
	}
}

func adaptInterval(current time.Duration, ratio float64) time.Duration {
	switch {
	case ratio >= 0.9:
		current = time.Duration(float64(current) * 0.9)
	case ratio >= 0.7:
		// держим темп
	case ratio >= 0.5:
		current = time.Duration(float64(current) * 1.2)
	default:
		current = time.Duration(float64(current) * 1.5)
	}
	return clampInterval(current)
}

func clampInterval(interval time.Duration) time.Duration {
	if interval < minPreloadInterval {
		return minPreloadInterval
	}
	if interval > maxPreloadInterval {
		return maxPreloadInterval
	}
	return interval
}
