package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/kafka"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []kafka.RateEvent
}

func (c *capturingPublisher) PublishRate(ctx context.Context, event kafka.RateEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingPublisher) BatchPublishRates(ctx context.Context, events []kafka.RateEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
	return nil
}

func (c *capturingPublisher) Close() error { return nil }

func (c *capturingPublisher) published() []kafka.RateEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]kafka.RateEvent(nil), c.events...)
}

func newTestPreloader(uc *DefaultRatesUsecase, publisher kafka.RatesPublisher, categories []PreloadCategory) *RatePreloader {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRatePreloader(uc, uc.router, uc.cache, publisher, nil, logger, categories)
}

func TestDefaultPreloadCategories(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	router := NewPairRouter(5*time.Minute, 10*time.Minute)
	categories := DefaultPreloadCategories()
	asserts.Len(categories, 4)

	names := make(map[string]PreloadCategory, len(categories))
	for _, category := range categories {
		names[category.Name] = category
		for _, pair := range category.Pairs {
			_, err := router.BestRoute(pair)
			asserts.NoError(err, "pair %s in category %s must be routable", pair, category.Name)
		}
	}

	asserts.Equal(1, names["critical"].Priority)
	asserts.Equal(time.Minute, names["critical"].Interval)
	asserts.Contains(names["critical"].Pairs, "USDT/RUB")
	asserts.Equal(3, names["secondary"].Priority)
	asserts.Equal(2, names["fiat_cross"].Priority)
}

func TestAdaptInterval(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	cases := []struct {
		name     string
		current  time.Duration
		ratio    float64
		expected time.Duration
	}{
		{"SpeedsUpOnHighRatio", time.Minute, 1.0, 54 * time.Second},
		{"KeepsPaceOnGoodRatio", time.Minute, 0.75, time.Minute},
		{"SlowsDownOnMediumRatio", time.Minute, 0.6, 72 * time.Second},
		{"SlowsDownHardOnLowRatio", time.Minute, 0.2, 90 * time.Second},
		{"ClampsToMinimum", 31 * time.Second, 1.0, minPreloadInterval},
		{"ClampsToMaximum", 9 * time.Minute, 0.1, maxPreloadInterval},
	}

	for _, tc := range cases {
		asserts.Equal(tc.expected, adaptInterval(tc.current, tc.ratio), tc.name)
	}
}

func TestFreshnessWindow(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	asserts.Equal(45*time.Second, freshnessWindow("critical"))
	asserts.Equal(90*time.Second, freshnessWindow("popular"))
	asserts.Equal(3*time.Minute, freshnessWindow("secondary"))
	asserts.Equal(3*time.Minute, freshnessWindow("fiat_cross"))
}

func TestForceRefreshLoadsPairs(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	uc := newTestUsecase(5, time.Minute)
	source := new(mockSource)
	source.On("Fetch", mock.Anything, "USDT/RUB").Return(testRate("USDT/RUB", 81.2), nil)
	source.On("Fetch", mock.Anything, "BTC/USDT").Return(testRate("BTC/USDT", 67000.5), nil)
	uc.RegisterSource(UpstreamRapira, source, "USDT/RUB")

	categories := []PreloadCategory{{
		Name:     "critical",
		Priority: 1,
		Interval: time.Minute,
		Pairs:    []string{"USDT/RUB", "BTC/USDT"},
	}}
	preloader := newTestPreloader(uc, nil, categories)

	asserts.NoError(preloader.ForceRefresh(context.Background(), "critical"))
	source.AssertNumberOfCalls(t, "Fetch", 2)

	// обе пары легли в кеш
	for _, pair := range categories[0].Pairs {
		_, ok := uc.cache.Peek(pair)
		asserts.True(ok, "pair %s must be cached after preload", pair)
	}

	statuses := preloader.Status()
	asserts.Len(statuses, 1)
	asserts.Equal("critical", statuses[0].Category)
	asserts.Equal(2, statuses[0].LastLoaded)
	asserts.Equal(0, statuses[0].LastFailed)
	asserts.InDelta(1.0, statuses[0].SuccessRatio, 0.001)
	asserts.False(statuses[0].LastRun.IsZero())
	asserts.Equal(uint64(1), statuses[0].Attempts)
	asserts.Equal(uint64(2), statuses[0].Loaded)
	asserts.Equal(uint64(0), statuses[0].Failed)

	// накопительные счетчики растут от прогона к прогону
	asserts.NoError(preloader.ForceRefresh(context.Background(), "critical"))
	statuses = preloader.Status()
	asserts.Equal(uint64(2), statuses[0].Attempts)
}

func TestForceRefreshSkipsFreshPairs(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	uc := newTestUsecase(5, time.Minute)
	source := new(mockSource)
	source.On("Fetch", mock.Anything, "USDT/RUB").Return(testRate("USDT/RUB", 81.2), nil)
	source.On("Fetch", mock.Anything, "BTC/USDT").Return(testRate("BTC/USDT", 67000.5), nil)
	uc.RegisterSource(UpstreamRapira, source, "USDT/RUB")

	categories := []PreloadCategory{{
		Name:     "critical",
		Priority: 1,
		Interval: time.Minute,
		Pairs:    []string{"USDT/RUB", "BTC/USDT"},
	}}
	preloader := newTestPreloader(uc, nil, categories)

	// кеш уже прогрет свежими курсами
	_, err := uc.GetRate(context.Background(), "USDT/RUB", true)
	asserts.NoError(err)
	_, err = uc.GetRate(context.Background(), "BTC/USDT", true)
	asserts.NoError(err)

	asserts.NoError(preloader.ForceRefresh(context.Background(), "critical"))
	source.AssertNumberOfCalls(t, "Fetch", 2)

	statuses := preloader.Status()
	asserts.Equal(0, statuses[0].LastLoaded)
	asserts.Equal(2, statuses[0].LastFresh)
	asserts.InDelta(1.0, statuses[0].SuccessRatio, 0.001)
	asserts.Greater(statuses[0].FreshRatio, 0.0)
}

func TestForceRefreshUnknownCategory(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	uc := newTestUsecase(5, time.Minute)
	preloader := newTestPreloader(uc, nil, nil)

	err := preloader.ForceRefresh(context.Background(), "nonexistent")
	asserts.Error(err)
	asserts.Contains(err.Error(), "unknown preload category")
}

func TestPreloaderPublishesRefreshedRates(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	uc := newTestUsecase(5, time.Minute)
	source := new(mockSource)
	source.On("Fetch", mock.Anything, "USDT/RUB").Return(testRate("USDT/RUB", 81.2), nil)
	source.On("Fetch", mock.Anything, "BTC/USDT").Return(testRate("BTC/USDT", 67000.5), nil)
	uc.RegisterSource(UpstreamRapira, source, "USDT/RUB")

	publisher := &capturingPublisher{}
	categories := []PreloadCategory{{
		Name:     "popular",
		Priority: 2,
		Interval: time.Minute,
		Pairs:    []string{"USDT/RUB", "BTC/USDT"},
	}}
	preloader := newTestPreloader(uc, publisher, categories)

	asserts.NoError(preloader.ForceRefresh(context.Background(), "popular"))

	events := publisher.published()
	asserts.Len(events, 2)
	pairs := map[string]bool{}
	for _, event := range events {
		pairs[event.Pair] = true
		asserts.Equal("popular", event.Category)
		asserts.NotZero(event.Price)
	}
	asserts.True(pairs["USDT/RUB"])
	asserts.True(pairs["BTC/USDT"])

	// свежие пары второй раз не публикуются
	asserts.NoError(preloader.ForceRefresh(context.Background(), "popular"))
	asserts.Len(publisher.published(), 2)
}

func TestPreloaderBackoffWhenAllPairsFail(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	uc := newTestUsecase(5, time.Minute)
	source := new(mockSource)
	source.On("Fetch", mock.Anything, mock.Anything).Return(nil, errors.New("upstream down"))
	uc.RegisterSource(UpstreamRapira, source, "USDT/RUB")

	categories := []PreloadCategory{{
		Name:     "critical",
		Priority: 1,
		Interval: time.Minute,
		Pairs:    []string{"USDT/RUB", "BTC/USDT"},
	}}
	preloader := newTestPreloader(uc, nil, categories)

	asserts.NoError(preloader.ForceRefresh(context.Background(), "critical"))

	statuses := preloader.Status()
	asserts.Equal(0, statuses[0].LastLoaded)
	asserts.Equal(2, statuses[0].LastFailed)
	asserts.InDelta(0.0, statuses[0].SuccessRatio, 0.001)

	// после полностью провального прогона следующая попытка через короткий backoff,
	// а не через растянутый интервал
	asserts.WithinDuration(statuses[0].LastRun.Add(failedPassBackoff), statuses[0].NextRun, 2*time.Second)
	asserts.Equal((90 * time.Second).String(), statuses[0].Interval)
}

func TestPreloaderStartStop(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	uc := newTestUsecase(5, time.Minute)
	source := new(mockSource)
	source.On("Fetch", mock.Anything, "USDT/RUB").Return(testRate("USDT/RUB", 81.2), nil)
	uc.RegisterSource(UpstreamRapira, source, "USDT/RUB")

	categories := []PreloadCategory{{
		Name:     "critical",
		Priority: 1,
		Interval: time.Minute,
		Pairs:    []string{"USDT/RUB"},
	}}
	preloader := newTestPreloader(uc, nil, categories)

	ctx, cancel := context.WithCancel(context.Background())
	preloader.Start(ctx)
	// повторный Start не плодит лишних горутин
	preloader.Start(ctx)

	asserts.Eventually(func() bool {
		return len(preloader.Status()) == 1 && !preloader.Status()[0].LastRun.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	preloader.Stop()

	// первый прогон случился сразу, второй не успел бы раньше интервала
	source.AssertNumberOfCalls(t, "Fetch", 1)
}
