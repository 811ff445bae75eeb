package background

import (
	"context"
	"log"
	"time"

	"github.com/LavaJover/shvark-rates-service/internal/domain"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/cache"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/metrics"
	"github.com/LavaJover/shvark-rates-service/internal/usecase"
)

type BackgroundTasks struct {
	Cache         *cache.Cache[*domain.Rate]
	Metrics       *metrics.RatesMetrics
	Preloader     *usecase.RatePreloader
	SweepInterval time.Duration
}

func NewBackgroundTasks(
	rateCache *cache.Cache[*domain.Rate],
	ratesMetrics *metrics.RatesMetrics,
	preloader *usecase.RatePreloader,
	sweepInterval time.Duration,
) *BackgroundTasks {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &BackgroundTasks{
		Cache:         rateCache,
		Metrics:       ratesMetrics,
		Preloader:     preloader,
		SweepInterval: sweepInterval,
	}
}

func (bt *BackgroundTasks) StartAll(ctx context.Context) {
	go bt.startCacheSweep(ctx)
	if bt.Preloader != nil {
		bt.Preloader.Start(ctx)
	}
}

// Плановая чистка протухших записей. Get и так выбрасывает их лениво,
// sweep нужен чтобы неопрашиваемые пары не держали память и статистика
// кеша не врала.
func (bt *BackgroundTasks) startCacheSweep(ctx context.Context) {
	ticker := time.NewTicker(bt.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := bt.Cache.CleanupExpired()
			if removed > 0 {
				log.Printf("Cache sweep removed %d expired rates", removed)
			}
			stats := bt.Cache.Stats()
			bt.Metrics.RecordCacheSnapshot(stats.Entries, stats.Utilization, stats.MemoryBytes)
		}
	}
}
