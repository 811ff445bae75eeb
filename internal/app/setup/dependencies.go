package setup

import (
	"fmt"
	"log/slog"

	"github.com/LavaJover/shvark-rates-service/internal/config"
	"github.com/LavaJover/shvark-rates-service/internal/domain"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/apilayer"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/breaker"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/cache"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/kafka"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/logger"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/metrics"
	"github.com/LavaJover/shvark-rates-service/internal/infrastructure/rapira"
	"github.com/LavaJover/shvark-rates-service/internal/usecase"
)

// представительные пары для health-check каждого апстрима
const (
	rapiraProbePair   = "USDT/RUB"
	apilayerProbePair = "USD/EUR"
)

type Dependencies struct {
	Config        *config.RatesConfig
	Logger        *slog.Logger
	Cache         *cache.Cache[*domain.Rate]
	Breaker       *breaker.Breaker
	Metrics       *metrics.RatesMetrics
	Router        *usecase.PairRouter
	RatesUsecase  *usecase.DefaultRatesUsecase
	Preloader     *usecase.RatePreloader
	RatePublisher kafka.RatesPublisher
}

func InitializeDependencies() (*Dependencies, error) {
	cfg := config.MustLoad()

	lg := logger.Setup(cfg.LogConfig)
	slog.SetDefault(lg)

	ratesMetrics := metrics.NewRatesMetrics()
	rateCache := cache.New[*domain.Rate](cfg.CacheConfig.MaxSize, cfg.CacheConfig.TTL, lg)
	circuitBreaker := breaker.New(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.ResetTimeout, lg)
	pairRouter := usecase.NewPairRouter(cfg.CacheConfig.TTL, cfg.CacheConfig.FiatTTL)

	ratesUsecase := usecase.NewDefaultRatesUsecase(
		pairRouter,
		rateCache,
		circuitBreaker,
		ratesMetrics,
		lg,
		cfg.AggregatorConfig.FetchTimeout,
		cfg.AggregatorConfig.BatchTimeout,
	)

	rapiraProvider := rapira.NewProvider(
		cfg.RapiraService.BaseURL,
		cfg.RapiraService.Timeout,
		cfg.RapiraService.PlateDepth,
	)
	ratesUsecase.RegisterSource(usecase.UpstreamRapira, rapiraProvider, rapiraProbePair)

	apilayerProvider := apilayer.NewProvider(
		cfg.APILayerService.BaseURL,
		cfg.APILayerService.APIKey,
		cfg.APILayerService.Timeout,
		cfg.APILayerService.MinInterval,
	)
	ratesUsecase.RegisterSource(usecase.UpstreamAPILayer, apilayerProvider, apilayerProbePair)

	ratePublisher, err := initRatePublisher(cfg)
	if err != nil {
		return nil, fmt.Errorf("rate publisher: %w", err)
	}

	preloader := usecase.NewRatePreloader(
		ratesUsecase,
		pairRouter,
		rateCache,
		ratePublisher,
		ratesMetrics,
		lg,
		usecase.DefaultPreloadCategories(),
	)

	return &Dependencies{
		Config:        cfg,
		Logger:        lg,
		Cache:         rateCache,
		Breaker:       circuitBreaker,
		Metrics:       ratesMetrics,
		Router:        pairRouter,
		RatesUsecase:  ratesUsecase,
		Preloader:     preloader,
		RatePublisher: ratePublisher,
	}, nil
}

func initRatePublisher(cfg *config.RatesConfig) (kafka.RatesPublisher, error) {
	if !cfg.KafkaService.Enabled {
		return nil, nil
	}
	brokers := []string{fmt.Sprintf("%s:%s", cfg.KafkaService.Host, cfg.KafkaService.Port)}
	return kafka.NewDefaultRatesPublisher(brokers, cfg.KafkaService.Topic)
}
