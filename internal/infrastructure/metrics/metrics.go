package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RatesMetrics содержит все метрики сервиса курсов
type RatesMetrics struct {
	// Запросы курсов
	RateRequestsTotal prometheus.CounterVec

	// Кеш
	CacheHitsTotal   prometheus.CounterVec
	CacheMissesTotal prometheus.CounterVec
	CacheEntries     prometheus.Gauge
	CacheUtilization prometheus.Gauge
	CacheMemoryBytes prometheus.Gauge

	// Circuit breaker
	CircuitOpenGauge    prometheus.GaugeVec
	CircuitBlockedTotal prometheus.CounterVec

	// Походы к апстримам
	FetchDuration prometheus.HistogramVec

	// Батчевые запросы
	BatchRequestsTotal prometheus.Counter
	BatchDuration      prometheus.Histogram

	// Прелоадер
	PreloadRunsTotal  prometheus.CounterVec
	PreloadPairsTotal prometheus.CounterVec
	PreloadDuration   prometheus.HistogramVec
}

// NewRatesMetrics создает новый экземпляр метрик
func NewRatesMetrics() *RatesMetrics {
	return &RatesMetrics{
		RateRequestsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_requests_total",
				Help: "Общее количество запросов курсов",
			},
			[]string{"pair_type", "outcome"},
		),

		CacheHitsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_cache_hits_total",
				Help: "Количество попаданий в кеш курсов",
			},
			[]string{"pair_type"},
		),

		CacheMissesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_cache_misses_total",
				Help: "Количество промахов кеша курсов",
			},
			[]string{"pair_type"},
		),

		CacheEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_cache_entries",
				Help: "Текущее количество записей в кеше",
			},
		),

		CacheUtilization: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_cache_utilization",
				Help: "Заполненность кеша от 0 до 1",
			},
		),

		CacheMemoryBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rates_cache_memory_bytes",
				Help: "Оценка памяти занятой кешем в байтах",
			},
		),

		CircuitOpenGauge: *promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rates_circuit_open",
				Help: "Состояние цепи апстрима, 1 - разомкнута",
			},
			[]string{"upstream"},
		),

		CircuitBlockedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_circuit_blocked_total",
				Help: "Количество запросов, отклоненных разомкнутой цепью",
			},
			[]string{"upstream"},
		),

		FetchDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rates_fetch_duration_seconds",
				Help:    "Время похода к апстриму в секундах",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms, 100ms, 200ms...
			},
			[]string{"upstream", "success"},
		),

		BatchRequestsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rates_batch_requests_total",
				Help: "Общее количество батчевых запросов курсов",
			},
		),

		BatchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rates_batch_duration_seconds",
				Help:    "Время обработки батчевого запроса в секундах",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
			},
		),

		PreloadRunsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_preload_runs_total",
				Help: "Количество проходов прелоадера по категориям",
			},
			[]string{"category"},
		),

		PreloadPairsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_preload_pairs_total",
				Help: "Количество пар, обработанных прелоадером",
			},
			[]string{"category", "result"},
		),

		PreloadDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rates_preload_duration_seconds",
				Help:    "Время прохода прелоадера по категории в секундах",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
			},
			[]string{"category"},
		),
	}
}

// RecordRateRequest записывает исход запроса курса
func (m *RatesMetrics) RecordRateRequest(pairType, outcome string) {
	if m == nil {
		return
	}
	m.RateRequestsTotal.WithLabelValues(pairType, outcome).Inc()
}

// RecordCacheHit записывает попадание в кеш
func (m *RatesMetrics) RecordCacheHit(pairType string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(pairType).Inc()
}

// RecordCacheMiss записывает промах кеша
func (m *RatesMetrics) RecordCacheMiss(pairType string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(pairType).Inc()
}

// RecordCacheSnapshot обновляет гейджи кеша
func (m *RatesMetrics) RecordCacheSnapshot(entries int, utilization float64, memoryBytes int64) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(entries))
	m.CacheUtilization.Set(utilization)
	m.CacheMemoryBytes.Set(float64(memoryBytes))
}

// RecordCircuitState обновляет состояние цепи апстрима
func (m *RatesMetrics) RecordCircuitState(upstream string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1.0
	}
	m.CircuitOpenGauge.WithLabelValues(upstream).Set(v)
}

// RecordCircuitBlocked записывает запрос, отклоненный разомкнутой цепью
func (m *RatesMetrics) RecordCircuitBlocked(upstream string) {
	if m == nil {
		return
	}
	m.CircuitBlockedTotal.WithLabelValues(upstream).Inc()
}

// RecordFetchDuration записывает время похода к апстриму
func (m *RatesMetrics) RecordFetchDuration(upstream string, durationSeconds float64, success bool) {
	if m == nil {
		return
	}
	successStr := "false"
	if success {
		successStr = "true"
	}
	m.FetchDuration.WithLabelValues(upstream, successStr).Observe(durationSeconds)
}

// RecordBatch записывает батчевый запрос
func (m *RatesMetrics) RecordBatch(durationSeconds float64) {
	if m == nil {
		return
	}
	m.BatchRequestsTotal.Inc()
	m.BatchDuration.Observe(durationSeconds)
}

// RecordPreloadRun записывает проход прелоадера по категории
func (m *RatesMetrics) RecordPreloadRun(category string, loaded, failed, fresh int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PreloadRunsTotal.WithLabelValues(category).Inc()
	m.PreloadPairsTotal.WithLabelValues(category, "loaded").Add(float64(loaded))
	m.PreloadPairsTotal.WithLabelValues(category, "failed").Add(float64(failed))
	m.PreloadPairsTotal.WithLabelValues(category, "fresh").Add(float64(fresh))
	m.PreloadDuration.WithLabelValues(category).Observe(durationSeconds)
}
