package domain

import "time"

const (
	HealthStatusHealthy   = "healthy"
	HealthStatusDegraded  = "degraded"
	HealthStatusUnhealthy = "unhealthy"
)

type UpstreamHealth struct {
	Healthy             bool   `json:"healthy"`
	CircuitOpen         bool   `json:"circuit_open"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LatencyMs           int64  `json:"latency_ms"`
	Error               string `json:"error,omitempty"`
}

type HealthReport struct {
	Status           string                    `json:"status"`
	Upstreams        map[string]UpstreamHealth `json:"upstreams"`
	CacheEntries     int                       `json:"cache_entries"`
	CacheUtilization float64                   `json:"cache_utilization"`
	Timestamp        time.Time                 `json:"timestamp"`
}
