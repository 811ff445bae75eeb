// internal/domain/rate_source.go
package domain

import "context"

// RateSource - внешний провайдер курсов (crypto или fiat)
type RateSource interface {
	Fetch(ctx context.Context, pair string) (*Rate, error)
}
