package domain

import "errors"

var (
	ErrInvalidPair     = errors.New("invalid currency pair")
	ErrNoRoute         = errors.New("no route for currency pair")
	ErrCircuitOpen     = errors.New("upstream circuit is open")
	ErrUpstreamTimeout = errors.New("upstream request timed out")
	ErrUpstreamError   = errors.New("upstream request failed")
)
