// internal/usecase/router.go
package usecase

import (
	"strings"
	"time"

	"github.com/LavaJover/shvark-rates-service/internal/domain"
)

const (
	UpstreamRapira   = "rapira"
	UpstreamAPILayer = "apilayer"
)

var cryptoCurrencies = map[string]struct{}{
	"BTC": {}, "ETH": {}, "TON": {}, "USDT": {}, "USDC": {},
	"LTC": {}, "TRX": {}, "BNB": {}, "DAI": {}, "DOGE": {},
	"ETC": {}, "OP": {}, "XMR": {}, "SOL": {}, "NOT": {},
}

var fiatCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "RUB": {}, "ZAR": {}, "THB": {},
	"AED": {}, "IDR": {}, "GBP": {}, "JPY": {}, "CAD": {},
	"AUD": {}, "CHF": {}, "CNY": {},
}

// Route - выбранный апстрим и TTL кеша для пары
type Route struct {
	Pair     string
	Upstream string
	TTL      time.Duration
}

type PairRouter struct {
	cryptoTTL time.Duration
	fiatTTL   time.Duration
}

func NewPairRouter(cryptoTTL, fiatTTL time.Duration) *PairRouter {
	return &PairRouter{
		cryptoTTL: cryptoTTL,
		fiatTTL:   fiatTTL,
	}
}

func splitPair(pair string) (string, string, error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 {
		return "", "", domain.ErrInvalidPair
	}

	base := strings.ToUpper(strings.TrimSpace(parts[0]))
	quote := strings.ToUpper(strings.TrimSpace(parts[1]))
	if base == "" || quote == "" {
		return "", "", domain.ErrInvalidPair
	}
	return base, quote, nil
}

// NormalizePair приводит пару к каноническому виду "BASE/QUOTE"
func (r *PairRouter) NormalizePair(pair string) (string, error) {
	base, quote, err := splitPair(pair)
	if err != nil {
		return "", err
	}
	return base + "/" + quote, nil
}

// DeterminePairType классифицирует пару по валютным наборам
func (r *PairRouter) DeterminePairType(pair string) domain.PairType {
	base, quote, err := splitPair(pair)
	if err != nil {
		return domain.PairTypeInvalid
	}

	_, baseCrypto := cryptoCurrencies[base]
	_, quoteCrypto := cryptoCurrencies[quote]
	_, baseFiat := fiatCurrencies[base]
	_, quoteFiat := fiatCurrencies[quote]

	switch {
	case baseCrypto && quoteCrypto:
		return domain.PairTypeCrypto
	case baseFiat && quoteFiat:
		return domain.PairTypeFiat
	case (baseCrypto && quoteFiat) || (baseFiat && quoteCrypto):
		return domain.PairTypeMixed
	default:
		return domain.PairTypeInvalid
	}
}

// BestRoute выбирает апстрим для пары. Смешанные пары идут в крипто-источник,
// только он умеет кроссы crypto/fiat.
func (r *PairRouter) BestRoute(pair string) (Route, error) {
	base, quote, err := splitPair(pair)
	if err != nil {
		return Route{}, err
	}
	normalized := base + "/" + quote

	switch r.DeterminePairType(normalized) {
	case domain.PairTypeCrypto, domain.PairTypeMixed:
		return Route{Pair: normalized, Upstream: UpstreamRapira, TTL: r.cryptoTTL}, nil
	case domain.PairTypeFiat:
		return Route{Pair: normalized, Upstream: UpstreamAPILayer, TTL: r.fiatTTL}, nil
	default:
		return Route{}, domain.ErrNoRoute
	}
}
