// internal/infrastructure/apilayer/provider.go
package apilayer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LavaJover/shvark-rates-service/internal/domain"
)

const DefaultBaseURL = "https://api.apilayer.com/exchangerates_data"

type latestResponse struct {
	Success   bool               `json:"success"`
	Timestamp int64              `json:"timestamp"`
	Base      string             `json:"base"`
	Date      string             `json:"date"`
	Rates     map[string]float64 `json:"rates"`
}

// Provider забирает фиатные кроссы через APILayer exchangerates_data.
// Бесплатный тариф жестко ограничен по частоте, поэтому запросы
// выдерживают минимальный интервал между собой.
type Provider struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	minInterval time.Duration

	mu          sync.Mutex
	nextAllowed time.Time
}

func NewProvider(baseURL, apiKey string, timeout, minInterval time.Duration) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Provider{
		baseURL:     baseURL,
		apiKey:      apiKey,
		client:      &http.Client{Timeout: timeout},
		minInterval: minInterval,
	}
}

func (p *Provider) Name() string {
	return "apilayer"
}

// Fetch возвращает фиатный курс. Сначала прямой запрос, при отсутствии
// прямой котировки - кросс через USD. Цены округляются до 6 знаков.
func (p *Provider) Fetch(ctx context.Context, pair string) (*domain.Rate, error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 {
		return nil, domain.ErrInvalidPair
	}
	from := strings.ToUpper(strings.TrimSpace(parts[0]))
	to := strings.ToUpper(strings.TrimSpace(parts[1]))

	if from == to {
		return p.rate(pair, 1.0), nil
	}

	price, directErr := p.directRate(ctx, from, to)
	if directErr == nil {
		return p.rate(pair, price), nil
	}

	price, crossErr := p.crossViaUSD(ctx, from, to)
	if crossErr != nil {
		return nil, fmt.Errorf("direct: %v, cross via USD: %w", directErr, crossErr)
	}
	return p.rate(pair, price), nil
}

func (p *Provider) rate(pair string, price float64) *domain.Rate {
	return &domain.Rate{
		Pair:      pair,
		Price:     price,
		Timestamp: time.Now(),
		Source:    p.Name(),
	}
}

func (p *Provider) directRate(ctx context.Context, from, to string) (float64, error) {
	resp, err := p.latest(ctx, from, []string{to})
	if err != nil {
		return 0, err
	}

	price, ok := resp.Rates[to]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no %s rate in response", to)
	}
	return roundRate(price), nil
}

func (p *Provider) crossViaUSD(ctx context.Context, from, to string) (float64, error) {
	resp, err := p.latest(ctx, "USD", []string{from, to})
	if err != nil {
		return 0, err
	}

	fromUSD, okFrom := resp.Rates[from]
	toUSD, okTo := resp.Rates[to]
	if !okFrom || !okTo || fromUSD <= 0 {
		return 0, fmt.Errorf("cross rate via USD unavailable for %s/%s", from, to)
	}

	cross := decimal.NewFromFloat(toUSD).Div(decimal.NewFromFloat(fromUSD))
	price, _ := cross.Round(6).Float64()
	return price, nil
}

func (p *Provider) latest(ctx context.Context, base string, symbols []string) (*latestResponse, error) {
	if err := p.pace(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/latest?base=%s&symbols=%s", p.baseURL, base, strings.Join(symbols, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get rates from APILayer: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("apilayer rejected API key: status %d", resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("apilayer rate limit exceeded: status %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("apilayer API returned status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed latestResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse APILayer response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("apilayer response marked unsuccessful")
	}
	return &parsed, nil
}

// pace выдерживает минимальный интервал между запросами, очередь
// резервирует слот под блокировкой и ждет своего времени уже без нее
func (p *Provider) pace(ctx context.Context) error {
	if p.minInterval <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	if p.nextAllowed.Before(now) {
		p.nextAllowed = now
	}
	wait := p.nextAllowed.Sub(now)
	p.nextAllowed = p.nextAllowed.Add(p.minInterval)
	p.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func roundRate(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(6).Float64()
	return r
}
