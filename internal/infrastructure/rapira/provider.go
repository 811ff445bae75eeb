// internal/infrastructure/rapira/provider.go
package rapira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LavaJover/shvark-rates-service/internal/domain"
)

const DefaultBaseURL = "https://api.rapira.net"

type plateItem struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

type plateSide struct {
	Direction    string      `json:"direction"`
	Symbol       string      `json:"symbol"`
	MaxAmount    float64     `json:"max_amount"`
	MinAmount    float64     `json:"min_amount"`
	HighestPrice float64     `json:"highest_price"`
	LowestPrice  float64     `json:"lowest_price"`
	Items        []plateItem `json:"items"`
}

type plateResponse struct {
	Ask plateSide `json:"ask"`
	Bid plateSide `json:"bid"`
}

// Provider забирает курсы крипто-пар со стакана Rapira
type Provider struct {
	baseURL string
	depth   int
	client  *http.Client
}

func NewProvider(baseURL string, timeout time.Duration, depth int) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if depth <= 0 {
		depth = 5
	}
	return &Provider{
		baseURL: baseURL,
		depth:   depth,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string {
	return "rapira"
}

// Fetch возвращает курс пары как среднюю цену первых depth заявок на продажу
func (p *Provider) Fetch(ctx context.Context, pair string) (*domain.Rate, error) {
	endpoint := fmt.Sprintf("%s/market/exchange-plate-mini?symbol=%s", p.baseURL, pair)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get rates from Rapira: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rapira API returned status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var plate plateResponse
	if err := json.Unmarshal(body, &plate); err != nil {
		return nil, fmt.Errorf("failed to parse Rapira response: %w", err)
	}

	askPrice, err := averagePrice(plate.Ask.Items, p.depth)
	if err != nil {
		return nil, err
	}

	rate := &domain.Rate{
		Pair:      pair,
		Price:     askPrice,
		Timestamp: time.Now(),
		Source:    p.Name(),
		Ask:       askPrice,
		High24h:   plate.Ask.HighestPrice,
		Low24h:    plate.Ask.LowestPrice,
	}
	if len(plate.Bid.Items) > 0 {
		rate.Bid = plate.Bid.Items[0].Price
	}
	return rate, nil
}

// averagePrice усредняет цены первых depth позиций стакана
func averagePrice(items []plateItem, depth int) (float64, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("no items in order book")
	}
	if depth > len(items) {
		depth = len(items)
	}

	total := 0.0
	for i := 0; i < depth; i++ {
		total += items[i].Price
	}
	return total / float64(depth), nil
}
