package apilayer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAPILayerDirectRate(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		asserts.Equal("test-key", r.Header.Get("apikey"))
		asserts.Equal("USD", r.URL.Query().Get("base"))
		asserts.Equal("RUB", r.URL.Query().Get("symbols"))
		fmt.Fprint(w, `{"success": true, "timestamp": 1700000000, "base": "USD", "rates": {"RUB": 92.4567891}}`)
	}))
	defer server.Close()

	provider := NewProvider(server.URL, "test-key", time.Second, 0)
	rate, err := provider.Fetch(context.Background(), "USD/RUB")

	asserts.NoError(err)
	asserts.Equal("USD/RUB", rate.Pair)
	asserts.InDelta(92.456789, rate.Price, 0.0000001)
	asserts.Equal("apilayer", rate.Source)
}

func TestAPILayerCrossViaUSD(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("base") == "EUR" {
			// прямой котировки нет
			fmt.Fprint(w, `{"success": false}`)
			return
		}
		asserts.Equal("USD", r.URL.Query().Get("base"))
		asserts.Equal("EUR,GBP", r.URL.Query().Get("symbols"))
		fmt.Fprint(w, `{"success": true, "base": "USD", "rates": {"EUR": 0.92, "GBP": 0.79}}`)
	}))
	defer server.Close()

	provider := NewProvider(server.URL, "test-key", time.Second, 0)
	rate, err := provider.Fetch(context.Background(), "EUR/GBP")

	asserts.NoError(err)
	asserts.Equal(int32(2), calls.Load())
	// 0.79 / 0.92, округленное до 6 знаков
	asserts.InDelta(0.858696, rate.Price, 0.0000001)
}

func TestAPILayerIdenticalCurrencies(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	provider := NewProvider(server.URL, "test-key", time.Second, 0)
	rate, err := provider.Fetch(context.Background(), "USD/USD")

	asserts.NoError(err)
	asserts.Equal(1.0, rate.Price)
	asserts.Equal(int32(0), calls.Load(), "identical currencies must not hit the API")
}

func TestAPILayerErrors(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	t.Run("InvalidAPIKey", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		provider := NewProvider(server.URL, "bad-key", time.Second, 0)
		_, err := provider.Fetch(context.Background(), "USD/EUR")
		asserts.ErrorContains(err, "API key")
	})

	t.Run("RateLimited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		provider := NewProvider(server.URL, "test-key", time.Second, 0)
		_, err := provider.Fetch(context.Background(), "USD/EUR")
		asserts.ErrorContains(err, "rate limit")
	})

	t.Run("InvalidPair", func(t *testing.T) {
		provider := NewProvider("http://127.0.0.1:0", "test-key", time.Second, 0)
		_, err := provider.Fetch(context.Background(), "garbage")
		asserts.Error(err)
	})
}

func TestAPILayerPacing(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": true, "base": "USD", "rates": {"RUB": 92.0}}`)
	}))
	defer server.Close()

	provider := NewProvider(server.URL, "test-key", time.Second, 60*time.Millisecond)

	started := time.Now()
	_, err := provider.Fetch(context.Background(), "USD/RUB")
	asserts.NoError(err)
	_, err = provider.Fetch(context.Background(), "USD/RUB")
	asserts.NoError(err)

	asserts.GreaterOrEqual(time.Since(started), 60*time.Millisecond,
		"second request must wait out the pacing interval")
}
