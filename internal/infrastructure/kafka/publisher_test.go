package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateEventMessage(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	publisher, err := NewDefaultRatesPublisher([]string{"localhost:9092"}, "rate-events")
	asserts.NoError(err)

	event := RateEvent{
		Pair:      "USDT/RUB",
		Price:     81.2,
		Source:    "rapira",
		Category:  "critical",
		Timestamp: time.Now(),
	}
	msg, err := publisher.message(event)
	asserts.NoError(err)
	asserts.Equal([]byte("USDT/RUB"), msg.Key)

	var decoded RateEvent
	asserts.NoError(json.Unmarshal(msg.Value, &decoded))
	asserts.Len(decoded.EventID, 15)
	asserts.Equal("USDT/RUB", decoded.Pair)
	asserts.Equal(81.2, decoded.Price)
	asserts.Equal("rapira", decoded.Source)
	asserts.Equal("critical", decoded.Category)

	// заданный снаружи event_id не перегенерируется
	event.EventID = "fixed-id"
	msg, err = publisher.message(event)
	asserts.NoError(err)
	asserts.NoError(json.Unmarshal(msg.Value, &decoded))
	asserts.Equal("fixed-id", decoded.EventID)
}

func TestBatchPublishRatesEmpty(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	publisher, err := NewDefaultRatesPublisher([]string{"localhost:9092"}, "rate-events")
	asserts.NoError(err)

	// пустой батч не трогает writer и не требует живого брокера
	asserts.NoError(publisher.BatchPublishRates(context.Background(), nil))
}
