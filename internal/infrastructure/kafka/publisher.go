package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/segmentio/kafka-go"
)

// RatesPublisher публикует события обновления курсов
type RatesPublisher interface {
	PublishRate(ctx context.Context, event RateEvent) error
	BatchPublishRates(ctx context.Context, events []RateEvent) error
	Close() error
}

type DefaultRatesPublisher struct {
	writer     *kafka.Writer
	newEventID func() string
}

func NewDefaultRatesPublisher(brokers []string, topic string) (*DefaultRatesPublisher, error) {
	idGenerator, err := nanoid.Standard(15)
	if err != nil {
		return nil, fmt.Errorf("event id generator: %w", err)
	}

	return &DefaultRatesPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		newEventID: idGenerator,
	}, nil
}

func (p *DefaultRatesPublisher) PublishRate(ctx context.Context, event RateEvent) error {
	msg, err := p.message(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return p.writer.WriteMessages(ctx, msg)
}

// BatchPublishRates - батчевая публикация событий курсов
func (p *DefaultRatesPublisher) BatchPublishRates(ctx context.Context, events []RateEvent) error {
	if len(events) == 0 {
		return nil
	}
	if len(events) == 1 {
		return p.PublishRate(ctx, events[0])
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		msg, err := p.message(event)
		if err != nil {
			log.Printf("Failed to marshal rate event for %s: %v", event.Pair, err)
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return fmt.Errorf("no valid messages to publish")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to write batch messages: %w", err)
	}
	return nil
}

func (p *DefaultRatesPublisher) message(event RateEvent) (kafka.Message, error) {
	if event.EventID == "" {
		event.EventID = p.newEventID()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.Pair),
		Value: value,
		Time:  time.Now(),
	}, nil
}

func (p *DefaultRatesPublisher) Close() error {
	return p.writer.Close()
}
