package kafka

import "time"

type RateEvent struct {
	EventID   string    `json:"event_id"`
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	Category  string    `json:"category,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
