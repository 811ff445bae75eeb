// internal/domain/rate.go
package domain

import "time"

// Rate - одно наблюдение курса валютной пары от внешнего источника
type Rate struct {
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`

	// Расширенные данные стакана, заполняются если источник их отдает
	Bid       float64 `json:"bid,omitempty"`
	Ask       float64 `json:"ask,omitempty"`
	High24h   float64 `json:"high_24h,omitempty"`
	Low24h    float64 `json:"low_24h,omitempty"`
	Volume24h float64 `json:"volume_24h,omitempty"`
	Change24h float64 `json:"change_24h,omitempty"`
}

type PairType string

const (
	PairTypeCrypto  PairType = "crypto"
	PairTypeFiat    PairType = "fiat"
	PairTypeMixed   PairType = "mixed"
	PairTypeInvalid PairType = "invalid"
)
