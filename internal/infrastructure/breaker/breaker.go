// internal/infrastructure/breaker/breaker.go
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

type state struct {
	failures    int
	lastFailure time.Time
	openedAt    time.Time
	nextRetryAt time.Time
	open        bool
	halfOpen    bool // пробный запрос уже пропущен, ждем его исхода
}

// Snapshot - состояние цепи одного апстрима на момент чтения
type Snapshot struct {
	Failures    int       `json:"failures"`
	Open        bool      `json:"open"`
	HalfOpen    bool      `json:"half_open"`
	LastFailure time.Time `json:"last_failure"`
	OpenedAt    time.Time `json:"opened_at"`
	NextRetryAt time.Time `json:"next_retry_at"`
}

// Breaker отслеживает подряд идущие сбои по каждому апстриму и размыкает цепь
// при достижении порога. После resetTimeout первый же вызов IsOpen пропускает
// ровно один пробный запрос, успех закрывает цепь, сбой размыкает снова.
type Breaker struct {
	mu           sync.Mutex
	threshold    int
	resetTimeout time.Duration
	states       map[string]*state
	logger       *slog.Logger
}

func New(threshold int, resetTimeout time.Duration, logger *slog.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		states:       make(map[string]*state),
		logger:       logger,
	}
}

// IsOpen - единственная точка чтения состояния цепи. Если цепь разомкнута и
// nextRetryAt уже прошел, ровно один вызов вернет false, пропуская пробный
// запрос. Остальные вызовы до исхода пробы получают true.
func (b *Breaker) IsOpen(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[name]
	if !ok || !s.open {
		return false
	}

	if s.halfOpen {
		return true
	}

	if time.Now().After(s.nextRetryAt) {
		s.halfOpen = true
		b.logger.Info("Circuit half-open, allowing probe", "upstream", name)
		return false
	}
	return true
}

func (b *Breaker) RecordSuccess(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[name]
	if !ok {
		return
	}
	if s.open {
		b.logger.Info("Circuit closed", "upstream", name)
	}
	s.failures = 0
	s.open = false
	s.halfOpen = false
}

func (b *Breaker) RecordFailure(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.states[name]
	if !ok {
		s = &state{}
		b.states[name] = s
	}

	now := time.Now()
	s.failures++
	s.lastFailure = now

	if s.failures >= b.threshold {
		wasOpen := s.open && !s.halfOpen
		s.open = true
		s.halfOpen = false
		s.openedAt = now
		s.nextRetryAt = now.Add(b.resetTimeout)
		if !wasOpen {
			b.logger.Warn("Circuit opened",
				"upstream", name,
				"failures", s.failures,
				"retry_at", s.nextRetryAt)
		}
	}
}

// Reset полностью сбрасывает состояние апстрима
func (b *Breaker) Reset(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, name)
}

func (b *Breaker) Snapshot() map[string]Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := make(map[string]Snapshot, len(b.states))
	for name, s := range b.states {
		snap[name] = Snapshot{
			Failures:    s.failures,
			Open:        s.open,
			HalfOpen:    s.halfOpen,
			LastFailure: s.lastFailure,
			OpenedAt:    s.openedAt,
			NextRetryAt: s.nextRetryAt,
		}
	}
	return snap
}
