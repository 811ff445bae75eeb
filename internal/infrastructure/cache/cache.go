// internal/infrastructure/cache/cache.go
package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Оценка накладных расходов одной записи, плюс длина ключа
const entryOverhead = 160

type entry[V any] struct {
	key         string
	value       V
	storedAt    time.Time
	lastAccess  time.Time
	accessCount uint64
	ttl         time.Duration

	// двусвязный список порядка использования
	prev *entry[V]
	next *entry[V]
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Stats - снапшот счетчиков кеша
type Stats struct {
	Entries     int     `json:"entries"`
	MaxSize     int     `json:"max_size"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	TTLCleanups uint64  `json:"ttl_cleanups"`
	TotalSets   uint64  `json:"total_sets"`
	MemoryBytes int64   `json:"memory_bytes"`
	Utilization float64 `json:"utilization"`
	HitRatio    float64 `json:"hit_ratio"`
}

// Cache - потокобезопасный TTL+LRU кеш с жестким ограничением размера.
// Протухшие записи удаляются лениво при чтении и фоновой чисткой CleanupExpired.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	head    *entry[V] // самая свежая по использованию
	tail    *entry[V] // самая старая по использованию

	maxSize    int
	defaultTTL time.Duration
	logger     *slog.Logger

	hits        uint64
	misses      uint64
	evictions   uint64
	ttlCleanups uint64
	totalSets   uint64
	memoryBytes int64
}

func New[V any](maxSize int, defaultTTL time.Duration, logger *slog.Logger) *Cache[V] {
	if maxSize <= 0 {
		maxSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache[V]{
		entries:    make(map[string]*entry[V]),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Get возвращает значение по ключу. Запись старше своего TTL удаляется и считается промахом.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	now := time.Now()
	if e.expired(now) {
		c.removeEntry(e)
		c.ttlCleanups++
		c.misses++
		return zero, false
	}

	e.lastAccess = now
	e.accessCount++
	c.moveToFront(e)
	c.hits++
	return e.value, true
}

// Peek читает значение без обновления LRU-порядка и счетчиков hit/miss
func (c *Cache[V]) Peek(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		return zero, false
	}
	return e.value, true
}

// Set сохраняет значение. ttl <= 0 означает TTL по умолчанию.
// Размер кеша проверяется синхронно: сначала выбрасываются протухшие записи,
// затем вытесняются самые старые по использованию, пока размер не в пределах лимита.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalSets++

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.storedAt = now
		e.lastAccess = now
		e.ttl = ttl
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value, storedAt: now, lastAccess: now, ttl: ttl}
	c.entries[key] = e
	c.addFront(e)
	c.memoryBytes += int64(len(key)) + entryOverhead

	if len(c.entries) > c.maxSize {
		c.removeExpired(now)
	}
	for len(c.entries) > c.maxSize {
		if !c.evictOldest() {
			// список разошелся с map - чинимся полным сбросом, но не падаем
			c.logger.Error("cache state corrupted, resetting", "entries", len(c.entries))
			c.reset()
			return
		}
	}
}

func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeEntry(e)
	return true
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// CleanupExpired удаляет все протухшие записи, возвращает их количество
func (c *Cache[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpired(time.Now())
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:     len(c.entries),
		MaxSize:     c.maxSize,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		TTLCleanups: c.ttlCleanups,
		TotalSets:   c.totalSets,
		MemoryBytes: c.memoryBytes,
		Utilization: float64(len(c.entries)) / float64(c.maxSize),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRatio = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache[V]) removeExpired(now time.Time) int {
	removed := 0
	for e := c.tail; e != nil; {
		prev := e.prev
		if e.expired(now) {
			c.removeEntry(e)
			c.ttlCleanups++
			removed++
		}
		e = prev
	}
	return removed
}

func (c *Cache[V]) evictOldest() bool {
	if c.tail == nil {
		return false
	}
	c.removeEntry(c.tail)
	c.evictions++
	return true
}

func (c *Cache[V]) removeEntry(e *entry[V]) {
	c.unlink(e)
	delete(c.entries, e.key)
	c.memoryBytes -= int64(len(e.key)) + entryOverhead
}

func (c *Cache[V]) reset() {
	c.entries = make(map[string]*entry[V])
	c.head = nil
	c.tail = nil
	c.memoryBytes = 0
}

func (c *Cache[V]) addFront(e *entry[V]) {
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *Cache[V]) moveToFront(e *entry[V]) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.addFront(e)
}
