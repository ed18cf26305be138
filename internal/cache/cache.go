// Cache kết quả verification theo handle để tránh gọi lại GitHub API
// trong freshness window. Cache hit không tốn quota và không tốn network.

package cache

import (
	"strings"
	"sync"
	"time"
)

type entry[T any] struct {
	value    T
	storedAt time.Time
}

// ResultCache memo hóa kết quả theo handle (không phân biệt hoa thường).
// Kiểm tra hết hạn tại thời điểm đọc, không có background eviction.
type ResultCache[T any] struct {
	entries map[string]entry[T]
	ttl     time.Duration
	mu      sync.Mutex

	hits   int64
	misses int64

	// now tách ra để test thay clock giả
	now func() time.Time
}

func NewResultCache[T any](ttl time.Duration) *ResultCache[T] {
	return &ResultCache[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func key(handle string) string {
	return strings.ToLower(handle)
}

// Get trả về kết quả đã cache nếu entry còn trong freshness window
func (c *ResultCache[T]) Get(handle string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key(handle)]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		c.misses++
		var zero T
		return zero, false
	}

	c.hits++
	return e.value, true
}

// Put luôn ghi đè entry cũ
func (c *ResultCache[T]) Put(handle string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(handle)] = entry[T]{value: value, storedAt: c.now()}
}

// Stats trả về số hit/miss tích lũy của cache
func (c *ResultCache[T]) Stats() (hits int64, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len đếm số entry đang giữ, kể cả entry đã hết hạn nhưng chưa bị đọc tới
func (c *ResultCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
