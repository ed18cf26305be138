package limiter

import (
	"sync"
	"time"
)

// QuotaResult là kết quả của một lần check quota cho một caller
type QuotaResult struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

type quotaWindow struct {
	count   int
	resetAt time.Time
}

// QuotaLimiter đếm số request theo cửa sổ 1 giờ cho từng caller (thường là IP).
// Limiter này chỉ mang tính advisory và chỉ có hiệu lực trong phạm vi một process,
// không đồng bộ giữa các instance.
type QuotaLimiter struct {
	windows map[string]*quotaWindow
	window  time.Duration
	mu      sync.Mutex

	// now tách ra để test có thể thay bằng clock giả
	now func() time.Time
}

func NewQuotaLimiter() *QuotaLimiter {
	return &QuotaLimiter{
		windows: make(map[string]*quotaWindow),
		window:  time.Hour,
		now:     time.Now,
	}
}

// Check tăng bộ đếm cho caller và trả về trạng thái quota hiện tại.
// Cửa sổ được reset lazy ở lần check đầu tiên sau khi resetAt trôi qua.
func (q *QuotaLimiter) Check(callerId string, limit int) QuotaResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	w, ok := q.windows[callerId]
	if !ok || now.After(w.resetAt) {
		w = &quotaWindow{count: 1, resetAt: now.Add(q.window)}
		q.windows[callerId] = w
		return QuotaResult{
			Allowed:   true,
			Remaining: limit - 1,
			Limit:     limit,
			ResetAt:   w.resetAt,
		}
	}

	w.count++
	if w.count > limit {
		return QuotaResult{
			Allowed:   false,
			Remaining: 0,
			Limit:     limit,
			ResetAt:   w.resetAt,
		}
	}

	return QuotaResult{
		Allowed:   true,
		Remaining: limit - w.count,
		Limit:     limit,
		ResetAt:   w.resetAt,
	}
}

// Peek trả về trạng thái quota hiện tại mà không tiêu thụ lượt nào
func (q *QuotaLimiter) Peek(callerId string, limit int) QuotaResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	w, ok := q.windows[callerId]
	if !ok || now.After(w.resetAt) {
		return QuotaResult{
			Allowed:   true,
			Remaining: limit,
			Limit:     limit,
			ResetAt:   now.Add(q.window),
		}
	}

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return QuotaResult{
		Allowed:   w.count < limit,
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   w.resetAt,
	}
}
