package brain

import (
	"sync"
	"time"
)

// Exchange is one user/mentor turn.
type Exchange struct {
	UserText   string    `json:"userText"`
	MentorText string    `json:"mentorText"`
	Timestamp  time.Time `json:"timestamp"`
}

// History keeps the recent chat so follow-up questions have context. It
// forgets everything after a period of inactivity.
type History struct {
	mu           sync.RWMutex
	exchanges    []Exchange
	lastActivity time.Time
	max          int
	timeout      time.Duration
	now          func() time.Time
}

// NewHistory returns a History bounded to max exchanges.
func NewHistory(max int, timeout time.Duration) *History {
	if max <= 0 {
		max = 10
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &History{
		exchanges:    make([]Exchange, 0, max),
		lastActivity: time.Now(),
		max:          max,
		timeout:      timeout,
		now:          time.Now,
	}
}

// Add records an exchange, trimming the oldest beyond the bound.
func (h *History) Add(userText, mentorText string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if h.isExpiredLocked(now) {
		h.exchanges = h.exchanges[:0]
	}

	h.exchanges = append(h.exchanges, Exchange{UserText: userText, MentorText: mentorText, Timestamp: now})
	h.lastActivity = now

	if len(h.exchanges) > h.max {
		h.exchanges = h.exchanges[len(h.exchanges)-h.max:]
	}
}

// Exchanges returns a copy of the live history, or nil once expired.
func (h *History) Exchanges() []Exchange {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.isExpiredLocked(h.now()) || len(h.exchanges) == 0 {
		return nil
	}
	out := make([]Exchange, len(h.exchanges))
	copy(out, h.exchanges)
	return out
}

// Len returns the number of stored exchanges.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.exchanges)
}

func (h *History) isExpiredLocked(now time.Time) bool {
	return now.Sub(h.lastActivity) > h.timeout
}
