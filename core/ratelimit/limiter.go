package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const (
	maxFailures   = 5
	failureWindow = 10 * time.Minute
	muteDuration  = 10 * time.Minute
)

type record struct {
	failures []time.Time
	mutedAt  time.Time
}

// Limiter tracks rejected deliveries per chat and mutes chats that keep
// rejecting them (typically a user who blocked the bot), so one dead chat
// does not burn the bot's request budget.
type Limiter struct {
	mu      sync.Mutex
	records map[int64]*record
	now     func() time.Time
}

// New creates a delivery limiter.
func New() *Limiter {
	return &Limiter{
		records: make(map[int64]*record),
		now:     time.Now,
	}
}

// Check returns an error if sends to the chat are currently muted.
func (l *Limiter) Check(chatID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.records[chatID]
	if r == nil {
		return nil
	}

	if !r.mutedAt.IsZero() {
		if elapsed := l.now().Sub(r.mutedAt); elapsed < muteDuration {
			return fmt.Errorf("chat %d muted for %s after repeated delivery failures", chatID, (muteDuration - elapsed).Truncate(time.Second))
		}
		delete(l.records, chatID)
	}
	return nil
}

// RecordFailure records a rejected delivery to the chat. Once failures
// reach the threshold within the window, the chat is muted.
func (l *Limiter) RecordFailure(chatID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	r := l.records[chatID]
	if r == nil {
		r = &record{}
		l.records[chatID] = r
	}

	cutoff := now.Add(-failureWindow)
	fresh := r.failures[:0]
	for _, t := range r.failures {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	r.failures = append(fresh, now)

	if len(r.failures) >= maxFailures {
		r.mutedAt = now
	}
}

// Reset clears failure state for a chat after a successful delivery.
func (l *Limiter) Reset(chatID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, chatID)
}
