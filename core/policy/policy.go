package policy

import (
	"fmt"
	"time"
)

// Policy filters inbound messages by chat allowlist and message age.
// A Policy is immutable after New and safe for concurrent use.
type Policy struct {
	allowed   map[int64]bool
	freshness time.Duration
	now       func() time.Time
}

// New creates a Policy. An empty chatIDs list admits every chat; a zero
// freshness disables the age check.
func New(chatIDs []int64, freshness time.Duration) *Policy {
	allowed := make(map[int64]bool, len(chatIDs))
	for _, id := range chatIDs {
		allowed[id] = true
	}
	return &Policy{
		allowed:   allowed,
		freshness: freshness,
		now:       time.Now,
	}
}

// Authorize checks whether a message should be processed.
func (p *Policy) Authorize(chatID int64, sent time.Time) error {
	if len(p.allowed) > 0 && !p.allowed[chatID] {
		return fmt.Errorf("unauthorized chat: %d", chatID)
	}

	if p.freshness > 0 && !sent.IsZero() {
		if age := p.now().Sub(sent); age > p.freshness {
			return fmt.Errorf("stale message: %v old", age.Truncate(time.Second))
		}
	}

	return nil
}
