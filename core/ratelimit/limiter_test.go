package ratelimit

import (
	"strings"
	"testing"
	"time"
)

func fixedClock(l *Limiter, start time.Time) *time.Time {
	now := start
	l.now = func() time.Time { return now }
	return &now
}

func TestUnknownChatIsNotMuted(t *testing.T) {
	l := New()
	if err := l.Check(42); err != nil {
		t.Errorf("Check(unknown) = %v, want nil", err)
	}
}

func TestMutesAfterRepeatedFailures(t *testing.T) {
	l := New()
	for i := 0; i < maxFailures-1; i++ {
		l.RecordFailure(42)
	}
	if err := l.Check(42); err != nil {
		t.Fatalf("Check(below threshold) = %v, want nil", err)
	}

	l.RecordFailure(42)
	err := l.Check(42)
	if err == nil {
		t.Fatal("Check(at threshold) = nil, want mute error")
	}
	if !strings.Contains(err.Error(), "muted") {
		t.Errorf("error = %q, want mention of muted", err)
	}
}

func TestMuteExpires(t *testing.T) {
	l := New()
	now := fixedClock(l, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))

	for i := 0; i < maxFailures; i++ {
		l.RecordFailure(42)
	}
	*now = now.Add(muteDuration + time.Second)

	if err := l.Check(42); err != nil {
		t.Errorf("Check(after mute) = %v, want nil", err)
	}
}

func TestFailuresOutsideWindowAreForgotten(t *testing.T) {
	l := New()
	now := fixedClock(l, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))

	for i := 0; i < maxFailures-1; i++ {
		l.RecordFailure(42)
	}
	*now = now.Add(failureWindow + time.Second)
	l.RecordFailure(42)

	if err := l.Check(42); err != nil {
		t.Errorf("Check = %v, want nil once old failures expire", err)
	}
}

func TestChatsAreIndependent(t *testing.T) {
	l := New()
	for i := 0; i < maxFailures; i++ {
		l.RecordFailure(1)
	}
	if err := l.Check(2); err != nil {
		t.Errorf("Check(other chat) = %v, want nil", err)
	}
}

func TestSuccessfulDeliveryResets(t *testing.T) {
	l := New()
	for i := 0; i < maxFailures-1; i++ {
		l.RecordFailure(42)
	}
	l.Reset(42)
	l.RecordFailure(42)
	if err := l.Check(42); err != nil {
		t.Errorf("Check(after reset) = %v, want nil", err)
	}
}
