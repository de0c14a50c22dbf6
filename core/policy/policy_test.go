package policy

import (
	"strings"
	"testing"
	"time"
)

func TestAuthorizeAllowedChat(t *testing.T) {
	p := New([]int64{100, 200}, 0)
	if err := p.Authorize(100, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuthorizeDeniedChat(t *testing.T) {
	p := New([]int64{100}, 0)
	err := p.Authorize(999, time.Now())
	if err == nil {
		t.Fatal("expected error for unauthorized chat")
	}
	if !strings.Contains(err.Error(), "unauthorized chat") {
		t.Errorf("error = %q, want 'unauthorized chat'", err)
	}
}

func TestAuthorizeEmptyAllowlistAdmitsAll(t *testing.T) {
	p := New(nil, 0)
	if err := p.Authorize(12345, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuthorizeStaleMessage(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p := New(nil, 5*time.Minute)
	p.now = func() time.Time { return now }

	err := p.Authorize(100, now.Add(-6*time.Minute))
	if err == nil {
		t.Fatal("expected error for stale message")
	}
	if !strings.Contains(err.Error(), "stale message") {
		t.Errorf("error = %q, want 'stale message'", err)
	}

	if err := p.Authorize(100, now.Add(-time.Minute)); err != nil {
		t.Errorf("fresh message rejected: %v", err)
	}
}

func TestAuthorizeZeroTimeSkipsFreshness(t *testing.T) {
	p := New(nil, time.Minute)
	if err := p.Authorize(100, time.Time{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
