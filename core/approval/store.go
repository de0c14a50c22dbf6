// Package approval holds short-lived confirmation codes for destructive
// builder actions such as deleting a bot.
package approval

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	codeBytes  = 4
	expiry     = 2 * time.Minute
	maxPending = 100
)

var (
	ErrUnknownCode = errors.New("unknown or expired confirmation code")
	ErrWrongChat   = errors.New("confirmation code belongs to a different chat")
)

type pending struct {
	chatID    int64
	action    string
	subject   string
	createdAt time.Time
}

// Store holds pending confirmations. A chat has at most one pending code per
// action; asking again replaces the old code.
type Store struct {
	mu    sync.Mutex
	items map[string]*pending
	now   func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		items: make(map[string]*pending),
		now:   time.Now,
	}
}

// Create records that chatID asked to perform action on subject and returns
// the code that confirms it.
func (s *Store) Create(chatID int64, action, subject string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	for code, p := range s.items {
		if p.chatID == chatID && p.action == action {
			delete(s.items, code)
		}
	}
	if len(s.items) >= maxPending {
		return "", fmt.Errorf("too many pending confirmations")
	}

	code, err := newCode()
	if err != nil {
		return "", fmt.Errorf("generate confirmation code: %w", err)
	}
	s.items[code] = &pending{chatID: chatID, action: action, subject: subject, createdAt: s.now()}
	return code, nil
}

// Consume validates and removes code, returning the confirmed action and
// subject.
func (s *Store) Consume(code string, chatID int64) (action, subject string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	p, ok := s.items[code]
	if !ok {
		return "", "", ErrUnknownCode
	}
	if p.chatID != chatID {
		return "", "", ErrWrongChat
	}
	delete(s.items, code)
	return p.action, p.subject, nil
}

func (s *Store) pruneLocked() {
	now := s.now()
	for code, p := range s.items {
		if now.Sub(p.createdAt) > expiry {
			delete(s.items, code)
		}
	}
}

func newCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
