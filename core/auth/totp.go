// Package auth verifies the one-time codes that gate admin builder commands.
package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	totpPeriod = 30 // seconds per time step
	totpDigits = 6
	totpDrift  = 1 // +-1 step tolerance
)

// TOTP verifies RFC 6238 time-based one-time passwords (HMAC-SHA1). A code
// is accepted at most once.
type TOTP struct {
	secret []byte
	now    func() time.Time

	mu       sync.Mutex
	lastUsed int64
}

// New creates a verifier from a base32 secret, as shown by authenticator apps.
// Case and padding are ignored.
func New(base32Secret string) (*TOTP, error) {
	clean := strings.TrimRight(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(base32Secret), " ", "")), "=")
	if pad := len(clean) % 8; pad != 0 {
		clean += strings.Repeat("=", 8-pad)
	}
	secret, err := base32.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid base32 secret: %w", err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty secret")
	}
	return &TOTP{secret: secret, now: time.Now, lastUsed: -1}, nil
}

// Verify reports whether code is valid for the current step +-drift and has
// not been accepted before.
func (t *TOTP) Verify(code string) bool {
	if len(code) != totpDigits {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	counter := t.now().Unix() / totpPeriod
	for offset := -int64(totpDrift); offset <= int64(totpDrift); offset++ {
		step := counter + offset
		if step <= t.lastUsed {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(generate(t.secret, step))) == 1 {
			t.lastUsed = step
			return true
		}
	}
	return false
}

func generate(secret []byte, counter int64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(counter))

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", totpDigits, code%1000000)
}
