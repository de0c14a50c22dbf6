// Package keychain stores bot tokens in the operating system keychain.
package keychain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "osonbot"

// ErrNotFound is returned when no token is stored for an account.
var ErrNotFound = errors.New("no token in keychain")

// Get retrieves the token stored for account.
func Get(account string) (string, error) {
	v, err := keyring.Get(serviceName, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w for %q", ErrNotFound, account)
	}
	if err != nil {
		return "", fmt.Errorf("read keychain: %w", err)
	}
	return v, nil
}

// Set stores token for account, replacing any previous value.
func Set(account, token string) error {
	token = strings.TrimSpace(token)
	if account == "" || token == "" {
		return errors.New("account and token are required")
	}
	if err := keyring.Set(serviceName, account, token); err != nil {
		return fmt.Errorf("write keychain: %w", err)
	}
	return nil
}

// Delete removes the token for account. A missing entry is not an error.
func Delete(account string) error {
	err := keyring.Delete(serviceName, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete keychain entry: %w", err)
	}
	return nil
}
