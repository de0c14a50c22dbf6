package storage

import (
	"context"
	"time"

	"github.com/jdelaire/osonbot/core"
)

const usersTable = "users"

var userColumns = []Column{
	{Name: "user_id", Type: Integer, Unique: true},
	{Name: "first_name", Type: Text},
	{Name: "last_name", Type: Text},
	{Name: "username", Type: Text},
	{Name: "language_code", Type: Text},
	{Name: "first_seen", Type: Text},
}

// SeenUsers records every message sender once, keyed by user id.
type SeenUsers struct {
	db  *DB
	now func() time.Time
}

// NewSeenUsers prepares the users table.
func NewSeenUsers(ctx context.Context, db *DB) (*SeenUsers, error) {
	if err := db.CreateTable(ctx, usersTable, userColumns); err != nil {
		return nil, err
	}
	return &SeenUsers{db: db, now: time.Now}, nil
}

// RecordUser stores u unless its id was already seen.
func (s *SeenUsers) RecordUser(ctx context.Context, u core.User) error {
	_, err := s.db.InsertOrIgnore(ctx, usersTable, Row{
		"user_id":       u.ID,
		"first_name":    u.FirstName,
		"last_name":     u.LastName,
		"username":      u.Username,
		"language_code": u.LanguageCode,
		"first_seen":    s.now().UTC().Format(time.RFC3339),
	})
	return err
}

// Users returns every recorded user in first-seen order.
func (s *SeenUsers) Users(ctx context.Context) ([]core.User, error) {
	rows, err := s.db.SelectAll(ctx, usersTable)
	if err != nil {
		return nil, err
	}
	out := make([]core.User, 0, len(rows))
	for _, r := range rows {
		id, _ := r["user_id"].(int64)
		out = append(out, core.User{
			ID:           id,
			FirstName:    str(r["first_name"]),
			LastName:     str(r["last_name"]),
			Username:     str(r["username"]),
			LanguageCode: str(r["language_code"]),
		})
	}
	return out, nil
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}
