package core

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
)

var (
	// ErrInvalidMediaSource is returned for a media source that is neither an
	// existing file nor an http(s) URL.
	ErrInvalidMediaSource = errors.New("invalid media source")

	// ErrUnauthorized means the bot token was rejected by getMe.
	ErrUnauthorized = errors.New("bot token rejected")
)

// SendOptions carries the optional fields shared by every send call.
type SendOptions struct {
	ParseMode   string
	ReplyMarkup Markup
}

// Gateway is the transport to the messaging API for one bot token.
//
// FetchUpdates never fails: transport errors and timeouts are logged by the
// implementation and reported as an empty batch. Send calls likewise log
// delivery failures and return a nil message; the only error they return is
// ErrInvalidMediaSource, detected before any network call.
type Gateway interface {
	GetMe(ctx context.Context) (BotIdentity, error)
	FetchUpdates(ctx context.Context, offset int64) []Update
	SendText(ctx context.Context, chatID int64, text string, opts SendOptions) (*Message, error)
	SendMedia(ctx context.Context, kind MediaKind, chatID int64, source, caption string, opts SendOptions) (*Message, error)
	SendSticker(ctx context.Context, chatID int64, fileID string, opts SendOptions) (*Message, error)
	EditText(ctx context.Context, chatID, messageID int64, text string, opts SendOptions) (*Message, error)
}

// SourceKind classifies a media source string.
type SourceKind int

const (
	SourceInvalid SourceKind = iota
	SourceLocalFile
	SourceRemoteURL
)

// ClassifySource reports whether source is an existing regular file, an
// http(s) URL, or neither.
func ClassifySource(source string) SourceKind {
	source = strings.TrimSpace(source)
	if source == "" {
		return SourceInvalid
	}
	if st, err := os.Stat(source); err == nil && st.Mode().IsRegular() {
		return SourceLocalFile
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if u, err := url.Parse(source); err == nil && u.Host != "" {
			return SourceRemoteURL
		}
	}
	return SourceInvalid
}
