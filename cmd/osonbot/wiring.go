package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/jdelaire/osonbot/adapters/telegram_gateway"
	"github.com/jdelaire/osonbot/core"
	"github.com/jdelaire/osonbot/core/policy"
	"github.com/jdelaire/osonbot/internal/keychain"
	"github.com/jdelaire/osonbot/internal/storage"
)

// newGateway builds a Telegram gateway from the telegram.* settings.
func newGateway(token string, logger *slog.Logger) core.Gateway {
	return telegram_gateway.New(token, logger).
		WithBaseURL(viper.GetString("telegram.base_url")).
		WithPollTimeout(viper.GetDuration("telegram.poll_timeout")).
		WithRateLimit(viper.GetFloat64("telegram.rate_per_second"), viper.GetInt("telegram.burst"))
}

// dispatcherOptions returns the options shared by every dispatcher. The
// returned cleanup closes the user store, if one was opened.
func dispatcherOptions(ctx context.Context, logger *slog.Logger) ([]core.DispatcherOption, func(), error) {
	opts := []core.DispatcherOption{
		core.WithSendTimeout(viper.GetDuration("telegram.send_timeout")),
	}
	if text := viper.GetString("bot.fallback_reply"); text != "" {
		opts = append(opts, core.WithFallbackReply(text))
	}

	var chats []int64
	for _, id := range viper.GetIntSlice("bot.allowed_chats") {
		chats = append(chats, int64(id))
	}
	if age := viper.GetDuration("bot.max_message_age"); len(chats) > 0 || age > 0 {
		opts = append(opts, core.WithAuthorizer(policy.New(chats, age)))
	}

	cleanup := func() {}
	if path := viper.GetString("storage.path"); path != "" {
		db, err := storage.Open(path, logger)
		if err != nil {
			return nil, nil, err
		}
		users, err := storage.NewSeenUsers(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		opts = append(opts, core.WithUserRecorder(users))
		cleanup = func() { db.Close() }
	}
	return opts, cleanup, nil
}

// resolveToken returns token if set, else the keychain entry for account.
func resolveToken(token, account string) (string, error) {
	if token = strings.TrimSpace(token); token != "" {
		return token, nil
	}
	if account == "" {
		return "", nil
	}
	return keychain.Get(account)
}
