package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/jdelaire/osonbot/core/supervisor"
)

func initViperDefaults() {
	viper.SetDefault("roster.path", "bots.json")
	viper.SetDefault("storage.path", "osonbot.db")
	viper.SetDefault("control.socket", defaultSocketPath())

	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.send_timeout", 10*time.Second)
	viper.SetDefault("telegram.rate_per_second", 30.0)
	viper.SetDefault("telegram.burst", 30)

	viper.SetDefault("bot.token", "")
	viper.SetDefault("bot.keychain_account", "")
	viper.SetDefault("bot.unknown_reply", supervisor.DefaultUnknownReply)
	viper.SetDefault("bot.fallback_reply", "")
	viper.SetDefault("bot.allowed_chats", []int64{})
	viper.SetDefault("bot.max_message_age", time.Duration(0))

	viper.SetDefault("builder.token", "")
	viper.SetDefault("builder.keychain_account", "")
	viper.SetDefault("builder.totp_secret", "")

	viper.SetDefault("rules.path", "rules.yaml")
	viper.SetDefault("rules.watch", false)
	viper.SetDefault("rules.watch_interval", 2*time.Second)

	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}

func defaultSocketPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "osonbot", "control.sock")
}
