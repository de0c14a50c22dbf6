package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdelaire/osonbot/core"
	"github.com/jdelaire/osonbot/core/configwatch"
	"github.com/jdelaire/osonbot/core/rules"
	"github.com/jdelaire/osonbot/internal/logutil"
)

func newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run a single bot driven by a rules file",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}

			token, err := resolveToken(
				flagOrViperString(cmd, "token", "bot.token"),
				flagOrViperString(cmd, "keychain-account", "bot.keychain_account"),
			)
			if err != nil {
				return fmt.Errorf("bot token: %w", err)
			}
			if token == "" {
				return errors.New("missing bot token (use --token, --keychain-account or OSONBOT_BOT_TOKEN)")
			}

			path := flagOrViperString(cmd, "rules", "rules.path")
			loaded, err := rules.Load(path)
			if err != nil {
				return err
			}
			reg := core.NewRegistry()
			bound, err := rules.Apply(reg, loaded)
			if err != nil {
				return fmt.Errorf("apply %s: %w", path, err)
			}
			logger.Info("rules loaded", "path", path, "rules", len(loaded))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dopts, cleanup, err := dispatcherOptions(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if watch, _ := cmd.Flags().GetBool("watch"); watch || viper.GetBool("rules.watch") {
				reloader := rules.NewReloader(reg, logger)
				reloader.Track(bound)
				w := configwatch.New(flagOrViperDuration(cmd, "watch-interval", "rules.watch_interval"), logger)
				w.Watch(path, reloader.Reload)
				go w.Run(ctx)
			}

			d := core.NewDispatcher(newGateway(token, logger), reg, logger, dopts...)
			if err := d.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("token", "", "Bot token.")
	cmd.Flags().String("keychain-account", "", "Keychain account holding the bot token.")
	cmd.Flags().String("rules", "rules.yaml", "Rules file path.")
	cmd.Flags().Bool("watch", false, "Reload the rules file when it changes.")
	cmd.Flags().Duration("watch-interval", configwatch.DefaultInterval, "Polling interval for --watch.")
	return cmd
}

