package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdelaire/osonbot/core"
	"github.com/jdelaire/osonbot/core/auth"
	"github.com/jdelaire/osonbot/core/control"
	"github.com/jdelaire/osonbot/core/ops"
	"github.com/jdelaire/osonbot/core/supervisor"
	"github.com/jdelaire/osonbot/internal/logutil"
	"github.com/jdelaire/osonbot/internal/roster"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every bot in the roster, the control socket and the optional builder bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSupervisor(ctx, cmd, logger)
		},
	}

	cmd.Flags().String("roster", "", "Roster file path (default from roster.path).")
	cmd.Flags().String("builder-token", "", "Token of the builder bot (optional).")
	cmd.Flags().String("builder-keychain-account", "", "Keychain account holding the builder token.")
	return cmd
}

func runSupervisor(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) error {
	dopts, cleanup, err := dispatcherOptions(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	store := roster.NewStore(flagOrViperString(cmd, "roster", "roster.path"))
	sup := supervisor.New(ctx, store, func(token string) core.Gateway {
		return newGateway(token, logger)
	}, logger,
		supervisor.WithUnknownReply(viper.GetString("bot.unknown_reply")),
		supervisor.WithDispatcherOptions(dopts...),
	)
	defer sup.Shutdown()

	builder, err := newBuilder(cmd, sup, logger, dopts)
	if err != nil {
		return err
	}

	if _, err := sup.RestartAll(); err != nil {
		return fmt.Errorf("restore roster: %w", err)
	}

	srv := control.NewServer(viper.GetString("control.socket"), sup, logger)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Shutdown()

	// The builder is one more bot: its failure leaves the roster running.
	if builder != nil {
		if err := builder.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("builder bot stopped", "error", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// newBuilder returns the builder bot's dispatcher, or nil when no builder
// token is configured.
func newBuilder(cmd *cobra.Command, sup *supervisor.Supervisor, logger *slog.Logger, dopts []core.DispatcherOption) (*core.Dispatcher, error) {
	token, err := resolveToken(
		flagOrViperString(cmd, "builder-token", "builder.token"),
		flagOrViperString(cmd, "builder-keychain-account", "builder.keychain_account"),
	)
	if err != nil {
		return nil, fmt.Errorf("builder token: %w", err)
	}
	if token == "" {
		return nil, nil
	}

	builder := ops.Builder{Bots: sup}
	if secret := viper.GetString("builder.totp_secret"); secret != "" {
		totp, err := auth.New(secret)
		if err != nil {
			return nil, fmt.Errorf("builder.totp_secret: %w", err)
		}
		builder.Admin = totp
	}

	reg := core.NewRegistry()
	reg.When(core.Wildcard, ops.Handler(builder.Registry(), logger))
	return core.NewDispatcher(newGateway(token, logger), reg, logger.With("role", "builder"), dopts...), nil
}
