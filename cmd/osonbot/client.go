package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdelaire/osonbot/core/control"
)

const callTimeout = 10 * time.Second

func call(cmd *cobra.Command, action string, payload any) (*control.Response, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	return control.Call(ctx, viper.GetString("control.socket"), action, payload)
}

func newAddCmd() *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "add <token>",
		Short: "Add a bot to the running supervisor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(cmd, control.ActionAddBot, control.AddBotPayload{Token: args[0], OwnerID: owner})
			if err != nil {
				return err
			}
			if !resp.Added {
				fmt.Fprintln(cmd.OutOrStdout(), "Bot already registered.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Bot added.")
			return nil
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "Telegram user id of the owner.")
	return cmd
}

func newWhenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "when <token> <trigger> <response...>",
		Short: "Teach a running bot a trigger and its response",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := control.AddCommandPayload{
				Token:    args[0],
				Trigger:  args[1],
				Response: strings.Join(args[2:], " "),
			}
			if _, err := call(cmd, control.ActionAddCommand, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q now answers %q.\n", p.Trigger, p.Response)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the bots of the running supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(cmd, control.ActionListBots, nil)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOKEN\tUSERNAME\tOWNER\tSTATUS\tCOMMANDS\tERROR")
			for _, b := range resp.Bots {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					b.TokenHint, orDash(b.Username), strconv.FormatInt(b.OwnerID, 10), b.Status, b.Commands, orDash(b.Error))
			}
			return w.Flush()
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <token>",
		Short: "Stop a bot and drop it from the roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := call(cmd, control.ActionRemoveBot, control.RemoveBotPayload{Token: args[0]}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Bot removed.")
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
