package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdelaire/osonbot/internal/keychain"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Store bot tokens in the OS keychain",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <account>",
		Short: "Read a token from stdin and store it under account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			token := strings.TrimSpace(line)
			if token == "" {
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				return errors.New("empty token")
			}
			if err := keychain.Set(args[0], token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token stored for %s.\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <account>",
		Short: "Remove the token stored under account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := keychain.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token deleted for %s.\n", args[0])
			return nil
		},
	})
	return cmd
}
