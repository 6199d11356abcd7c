package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Inspect and manage billing accounts",
}

var accountShowCmd = &cobra.Command{
	Use:   "show <account-id>",
	Short: "Show an account and its current access decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		account, err := backend.Billing.GetAccount(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load account: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"account": account,
			"access":  billing.EvaluateAccess(account, backend.Billing.Now()),
		})
	},
}

var accountRenewCmd = &cobra.Command{
	Use:   "renew <account-id>",
	Short: "Renew an account's subscription for one period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "(dry-run) would renew account %d\n", id)
			return nil
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		account, err := backend.Billing.RenewSubscription(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to renew account: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), account)
	},
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}

func init() {
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountRenewCmd)
	rootCmd.AddCommand(accountCmd)
}
