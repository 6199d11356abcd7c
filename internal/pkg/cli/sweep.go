package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/scheduler"
)

var sweepAliases = map[string]string{
	"subscriptions": scheduler.JobSubscriptions,
	"grace":         scheduler.JobGracePeriods,
	"free-access":   scheduler.JobFreeAccess,
}

var sweepCmd = &cobra.Command{
	Use:       "sweep [subscriptions|grace|free-access|all]",
	Short:     "Run lifecycle sweeps now",
	Long:      "Runs one lifecycle sweep, or all of them in lifecycle order. Sweeps take the same locks as the server's scheduler.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"subscriptions", "grace", "free-access", "all"},
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		job, ok := sweepAliases[name]
		if !ok && name != "all" {
			return fmt.Errorf("unknown sweep %q", name)
		}
		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "(dry-run) would run sweep %q\n", name)
			return nil
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		var results []billing.SweepResult
		if name == "all" {
			res, err := backend.Sweeps.RunAll(ctx)
			results = res
			if err != nil {
				_ = printJSON(cmd.OutOrStdout(), results)
				return fmt.Errorf("sweep failed: %w", err)
			}
		} else {
			res, err := backend.Sweeps.RunOnce(ctx, job)
			if err != nil {
				return fmt.Errorf("sweep %s failed: %w", name, err)
			}
			results = append(results, res)
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
