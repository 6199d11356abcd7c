package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/SubFox/app/models"
	"github.com/ManuelReschke/SubFox/app/repository"
	"github.com/ManuelReschke/SubFox/internal/pkg/billing"
	"github.com/ManuelReschke/SubFox/internal/pkg/cache"
	"github.com/ManuelReschke/SubFox/internal/pkg/database"
	"github.com/ManuelReschke/SubFox/internal/pkg/env"
	"github.com/ManuelReschke/SubFox/internal/pkg/mail"
	"github.com/ManuelReschke/SubFox/internal/pkg/scheduler"
)

// Backend is what the commands operate on.
type Backend struct {
	Billing *billing.Service
	Repos   *repository.Repositories
	Sweeps  *scheduler.Manager
}

var (
	// Global flags
	timeout time.Duration
	dryRun  bool

	// Shared state set during PersistentPreRun
	backend *Backend
)

// rootCmd is the base command for billingctl.
var rootCmd = &cobra.Command{
	Use:   "billingctl",
	Short: "SubFox operator CLI - run sweeps, inspect accounts, issue API keys",
	Long: `billingctl talks to the SubFox database directly. It is meant for operators:
running lifecycle sweeps by hand, looking at a billing account, renewing it,
and issuing the first admin API key.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if backend != nil {
			return nil
		}
		b, err := connect()
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		backend = b
		return nil
	},
}

// connect builds a backend from the environment, the same way the server does.
func connect() (*Backend, error) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	settings := models.NewSettingsStore(db)
	if err := settings.Load(); err != nil {
		return nil, err
	}
	svc := billing.NewServiceFromDB(db, billing.WithSettings(settings), billing.WithNotifier(mail.NewNotifierFromEnv()))

	var locker scheduler.Locker
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if cache.Available(ctx) {
		locker = scheduler.NewRedisLocker(cache.GetClient())
	}
	return &Backend{
		Billing: svc,
		Repos:   repository.NewRepositories(db, settings),
		Sweeps:  scheduler.NewManager(svc, settings, locker),
	}, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// SetBackend allows tests to inject a backend.
func SetBackend(b *Backend) {
	backend = b
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "abort the command after this long")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print actions that would be taken without executing them")
}
