package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/SubFox/app/models"
)

var (
	apiKeyUser  uint
	apiKeyAdmin bool
	apiKeyName  string
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue an API key. Admin keys can only be created here.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if apiKeyUser == 0 {
			return errors.New("--user is required")
		}
		raw, prefix, hash, err := models.GenerateAPIKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		key := &models.APIKey{
			UserID:  apiKeyUser,
			Name:    apiKeyName,
			Prefix:  prefix,
			KeyHash: hash,
			IsAdmin: apiKeyAdmin,
		}
		if err := backend.Repos.APIKey.Create(key); err != nil {
			return fmt.Errorf("failed to store key: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created key %d for user %d (admin: %t)\n", key.ID, key.UserID, key.IsAdmin)
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", raw)
		fmt.Fprintln(cmd.ErrOrStderr(), "Store the key now, it cannot be shown again.")
		return nil
	},
}

func init() {
	apiKeyCreateCmd.Flags().UintVar(&apiKeyUser, "user", 0, "user id that owns the key")
	apiKeyCreateCmd.Flags().BoolVar(&apiKeyAdmin, "admin", false, "grant admin privileges")
	apiKeyCreateCmd.Flags().StringVar(&apiKeyName, "name", "", "label shown in key listings")
	apiKeyCmd.AddCommand(apiKeyCreateCmd)
	rootCmd.AddCommand(apiKeyCmd)
}
