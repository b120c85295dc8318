package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "funnelctl",
		Short: "CLI tool for the dice funnel API",
		Long: `funnelctl is a CLI tool for interacting with the dice funnel JSON API.

It can play through the funnel (entry, verify, draw), redeem codes, and
query or stream the funnel dashboard with an admin key.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load token from file if not provided via flag/env
			if err := cfg.LoadToken(); err != nil {
				return err
			}

			// Create HTTP client
			client = NewClient(cfg.ServerURL, cfg.Token, cfg.AdminKey)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: FUNNELCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "Session token (env: FUNNELCTL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Token file path (env: FUNNELCTL_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVar(&cfg.AdminKey, "admin-key", cfg.AdminKey, "Admin API key (env: FUNNELCTL_ADMIN_KEY)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newEntryCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newDrawCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRedeemCmd())
	rootCmd.AddCommand(newDiscountCmd())
	rootCmd.AddCommand(newAdminCmd())
	rootCmd.AddCommand(newStreamCmd())
	rootCmd.AddCommand(newOddsCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
