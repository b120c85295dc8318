package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newEntryCmd() *cobra.Command {
	var name, phone, email string

	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Enter the funnel and request an OTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{
				"name":  name,
				"phone": phone,
				"email": email,
			}
			var result EntryResult

			if err := client.Post(cmd.Context(), "/api/v1/funnel/entry", req, &result); err != nil {
				return err
			}

			// Save token
			if err := cfg.SaveToken(result.SessionToken); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Player name (required)")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <otp>",
		Short: "Verify the OTP sent to your phone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"otp": args[0]}
			var result struct {
				Message string `json:"message"`
			}

			if err := client.Post(cmd.Context(), "/api/v1/funnel/verify", req, &result); err != nil {
				return cfg.dropSpentSession(err)
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.PrintMessage(result.Message)
			return nil
		},
	}
}

func newDrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "draw",
		Short: "Roll the dice for a reward",
		Long: `Roll the dice once. The session is consumed by the draw,
so the saved token is removed afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result DrawResult

			if err := client.Post(cmd.Context(), "/api/v1/funnel/draw", nil, &result); err != nil {
				return cfg.dropSpentSession(err)
			}

			if err := cfg.ClearToken(); err != nil {
				return fmt.Errorf("failed to clear token: %w", err)
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result SessionStatus

			if err := client.Get(cmd.Context(), "/api/v1/funnel/status", &result); err != nil {
				return cfg.dropSpentSession(err)
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}

func newRedeemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <code>",
		Short: "Mark a reward code as redeemed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{"discount_code": args[0]}
			var result RedeemResult

			if err := client.Post(cmd.Context(), "/api/v1/funnel/mark-redeemed", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}

func newDiscountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discount <code>",
		Short: "Check whether a reward code is still valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result DiscountStatus

			if err := client.Get(cmd.Context(), "/api/v1/discounts/"+url.PathEscape(args[0])+"/status", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}
