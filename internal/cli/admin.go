package cli

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Funnel dashboard commands (require --admin-key)",
	}

	cmd.AddCommand(newAdminEventsCmd())
	cmd.AddCommand(newAdminStatsCmd())
	cmd.AddCommand(newAdminCreditStampCmd())

	return cmd
}

func newAdminEventsCmd() *cobra.Command {
	var stage, from, to, identity string
	var page, limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List funnel events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			setIf(q, "stage", stage)
			setIf(q, "from", from)
			setIf(q, "to", to)
			setIf(q, "identity", identity)
			if page > 0 {
				q.Set("page", strconv.Itoa(page))
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			var result EventsPage
			if err := client.Get(cmd.Context(), withQuery("/api/v1/admin/funnel/events", q), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "Only this stage")
	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "End date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&identity, "identity", "", "Identity substring")
	cmd.Flags().IntVar(&page, "page", 0, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Events per page")

	return cmd
}

func newAdminStatsCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count funnel events per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			setIf(q, "from", from)
			setIf(q, "to", to)

			var result Stats
			if err := client.Get(cmd.Context(), withQuery("/api/v1/admin/funnel/stats", q), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "End date (YYYY-MM-DD or RFC3339)")

	return cmd
}

func newAdminCreditStampCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "credit-stamp <phone-or-identity>",
		Short: "Record a manual wallet credit for a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result CreditStamp

			path := "/api/v1/admin/players/" + url.PathEscape(args[0]) + "/credit-stamp"
			if err := client.Post(cmd.Context(), path, nil, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			return nil
		},
	}
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
