package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Long: `Report storage and loyalty platform connectivity.
Exits non-zero when the server reports itself degraded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result HealthResult

			// A degraded server answers 503 with the same report
			status, err := client.do(cmd.Context(), http.MethodGet, "/api/v1/health", nil, &result, true)
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output, cmd.OutOrStdout())
			out.Print(result)
			if status != http.StatusOK {
				return fmt.Errorf("server is %s", result.Status)
			}
			return nil
		},
	}
}
