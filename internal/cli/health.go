package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pendergraft/chainscout/pkg/client"
)

func createHealthCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show the system health report",
		Long: `Summarize every supported network: how many are configured and healthy,
the average health score, and what to fix.

EXAMPLES:
  chainscout health
  chainscout health --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), cmd.OutOrStdout(), newClient(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runHealth(ctx context.Context, out io.Writer, c *client.Client, jsonOutput bool) error {
	report, err := c.HealthReport(ctx)
	if err != nil {
		return fmt.Errorf("failed to get health report: %w", err)
	}

	if jsonOutput {
		return printJSON(out, report)
	}

	fmt.Fprintf(out, "Networks:   %d supported, %d configured, %d healthy, %d unhealthy\n",
		report.TotalNetworks, report.ConfiguredNetworks, report.HealthyNetworks, report.UnhealthyNetworks)
	fmt.Fprintf(out, "Avg score:  %s\n\n", formatScore(report.AverageHealthScore))

	names := make([]string, 0, len(report.Networks))
	for n := range report.Networks {
		names = append(names, n)
	}
	sort.Strings(names)

	w := newTable(out, "NETWORK", "CONFIGURED", "SCORE", "STATUS", "CIRCUIT")
	for _, n := range names {
		h := report.Networks[n]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			n, yesNo(h.Configured), formatScore(h.HealthScore), h.HealthStatus, dashIfEmpty(h.CircuitState))
	}
	w.Flush()

	if len(report.Recommendations) > 0 {
		fmt.Fprintln(out, "\nRecommendations:")
		for _, r := range report.Recommendations {
			fmt.Fprintf(out, "  • %s\n", r)
		}
	}
	return nil
}
