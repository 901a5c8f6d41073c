package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pendergraft/chainscout/pkg/client"
)

func createNetworksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "networks",
		Aliases: []string{"network", "net"},
		Short:   "Inspect and maintain per-network explorers",
	}

	cmd.AddCommand(createNetworksListCmd())
	cmd.AddCommand(createNetworksStatusCmd())
	cmd.AddCommand(createNetworksValidateCmd())
	cmd.AddCommand(createNetworksTestCmd())
	cmd.AddCommand(createNetworksInvalidateCmd())
	cmd.AddCommand(createNetworksRepairCmd())

	return cmd
}

func createNetworksListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List supported networks and their health",
		Long: `List every supported network in priority order with its current explorer,
health score and circuit state.

EXAMPLES:
  chainscout networks list
  chainscout networks list --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNetworksList(cmd.Context(), cmd.OutOrStdout(), newClient(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createNetworksStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <network>",
		Short: "Show detailed status for one network",
		Long: `Show configuration, health counters and per-explorer circuit state for a network.

EXAMPLES:
  chainscout networks status ethereum
  chainscout networks status matic --json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNetworksStatus(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createNetworksValidateCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "validate <network>",
		Short: "Validate a network's explorer configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNetworksValidate(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createNetworksTestCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "test [network]",
		Short: "Probe explorer connectivity",
		Long: `Send a connectivity probe to the best explorer of one network, or of every
configured network when none is given.

EXAMPLES:
  chainscout networks test
  chainscout networks test polygon
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runNetworksTestOne(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], jsonOutput)
			}
			return runNetworksTestAll(cmd.Context(), cmd.OutOrStdout(), newClient(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createNetworksInvalidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate <network>",
		Short: "Clear health records and cached explorers for a network",
		Long: `Clear a network's health records, cached explorer clients and explorer selection.
Requires the ops API key.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().InvalidateNetwork(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to invalidate %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Invalidated %s\n", args[0])
			return nil
		},
	}

	return cmd
}

func createNetworksRepairCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "repair <network>",
		Short: "Invalidate and re-test a network",
		Long: `Invalidate a network and immediately probe it again, reporting the health score
before and after. Requires the ops API key.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNetworksRepair(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runNetworksList(ctx context.Context, out io.Writer, c *client.Client, jsonOutput bool) error {
	networks, err := c.Networks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}

	if jsonOutput {
		return printJSON(out, networks)
	}

	if len(networks) == 0 {
		fmt.Fprintln(out, "No networks configured")
		return nil
	}

	printNetworkTable(out, networks)
	return nil
}

func printNetworkTable(out io.Writer, networks []client.NetworkStatus) {
	w := newTable(out, "NETWORK", "CHAIN ID", "CONFIGURED", "EXPLORER", "SCORE", "STATUS", "CIRCUIT")
	for _, n := range networks {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			n.Network, n.ChainID, yesNo(n.Configured), dashIfEmpty(n.CurrentExplorer),
			formatScore(n.HealthScore), n.HealthStatus, n.CircuitState)
	}
	w.Flush()
}

func runNetworksStatus(ctx context.Context, out io.Writer, c *client.Client, network string, jsonOutput bool) error {
	status, err := c.NetworkStatus(ctx, network)
	if err != nil {
		return fmt.Errorf("failed to get status for %s: %w", network, err)
	}

	if jsonOutput {
		return printJSON(out, status)
	}

	fmt.Fprintf(out, "%s (chain %d)\n", status.DisplayName, status.ChainID)
	fmt.Fprintf(out, "  Configured:   %s\n", yesNo(status.Configured))
	fmt.Fprintf(out, "  Explorer:     %s\n", dashIfEmpty(status.CurrentExplorer))
	fmt.Fprintf(out, "  Health:       %s (%s)\n", formatScore(status.HealthScore), status.HealthStatus)
	fmt.Fprintf(out, "  Circuit:      %s\n", status.CircuitState)
	fmt.Fprintf(out, "  Success rate: %s of %d requests\n", formatPercent(status.SuccessRate), status.TotalRequests)
	fmt.Fprintf(out, "  Avg latency:  %.0f ms\n", status.AvgResponseTimeMs)
	for _, issue := range status.Issues {
		fmt.Fprintf(out, "  ⚠ %s\n", issue)
	}
	fmt.Fprintf(out, "  Action:       %s\n", status.RecommendedAction)

	if len(status.Explorers) > 0 {
		fmt.Fprintln(out)
		w := newTable(out, "EXPLORER", "SCORE", "CIRCUIT", "OK", "FAILED", "RECENT FAILURES")
		for _, e := range status.Explorers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
				e.Explorer, formatScore(e.HealthScore), e.State, e.Successes, e.Failures, e.RecentFailures)
		}
		w.Flush()
	}
	return nil
}

func runNetworksValidate(ctx context.Context, out io.Writer, c *client.Client, network string, jsonOutput bool) error {
	v, err := c.ValidateNetwork(ctx, network)
	if err != nil {
		return fmt.Errorf("failed to validate %s: %w", network, err)
	}

	if jsonOutput {
		return printJSON(out, v)
	}

	if v.Valid {
		fmt.Fprintf(out, "✅ %s is configured (%d fallback(s) available)\n", v.Network, v.FallbacksAvailable)
	} else {
		fmt.Fprintf(out, "❌ %s is not configured\n", v.Network)
	}
	for _, issue := range v.Issues {
		fmt.Fprintf(out, "  issue:   %s\n", issue)
	}
	for _, warning := range v.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", warning)
	}
	return nil
}

func runNetworksTestOne(ctx context.Context, out io.Writer, c *client.Client, network string, jsonOutput bool) error {
	result, err := c.TestNetwork(ctx, network)
	if err != nil {
		return fmt.Errorf("failed to test %s: %w", network, err)
	}

	if jsonOutput {
		return printJSON(out, result)
	}

	printConnectivity(out, []client.Connectivity{*result})
	return nil
}

func runNetworksTestAll(ctx context.Context, out io.Writer, c *client.Client, jsonOutput bool) error {
	resp, err := c.TestAllNetworks(ctx)
	if err != nil {
		return fmt.Errorf("failed to test networks: %w", err)
	}

	if jsonOutput {
		return printJSON(out, resp)
	}

	results := make([]client.Connectivity, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Network < results[j].Network })

	printConnectivity(out, results)
	fmt.Fprintf(out, "\n%d/%d networks reachable\n", resp.Passed, resp.Total)
	return nil
}

func printConnectivity(out io.Writer, results []client.Connectivity) {
	w := newTable(out, "NETWORK", "EXPLORER", "RESULT", "LATENCY", "ERROR")
	for _, r := range results {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n",
			r.Network, dashIfEmpty(r.ExplorerName), result, r.ResponseTimeMs, dashIfEmpty(strings.TrimSpace(r.Error)))
	}
	w.Flush()
}

func runNetworksRepair(ctx context.Context, out io.Writer, c *client.Client, network string, jsonOutput bool) error {
	result, err := c.RepairNetwork(ctx, network)
	if err != nil {
		return fmt.Errorf("failed to repair %s: %w", network, err)
	}

	if jsonOutput {
		return printJSON(out, result)
	}

	if result.Repaired {
		fmt.Fprintf(out, "✅ Repaired %s: score %s → %s\n", result.Network, formatScore(result.PreviousScore), formatScore(result.NewScore))
	} else {
		fmt.Fprintf(out, "❌ %s is still failing: %s\n", result.Network, dashIfEmpty(result.Connectivity.Error))
	}
	return nil
}
