package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pendergraft/chainscout/pkg/client"
)

func createMultiChainCmd() *cobra.Command {
	var (
		networks   string
		failFast   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "multichain <operation> [address]",
		Short: "Run one operation across many networks",
		Long: `Run a named operation concurrently across networks and report per-network results.

Operations: verification, source, abi, creation, ping (ping takes no address).
Networks default to the project config's networks, then to every configured network.

EXAMPLES:
  chainscout multichain verification 0xdAC17F958D2ee523a2206206994597C13D831ec7
  chainscout multichain abi 0xdAC17F958D2ee523a2206206994597C13D831ec7 --networks eth,polygon
  chainscout multichain ping --fail-fast
`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := client.MultiChainRequest{
				Operation: args[0],
				Networks:  splitList(networks),
				FailFast:  failFast,
			}
			if len(args) == 2 {
				req.Address = args[1]
			}
			if len(req.Networks) == 0 {
				if config := loadProjectConfigSilent(); config != nil {
					req.Networks = config.Networks
				}
			}
			return runMultiChain(cmd.Context(), cmd.OutOrStdout(), newClient(), req, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&networks, "networks", "", "comma separated networks (default: project config or all configured)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop starting new networks after the first failure")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runMultiChain(ctx context.Context, out io.Writer, c *client.Client, req client.MultiChainRequest, jsonOutput bool) error {
	report, err := c.MultiChain(ctx, req)
	if err != nil {
		return fmt.Errorf("multichain %s failed: %w", req.Operation, err)
	}

	if jsonOutput {
		return printJSON(out, report)
	}

	s := report.Summary
	fmt.Fprintf(out, "%s: %s, %d/%d networks succeeded in %dms\n",
		report.Operation, s.Status, s.SuccessfulNetworks, s.TotalNetworks, s.TotalTimeMs)
	if report.Cancelled {
		fmt.Fprintln(out, "(cancelled before every network ran)")
	}
	fmt.Fprintln(out)

	names := make([]string, 0, len(report.Successful)+len(report.Failed))
	for n := range report.Successful {
		names = append(names, n)
	}
	for n := range report.Failed {
		names = append(names, n)
	}
	sort.Strings(names)

	w := newTable(out, "NETWORK", "RESULT", "EXPLORER", "ATTEMPTS", "LATENCY", "DETAIL")
	for _, n := range names {
		if r, ok := report.Successful[n]; ok {
			result := "ok"
			if r.NotFound {
				result = "not found"
			}
			detail := ""
			if r.SwitchedExplorer {
				detail = "switched explorer"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%dms\t%s\n", n, result, r.ExplorerName, r.Attempts, r.ResponseTimeMs, detail)
			continue
		}
		f := report.Failed[n]
		fmt.Fprintf(w, "%s\t%s\t-\t%d\t-\t%s\n", n, dashIfEmpty(f.Code), f.Attempts, f.Error)
	}
	w.Flush()
	return nil
}
