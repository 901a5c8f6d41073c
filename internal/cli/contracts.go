package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pendergraft/chainscout/pkg/client"
)

func createDetectCmd() *cobra.Command {
	var (
		jsonOutput bool
		refresh    bool
	)

	cmd := &cobra.Command{
		Use:   "detect <address>",
		Short: "Find the networks a contract is deployed and verified on",
		Long: `Check every configured network for a contract address. Results are cached by the
server for an hour; use --refresh to bypass the cache.

EXAMPLES:
  chainscout detect 0xdAC17F958D2ee523a2206206994597C13D831ec7
  chainscout detect 0xdAC17F958D2ee523a2206206994597C13D831ec7 --refresh --json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], refresh, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached detection")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createSourceCmd() *cobra.Command {
	var (
		network    string
		outputDir  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "source <address>",
		Short: "Fetch verified source for a contract",
		Long: `Fetch verified source, trying the preferred network first and then every network
where the contract is verified.

EXAMPLES:
  chainscout source 0xdAC17F958D2ee523a2206206994597C13D831ec7
  chainscout source 0xdAC17F958D2ee523a2206206994597C13D831ec7 --network polygon -o ./src
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSource(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], network, outputDir, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&network, "network", "", "preferred network")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "write source files to this directory")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createVerificationCmd() *cobra.Command {
	var (
		hint       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "verification <address>",
		Short: "Summarize where a contract is verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerification(cmd.Context(), cmd.OutOrStdout(), newClient(), args[0], hint, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&hint, "hint", "", "network to prefer when several are equally good")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createPrimaryCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "primary <address>",
		Short: "Show the most likely home network of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			primary, err := newClient().PrimaryChain(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to detect primary chain: %w", err)
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), primary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (chain %d, verified: %s)\n",
				truncateAddress(primary.Address), primary.Network, primary.Metadata.ChainID, yesNo(primary.Verified))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runDetect(ctx context.Context, out io.Writer, c *client.Client, address string, refresh, jsonOutput bool) error {
	detection, err := c.Detect(ctx, address, refresh)
	if err != nil {
		return fmt.Errorf("failed to detect %s: %w", address, err)
	}

	if jsonOutput {
		return printJSON(out, detection)
	}

	cached := ""
	if detection.Cached {
		cached = " (cached)"
	}
	fmt.Fprintf(out, "%s found on %d of %d networks%s\n\n",
		detection.Address, len(detection.FoundOn), detection.TotalNetworksChecked, cached)

	names := make([]string, 0, len(detection.DetectionResults)+len(detection.Errors))
	for n := range detection.DetectionResults {
		names = append(names, n)
	}
	for n := range detection.Errors {
		if _, ok := detection.DetectionResults[n]; !ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	w := newTable(out, "NETWORK", "EXISTS", "VERIFIED", "EXPLORER", "LATENCY", "NOTE")
	for _, n := range names {
		if msg, failed := detection.Errors[n]; failed {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s\n", n, msg)
			continue
		}
		d := detection.DetectionResults[n]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%s\n",
			n, yesNo(d.Exists), yesNo(d.Verified), d.ExplorerName, d.ResponseTimeMs, d.ContractName)
	}
	w.Flush()
	return nil
}

func runSource(ctx context.Context, out io.Writer, c *client.Client, address, network, outputDir string, jsonOutput bool) error {
	result, err := c.Source(ctx, address, network)
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("no verified source for %s on any network", address)
		}
		return fmt.Errorf("failed to fetch source: %w", err)
	}

	if jsonOutput {
		return printJSON(out, result)
	}

	src := result.Result
	fmt.Fprintf(out, "%s from %s via %s (%d attempt(s), tried %s)\n",
		src.ContractName, result.NetworkUsed, result.ExplorerUsed, result.AttemptsMade, strings.Join(result.NetworksTried, ", "))
	fmt.Fprintf(out, "  Compiler:     %s\n", src.CompilerVersion)
	fmt.Fprintf(out, "  Optimization: %s (%d runs)\n", yesNo(src.OptimizationUsed), src.OptimizationRuns)
	fmt.Fprintf(out, "  License:      %s\n", dashIfEmpty(src.LicenseType))
	if src.Proxy {
		fmt.Fprintf(out, "  Proxy for:    %s\n", src.Implementation)
	}

	if outputDir == "" {
		files := make([]string, 0, len(src.Sources))
		for f := range src.Sources {
			files = append(files, f)
		}
		sort.Strings(files)
		fmt.Fprintf(out, "  Files:        %s\n", strings.Join(files, ", "))
		return nil
	}

	n, err := writeSources(outputDir, src.Sources)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Wrote %d file(s) to %s\n", n, outputDir)
	return nil
}

// writeSources writes each source file under dir, refusing paths that escape it
func writeSources(dir string, sources map[string]string) (int, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}
	written := 0
	for name, content := range sources {
		path := filepath.Join(root, filepath.FromSlash(name))
		if !strings.HasPrefix(path, root+string(filepath.Separator)) {
			return written, fmt.Errorf("refusing to write %q outside %s", name, dir)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return written, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", name, err)
		}
		written++
	}
	return written, nil
}

func runVerification(ctx context.Context, out io.Writer, c *client.Client, address, hint string, jsonOutput bool) error {
	status, err := c.Verification(ctx, address, hint)
	if err != nil {
		return fmt.Errorf("failed to get verification status: %w", err)
	}

	if jsonOutput {
		return printJSON(out, status)
	}

	if !status.IsVerified {
		fmt.Fprintf(out, "❌ %s is not verified on any network\n", status.Address)
		fmt.Fprintf(out, "   %s\n", status.Recommendation)
		return nil
	}

	fmt.Fprintf(out, "✅ %s is verified on %s\n", status.Address, strings.Join(status.VerifiedNetworks, ", "))
	fmt.Fprintf(out, "   %s\n\n", status.Recommendation)

	w := newTable(out, "NETWORK", "EXPLORER", "SCORE", "LATENCY", "URL")
	for _, d := range status.Details {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n",
			d.Network, d.ExplorerName, formatScore(d.HealthScore), d.ResponseTimeMs, dashIfEmpty(d.ContractURL))
	}
	w.Flush()
	return nil
}
