package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/chainscout/pkg/client"
)

const defaultMonitorInterval = 30 * time.Second

func createMonitorCmd() *cobra.Command {
	var (
		interval time.Duration
		count    int
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch network health until interrupted",
		Long: `Print the network health table every interval until interrupted (Ctrl+C).
The interval defaults to the project config's monitor_interval, then 30s.

EXAMPLES:
  chainscout monitor
  chainscout monitor --interval 10s
  chainscout monitor --count 3
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("interval") {
				if config := loadProjectConfigSilent(); config != nil && config.MonitorInterval != "" {
					d, err := time.ParseDuration(config.MonitorInterval)
					if err != nil {
						return fmt.Errorf("invalid monitor_interval %q: %w", config.MonitorInterval, err)
					}
					interval = d
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runMonitor(ctx, cmd.OutOrStdout(), newClient(), interval, count)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", defaultMonitorInterval, "refresh interval")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many refreshes (0 = run until interrupted)")

	return cmd
}

// runMonitor prints one snapshot immediately and then one per tick
func runMonitor(ctx context.Context, out io.Writer, c *client.Client, interval time.Duration, count int) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 1; ; i++ {
		networks, err := c.Networks(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			fmt.Fprintf(out, "[%s] ❌ %v\n", time.Now().Format(time.TimeOnly), err)
		default:
			fmt.Fprintf(out, "[%s]\n", time.Now().Format(time.TimeOnly))
			printNetworkTable(out, networks)
			fmt.Fprintln(out)
		}

		if count > 0 && i >= count {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
