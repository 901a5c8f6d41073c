package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/chainscout/internal/auth"
	"github.com/pendergraft/chainscout/internal/chains"
	"github.com/pendergraft/chainscout/internal/config"
	"github.com/pendergraft/chainscout/internal/health"
	"github.com/pendergraft/chainscout/internal/observability/metrics"
	"github.com/pendergraft/chainscout/internal/registry"
	"github.com/pendergraft/chainscout/internal/server"
	"github.com/pendergraft/chainscout/internal/storage"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "chainscout-server",
		Short:   "chainscout server - resilient multi-chain explorer gateway",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newCheckCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the ops API key",
	}

	cmd.AddCommand(newKeysGenerateCmd())

	return cmd
}

func newKeysGenerateCmd() *cobra.Command {
	var outputFile string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new ops API key",
		Long: `Generate a random key for the mutating ops endpoints.

The server reads the key from OPS_API_KEY. Nothing is stored server-side.

EXAMPLES:
  # Print the key with usage hints
  chainscout-server keys generate

  # Print only the key (for piping to a secrets manager)
  chainscout-server keys generate --quiet | gh secret set OPS_API_KEY

  # Write the key to a file (mode 0600)
  chainscout-server keys generate --output /secure/path/ops-key.txt
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysGenerate(cmd.OutOrStdout(), outputFile, quiet)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "write key to file instead of stdout")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the key (for piping)")

	return cmd
}

func runKeysGenerate(out io.Writer, outputFile string, quiet bool) error {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}

	if quiet {
		fmt.Fprintln(out, key)
		return nil
	}

	if outputFile != "" {
		if dir := filepath.Dir(outputFile); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("creating directory: %w", err)
			}
		}
		if err := os.WriteFile(outputFile, []byte(key+"\n"), 0600); err != nil {
			return fmt.Errorf("writing key to file: %w", err)
		}
		fmt.Fprintf(out, "Key written to %s (mode 0600)\n", outputFile)
		fmt.Fprintf(out, "Fingerprint: %s\n", auth.Fingerprint(key))
		return nil
	}

	fmt.Fprintln(out, "Ops API key (save this - it is not stored anywhere):")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "   ", key)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Fingerprint: %s\n", auth.Fingerprint(key))
	fmt.Fprintln(out, "Start the server with OPS_API_KEY set to this value.")
	return nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate explorer configuration without contacting any explorer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

// runCheck prints a validation row per supported network and fails when none can serve requests
func runCheck(ctx context.Context, out io.Writer, cfg *config.Config) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := health.NewTracker(health.ConfigFrom(cfg.Circuit), storage.NewMemoryStore(), logger)
	reg := registry.New(cfg.Explorers, tracker, logger, registry.WithHealthyThreshold(cfg.Circuit.HealthyThreshold))

	usable := 0
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NETWORK\tVALID\tFALLBACKS\tISSUES\tWARNINGS")
	for _, n := range reg.GetSupportedNetworks() {
		v := reg.ValidateConfiguration(ctx, n)
		if v.Valid {
			usable++
		}
		fmt.Fprintf(w, "%s\t%t\t%d\t%s\t%s\n", n, v.Valid, v.FallbacksAvailable, joinOrDash(v.Issues), joinOrDash(v.Warnings))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if usable == 0 {
		return errors.New("no network has a usable explorer")
	}
	return nil
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	out := items[0]
	for _, s := range items[1:] {
		out += "; " + s
	}
	return out
}

// Server command

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info("starting chainscout-server", "version", version)

	metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.ServiceName)

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if cfg.Auth.APIKey != "" {
		logger.Info("ops auth enabled", "key_fingerprint", auth.Fingerprint(cfg.Auth.APIKey))
	} else {
		logger.Warn("OPS_API_KEY not set, mutating endpoints are unauthenticated")
	}

	srv := server.New(cfg, store, logger)

	networks := make([]string, 0)
	for _, n := range srv.Registry().ConfiguredNetworks() {
		networks = append(networks, n.String())
	}
	logger.Info("explorers configured", "networks", networks, "supported", len(chains.All()))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if cfg.Probe.Interval > 0 {
		go runProbes(bgCtx, srv.Manager(), cfg.Probe.Interval, logger)
	}
	go runPurge(bgCtx, store, purgeInterval, logger)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
