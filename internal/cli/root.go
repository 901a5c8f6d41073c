package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/chainscout/pkg/client"
)

var (
	cfgFile string
	server  string
	apiKey  string
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chainscout",
		Short: "Multi-chain block explorer operations CLI",
		Long: `chainscout talks to a chainscout server to inspect explorer health across EVM networks,
find where contracts are deployed and verified, and run lookups across many chains at once.`,
		Version:      version,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: chainscout.toml or .chainscout.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "ops API key for maintenance commands")

	// Add subcommands
	rootCmd.AddCommand(createNetworksCmd())
	rootCmd.AddCommand(createHealthCmd())
	rootCmd.AddCommand(createDetectCmd())
	rootCmd.AddCommand(createSourceCmd())
	rootCmd.AddCommand(createVerificationCmd())
	rootCmd.AddCommand(createPrimaryCmd())
	rootCmd.AddCommand(createMultiChainCmd())
	rootCmd.AddCommand(createMonitorCmd())
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createAuthCmd())

	return rootCmd
}

// getServer returns the server URL from flag, env, config file, or default
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("CHAINSCOUT_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	// 4. Default
	return "http://localhost:8080"
}

// getAPIKey returns the API key from flag, env, or credentials file
func getAPIKey() string {
	// 1. Command line flag
	if apiKey != "" {
		return apiKey
	}

	// 2. Environment variable
	if env := os.Getenv("CHAINSCOUT_API_KEY"); env != "" {
		return env
	}

	// 3. Credentials file (keyed by server URL)
	if cred := getCredential(getServer()); cred != "" {
		return cred
	}

	return ""
}

func newClient() *client.Client {
	return client.New(getServer(), getAPIKey())
}
