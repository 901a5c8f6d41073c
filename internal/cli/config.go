package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"chainscout.toml", ".chainscout.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server          string   `toml:"server"`
	Networks        []string `toml:"networks,omitempty"`         // default networks for multichain
	MonitorInterval string   `toml:"monitor_interval,omitempty"` // e.g. "30s"
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var (
		serverURL string
		networks  string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a chainscout.toml configuration file in the current directory.

EXAMPLES:
  # Create config with default server
  chainscout config init

  # Create config for a specific server and network set
  chainscout config init --server https://chainscout.example.com --networks ethereum,polygon

  # Overwrite existing config
  chainscout config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), "chainscout.toml", ProjectConfig{
				Server:          serverURL,
				Networks:        splitList(networks),
				MonitorInterval: defaultMonitorInterval.String(),
			}, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&networks, "networks", "", "comma separated default networks for multichain")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display every configuration source and the effective server and API key.

EXAMPLES:
  chainscout config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runConfigInit(out io.Writer, path string, config ProjectConfig, force bool) error {
	if !force {
		for _, name := range projectConfigFiles {
			if _, err := os.Stat(name); err == nil {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# chainscout project configuration")
	fmt.Fprintln(f)
	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Run 'chainscout networks list' to check explorer health")
	fmt.Fprintln(out, "  2. Run 'chainscout auth login' to use maintenance commands")
	return nil
}

func runConfigShow(out io.Writer) error {
	fmt.Fprintln(out, "Configuration sources (in order of precedence):")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "1. Command line flags")
	fmt.Fprintln(out, "   --server, --api-key, --config")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "2. Environment variables")
	if env := os.Getenv("CHAINSCOUT_SERVER"); env != "" {
		fmt.Fprintf(out, "   CHAINSCOUT_SERVER=%s\n", env)
	} else {
		fmt.Fprintln(out, "   CHAINSCOUT_SERVER=(not set)")
	}
	if env := os.Getenv("CHAINSCOUT_API_KEY"); env != "" {
		fmt.Fprintf(out, "   CHAINSCOUT_API_KEY=%s\n", maskAPIKey(env))
	} else {
		fmt.Fprintln(out, "   CHAINSCOUT_API_KEY=(not set)")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "3. Project config (chainscout.toml or .chainscout.toml)")
	config, path, err := loadProjectConfig()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintln(out, "   (not found)")
	case err != nil:
		fmt.Fprintf(out, "   Error: %v\n", err)
	default:
		fmt.Fprintf(out, "   Loaded from: %s\n", path)
		if config.Server != "" {
			fmt.Fprintf(out, "   server: %s\n", config.Server)
		}
		if len(config.Networks) > 0 {
			fmt.Fprintf(out, "   networks: %v\n", config.Networks)
		}
		if config.MonitorInterval != "" {
			fmt.Fprintf(out, "   monitor_interval: %s\n", config.MonitorInterval)
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "4. Credentials (%s)\n", credentialsFilePath())
	creds, err := loadCredentials()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintln(out, "   (not found)")
	case err != nil:
		fmt.Fprintf(out, "   Error: %v\n", err)
	case len(creds.Servers) == 0:
		fmt.Fprintln(out, "   (no credentials stored)")
	default:
		for server, cred := range creds.Servers {
			fmt.Fprintf(out, "   %s: %s\n", server, maskAPIKey(cred.APIKey))
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Effective configuration:")
	fmt.Fprintf(out, "   Server:  %s\n", getServer())
	if key := getAPIKey(); key != "" {
		fmt.Fprintf(out, "   API Key: %s\n", maskAPIKey(key))
	} else {
		fmt.Fprintln(out, "   API Key: (not set)")
	}
	return nil
}

// loadProjectConfig loads the project config from --config or the first matching file
func loadProjectConfig() (*ProjectConfig, string, error) {
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		return config, cfgFile, err
	}

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			return config, name, err
		}
	}
	return nil, "", fs.ErrNotExist
}

func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	var config ProjectConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	return &config, nil
}

// loadProjectConfigSilent returns nil for a missing file and warns on parse failures
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		}
		return nil
	}
	return config
}
