package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/chainscout/internal/auth"
)

// Credentials stores ops API keys per server
type Credentials struct {
	Servers map[string]ServerCredential `yaml:"servers"`
}

// ServerCredential stores credentials for a single server
type ServerCredential struct {
	APIKey string `yaml:"api_key"`
	Name   string `yaml:"name,omitempty"` // Optional name/description
}

func createAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
	}

	cmd.AddCommand(createAuthLoginCmd())
	cmd.AddCommand(createAuthLogoutCmd())
	cmd.AddCommand(createAuthStatusCmd())
	cmd.AddCommand(createAuthKeygenCmd())

	return cmd
}

func createAuthLoginCmd() *cobra.Command {
	var (
		serverFlag string
		apiKeyFlag string
		name       string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the ops API key for a server",
		Long: `Save the ops API key (the server's OPS_API_KEY) used by maintenance commands.

The key is checked against the server and stored in ~/.chainscout/credentials
with owner-only permissions.

EXAMPLES:
  # Interactive login (prompts for the key)
  chainscout auth login

  # Non-interactive login (for CI)
  chainscout auth login --api-key $CHAINSCOUT_API_KEY
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.Context(), cmd.OutOrStdout(), serverFlag, apiKeyFlag, name)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "API key (prompts if not provided)")
	cmd.Flags().StringVar(&name, "name", "", "label for this credential")

	return cmd
}

func createAuthLogoutCmd() *cobra.Command {
	var (
		serverFlag string
		allFlag    bool
	)

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear credentials",
		Long: `Remove saved credentials for a server.

EXAMPLES:
  chainscout auth logout
  chainscout auth logout --all
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd.OutOrStdout(), serverFlag, allFlag)
		},
	}

	cmd.Flags().StringVar(&serverFlag, "server", "", "server URL (default from config)")
	cmd.Flags().BoolVar(&allFlag, "all", false, "clear all credentials")

	return cmd
}

func createAuthStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthStatus(cmd.OutOrStdout())
		},
	}

	return cmd
}

func createAuthKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new ops API key for a server's OPS_API_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	return cmd
}

func runAuthLogin(ctx context.Context, out io.Writer, serverURL, apiKeyInput, name string) error {
	if serverURL == "" {
		serverURL = getServer()
	}

	key := apiKeyInput
	if key == "" {
		fmt.Fprintf(out, "Enter API key for %s: ", serverURL)

		// Try to read password without echo
		stdinFd := int(os.Stdin.Fd())
		if term.IsTerminal(stdinFd) {
			byteKey, err := term.ReadPassword(stdinFd)
			fmt.Fprintln(out)
			if err != nil {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			key = string(byteKey)
		} else {
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			key = line
		}
	}
	key = strings.TrimSpace(key)

	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	fmt.Fprintf(out, "Validating credentials with %s...\n", serverURL)
	if err := validateAPIKey(ctx, serverURL, key); err != nil {
		return err
	}

	if err := saveCredential(serverURL, ServerCredential{APIKey: key, Name: name}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintf(out, "✅ Authenticated to %s (key: %s)\n", serverURL, maskAPIKey(key))
	fmt.Fprintf(out, "   Credentials saved to %s\n", credentialsFilePath())
	return nil
}

func runAuthLogout(out io.Writer, serverURL string, all bool) error {
	if all {
		if err := os.Remove(credentialsFilePath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
		fmt.Fprintln(out, "✅ All credentials cleared")
		return nil
	}

	if serverURL == "" {
		serverURL = getServer()
	}

	creds, err := loadCredentials()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(out, "No credentials found for %s\n", serverURL)
			return nil
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if _, exists := creds.Servers[serverURL]; !exists {
		fmt.Fprintf(out, "No credentials found for %s\n", serverURL)
		return nil
	}

	delete(creds.Servers, serverURL)
	if err := writeCredentials(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintf(out, "✅ Logged out from %s\n", serverURL)
	return nil
}

func runAuthStatus(out io.Writer) error {
	creds, err := loadCredentials()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if creds == nil || len(creds.Servers) == 0 {
		fmt.Fprintln(out, "Not authenticated to any servers")
		fmt.Fprintln(out, "\nRun 'chainscout auth login' to authenticate")
		return nil
	}

	fmt.Fprintln(out, "Authenticated servers:")
	for server, cred := range creds.Servers {
		masked := maskAPIKey(cred.APIKey)
		if cred.Name != "" {
			fmt.Fprintf(out, "  • %s (%s, key: %s)\n", server, cred.Name, masked)
		} else {
			fmt.Fprintf(out, "  • %s (key: %s)\n", server, masked)
		}
	}
	return nil
}

// Credential file helpers

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chainscout"
	}
	return filepath.Join(home, ".chainscout")
}

func credentialsFilePath() string {
	return filepath.Join(credentialsDir(), "credentials")
}

func loadCredentials() (*Credentials, error) {
	data, err := os.ReadFile(credentialsFilePath())
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	if creds.Servers == nil {
		creds.Servers = make(map[string]ServerCredential)
	}

	return &creds, nil
}

func writeCredentials(creds *Credentials) error {
	if err := os.MkdirAll(credentialsDir(), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	return os.WriteFile(credentialsFilePath(), data, 0600)
}

func saveCredential(serverURL string, cred ServerCredential) error {
	creds, err := loadCredentials()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		creds = &Credentials{Servers: make(map[string]ServerCredential)}
	}

	creds.Servers[serverURL] = cred
	return writeCredentials(creds)
}

func getCredential(serverURL string) string {
	creds, err := loadCredentials()
	if err != nil {
		return ""
	}
	return creds.Servers[serverURL].APIKey
}

// validateAPIKey checks the key against the server's auth check endpoint
func validateAPIKey(ctx context.Context, serverURL, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/v1/auth/check", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", key)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to validate credentials: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("invalid API key")
	default:
		return fmt.Errorf("failed to validate credentials: HTTP %d", resp.StatusCode)
	}
}
