package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/project-kessel/userclaims/internal/config"
)

var (
	// Global flags
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for userclaims
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "userclaims",
		Short: "userclaims - user directory claim enrichment for issued tokens",
		Long: `userclaims issues access tokens, ID tokens and user-info documents whose
claims are enriched with user data fetched from a user directory service.

The user is identified by the userId request header. Its directory record
(GET <directory>/user/{id}) is written into a configured claim, either as a
JSON object or as a single string.

Tokens are served over:
  1. Envoy ext_authz (gRPC) - enriched tokens attached to upstream requests
  2. HTTP - token, user-info and JWKS endpoints`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			return config.LoadEnvFile(envFile)
		},
	}

	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file of USERCLAIMS_* environment variables to load, ignored when missing")

	// Add subcommands
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewIssueCmd())
	rootCmd.AddCommand(NewDescribeCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from the config file, environment and flags.
// The config file defaults to $USERCLAIMS_CONFIG.
func loadConfig(flags *pflag.FlagSet) (*config.Config, string, error) {
	configPath := configFile
	if configPath == "" {
		configPath = os.Getenv(config.EnvPrefix + "CONFIG")
	}

	loader, err := config.NewLoaderWithFlags(configPath, flags)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := loader.Get()
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, configPath, nil
}
