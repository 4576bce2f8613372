package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/project-kessel/userclaims/internal/config"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the userclaims server",
		Long: `Start the userclaims gRPC and HTTP servers.

The server will:
  - Listen for gRPC requests (ext_authz, health, reflection)
  - Listen for HTTP requests (token, user-info, JWKS, health, metrics)
  - Load configuration from file, environment variables, and command-line flags

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (USERCLAIMS_*)
  3. Configuration file (if --config or USERCLAIMS_CONFIG is set)
  4. Built-in defaults

Examples:
  # Start with default settings
  userclaims serve

  # Override server ports
  userclaims serve --server-grpc-port 9091 --server-http-port 8081

  # Point at a different user directory
  userclaims serve --directory-base-url http://users.internal:8087

  # Use custom config file
  userclaims serve --config /etc/userclaims/config.yaml`,
		RunE: runServe,
	}

	// Auto-register all config flags
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, configPath, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	provider := config.NewProvider(cfg)
	logger := provider.Logger()

	srv, err := provider.Server()
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "userclaims is running")
	fmt.Fprintf(out, "  gRPC (ext_authz):      localhost:%d\n", cfg.Server.GRPCPort)
	fmt.Fprintf(out, "  HTTP (token):          http://localhost:%d/v1/token\n", cfg.Server.HTTPPort)
	fmt.Fprintf(out, "  HTTP (user-info):      http://localhost:%d/v1/userinfo\n", cfg.Server.HTTPPort)
	fmt.Fprintf(out, "  HTTP (JWKS):           http://localhost:%d/.well-known/jwks.json\n", cfg.Server.HTTPPort)
	fmt.Fprintf(out, "  Health (HTTP ready):   http://localhost:%d/healthz/ready\n", cfg.Server.HTTPPort)
	fmt.Fprintf(out, "  Metrics:               http://localhost:%d/metrics\n", cfg.Server.HTTPPort)
	fmt.Fprintf(out, "  User directory:        %s\n", cfg.Directory.BaseURL)
	fmt.Fprintf(out, "  Config:                %s\n", configPath)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
