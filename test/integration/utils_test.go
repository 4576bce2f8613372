package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/project-kessel/userclaims/internal/config"
	"github.com/project-kessel/userclaims/internal/server"
)

const testDirectoryURL = "http://directory.test:8087"

// testEnv is a running server built from configuration
type testEnv struct {
	Ctx      context.Context
	Srv      *server.Server
	Provider *config.Provider
	GRPCConn *grpc.ClientConn
	HTTPPort int
}

// hermeticConfig serves users "alice" (JSON record) and "bob" (text record)
// from a directory fixture, with an object and a string claim mapper.
func hermeticConfig(grpcPort, httpPort int) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			GRPCPort: grpcPort,
			HTTPPort: httpPort,
		},
		IssuerURL: "https://sso.test/realms/test",
		Audience:  "account",
		Directory: config.DirectoryConfig{BaseURL: testDirectoryURL},
		Mappers: []config.MapperConfig{
			{Type: "user_directory", ClaimName: "user_data"},
			{Type: "user_directory", ClaimName: "user_text", ValueFormat: "string"},
		},
		Fixtures: []config.FixtureConfig{
			{
				Type: "directory",
				Users: map[string]config.DirectoryUserFixture{
					"alice": {Attributes: map[string]any{"email": "alice@example.com"}},
					"bob":   {Body: "hello\nbob\n"},
				},
			},
		},
		Observability: &config.ObservabilityConfig{Type: "noop"},
	}
}

// startEnv builds every component from cfg, runs the server, waits for both
// ports and dials a gRPC client. Cleanup stops the server and waits for Run to return.
func startEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	provider := config.NewProvider(cfg)
	srv, err := provider.Server()
	if err != nil {
		cancel()
		t.Fatalf("Failed to build server: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	waitForServer(t, cfg.Server.GRPCPort, 5*time.Second)
	waitForServer(t, cfg.Server.HTTPPort, 5*time.Second)

	grpcConn, err := grpc.NewClient(
		fmt.Sprintf("localhost:%d", cfg.Server.GRPCPort),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		cancel()
		t.Fatalf("Failed to dial gRPC on :%d: %v", cfg.Server.GRPCPort, err)
	}

	t.Cleanup(func() {
		_ = grpcConn.Close()
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("server exited with error: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("server did not stop within 10s")
		}
	})

	return &testEnv{
		Ctx:      ctx,
		Srv:      srv,
		Provider: provider,
		GRPCConn: grpcConn,
		HTTPPort: cfg.Server.HTTPPort,
	}
}

// waitForServer polls the given port until a TCP connection succeeds or timeout is reached.
// This provides a deterministic way to wait for server startup without arbitrary sleeps.
func waitForServer(t *testing.T, port int, timeout time.Duration) {
	t.Helper()

	addr := fmt.Sprintf("localhost:%d", port)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("server on port %d did not become ready within %v", port, timeout)
}
