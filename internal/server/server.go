package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// TokenServiceName is the health service name of the HTTP token endpoints
const TokenServiceName = "userclaims.TokenService"

// healthServices are the services reported by the gRPC health server
// and checked, in order, by the readiness endpoint
var healthServices = []string{
	authv3.Authorization_ServiceDesc.ServiceName,
	TokenServiceName,
}

// shutdownTimeout bounds the graceful HTTP shutdown
const shutdownTimeout = 10 * time.Second

// Server manages the gRPC and HTTP servers
type Server struct {
	grpcServer   *grpc.Server
	httpServer   *http.Server
	healthServer *health.Server

	grpcPort int
	httpPort int

	authzServer  *AuthzServer
	tokenHandler *TokenHandler
	jwksHandler  *JWKSHandler
	gatherer     prometheus.Gatherer
	logger       *slog.Logger
}

// Config contains server configuration
type Config struct {
	GRPCPort int
	HTTPPort int

	AuthzServer  *AuthzServer
	TokenHandler *TokenHandler
	JWKSHandler  *JWKSHandler

	// Gatherer backs the /metrics endpoint; nil disables it
	Gatherer prometheus.Gatherer

	// Logger is the structured logger to use. If nil, uses slog.Default()
	Logger *slog.Logger
}

// New creates a new server with the given configuration
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hs := health.NewServer()
	for _, svc := range healthServices {
		hs.SetServingStatus(svc, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return &Server{
		healthServer: hs,
		grpcPort:     cfg.GRPCPort,
		httpPort:     cfg.HTTPPort,
		authzServer:  cfg.AuthzServer,
		tokenHandler: cfg.TokenHandler,
		jwksHandler:  cfg.JWKSHandler,
		gatherer:     cfg.Gatherer,
		logger:       logger,
	}
}

// Run starts the gRPC and HTTP servers and blocks until ctx is cancelled
// or one of them fails. Both servers are stopped before Run returns.
func (s *Server) Run(ctx context.Context) error {
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %d: %w", s.grpcPort, err)
	}
	httpListener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.httpPort))
	if err != nil {
		_ = grpcListener.Close()
		return fmt.Errorf("failed to listen on HTTP port %d: %w", s.httpPort, err)
	}

	s.grpcServer = grpc.NewServer()
	if s.authzServer != nil {
		authv3.RegisterAuthorizationServer(s.grpcServer, s.authzServer)
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.healthServer)

	// Register reflection service for grpcurl and other tools
	reflection.Register(s.grpcServer)

	handler, err := s.HTTPHandler()
	if err != nil {
		_ = grpcListener.Close()
		_ = httpListener.Close()
		return err
	}
	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("gRPC server listening", "port", s.grpcPort)
		if err := s.grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "port", s.httpPort)
		if err := s.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	})

	s.SetReady()

	return g.Wait()
}

// Stop gracefully stops both servers
func (s *Server) Stop(ctx context.Context) error {
	s.healthServer.Shutdown()

	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// SetReady marks every health service as SERVING
func (s *Server) SetReady() {
	for _, svc := range healthServices {
		s.healthServer.SetServingStatus(svc, healthpb.HealthCheckResponse_SERVING)
	}
}

// SetNotReady marks every health service as NOT_SERVING, e.g. while draining
func (s *Server) SetNotReady() {
	for _, svc := range healthServices {
		s.healthServer.SetServingStatus(svc, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// route is one HTTP endpoint
type route struct {
	method  string
	path    string
	handler runtime.HandlerFunc
}

// HTTPHandler builds the HTTP routes
func (s *Server) HTTPHandler() (http.Handler, error) {
	mux := runtime.NewServeMux()

	routes := []route{
		{http.MethodGet, "/healthz/live", adapt(s.handleLiveness)},
		{http.MethodGet, "/healthz/ready", adapt(s.handleReadiness)},
	}

	if s.tokenHandler != nil {
		routes = append(routes,
			route{http.MethodGet, "/v1/token", s.tokenHandler.HandleToken},
			route{http.MethodPost, "/v1/token", s.tokenHandler.HandleToken},
			route{http.MethodGet, "/v1/userinfo", s.tokenHandler.HandleUserInfo},
		)
	}
	if s.jwksHandler != nil {
		jwks := adapt(s.jwksHandler.ServeHTTP)
		routes = append(routes,
			route{http.MethodGet, "/v1/jwks.json", jwks},
			route{http.MethodGet, "/.well-known/jwks.json", jwks},
		)
	}
	if s.gatherer != nil {
		metrics := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
		routes = append(routes, route{http.MethodGet, "/metrics", adapt(metrics.ServeHTTP)})
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, r.handler); err != nil {
			return nil, fmt.Errorf("failed to register %s %s: %w", r.method, r.path, err)
		}
	}

	return mux, nil
}

// handleLiveness reports that the process is up
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// handleReadiness reports SERVING only when every health service is SERVING.
// Otherwise it names the first service that is not.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	for _, svc := range healthServices {
		resp, err := s.healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{Service: svc})
		if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  healthpb.HealthCheckResponse_NOT_SERVING.String(),
				"service": svc,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": healthpb.HealthCheckResponse_SERVING.String(),
	})
}

// adapt turns a plain handler function into a gateway handler
func adapt(h http.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		h(w, r)
	}
}
