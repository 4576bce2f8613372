package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHandleLiveness(t *testing.T) {
	srv := New(Config{})

	rec := httptest.NewRecorder()
	srv.handleLiveness(rec, httptest.NewRequest(http.MethodGet, "/healthz/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}

func TestHandleReadiness(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*Server)
		wantCode    int
		wantStatus  string
		wantService string
	}{
		{
			name:        "new servers are not ready",
			setup:       func(*Server) {},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  "NOT_SERVING",
			wantService: healthServices[0],
		},
		{
			name:       "ready once every service is serving",
			setup:      (*Server).SetReady,
			wantCode:   http.StatusOK,
			wantStatus: "SERVING",
		},
		{
			name: "draining servers are not ready",
			setup: func(s *Server) {
				s.SetReady()
				s.SetNotReady()
			},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  "NOT_SERVING",
			wantService: healthServices[0],
		},
		{
			name: "names the token endpoints when only they are down",
			setup: func(s *Server) {
				s.SetReady()
				s.healthServer.SetServingStatus(TokenServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  "NOT_SERVING",
			wantService: TokenServiceName,
		},
		{
			name: "stopped health server is not ready",
			setup: func(s *Server) {
				s.SetReady()
				s.healthServer.Shutdown()
			},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  "NOT_SERVING",
			wantService: healthServices[0],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(Config{})
			tt.setup(srv)

			rec := httptest.NewRecorder()
			srv.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))

			require.Equal(t, tt.wantCode, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, tt.wantService, body["service"])
		})
	}
}
