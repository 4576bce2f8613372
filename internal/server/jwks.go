package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/project-kessel/userclaims/internal/clock"
	"github.com/project-kessel/userclaims/internal/service"
)

// DefaultJWKSRefreshInterval is how long a rendered JWK set is served before it is rebuilt
const DefaultJWKSRefreshInterval = time.Minute

// PublicKeySource provides the public keys of all issuers
type PublicKeySource interface {
	GetAllPublicKeys(ctx context.Context) ([]service.PublicKey, error)
}

// JWKSHandler serves the JSON Web Key Set of all configured issuers.
// The rendered set is cached and rebuilt on the first request after
// the refresh interval has passed.
type JWKSHandler struct {
	keySource       PublicKeySource
	clock           clock.Clock
	refreshInterval time.Duration
	logger          *slog.Logger

	mu       sync.Mutex
	cached   []byte
	cachedAt time.Time
}

// JWKSHandlerConfig configures the JWKS handler
type JWKSHandlerConfig struct {
	// KeySource provides the public keys, usually the issuer registry
	KeySource PublicKeySource

	// RefreshInterval is how long the rendered set is cached.
	// If zero, defaults to DefaultJWKSRefreshInterval.
	RefreshInterval time.Duration

	// Clock is used for time operations (defaults to system clock)
	Clock clock.Clock

	// Logger is the structured logger to use. If nil, uses slog.Default()
	Logger *slog.Logger
}

// NewJWKSHandler creates a new JWKS handler
func NewJWKSHandler(cfg JWKSHandlerConfig) *JWKSHandler {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultJWKSRefreshInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JWKSHandler{
		keySource:       cfg.KeySource,
		clock:           cfg.Clock,
		refreshInterval: cfg.RefreshInterval,
		logger:          logger,
	}
}

// JWKS returns the serialized JWK set, rebuilding it when the cached copy is stale.
// A stale set keeps being served if the rebuild fails.
func (h *JWKSHandler) JWKS(ctx context.Context) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	if h.cached != nil && now.Sub(h.cachedAt) < h.refreshInterval {
		return h.cached, nil
	}

	body, err := h.buildJWKS(ctx)
	if err != nil {
		if h.cached != nil {
			h.logger.Warn("JWKS refresh failed, serving cached key set", "error", err)
			return h.cached, nil
		}
		return nil, err
	}

	h.cached = body
	h.cachedAt = now
	return body, nil
}

// ServeHTTP writes the JWK set as application/json
func (h *JWKSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := h.JWKS(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.refreshInterval.Seconds())))
	_, _ = w.Write(body)
}

// buildJWKS renders the public keys of all issuers as an RFC 7517 key set
func (h *JWKSHandler) buildJWKS(ctx context.Context) ([]byte, error) {
	publicKeys, err := h.keySource.GetAllPublicKeys(ctx)

	// Partial failures still serve the keys that are available
	if len(publicKeys) == 0 && err != nil {
		return nil, fmt.Errorf("failed to get public keys: %w", err)
	}
	if err != nil {
		h.logger.Warn("some issuer keys are unavailable", "error", err)
	}

	set := jwk.NewSet()
	for _, pk := range publicKeys {
		key, err := toJWK(pk)
		if err != nil {
			h.logger.Warn("skipping public key", "kid", pk.KeyID, "error", err)
			continue
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("failed to add key %s: %w", pk.KeyID, err)
		}
	}

	return json.Marshal(set)
}

// toJWK converts a service.PublicKey to a jwk.Key with kid, alg and use set
func toJWK(pk service.PublicKey) (jwk.Key, error) {
	key, err := jwk.Import(pk.Key)
	if err != nil {
		return nil, fmt.Errorf("unsupported key: %w", err)
	}

	if err := key.Set(jwk.KeyIDKey, pk.KeyID); err != nil {
		return nil, err
	}
	if pk.Algorithm != "" {
		if err := key.Set(jwk.AlgorithmKey, pk.Algorithm); err != nil {
			return nil, err
		}
	}
	if pk.Use != "" {
		if err := key.Set(jwk.KeyUsageKey, pk.Use); err != nil {
			return nil, err
		}
	}

	return key, nil
}
