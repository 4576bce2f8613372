package e2e_test

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"google.golang.org/grpc/codes"

	"github.com/project-kessel/userclaims/internal/clock"
	"github.com/project-kessel/userclaims/internal/datasource"
	"github.com/project-kessel/userclaims/internal/directory"
	"github.com/project-kessel/userclaims/internal/httpfixture"
	"github.com/project-kessel/userclaims/internal/issuer"
	"github.com/project-kessel/userclaims/internal/keys"
	"github.com/project-kessel/userclaims/internal/lua"
	"github.com/project-kessel/userclaims/internal/mapper"
	"github.com/project-kessel/userclaims/internal/server"
	"github.com/project-kessel/userclaims/internal/service"
)

// TestHermeticClaimEnrichment exercises the ext_authz API end to end with every
// I/O dependency replaced by fixtures: the user directory, a roles API reached
// from a Lua data source, and time.
//
// The only component called directly is the external gRPC API (AuthzServer.Check).
func TestHermeticClaimEnrichment(t *testing.T) {
	// ============================================================
	// 1. Setup Fixtures (All I/O Control)
	// ============================================================

	fixedTime := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFixtureClock(fixedTime)

	users, err := httpfixture.NewDirectoryFixture(httpfixture.DirectoryFixtureConfig{
		BaseURL: directory.DefaultBaseURL,
	})
	if err != nil {
		t.Fatalf("failed to create directory fixture: %v", err)
	}
	if err := users.SetUser("alice", map[string]any{
		"email":      "alice@example.com",
		"department": "engineering",
	}); err != nil {
		t.Fatalf("failed to add directory user: %v", err)
	}
	users.SetUserText("bob", "Welcome back,\r\nBob\n")

	rolesAPI, err := httpfixture.NewRuleBasedProvider([]httpfixture.HTTPFixtureRule{
		{
			Request: httpfixture.FixtureRequest{
				Method:  "GET",
				URL:     "https://roles.example.com/users/.*",
				URLType: "pattern",
			},
			Response: httpfixture.Fixture{
				StatusCode: 200,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       `{"roles": ["developer", "admin"]}`,
			},
		},
	})
	if err != nil {
		t.Fatalf("failed to create roles fixture: %v", err)
	}

	transport := httpfixture.NewTransport(httpfixture.TransportConfig{
		Provider: httpfixture.ChainProvider{users, rolesAPI},
		Strict:   true,
		Clock:    clk,
	})

	// ============================================================
	// 2. Wire the Production Components (Using Fixtures)
	// ============================================================

	directorySource, err := datasource.NewDirectoryDataSource(datasource.DirectoryDataSourceConfig{
		Name:      mapper.DefaultDataSource,
		Directory: directory.NewClient(directory.Config{Transport: transport}),
	})
	if err != nil {
		t.Fatalf("failed to create directory data source: %v", err)
	}

	rolesSource, err := datasource.NewLuaDataSource(datasource.LuaDataSourceConfig{
		Name: "roles",
		Script: `
function fetch(input)
    local response = http.get("https://roles.example.com/users/" .. input.user_id)
    if response.status == 200 then
        return {data = response.body, content_type = "application/json"}
    end
    return nil
end`,
		HTTPConfig: &lua.HTTPServiceConfig{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	})
	if err != nil {
		t.Fatalf("failed to create roles data source: %v", err)
	}

	dataSources := service.NewDataSourceRegistry()
	dataSources.Register(directorySource)
	dataSources.Register(rolesSource)

	userData := mustRegister(t, "user_data", func() (service.ClaimMapper, error) {
		return mapper.NewDirectoryClaimMapper(mapper.DirectoryClaimMapperConfig{ClaimName: "user_data"})
	}, mapper.DirectoryDescriptor())
	greeting := mustRegister(t, "greeting", func() (service.ClaimMapper, error) {
		return mapper.NewDirectoryClaimMapper(mapper.DirectoryClaimMapperConfig{
			ClaimName:   "greeting",
			ValueFormat: mapper.ValueFormatString,
		})
	}, mapper.DirectoryDescriptor())
	roles := mustRegister(t, "roles", func() (service.ClaimMapper, error) {
		return mapper.NewCELMapper(`{
			"realm_access.roles": or_default(datasource("roles"), {"roles": []}).roles,
			"request_path": request.path
		}`)
	}, nil)

	signer, err := keys.NewMemorySigner(keys.MemorySignerConfig{KeyType: keys.KeyTypeECP256})
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	accessIssuer, err := issuer.NewJWTIssuer(issuer.JWTIssuerConfig{
		TokenType: service.TokenTypeAccessToken,
		IssuerURL: "https://sso.example.com/realms/prod",
		Signer:    signer,
		Clock:     clk,
	})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}

	issuers := service.NewSimpleRegistry()
	issuers.Register(service.TokenTypeAccessToken, accessIssuer)

	tokenService := service.NewTokenService("account", dataSources,
		[]*service.MapperRegistration{userData, greeting, roles}, issuers, nil)

	// ============================================================
	// 3. Create the ext_authz Server (External API)
	// ============================================================
	authzServer := server.NewAuthzServer(server.AuthzServerConfig{TokenService: tokenService})

	publicKeys, err := signer.PublicKeys(context.Background())
	if err != nil {
		t.Fatalf("failed to get public keys: %v", err)
	}

	check := func(t *testing.T, userID string) jwt.Token {
		t.Helper()

		resp, err := authzServer.Check(context.Background(), &authv3.CheckRequest{
			Attributes: &authv3.AttributeContext{
				Request: &authv3.AttributeContext_Request{
					Http: &authv3.AttributeContext_HttpRequest{
						Method:  http.MethodGet,
						Path:    "/api/v1/resources",
						Headers: map[string]string{"userid": userID},
					},
				},
			},
		})
		if err != nil {
			t.Fatalf("Check RPC failed: %v", err)
		}
		if resp.Status.Code != int32(codes.OK) {
			t.Fatalf("expected OK, got %d: %s", resp.Status.Code, resp.Status.Message)
		}

		headers := resp.GetOkResponse().GetHeaders()
		if len(headers) != 1 {
			t.Fatalf("expected one header, got %d", len(headers))
		}
		value, ok := strings.CutPrefix(headers[0].Header.Value, "Bearer ")
		if !ok {
			t.Fatalf("expected a bearer token, got %q", headers[0].Header.Value)
		}

		token, err := jwt.Parse([]byte(value),
			jwt.WithKey(jwa.ES256(), publicKeys[0].Key),
			jwt.WithClock(jwt.ClockFunc(clk.Now)),
		)
		if err != nil {
			t.Fatalf("failed to verify token: %v", err)
		}
		return token
	}

	// ============================================================
	// 4. TEST: Claim Enrichment Contract
	// ============================================================
	t.Run("JSON directory record becomes an object claim", func(t *testing.T) {
		token := check(t, "alice")

		if iat, _ := token.IssuedAt(); !iat.Equal(fixedTime) {
			t.Errorf("expected iat %v, got %v", fixedTime, iat)
		}
		if sub, _ := token.Subject(); sub != "alice" {
			t.Errorf("expected sub alice, got %q", sub)
		}

		var data map[string]any
		if err := token.Get("user_data", &data); err != nil {
			t.Fatalf("missing user_data claim: %v", err)
		}
		if data["department"] != "engineering" {
			t.Errorf("expected department engineering, got %v", data["department"])
		}

		var greeting string
		if err := token.Get("greeting", &greeting); err != nil {
			t.Fatalf("missing greeting claim: %v", err)
		}
		if !strings.Contains(greeting, `"email":"alice@example.com"`) {
			t.Errorf("expected the raw record in greeting, got %q", greeting)
		}

		var realmAccess map[string]any
		if err := token.Get("realm_access", &realmAccess); err != nil {
			t.Fatalf("missing realm_access claim: %v", err)
		}
		if got, ok := realmAccess["roles"].([]any); !ok || len(got) != 2 || got[0] != "developer" {
			t.Errorf("expected roles [developer admin], got %v", realmAccess["roles"])
		}

		var path string
		if err := token.Get("request_path", &path); err != nil || path != "/api/v1/resources" {
			t.Errorf("expected request_path /api/v1/resources, got %q (%v)", path, err)
		}
	})

	t.Run("text directory record is joined into one line", func(t *testing.T) {
		token := check(t, "bob")

		var greeting string
		if err := token.Get("greeting", &greeting); err != nil {
			t.Fatalf("missing greeting claim: %v", err)
		}
		if greeting != "Welcome back,Bob" {
			t.Errorf("expected joined lines, got %q", greeting)
		}

		// Not a JSON object, so no object claim
		if token.Has("user_data") {
			t.Error("expected no user_data claim for a text record")
		}
	})

	t.Run("unknown users get the no data sentinel", func(t *testing.T) {
		token := check(t, "mallory")

		var greeting string
		if err := token.Get("greeting", &greeting); err != nil {
			t.Fatalf("missing greeting claim: %v", err)
		}
		if greeting != mapper.NoDataSentinel {
			t.Errorf("expected %q, got %q", mapper.NoDataSentinel, greeting)
		}
		if token.Has("user_data") {
			t.Error("expected no user_data claim for an unknown user")
		}
	})

	t.Run("directory is queried once per check", func(t *testing.T) {
		before := users.RequestCount("alice")
		check(t, "alice")

		if got := users.RequestCount("alice") - before; got != 1 {
			t.Errorf("expected one directory request, got %d", got)
		}

		want := []string{"alice", "bob", "mallory", "alice"}
		if got := users.Requests(); !slices.Equal(got, want) {
			t.Errorf("expected lookups %v, got %v", want, got)
		}
	})
}

func mustRegister(t *testing.T, name string, build func() (service.ClaimMapper, error), descriptor service.MapperDescriptor) *service.MapperRegistration {
	t.Helper()

	m, err := build()
	if err != nil {
		t.Fatalf("failed to create mapper %s: %v", name, err)
	}
	reg, err := service.NewMapperRegistration(name, m, descriptor, service.AllTokenTypesSet)
	if err != nil {
		t.Fatalf("failed to register mapper %s: %v", name, err)
	}
	return reg
}
