package server

import (
	"context"
	"fmt"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/project-kessel/userclaims/internal/request"
	"github.com/project-kessel/userclaims/internal/service"
)

// TokenTypeSpec specifies a token type to issue and how to deliver it
type TokenTypeSpec struct {
	// Type is the token type to issue
	Type service.TokenType

	// HeaderName is the HTTP header to use for this token
	// e.g., "Authorization", "X-Id-Token"
	HeaderName string

	// Prefix is prepended to the token value, e.g. "Bearer "
	Prefix string
}

// defaultAuthzTokenTypes forwards the access token as a bearer token
var defaultAuthzTokenTypes = []TokenTypeSpec{
	{
		Type:       service.TokenTypeAccessToken,
		HeaderName: "Authorization",
		Prefix:     "Bearer ",
	},
}

// AuthzServer implements Envoy's ext_authz Authorization service.
// It attaches enriched tokens to checked requests; it never denies a
// request because of missing user data.
type AuthzServer struct {
	authv3.UnimplementedAuthorizationServer

	tokenService  *service.TokenService
	observer      service.AuthzCheckObserver
	subjectHeader string

	// TokenTypesToIssue specifies which token types to issue and their headers
	TokenTypesToIssue []TokenTypeSpec
}

// AuthzServerConfig configures the ext_authz server
type AuthzServerConfig struct {
	TokenService *service.TokenService

	// TokenTypes to issue; defaults to the access token in the Authorization header
	TokenTypes []TokenTypeSpec

	// SubjectHeader names the request header holding the subject (default "userId")
	SubjectHeader string

	Observer service.AuthzCheckObserver
}

// NewAuthzServer creates a new ext_authz server
func NewAuthzServer(cfg AuthzServerConfig) *AuthzServer {
	tokenTypes := cfg.TokenTypes
	if len(tokenTypes) == 0 {
		tokenTypes = defaultAuthzTokenTypes
	}

	subjectHeader := cfg.SubjectHeader
	if subjectHeader == "" {
		subjectHeader = DefaultSubjectHeader
	}

	// Use null object pattern - default to no-op observer if none provided
	observer := cfg.Observer
	if observer == nil {
		observer = service.NoOpAuthzCheckObserver()
	}

	return &AuthzServer{
		tokenService:      cfg.TokenService,
		observer:          observer,
		subjectHeader:     subjectHeader,
		TokenTypesToIssue: tokenTypes,
	}
}

// Check implements the ext_authz check endpoint
func (s *AuthzServer) Check(ctx context.Context, req *authv3.CheckRequest) (*authv3.CheckResponse, error) {
	ctx, probe := s.observer.AuthzCheckStarted(ctx)
	defer probe.End()

	// 1. Build request attributes
	reqAttrs := s.buildRequestAttributes(req)
	probe.RequestAttributesParsed(reqAttrs)

	// 2. Resolve the subject. Requests without one pass through untouched.
	subject, _ := reqAttrs.FirstHeader(s.subjectHeader)
	if subject == "" {
		probe.SubjectMissing(s.subjectHeader)
		return s.okResponse(nil, nil), nil
	}
	probe.SubjectResolved(subject)

	// 3. Issue tokens via TokenService
	tokenTypes := make([]service.TokenType, len(s.TokenTypesToIssue))
	for i, spec := range s.TokenTypesToIssue {
		tokenTypes[i] = spec.Type
	}

	issuedTokens, err := s.tokenService.IssueTokens(ctx, &service.IssueRequest{
		Subject:           subject,
		RequestAttributes: reqAttrs,
		TokenTypes:        tokenTypes,
	})
	if err != nil {
		probe.TokenIssuanceFailed(err)
		return s.denyResponse(codes.Internal, fmt.Sprintf("failed to issue tokens: %v", err)), nil
	}

	// 4. Build request headers from issued tokens, replacing any inbound values
	headers := make([]*corev3.HeaderValueOption, 0, len(issuedTokens))
	for _, spec := range s.TokenTypesToIssue {
		if token, ok := issuedTokens[spec.Type]; ok {
			headers = append(headers, &corev3.HeaderValueOption{
				Header: &corev3.HeaderValue{
					Key:   spec.HeaderName,
					Value: spec.Prefix + token.Value,
				},
				AppendAction: corev3.HeaderValueOption_OVERWRITE_IF_EXISTS_OR_ADD,
			})
		}
	}
	probe.TokensIssued(tokenTypes)

	metadata, err := structpb.NewStruct(map[string]any{
		"subject":     subject,
		"token_types": tokenTypeNames(tokenTypes),
	})
	if err != nil {
		return s.denyResponse(codes.Internal, fmt.Sprintf("failed to build metadata: %v", err)), nil
	}

	return s.okResponse(headers, metadata), nil
}

// buildRequestAttributes extracts request attributes from the Envoy request
func (s *AuthzServer) buildRequestAttributes(req *authv3.CheckRequest) *request.RequestAttributes {
	httpReq := req.GetAttributes().GetRequest().GetHttp()
	if httpReq == nil {
		return &request.RequestAttributes{Additional: map[string]any{}}
	}

	attrs := &request.RequestAttributes{
		Method:    httpReq.GetMethod(),
		Path:      httpReq.GetPath(),
		IPAddress: req.GetAttributes().GetSource().GetAddress().GetSocketAddress().GetAddress(),
		UserAgent: httpReq.GetHeaders()["user-agent"],
		Additional: map[string]any{
			"host": httpReq.GetHost(),
		},
	}

	// Envoy sends lower-cased header names with one value each
	for name, value := range httpReq.GetHeaders() {
		attrs.SetHeader(name, value)
	}

	// Add Envoy context extensions
	// These are custom key-value pairs set by Envoy configuration
	if contextExtensions := req.GetAttributes().GetContextExtensions(); len(contextExtensions) > 0 {
		attrs.Additional["context_extensions"] = contextExtensions
	}

	return attrs
}

// okResponse allows the request, adding headers and dynamic metadata
func (s *AuthzServer) okResponse(headers []*corev3.HeaderValueOption, metadata *structpb.Struct) *authv3.CheckResponse {
	return &authv3.CheckResponse{
		Status: &status.Status{
			Code: int32(codes.OK),
		},
		HttpResponse: &authv3.CheckResponse_OkResponse{
			OkResponse: &authv3.OkHttpResponse{
				Headers: headers,
			},
		},
		DynamicMetadata: metadata,
	}
}

// denyResponse creates a denial response
func (s *AuthzServer) denyResponse(code codes.Code, message string) *authv3.CheckResponse {
	return &authv3.CheckResponse{
		Status: &status.Status{
			Code:    int32(code),
			Message: message,
		},
		HttpResponse: &authv3.CheckResponse_DeniedResponse{
			DeniedResponse: &authv3.DeniedHttpResponse{
				Body: message,
			},
		},
	}
}

func tokenTypeNames(tokenTypes []service.TokenType) []any {
	names := make([]any, len(tokenTypes))
	for i, tokenType := range tokenTypes {
		names[i] = string(tokenType)
	}
	return names
}
