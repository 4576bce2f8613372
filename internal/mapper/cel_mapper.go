package mapper

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	celhelpers "github.com/project-kessel/userclaims/internal/cel"
	"github.com/project-kessel/userclaims/internal/claims"
	"github.com/project-kessel/userclaims/internal/service"
)

// CELProviderID identifies the CEL claim mapper
const CELProviderID = "oidc-cel-claims-mapper"

// CELMapper is a ClaimMapper that uses CEL (Common Expression Language) expressions
// to produce claims from the MapperInput.
//
// The CEL expression has access to the following variables:
//   - datasource(name) - function to fetch data from a named data source for the subject
//   - subject - the user id the token is issued to
//   - token_type - the token being built (access_token, id_token, userinfo)
//   - request - the request attributes as a map
//
// and to the helpers join_lines(s) and or_default(v, d).
//
// The expression should evaluate to a map that will be used as the claims.
//
// Example CEL expressions:
//
//	// Simple claim from subject
//	{"user": subject}
//
//	// Fetch from the directory
//	{"profile": datasource("directory")}
//
//	// Conditional logic
//	token_type == "id_token" ? {"name": datasource("directory").name} : {}
//
//	// Text payloads
//	{"motd": join_lines(or_default(datasource("banner"), "no data"))}
type CELMapper struct {
	script string
	ast    *cel.Ast
}

// NewCELMapper creates a new CEL-based claim mapper
// The script should be a CEL expression that evaluates to a map of claims
func NewCELMapper(script string) (*CELMapper, error) {
	if script == "" {
		return nil, fmt.Errorf("CEL script cannot be empty")
	}

	// Compile once against an environment without data sources
	env, err := cel.NewEnv(
		celhelpers.MapperInputLibrary(context.Background(), nil, nil),
		celhelpers.HelpersLibrary(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(script)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL script: %w", issues.Err())
	}

	return &CELMapper{
		script: script,
		ast:    ast,
	}, nil
}

// Map evaluates the CEL expression and returns the resulting claims
func (m *CELMapper) Map(ctx context.Context, input *service.MapperInput) (claims.Claims, error) {
	if input == nil {
		return nil, fmt.Errorf("mapper input cannot be nil")
	}

	// The environment binds this issuance's data sources; the AST is reused
	// TODO: build the environment once per issuance instead of once per token type
	env, err := cel.NewEnv(
		celhelpers.MapperInputLibrary(ctx, input.DataSources, input.DataSourceInput),
		celhelpers.HelpersLibrary(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	program, err := env.Program(m.ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	result, _, err := program.Eval(m.createActivation(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	resultValue := celhelpers.ConvertCELValue(result)
	if resultValue == nil {
		return nil, nil
	}

	resultMap, ok := resultValue.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("CEL expression must evaluate to a map, got: %T", resultValue)
	}

	// Keys are claim paths, so "address.country" nests
	out := make(claims.Claims, len(resultMap))
	for name, value := range resultMap {
		out.SetPath(name, value)
	}
	return out, nil
}

// Script returns the CEL script used by this mapper
func (m *CELMapper) Script() string {
	return m.script
}

// createActivation creates a CEL activation with variables
func (m *CELMapper) createActivation(input *service.MapperInput) map[string]any {
	activation := map[string]any{
		"subject":    input.Subject,
		"token_type": string(input.TokenType),
		"request":    nil,
	}

	if attrs := input.RequestAttributes; attrs != nil {
		additional := attrs.Additional
		if additional == nil {
			additional = map[string]any{}
		}
		activation["request"] = map[string]any{
			"method":     attrs.Method,
			"path":       attrs.Path,
			"ip_address": attrs.IPAddress,
			"user_agent": attrs.UserAgent,
			"headers":    attrs.FlatHeaders(),
			"additional": additional,
		}
	}

	return activation
}
