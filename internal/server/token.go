package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/project-kessel/userclaims/internal/request"
	"github.com/project-kessel/userclaims/internal/service"
)

// DefaultSubjectHeader is the request header the subject is read from
// when it is not given explicitly
const DefaultSubjectHeader = "userId"

// defaultTokenTypes are issued by the token endpoint when the request names none
var defaultTokenTypes = []service.TokenType{service.TokenTypeAccessToken, service.TokenTypeIDToken}

// TokenHandler serves the token and user-info endpoints.
// The subject is taken from the request; callers are not authenticated.
type TokenHandler struct {
	tokenService  *service.TokenService
	subjectHeader string
}

// TokenHandlerConfig configures the token handler
type TokenHandlerConfig struct {
	TokenService *service.TokenService

	// SubjectHeader names the header holding the subject (default "userId")
	SubjectHeader string
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(cfg TokenHandlerConfig) *TokenHandler {
	if cfg.SubjectHeader == "" {
		cfg.SubjectHeader = DefaultSubjectHeader
	}
	return &TokenHandler{
		tokenService:  cfg.TokenService,
		subjectHeader: cfg.SubjectHeader,
	}
}

// HandleToken issues tokens for the request.
//
// The subject comes from the "subject" parameter, or the subject header.
// Token types come from repeated "token_type" parameters and default to
// access_token and id_token. Parameters may be given in the query string
// or, for POST, as a form body.
func (h *TokenHandler) HandleToken(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	tokenTypes := defaultTokenTypes
	if names := r.Form["token_type"]; len(names) > 0 {
		tokenTypes = make([]service.TokenType, 0, len(names))
		for _, name := range names {
			tokenType, err := service.ParseTokenType(name)
			if err != nil {
				writeError(w, http.StatusBadRequest, "unsupported_token_type", err.Error())
				return
			}
			tokenTypes = append(tokenTypes, tokenType)
		}
	}

	tokens, ok := h.issue(w, r, tokenTypes)
	if !ok {
		return
	}

	resp := map[string]any{
		"token_type": "Bearer",
	}
	for _, tokenType := range tokenTypes {
		token := tokens[tokenType]
		if token == nil {
			continue
		}
		if tokenType == service.TokenTypeUserInfo {
			resp[string(tokenType)] = json.RawMessage(token.Value)
			continue
		}
		resp[string(tokenType)] = token.Value
		if _, set := resp["expires_in"]; !set && !token.ExpiresAt.IsZero() {
			resp["expires_in"] = int64(token.ExpiresAt.Sub(token.IssuedAt).Seconds())
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// HandleUserInfo returns the user-info claims for the request subject
func (h *TokenHandler) HandleUserInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	tokens, ok := h.issue(w, r, []service.TokenType{service.TokenTypeUserInfo})
	if !ok {
		return
	}

	w.Header().Set("Content-Type", tokens[service.TokenTypeUserInfo].Type)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(tokens[service.TokenTypeUserInfo].Value))
}

// issue resolves the subject and issues the token types, writing an error response on failure
func (h *TokenHandler) issue(w http.ResponseWriter, r *http.Request, tokenTypes []service.TokenType) (map[service.TokenType]*service.Token, bool) {
	attrs := request.FromHTTPRequest(r)

	subject := r.FormValue("subject")
	if subject == "" {
		subject, _ = attrs.FirstHeader(h.subjectHeader)
	}
	if subject == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing subject: set the subject parameter or the "+h.subjectHeader+" header")
		return nil, false
	}

	tokens, err := h.tokenService.IssueTokens(r.Context(), &service.IssueRequest{
		Subject:           subject,
		RequestAttributes: attrs,
		TokenTypes:        tokenTypes,
		Scope:             r.FormValue("scope"),
	})
	if err != nil {
		if errors.Is(err, service.ErrIssuerNotFound) {
			writeError(w, http.StatusBadRequest, "unsupported_token_type", err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return nil, false
	}

	return tokens, true
}

// writeJSON writes v as a JSON response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an OAuth 2.0 style error response
func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
