package cli

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/project-kessel/userclaims/internal/config"
	"github.com/project-kessel/userclaims/internal/mapper"
	"github.com/project-kessel/userclaims/internal/request"
	"github.com/project-kessel/userclaims/internal/service"
)

// NewIssueCmd creates the issue command
func NewIssueCmd() *cobra.Command {
	var (
		userID     string
		tokenTypes []string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue tokens for a user and print them",
		Long: `Issue tokens for a user with the configured mappers and print them as JSON.

The user id is sent as the userId header would be, so the user directory is
queried exactly as it is for served requests. Combine with directory fixtures
in the config file to try mapper configurations without a directory.

Examples:
  # Access and ID tokens for user 42
  userclaims issue --user-id 42

  # Only the user-info document
  userclaims issue --user-id 42 --token-type userinfo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user-id is required")
			}

			types := make([]service.TokenType, 0, len(tokenTypes))
			for _, name := range tokenTypes {
				tokenType, err := service.ParseTokenType(name)
				if err != nil {
					return err
				}
				types = append(types, tokenType)
			}

			cfg, _, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			// Only the tokens go to stdout
			provider := config.NewProvider(cfg)
			provider.SetObserver(&service.NoOpApplicationObserver{})

			tokenService, err := provider.TokenService()
			if err != nil {
				return fmt.Errorf("failed to create token service: %w", err)
			}

			attrs := &request.RequestAttributes{}
			for _, header := range userIDHeaders(cfg) {
				attrs.SetHeader(header, userID)
			}

			tokens, err := tokenService.IssueTokens(cmd.Context(), &service.IssueRequest{
				Subject:           userID,
				RequestAttributes: attrs,
				TokenTypes:        types,
			})
			if err != nil {
				return fmt.Errorf("failed to issue tokens: %w", err)
			}

			out := make(map[string]any, len(tokens))
			for tokenType, token := range tokens {
				if tokenType == service.TokenTypeUserInfo {
					out[string(tokenType)] = json.RawMessage(token.Value)
					continue
				}
				out[string(tokenType)] = token.Value
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "user id to issue tokens for")
	cmd.Flags().StringSliceVar(&tokenTypes, "token-type", []string{
		string(service.TokenTypeAccessToken),
		string(service.TokenTypeIDToken),
	}, "token types to issue: access_token, id_token, userinfo")

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// userIDHeaders are the headers the directory mappers read the user id from
func userIDHeaders(cfg *config.Config) []string {
	headers := []string{mapper.DefaultUserIDHeader}
	for _, m := range cfg.Mappers {
		if m.Type == "user_directory" && m.UserIDHeader != "" && !slices.Contains(headers, m.UserIDHeader) {
			headers = append(headers, m.UserIDHeader)
		}
	}
	return headers
}
