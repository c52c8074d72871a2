package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tradeflow/internal/auth"
	"github.com/felixgeelhaar/tradeflow/internal/errors"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(newTokenIssueCmd(root))
	return cmd
}

func newTokenIssueCmd(root *rootOptions) *cobra.Command {
	var (
		email  string
		userID string
		role   string
		ttl    time.Duration
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token with the configured secret",
		Long: `Sign a bearer token for a user without going through /api/auth/login.
The token is accepted by a server running with the same auth.jwt_secret
and auth.issuer.

Plans are owned by the user id in the token, so reuse --user-id to keep
working with the same plans.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.NewValidationError("--email is required")
			}
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if userID == "" {
				userID = uuid.NewString()
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			sessions := auth.NewSessionManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer).WithTokenDuration(ttl)
			token, expires, err := sessions.Issue(auth.Identity{ID: userID, Email: email, Role: role})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, map[string]any{
					"token":     token,
					"userId":    userID,
					"expiresAt": expires.UTC(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email claim of the token")
	cmd.Flags().StringVar(&userID, "user-id", "", "subject of the token (default: random id)")
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "role claim of the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from auth.token_ttl)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print token, user id and expiry as JSON")
	return cmd
}
