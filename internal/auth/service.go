package auth

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/tradeflow/internal/log"
)

// Result is returned by register and login.
type Result struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service combines the user store and the session manager.
type Service struct {
	users             *UserStore
	sessions          *SessionManager
	allowRegistration bool
	logger            *log.Logger
}

// NewService creates an auth service. A nil logger discards output.
func NewService(users *UserStore, sessions *SessionManager, allowRegistration bool, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{
		users:             users,
		sessions:          sessions,
		allowRegistration: allowRegistration,
		logger:            logger.WithComponent("auth"),
	}
}

// Sessions returns the session manager, which also acts as the request Verifier.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Register creates an account and signs a token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	if !s.allowRegistration {
		return nil, NewError(ErrRegistrationClosed, "registration is disabled", nil)
	}
	u, err := s.users.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID)
	return s.issue(u)
}

// Login authenticates credentials and signs a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	u, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		s.logger.WarnContext(ctx, "login rejected", "reason", errorCode(err))
		return nil, err
	}
	s.logger.InfoContext(ctx, "user logged in", "user_id", u.ID)
	return s.issue(u)
}

// Current returns the account behind a verified identity.
func (s *Service) Current(ctx context.Context, id *Identity) (*User, error) {
	if id == nil {
		return nil, NewError(ErrTokenMissing, "authentication required", nil)
	}
	u, err := s.users.Get(ctx, id.ID)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, NewError(ErrAccountDisabled, "account is disabled", nil)
	}
	return u, nil
}

// Refresh signs a new token for the account behind id. The new token carries
// the account's current role.
func (s *Service) Refresh(ctx context.Context, id *Identity) (*Result, error) {
	u, err := s.Current(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "token refreshed", "user_id", u.ID)
	return s.issue(u)
}

// AccountPatch lists the account fields an administrator may change.
type AccountPatch struct {
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
}

// UpdateAccount applies patch to the account userID.
func (s *Service) UpdateAccount(ctx context.Context, userID string, patch AccountPatch) (*User, error) {
	if patch.Role != nil && *patch.Role != RoleUser && *patch.Role != RoleAdmin {
		return nil, NewError(ErrInvalidRole, "unknown role: "+*patch.Role, map[string]interface{}{
			"allowed": []string{RoleUser, RoleAdmin},
		})
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, NewError(ErrAccountNotFound, "account not found", map[string]interface{}{"user_id": userID})
	}
	if patch.Role != nil {
		if err := s.users.SetRole(ctx, userID, *patch.Role); err != nil {
			return nil, err
		}
	}
	if patch.IsActive != nil {
		if err := s.users.SetActive(ctx, userID, *patch.IsActive); err != nil {
			return nil, err
		}
	}
	s.logger.InfoContext(ctx, "account updated", "user_id", userID)
	return s.users.Get(ctx, userID)
}

func (s *Service) issue(u *User) (*Result, error) {
	token, exp, err := s.sessions.Issue(u.Identity())
	if err != nil {
		return nil, err
	}
	return &Result{User: u, Token: token, ExpiresAt: exp}, nil
}

func errorCode(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "unknown"
}
