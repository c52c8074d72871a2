package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles understood by RequireRole.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// SessionClaims represents JWT claims for a session.
//
// The custom claims mirror the token payload clients already decode:
// {id, email, role}.
type SessionClaims struct {
	jwt.RegisteredClaims

	// UserID is the unique user identifier
	UserID string `json:"id"`

	// Email is the user's email address
	Email string `json:"email"`

	// Role is the user's role (user or admin)
	Role string `json:"role"`
}

// SessionManager handles JWT session creation and validation.
type SessionManager struct {
	// signingKey is the secret key for signing JWTs
	signingKey []byte

	// issuer is the JWT issuer (e.g., "tradeflow")
	issuer string

	// tokenDuration is how long tokens are valid (default: 7 days)
	tokenDuration time.Duration

	now func() time.Time
}

// NewSessionManager creates a new session manager.
//
// Parameters:
//   - signingKey: Secret key for signing JWTs (must be kept secure)
//   - issuer: JWT issuer identifier (e.g., "tradeflow")
func NewSessionManager(signingKey []byte, issuer string) *SessionManager {
	return &SessionManager{
		signingKey:    signingKey,
		issuer:        issuer,
		tokenDuration: 7 * 24 * time.Hour,
		now:           time.Now,
	}
}

// WithTokenDuration sets a custom token lifetime.
func (sm *SessionManager) WithTokenDuration(d time.Duration) *SessionManager {
	if d > 0 {
		sm.tokenDuration = d
	}
	return sm
}

// WithClock replaces the time source. Used by tests.
func (sm *SessionManager) WithClock(now func() time.Time) *SessionManager {
	sm.now = now
	return sm
}

// TokenDuration returns the configured token lifetime.
func (sm *SessionManager) TokenDuration() time.Duration {
	return sm.tokenDuration
}

// Issue signs a token for the identity and returns it with its expiry.
func (sm *SessionManager) Issue(id Identity) (string, time.Time, error) {
	if id.ID == "" {
		return "", time.Time{}, NewError(ErrTokenInvalid, "user ID cannot be empty", nil)
	}
	if id.Email == "" {
		return "", time.Time{}, NewError(ErrTokenInvalid, "email cannot be empty", nil)
	}
	if id.Role == "" {
		id.Role = RoleUser
	}

	now := sm.now()
	expiresAt := now.Add(sm.tokenDuration)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sm.issuer,
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		UserID: id.ID,
		Email:  id.Email,
		Role:   id.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(sm.signingKey)
	if err != nil {
		return "", time.Time{}, WrapError(ErrTokenSigningFailed, "failed to sign token", err, map[string]interface{}{
			"user_id": id.ID,
		})
	}
	return signed, expiresAt, nil
}

// Verify validates a token and returns the identity it carries.
//
// Returns an error if the token is expired, malformed, signed with another
// key or method, or issued by someone else.
func (sm *SessionManager) Verify(tokenString string) (*Identity, error) {
	claims, err := sm.ValidateSessionToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &Identity{ID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

// ValidateSessionToken validates and parses a JWT session token.
func (sm *SessionManager) ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, NewError(ErrTokenMissing, "token cannot be empty", nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, NewError(ErrTokenInvalid, "invalid signing method", map[string]interface{}{
				"method": token.Header["alg"],
			})
		}
		return sm.signingKey, nil
	},
		jwt.WithIssuer(sm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(sm.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, WrapError(ErrTokenExpired, "token has expired", err, nil)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, NewError(ErrTokenInvalid, "invalid token signature", nil)
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, NewError(ErrTokenInvalid, "invalid issuer", map[string]interface{}{
				"expected": sm.issuer,
			})
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, WrapError(ErrTokenMalformed, "failed to parse token", err, nil)
		}
		return nil, WrapError(ErrTokenInvalid, "invalid token", err, nil)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, NewError(ErrTokenInvalid, "invalid token claims", nil)
	}
	return claims, nil
}
