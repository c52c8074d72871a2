package auth

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLength = 2
	minPasswordLength = 6
)

// User is a registered account. PasswordHash never leaves the store.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	Role         string     `json:"role"`
	Active       bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	PasswordHash []byte     `json:"-"`
}

// Identity returns the token identity of the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role}
}

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks the registration rules.
func (in RegisterInput) Validate() error {
	if _, err := mail.ParseAddress(in.Email); err != nil || !strings.Contains(in.Email, "@") {
		return NewError(ErrRegistrationInvalid, "a valid email is required", map[string]interface{}{"field": "email"})
	}
	if len([]rune(strings.TrimSpace(in.Username))) < minUsernameLength {
		return NewError(ErrRegistrationInvalid, "username must be at least 2 characters", map[string]interface{}{"field": "username"})
	}
	if len(in.Password) < minPasswordLength {
		return NewError(ErrRegistrationInvalid, "password must be at least 6 characters", map[string]interface{}{"field": "password"})
	}
	return nil
}

// UserStore keeps accounts in memory, keyed by id with an email index.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	cost    int
	now     func() time.Time
}

// NewUserStore creates an empty store hashing with bcrypt.DefaultCost.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
	}
}

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func (s *UserStore) WithCost(cost int) *UserStore {
	s.cost = cost
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an active account with the user role.
func (s *UserStore) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, WrapError(ErrRegistrationInvalid, "failed to hash password", err, nil)
	}

	email := normalizeEmail(in.Email)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return nil, NewError(ErrEmailTaken, "email is already registered", nil)
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     strings.TrimSpace(in.Username),
		Role:         RoleUser,
		Active:       true,
		CreatedAt:    s.now(),
		PasswordHash: hash,
	}
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	return u.public(), nil
}

// Authenticate checks credentials. Unknown email and wrong password return
// the same error.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	invalid := NewError(ErrInvalidCredentials, "invalid email or password", nil)

	s.mu.RLock()
	id, ok := s.byEmail[normalizeEmail(email)]
	var u *User
	if ok {
		u = s.byID[id]
	}
	s.mu.RUnlock()

	if u == nil {
		return nil, invalid
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, invalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !u.Active {
		return nil, NewError(ErrAccountDisabled, "account is disabled", nil)
	}
	now := s.now()
	u.LastLoginAt = &now
	return u.public(), nil
}

// Get returns the user with the given id.
func (s *UserStore) Get(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, NewError(ErrUserNotFound, "user not found", nil)
	}
	return u.public(), nil
}

// SetActive enables or disables an account.
func (s *UserStore) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return NewError(ErrUserNotFound, "user not found", nil)
	}
	u.Active = active
	return nil
}

// SetRole changes the role of an account.
func (s *UserStore) SetRole(ctx context.Context, id, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return NewError(ErrUserNotFound, "user not found", nil)
	}
	u.Role = role
	return nil
}

// public returns a copy without the password hash. Callers hold s.mu.
func (u *User) public() *User {
	cp := *u
	cp.PasswordHash = nil
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}
