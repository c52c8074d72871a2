package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	tferrors "github.com/felixgeelhaar/tradeflow/internal/errors"
)

func newTestUsers() *UserStore {
	return NewUserStore().WithCost(bcrypt.MinCost)
}

func TestRegisterInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      RegisterInput
		wantErr bool
	}{
		{"valid", RegisterInput{Email: "kim@example.com", Username: "kim", Password: "secret1"}, false},
		{"bad email", RegisterInput{Email: "kim", Username: "kim", Password: "secret1"}, true},
		{"short username", RegisterInput{Email: "kim@example.com", Username: "k", Password: "secret1"}, true},
		{"two rune username", RegisterInput{Email: "kim@example.com", Username: "김철", Password: "secret1"}, false},
		{"short password", RegisterInput{Email: "kim@example.com", Username: "kim", Password: "12345"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsAuthError(err, ErrRegistrationInvalid))
				assert.Equal(t, tferrors.KindValidation, tferrors.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUserStore_Register(t *testing.T) {
	ctx := context.Background()
	users := newTestUsers()

	u, err := users.Register(ctx, RegisterInput{Email: " Kim@Example.com ", Username: "kim", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "kim@example.com", u.Email)
	assert.Equal(t, RoleUser, u.Role)
	assert.True(t, u.Active)
	assert.Nil(t, u.PasswordHash)

	_, err = users.Register(ctx, RegisterInput{Email: "kim@example.com", Username: "other", Password: "secret2"})
	require.Error(t, err)
	assert.True(t, IsAuthError(err, ErrEmailTaken))
}

func TestUserStore_RegisterConcurrentSameEmail(t *testing.T) {
	ctx := context.Background()
	users := newTestUsers()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := users.Register(ctx, RegisterInput{Email: "dup@example.com", Username: "dup", Password: "secret1"}); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestUserStore_Authenticate(t *testing.T) {
	ctx := context.Background()
	users := newTestUsers()
	u, err := users.Register(ctx, RegisterInput{Email: "kim@example.com", Username: "kim", Password: "secret1"})
	require.NoError(t, err)

	t.Run("success records login", func(t *testing.T) {
		got, err := users.Authenticate(ctx, "KIM@example.com", "secret1")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.NotNil(t, got.LastLoginAt)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		_, errPw := users.Authenticate(ctx, "kim@example.com", "wrong")
		_, errEmail := users.Authenticate(ctx, "nobody@example.com", "secret1")
		require.Error(t, errPw)
		require.Error(t, errEmail)
		assert.Equal(t, errPw.Error(), errEmail.Error())
		assert.True(t, IsAuthError(errPw, ErrInvalidCredentials))
	})

	t.Run("inactive account rejected", func(t *testing.T) {
		require.NoError(t, users.SetActive(ctx, u.ID, false))
		_, err := users.Authenticate(ctx, "kim@example.com", "secret1")
		require.Error(t, err)
		assert.True(t, IsAuthError(err, ErrAccountDisabled))
		require.NoError(t, users.SetActive(ctx, u.ID, true))
	})
}

func TestUserStore_UnknownUser(t *testing.T) {
	ctx := context.Background()
	users := newTestUsers()

	_, err := users.Get(ctx, "missing")
	assert.True(t, IsAuthError(err, ErrUserNotFound))
	assert.True(t, IsAuthError(users.SetActive(ctx, "missing", false), ErrUserNotFound))
	assert.True(t, IsAuthError(users.SetRole(ctx, "missing", RoleAdmin), ErrUserNotFound))
}
