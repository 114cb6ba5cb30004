package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"budgetlist/internal/core"
	"budgetlist/internal/storage"
)

const testSecret = "test-secret-that-is-long-enough"

func newTestService(t *testing.T) *Service {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	s := NewService(repo, NewJWTManager(testSecret, time.Hour))
	s.cost = bcrypt.MinCost
	return s
}

func TestRegister(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, " Ana@Example.com ", "correct horse", "")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, "ana", u.Name)
	assert.NotEmpty(t, u.ID)

	_, err = s.Register(ctx, "ana@example.com", "another password", "Ana")
	assert.ErrorIs(t, err, core.ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestService(t)

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"missing at sign", "ana.example.com", "long enough", ErrInvalidEmail},
		{"short password", "ana@example.com", "short", ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), tt.email, tt.password, "")
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
}

func TestLogin(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	registered, err := s.Register(ctx, "bo@example.com", "password123", "Bo")
	require.NoError(t, err)

	token, u, err := s.Login(ctx, "BO@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	claims, err := s.Tokens().Validate(token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, claims.UserID)
	assert.Equal(t, "bo@example.com", claims.Email)

	_, _, err = s.Login(ctx, "bo@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	_, _, err = s.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestJWTManager(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	user := &core.User{ID: "user-1", Email: "ana@example.com"}

	t.Run("round trip", func(t *testing.T) {
		token, err := m.Generate(user)
		require.NoError(t, err)
		claims, err := m.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewJWTManager(testSecret, time.Hour)
		old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := old.Generate(user)
		require.NoError(t, err)

		_, err = m.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTManager("some-other-secret-value", time.Hour).Generate(user)
		require.NoError(t, err)
		_, err = m.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "user-1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("default ttl", func(t *testing.T) {
		assert.Equal(t, DefaultTokenTTL, NewJWTManager(testSecret, 0).tokenDuration)
	})
}

func TestRequireAuth(t *testing.T) {
	m := NewJWTManager(testSecret, time.Hour)
	token, err := m.Generate(&core.User{ID: "user-1", Email: "ana@example.com"})
	require.NoError(t, err)

	var seen string
	var failure error
	h := RequireAuth(m, func(w http.ResponseWriter, _ *http.Request, err error) {
		failure = err
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
		want   error
	}{
		{"valid", "Bearer " + token, http.StatusOK, nil},
		{"lowercase scheme", "bearer " + token, http.StatusOK, nil},
		{"missing", "", http.StatusUnauthorized, ErrMissingToken},
		{"basic scheme", "Basic abc", http.StatusUnauthorized, ErrInvalidToken},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, failure = "", nil
			req := httptest.NewRequest(http.MethodGet, "/api/lists", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.want == nil {
				assert.Equal(t, "user-1", seen)
				return
			}
			assert.Empty(t, seen)
			assert.True(t, errors.Is(failure, tt.want), "got %v", failure)
			assert.ErrorIs(t, failure, core.ErrUnauthorized)
		})
	}
}
