package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningSecretKey = "test-signing-secret"

func newTestManager() *Manager {
	return New([]byte(testSigningSecretKey), 15*time.Minute, 24*time.Hour)
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, VerifyPassword("correct horse battery staple", hash))
	assert.False(t, VerifyPassword("wrong password", hash))
}

func TestTokenPairRoundTrip(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.NewTokenPair("user-42")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := manager.ParseToken(pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)

	claims, err = manager.ParseToken(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
}

func TestParseTokenRejectsWrongType(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.NewTokenPair("user-42")
	require.NoError(t, err)

	_, err = manager.ParseToken(pair.RefreshToken, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = manager.ParseToken(pair.AccessToken, TokenTypeRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	expiringManager := New([]byte(testSigningSecretKey), -time.Minute, -time.Minute)

	pair, err := expiringManager.NewTokenPair("user-42")
	require.NoError(t, err)

	_, err = expiringManager.ParseToken(pair.AccessToken, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	manager := newTestManager()
	foreignManager := New([]byte("some other secret"), 15*time.Minute, 24*time.Hour)

	pair, err := foreignManager.NewTokenPair("user-42")
	require.NoError(t, err)

	_, err = manager.ParseToken(pair.AccessToken, TokenTypeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateMiddleware(t *testing.T) {
	manager := newTestManager()

	pair, err := manager.NewTokenPair("user-42")
	require.NoError(t, err)

	var seenUserID string
	handler := manager.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name         string
		authHeader   string
		expectedCode int
	}{
		{
			name:         "valid access token",
			authHeader:   "Bearer " + pair.AccessToken,
			expectedCode: http.StatusOK,
		},
		{
			name:         "refresh token is not accepted",
			authHeader:   "Bearer " + pair.RefreshToken,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "missing header",
			authHeader:   "",
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "garbage token",
			authHeader:   "Bearer garbage",
			expectedCode: http.StatusUnauthorized,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			seenUserID = ""

			request := httptest.NewRequest(http.MethodGet, "/", nil)
			if test.authHeader != "" {
				request.Header.Set("Authorization", test.authHeader)
			}

			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, test.expectedCode, recorder.Code)
			if test.expectedCode == http.StatusOK {
				assert.Equal(t, "user-42", seenUserID)
			}
		})
	}
}
