// Package auth provides bearer-token authentication for HTTP requests.
// It issues and verifies the access and refresh JWTs of the API and exposes
// middleware that injects the authenticated user ID into the request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/shpagin/bookmarker/internal/models"
)

// Token types carried in the custom claim. A refresh token is never accepted
// on routes protected with an access token and vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrInvalidToken is returned when a token cannot be parsed, fails signature
// verification, is expired, or carries the wrong token type.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents the JWT claims used by the system.
// It embeds standard JWT claims and adds the user identity and token type.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserIDKey is the context key used to store and retrieve the authenticated user's ID.
const UserIDKey ContextKey = "userID"

// Manager issues and verifies the JWTs of the API.
type Manager struct {
	signingSecretKey []byte
	accessTokenTTL   time.Duration
	refreshTokenTTL  time.Duration
}

// New creates a Manager signing tokens with the given secret. Access tokens
// are short-lived, refresh tokens longer-lived.
func New(signingSecretKey []byte, accessTokenTTL, refreshTokenTTL time.Duration) *Manager {
	return &Manager{
		signingSecretKey: signingSecretKey,
		accessTokenTTL:   accessTokenTTL,
		refreshTokenTTL:  refreshTokenTTL,
	}
}

// NewAccessToken issues a fresh access token bound to the user's ID.
func (m *Manager) NewAccessToken(userID string) (string, error) {
	return m.buildJWTString(userID, TokenTypeAccess, m.accessTokenTTL)
}

// NewTokenPair issues an access and a refresh token bound to the user's ID.
func (m *Manager) NewTokenPair(userID string) (models.TokenPair, error) {
	accessToken, err := m.buildJWTString(userID, TokenTypeAccess, m.accessTokenTTL)
	if err != nil {
		return models.TokenPair{}, err
	}

	refreshToken, err := m.buildJWTString(userID, TokenTypeRefresh, m.refreshTokenTTL)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// ParseToken verifies the token string and returns its claims.
// Tokens of a type other than wantType are rejected.
func (m *Manager) ParseToken(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.signingSecretKey, nil
		},
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != wantType || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Authenticate is an HTTP middleware that requires a valid access token in
// the Authorization header and stores the user ID in the request context.
func (m *Manager) Authenticate(h http.Handler) http.Handler {
	return m.authenticate(h, TokenTypeAccess)
}

// AuthenticateRefresh is the same middleware for routes that expect a refresh
// token, such as the access-token renewal endpoint.
func (m *Manager) AuthenticateRefresh(h http.Handler) http.Handler {
	return m.authenticate(h, TokenTypeRefresh)
}

func (m *Manager) authenticate(h http.Handler, wantType string) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		claims, err := m.ParseToken(tokenStringFromRequest(request), wantType)
		if err != nil {
			response.Header().Set("Content-Type", "application/json")
			response.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(response).Encode(map[string]string{"error": "Missing or invalid token"})

			return
		}

		ctx := context.WithValue(request.Context(), UserIDKey, claims.UserID)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// UserIDFromContext returns the authenticated user's ID stored by the middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

func tokenStringFromRequest(request *http.Request) string {
	header := request.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
}

func (m *Manager) buildJWTString(userID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:    userID,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(m.signingSecretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}
