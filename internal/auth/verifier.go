package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("authorization token required")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoUser       = errors.New("token does not resolve to a user")
)

// Identity is a verified caller.
type Identity struct {
	UserID string
	Email  string
}

// Verifier resolves a bearer token to a caller identity. Failures wrap
// ErrInvalidToken or ErrNoUser; any other error is a verification fault.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTVerifier validates HMAC-signed tokens locally.
type JWTVerifier struct {
	secret   []byte
	audience string
}

func NewJWTVerifier(secret, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(strings.TrimSpace(secret)), audience: strings.TrimSpace(audience)}
}

type jwtClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, errors.New("jwt secret is not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &jwtClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return Identity{}, ErrNoUser
	}
	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// RemoteVerifier asks a hosted identity service who owns the token.
type RemoteVerifier struct {
	client *resty.Client
}

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// NewRemoteVerifier builds a verifier that calls GET {baseURL}/user with the
// caller's bearer token.
func NewRemoteVerifier(baseURL, apiKey string, timeout time.Duration) *RemoteVerifier {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("apikey", apiKey)
	}
	return &RemoteVerifier{client: client}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	user := &remoteUser{}
	res, err := v.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(user).
		Get("/user")
	if err != nil {
		return Identity{}, fmt.Errorf("identity service request failed: %w", err)
	}

	switch code := res.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Identity{}, ErrInvalidToken
	case code == http.StatusNotFound:
		return Identity{}, ErrNoUser
	case res.IsError():
		return Identity{}, fmt.Errorf("identity service returned status %d", code)
	}

	if user.ID == "" {
		return Identity{}, ErrNoUser
	}
	return Identity{UserID: user.ID, Email: user.Email}, nil
}
