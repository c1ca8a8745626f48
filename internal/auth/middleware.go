package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/wardrobe-scan/internal/apperror"
)

type contextKey string

const userIDKey contextKey = "authUserID"

// GetUserID retrieves the authenticated subject from context.
func GetUserID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(userIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// WithUserID returns a context carrying the authenticated subject.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Middleware validates bearer tokens and injects the caller identity.
// Missing, invalid and unresolvable tokens are rejected with 401; any other
// verification fault is a 500.
func Middleware(verifier Verifier, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("auth")

	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			unauthorized(c, err)
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrNoUser):
			unauthorized(c, err)
			return
		default:
			logger.Error("token verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, apperror.Response{
				Error:   apperror.KindUnexpected,
				Details: "unable to verify credentials",
			})
			return
		}

		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), identity.UserID))
		c.Set(string(userIDKey), identity.UserID)

		c.Next()
	}
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

func unauthorized(c *gin.Context, err error) {
	details := err.Error()
	if errors.Is(err, ErrInvalidToken) {
		details = ErrInvalidToken.Error()
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperror.Response{Error: apperror.KindAuth, Details: details})
}
