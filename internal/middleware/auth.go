package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

// Claims is the token payload: the stable user identifier plus arbitrary
// provider metadata.
type Claims struct {
	Identifier string                 `json:"identifier"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	jwt.RegisteredClaims
}

const (
	// ContextIdentifier and ContextMetadata are the gin context keys the
	// handlers read after RequireAuth has run.
	ContextIdentifier = "auth_identifier"
	ContextMetadata   = "auth_metadata"

	defaultTokenTTL = 15 * 24 * time.Hour
)

type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	return &AuthMiddleware{
		log:    log.With("Middleware", "AuthMiddleware"),
		secret: []byte(secret),
	}
}

// CreateToken signs a token for the identifier. The TTL falls back to 15
// days when zero.
func (am *AuthMiddleware) CreateToken(identifier string, metadata map[string]interface{}, ttl time.Duration) (string, error) {
	if len(am.secret) == 0 {
		return "", apperrors.Validationf("auth secret is not configured")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	claims := Claims{
		Identifier: identifier,
		Metadata:   metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(am.secret)
}

// Verify parses and validates a signed token.
func (am *AuthMiddleware) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrUnauthorized
		}
		return am.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.ErrUnauthorized
	}
	if claims.Identifier == "" {
		return nil, apperrors.ErrUnauthorized
	}
	return claims, nil
}

// RequireAuth rejects requests without a valid token and stashes the
// verified identity in the gin context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		claims, err := am.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		c.Set(ContextIdentifier, claims.Identifier)
		c.Set(ContextMetadata, claims.Metadata)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if q := c.Query("token"); q != "" {
		return q
	}
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	if cookie, err := c.Cookie("access_token"); err == nil && cookie != "" {
		return cookie
	}
	return ""
}
