package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/tkoivu/threadline-backend/internal/pkg/errors"
	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

func newAuth(t *testing.T, secret string) *AuthMiddleware {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return NewAuthMiddleware(log, secret)
}

func TestTokenRoundTrip(t *testing.T) {
	am := newAuth(t, "topsecret")

	token, err := am.CreateToken("admin@example.com", map[string]interface{}{"provider": "header"}, 0)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	claims, err := am.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Identifier != "admin@example.com" {
		t.Fatalf("identifier round trip broken: %q", claims.Identifier)
	}
	if claims.Metadata["provider"] != "header" {
		t.Fatalf("metadata round trip broken: %v", claims.Metadata)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := newAuth(t, "secret-a").CreateToken("u", nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if _, err := newAuth(t, "secret-b").Verify(token); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	am := newAuth(t, "topsecret")
	token, err := am.CreateToken("u", nil, time.Nanosecond)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := am.Verify(token); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	am := newAuth(t, "topsecret")
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := am.Verify(tok); !errors.Is(err, apperrors.ErrUnauthorized) {
			t.Fatalf("token %q: expected ErrUnauthorized, got %v", tok, err)
		}
	}
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	am := newAuth(t, "topsecret")

	r := gin.New()
	r.GET("/whoami", am.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextIdentifier))
	})

	// No token.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	token, err := am.CreateToken("alice", nil, time.Hour)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	// Bearer header.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "alice" {
		t.Fatalf("bearer auth failed: %d %q", w.Code, w.Body.String())
	}

	// Query token, the socket path.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("query token auth failed: %d", w.Code)
	}

	// Cookie fallback.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("cookie auth failed: %d", w.Code)
	}
}
