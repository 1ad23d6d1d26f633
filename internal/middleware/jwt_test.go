package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func runRequest(mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, echo.Context) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	_ = handler(c)
	return rec, c
}

func TestJWT(t *testing.T) {
	t.Run("valid token sets identity", func(t *testing.T) {
		tok := signToken(t, testSecret, jwt.MapClaims{"id": "u1", "email": "ada@test.ng"})
		rec, c := runRequest(JWT(testSecret), "Bearer "+tok)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got, _ := c.Get("user_id").(string); got != "u1" {
			t.Errorf("user_id = %q, want u1", got)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		rec, _ := runRequest(JWT(testSecret), "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		tok := signToken(t, "other-secret", jwt.MapClaims{"id": "u1"})
		rec, _ := runRequest(JWT(testSecret), "Bearer "+tok)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestJWTOptional(t *testing.T) {
	t.Run("valid token sets identity", func(t *testing.T) {
		tok := signToken(t, testSecret, jwt.MapClaims{"sub": "u1"})
		rec, c := runRequest(JWTOptional(testSecret), "Bearer "+tok)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got, _ := c.Get("user_id").(string); got != "u1" {
			t.Errorf("user_id = %q, want u1", got)
		}
	})

	t.Run("missing token passes anonymously", func(t *testing.T) {
		rec, c := runRequest(JWTOptional(testSecret), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if c.Get("user_id") != nil {
			t.Error("user_id set without a token")
		}
	})

	t.Run("expired token passes anonymously", func(t *testing.T) {
		tok := signToken(t, testSecret, jwt.MapClaims{"id": "u1", "exp": 1})
		rec, c := runRequest(JWTOptional(testSecret), "Bearer "+tok)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if c.Get("user_id") != nil {
			t.Error("user_id set from an expired token")
		}
	})
}
