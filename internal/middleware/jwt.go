package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// JWT validates the bearer token and puts user_id and email on the
// request context for handlers downstream.
func JWT(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := parseBearer(c, key)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or missing token"})
			}
			uid, _ := claims["id"].(string)
			if uid == "" {
				uid, _ = claims["sub"].(string)
			}
			if uid == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token claims"})
			}
			c.Set("user_id", uid)
			if email, ok := claims["email"].(string); ok {
				c.Set("email", email)
			}
			return next(c)
		}
	}
}

// JWTOptional attaches user_id when a valid bearer token is present
// and lets the request through anonymously otherwise. Routes that must
// survive an expired checkout session use this instead of JWT.
func JWTOptional(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := parseBearer(c, key)
			if err != nil {
				return next(c)
			}
			uid, _ := claims["id"].(string)
			if uid == "" {
				uid, _ = claims["sub"].(string)
			}
			if uid != "" {
				c.Set("user_id", uid)
			}
			if email, ok := claims["email"].(string); ok {
				c.Set("email", email)
			}
			return next(c)
		}
	}
}

func parseBearer(c echo.Context, key []byte) (jwt.MapClaims, error) {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, errors.New("missing bearer token")
	}
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
