package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// parseBearer validates an HS256 access token and returns its subject and
// role claims.
func parseBearer(secret, header string) (uint64, string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return 0, "", false
	}
	raw := strings.TrimPrefix(header, "Bearer ")
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return 0, "", false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", false
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return 0, "", false
	}
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return 0, "", false
	}
	role, _ := claims["role"].(string)
	return id, role, true
}

// JWTAuth rejects requests without a valid Bearer access token and stores
// the user id and role claim in the context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			id, role, ok := parseBearer(secret, auth)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(ctxUserID, id)
			c.Set(ctxRole, role)
			return next(c)
		}
	}
}

// OptionalAuth is JWTAuth for public routes: a valid token identifies the
// caller, an absent or invalid one leaves the request anonymous.
func OptionalAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id, role, ok := parseBearer(secret, c.Request().Header.Get(echo.HeaderAuthorization)); ok {
				c.Set(ctxUserID, id)
				c.Set(ctxRole, role)
			}
			return next(c)
		}
	}
}

// UserID returns the authenticated user, if any.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// ExecChecker answers whether a user is exec.  service.ProfileAuthority
// implements it.
type ExecChecker interface {
	IsExec(ctx context.Context, userID uint64) (bool, error)
}

// RequireExec admits only exec users.  The check goes to the store rather
// than trusting the token's role claim, so revoking exec takes effect
// immediately.
func RequireExec(auth ExecChecker, log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := UserID(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			exec, err := auth.IsExec(c.Request().Context(), id)
			if err != nil {
				log.Error("exec check failed", slog.Uint64("user_id", id), slog.Any("error", err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
			}
			if !exec {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
