package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	ctxUserID    = "user_id"
	ctxRole      = "role"
	ctxPatientID = "patient_id"
)

// Authenticate validates the bearer token and places the caller's identity on
// the request context.
func Authenticate(tokens *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "malformed authorization header")
			}

			claims, err := tokens.Parse(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxRole, claims.Role)
			c.Set(ctxPatientID, claims.PatientID)
			return next(c)
		}
	}
}

// RequireRole allows only the given role through. Admin passes every check.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			current := Role(c)
			if current == role || current == RoleAdmin {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
		}
	}
}

// UserID returns the authenticated user's id, or "" outside Authenticate.
func UserID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

// Role returns the authenticated user's role.
func Role(c echo.Context) string {
	role, _ := c.Get(ctxRole).(string)
	return role
}

// PatientID returns the patient bound to the authenticated user. Empty for
// admins.
func PatientID(c echo.Context) string {
	id, _ := c.Get(ctxPatientID).(string)
	return id
}
