// Package auth provides the echo authentication middleware for the v2 API.
package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/spamguard-go/internal/logger"
)

// Context keys set by Authenticate.
const (
	ContextUserID   = "auth:userID"
	ContextUsername = "auth:username"
	ContextMethod   = "auth:method"
)

// AuthMethod records how a request was authenticated.
type AuthMethod string

const (
	AuthMethodNone    AuthMethod = "none"
	AuthMethodToken   AuthMethod = "token"
	AuthMethodSession AuthMethod = "session"
)

// Service resolves request credentials to a user.
type Service interface {
	// ParseToken validates a bearer token and returns its user.
	ParseToken(token string) (uint, string, error)
	// SessionUser returns the user held in the request's session cookie.
	SessionUser(r *http.Request) (uint, string, bool)
}

// Middleware provides authentication middleware backed by a Service.
type Middleware struct {
	AuthService Service
	logger      logger.Logger
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(service Service, log logger.Logger) *Middleware {
	if log == nil {
		log = logger.Global().Module("auth")
	}
	return &Middleware{AuthService: service, logger: log}
}

// Authenticate identifies the caller from a Bearer token or, failing that,
// the session cookie. It never rejects; RequireAuth does.
// An invalid bearer token does not fall back to the session.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(ContextMethod, AuthMethodNone)
		if m.AuthService == nil {
			return next(c)
		}

		if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				id, name, err := m.AuthService.ParseToken(strings.TrimSpace(parts[1]))
				if err == nil {
					setUser(c, id, name, AuthMethodToken)
				} else {
					m.logger.Debug("bearer token rejected",
						logger.String("path", c.Request().URL.Path),
						logger.String("ip", c.RealIP()))
				}
				return next(c)
			}
		}

		if id, name, ok := m.AuthService.SessionUser(c.Request()); ok {
			setUser(c, id, name, AuthMethodSession)
		}
		return next(c)
	}
}

// RequireAuth authenticates the request and rejects anonymous callers with 401.
func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.Authenticate(func(c echo.Context) error {
		if _, ok := UserID(c); !ok {
			return c.JSON(http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   "Authentication required",
			})
		}
		return next(c)
	})
}

// OptionalAuth authenticates the request when credentials are present.
func (m *Middleware) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.Authenticate(next)
}

func setUser(c echo.Context, id uint, name string, method AuthMethod) {
	c.Set(ContextUserID, id)
	c.Set(ContextUsername, name)
	c.Set(ContextMethod, method)
}

// UserID returns the authenticated user's ID.
func UserID(c echo.Context) (uint, bool) {
	id, ok := c.Get(ContextUserID).(uint)
	return id, ok && id != 0
}

// Username returns the authenticated user's name, or "".
func Username(c echo.Context) string {
	name, _ := c.Get(ContextUsername).(string)
	return name
}

// Method returns how the request was authenticated.
func Method(c echo.Context) AuthMethod {
	if method, ok := c.Get(ContextMethod).(AuthMethod); ok {
		return method
	}
	return AuthMethodNone
}
