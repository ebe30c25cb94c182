package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/spamguard-go/internal/api/v2/auth"
	"github.com/tphakala/spamguard-go/internal/datastore"
	"github.com/tphakala/spamguard-go/internal/logger"
)

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse wraps a single account.
type UserResponse struct {
	Success bool            `json:"success"`
	User    *datastore.User `json:"user"`
}

// LoginResponse carries the bearer token issued at login.
type LoginResponse struct {
	Success bool            `json:"success"`
	Token   string          `json:"token"`
	User    *datastore.User `json:"user"`
}

// Register creates an account.
func (c *Controller) Register(ctx echo.Context) error {
	var req RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		return respondError(ctx, http.StatusBadRequest, "Invalid request body")
	}

	user, err := c.accounts.Register(ctx.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	c.logger.WithContext(ctx.Request().Context()).Info("user registered",
		logger.Uint64("user_id", uint64(user.ID)),
		logger.String("ip", ctx.RealIP()))
	return ctx.JSON(http.StatusCreated, UserResponse{Success: true, User: user})
}

// Login verifies credentials, starts a cookie session and returns a bearer token.
func (c *Controller) Login(ctx echo.Context) error {
	var req LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return respondError(ctx, http.StatusBadRequest, "Invalid request body")
	}

	user, err := c.accounts.Authenticate(ctx.Request().Context(), req.Username, req.Password)
	if err != nil {
		c.logger.WithContext(ctx.Request().Context()).Info("login failed",
			logger.String("username", req.Username),
			logger.String("ip", ctx.RealIP()))
		return c.HandleError(ctx, err)
	}

	token, err := c.accounts.IssueToken(user)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	if err := c.accounts.StartSession(ctx.Response(), ctx.Request(), user); err != nil {
		return c.HandleError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Success: true, Token: token, User: user})
}

// Logout clears the session cookie. Bearer tokens stay valid until they expire.
func (c *Controller) Logout(ctx echo.Context) error {
	if err := c.accounts.EndSession(ctx.Response(), ctx.Request()); err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out",
	})
}

// Me returns the authenticated account.
func (c *Controller) Me(ctx echo.Context) error {
	id, _ := auth.UserID(ctx)
	user, err := c.accounts.User(ctx.Request().Context(), id)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, UserResponse{Success: true, User: user})
}
