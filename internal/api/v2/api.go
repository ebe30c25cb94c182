// Package api implements the JSON endpoints served under /api.
package api

import (
	"context"
	"crypto/rand"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/spamguard-go/internal/api/middleware"
	"github.com/tphakala/spamguard-go/internal/api/v2/auth"
	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/datastore"
	"github.com/tphakala/spamguard-go/internal/detection"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
	"github.com/tphakala/spamguard-go/internal/observability/metrics"
)

// Detector runs the classification pipeline.
type Detector interface {
	Classify(ctx context.Context, t classifier.ContentType, text string, userID *uint) (*detection.Result, error)
	Provider() string
	HasVerifier() bool
}

// ModelStatus reports which models are loaded and how they scored.
type ModelStatus interface {
	Loaded() []classifier.ContentType
	Evaluation() classifier.Evaluation
}

// HistoryStore reads and prunes a user's classification history.
type HistoryStore interface {
	GetUserHistory(ctx context.Context, userID uint, limit int) ([]datastore.SearchHistory, error)
	GetUserStats(ctx context.Context, userID uint) (*datastore.UserStats, error)
	DeleteHistoryItem(ctx context.Context, userID, id uint) (bool, error)
	ClearUserHistory(ctx context.Context, userID uint) (int64, error)
}

// Accounts manages registration, login and sessions.
type Accounts interface {
	auth.Service
	Register(ctx context.Context, username, email, password string) (*datastore.User, error)
	Authenticate(ctx context.Context, username, password string) (*datastore.User, error)
	User(ctx context.Context, id uint) (*datastore.User, error)
	IssueToken(user *datastore.User) (string, error)
	StartSession(w http.ResponseWriter, r *http.Request, user *datastore.User) error
	EndSession(w http.ResponseWriter, r *http.Request) error
}

// TextExtractor pulls text out of uploaded documents.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	detector  Detector
	models    ModelStatus
	history   HistoryStore
	accounts  Accounts
	extractor TextExtractor

	httpMetrics    *metrics.HTTPMetrics
	authMiddleware *auth.Middleware
	limiter        *middleware.ClientRateLimiter
	logger         logger.Logger
	version        string
	startTime      time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithModels exposes model status and evaluation metrics.
func WithModels(m ModelStatus) Option {
	return func(c *Controller) { c.models = m }
}

// WithHistory enables the /api/history endpoints. They also require WithAccounts.
func WithHistory(h HistoryStore) Option {
	return func(c *Controller) { c.history = h }
}

// WithAccounts enables the /api/auth endpoints and request authentication.
func WithAccounts(a Accounts) Option {
	return func(c *Controller) { c.accounts = a }
}

// WithExtractor enables /api/upload/extract.
func WithExtractor(x TextExtractor) Option {
	return func(c *Controller) { c.extractor = x }
}

// WithHTTPMetrics records upload outcomes.
func WithHTTPMetrics(m *metrics.HTTPMetrics) Option {
	return func(c *Controller) { c.httpMetrics = m }
}

// WithVersion sets the version reported by /api/health.
func WithVersion(v string) Option {
	return func(c *Controller) { c.version = v }
}

// WithStartTime sets the time uptime is measured from.
func WithStartTime(t time.Time) Option {
	return func(c *Controller) { c.startTime = t }
}

// New creates the controller and registers its routes under /api.
func New(e *echo.Echo, settings *conf.Settings, detector Detector, opts ...Option) (*Controller, error) {
	if detector == nil {
		return nil, errors.Newf("api: detector is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings == nil {
		settings = &conf.Settings{}
	}

	c := &Controller{
		Echo:      e,
		Settings:  settings,
		detector:  detector,
		logger:    GetLogger(),
		version:   "dev",
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.accounts != nil {
		c.authMiddleware = auth.NewMiddleware(c.accounts, c.logger.Module("auth"))
	}
	if settings.Server.RateLimit > 0 {
		c.limiter = middleware.NewClientRateLimiter(settings.Server.RateLimit, 0)
	}

	e.IPExtractor = ipExtractorFromProxyHeaders
	c.Group = e.Group("/api")
	c.initRoutes()
	return c, nil
}

func (c *Controller) initRoutes() {
	limited := c.rateLimited()
	optional := c.optionalAuth()

	c.Group.GET("/health", c.HealthCheck)
	c.Group.GET("/metrics", c.GetModelMetrics)
	c.Group.POST("/predict/:type", c.Predict, append(limited, optional...)...)

	if c.extractor != nil {
		c.Group.POST("/upload/extract", c.ExtractUpload, limited...)
	}

	if c.accounts == nil {
		return
	}
	required := c.authMiddleware.RequireAuth

	authGroup := c.Group.Group("/auth")
	authGroup.POST("/register", c.Register, limited...)
	authGroup.POST("/login", c.Login, limited...)
	authGroup.POST("/logout", c.Logout)
	authGroup.GET("/me", c.Me, required)

	if c.history != nil {
		historyGroup := c.Group.Group("/history", required)
		historyGroup.GET("", c.GetHistory)
		historyGroup.GET("/stats", c.GetHistoryStats)
		historyGroup.DELETE("/:id", c.DeleteHistoryItem)
		historyGroup.DELETE("", c.ClearHistory)
	}
}

func (c *Controller) rateLimited() []echo.MiddlewareFunc {
	if c.limiter == nil {
		return nil
	}
	return []echo.MiddlewareFunc{c.limiter.Middleware()}
}

func (c *Controller) optionalAuth() []echo.MiddlewareFunc {
	if c.authMiddleware == nil {
		return nil
	}
	return []echo.MiddlewareFunc{c.authMiddleware.OptionalAuth}
}

// ipExtractorFromProxyHeaders prefers CF-Connecting-IP, then the first
// valid X-Forwarded-For entry, then X-Real-IP, then the peer address.
func ipExtractorFromProxyHeaders(req *http.Request) string {
	if ip := net.ParseIP(req.Header.Get("CF-Connecting-IP")); ip != nil {
		return ip.String()
	}

	if xff := req.Header.Get(echo.HeaderXForwardedFor); xff != "" {
		for part := range strings.SplitSeq(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}

	if ip := net.ParseIP(req.Header.Get(echo.HeaderXRealIP)); ip != nil {
		return ip.String()
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// internalErrorMessage replaces the detail of unexpected failures.
const internalErrorMessage = "An internal error occurred"

// StatusFor maps an error to its HTTP status by category.
func StatusFor(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}

	switch errors.CategoryOf(err) {
	case errors.CategoryValidation, errors.CategoryFileParsing:
		return http.StatusBadRequest
	case errors.CategoryModelLoad:
		return http.StatusServiceUnavailable
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryLimit:
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// HandleError writes the error envelope for err. Categorised errors carry
// err's message, including 503 for a missing model; a plain 500 carries a
// generic message plus a correlation ID that is logged with the underlying
// error.
func (c *Controller) HandleError(ctx echo.Context, err error) error {
	code := StatusFor(err)
	if code != http.StatusInternalServerError {
		return ctx.JSON(code, ErrorResponse{Error: clientMessage(err)})
	}
	return c.internalError(ctx, err, code)
}

func (c *Controller) internalError(ctx echo.Context, err error, code int) error {
	resp := ErrorResponse{Error: internalErrorMessage, CorrelationID: generateCorrelationID()}

	c.logger.WithContext(ctx.Request().Context()).Error("API error",
		logger.String("correlation_id", resp.CorrelationID),
		logger.Error(err),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()))

	return ctx.JSON(code, resp)
}

// respondError writes a client error with an explicit message.
func respondError(ctx echo.Context, code int, message string) error {
	return ctx.JSON(code, ErrorResponse{Error: message})
}

func clientMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return msg
		}
		return http.StatusText(he.Code)
	}
	return err.Error()
}

// HTTPErrorHandler renders errors that escape handlers, such as unknown
// routes and oversized bodies, in the standard envelope.
func (c *Controller) HTTPErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}
	if herr := c.HandleError(ctx, err); herr != nil {
		c.logger.Error("failed to write error response", logger.Error(herr))
	}
}

// generateCorrelationID returns an 8 character random identifier.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("150405.000")
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// GetLogger returns the api module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}
