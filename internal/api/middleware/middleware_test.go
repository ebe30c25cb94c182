package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/spamguard-go/internal/logger"
	"github.com/tphakala/spamguard-go/internal/observability/metrics"
)

func TestTraceIDGeneratedAndPropagated(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewTraceID())
	var seen string
	e.GET("/", func(c echo.Context) error {
		seen = logger.TraceIDFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	header := rec.Header().Get(HeaderTraceID)
	_, err := uuid.Parse(header)
	require.NoError(t, err)
	assert.Equal(t, header, seen)
}

func TestTraceIDReusesValidIncomingID(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewTraceID())
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(HeaderTraceID, incoming)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, incoming, rec.Header().Get(HeaderTraceID))

	req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(HeaderTraceID, "not a uuid\r\n")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.NotEqual(t, "not a uuid\r\n", rec.Header().Get(HeaderTraceID))
}

func TestClientRateLimiter(t *testing.T) {
	t.Parallel()

	l := NewClientRateLimiter(0.001, 2)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "clients have independent buckets")
}

func TestClientRateLimiterMiddleware(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(NewClientRateLimiter(0.001, 1).Middleware())
	e.POST("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", http.NoBody))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"`+RateLimitMessage+`"}`, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewHTTPMetrics(reg)
	require.NoError(t, err)

	e := echo.New()
	e.Use(NewMetrics(m))
	e.GET("/items/:id", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", http.NoBody))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/items/:id", "200")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.RequestsTotal), "one series per route and status")
}
