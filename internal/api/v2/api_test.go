package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/detection"
	"github.com/tphakala/spamguard-go/internal/errors"
)

func categorized(category errors.ErrorCategory) error {
	return errors.New(errors.NewStd("boom")).Component("test").Category(category).Build()
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", categorized(errors.CategoryValidation), http.StatusBadRequest},
		{"file parsing", categorized(errors.CategoryFileParsing), http.StatusBadRequest},
		{"model load", categorized(errors.CategoryModelLoad), http.StatusServiceUnavailable},
		{"auth", categorized(errors.CategoryAuth), http.StatusUnauthorized},
		{"conflict", categorized(errors.CategoryConflict), http.StatusConflict},
		{"not found", categorized(errors.CategoryNotFound), http.StatusNotFound},
		{"limit", categorized(errors.CategoryLimit), http.StatusRequestEntityTooLarge},
		{"database", categorized(errors.CategoryDatabase), http.StatusInternalServerError},
		{"plain", fmt.Errorf("plain"), http.StatusInternalServerError},
		{"echo http error", echo.ErrMethodNotAllowed, http.StatusMethodNotAllowed},
		{"wrapped", fmt.Errorf("outer: %w", categorized(errors.CategoryConflict)), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestHandleErrorClientMessage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := env.e.NewContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody), httptest.NewRecorder())
	rec := ctx.Response().Writer.(*httptest.ResponseRecorder)

	require.NoError(t, env.ctrl.HandleError(ctx, categorized(errors.CategoryConflict)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"boom"}`, rec.Body.String())
}

func TestHandleErrorKeepsServiceUnavailableMessage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := env.e.NewContext(httptest.NewRequest(http.MethodPost, "/api/predict/url", http.NoBody), httptest.NewRecorder())
	rec := ctx.Response().Writer.(*httptest.ResponseRecorder)

	_, err := env.models.Get(classifier.URL)
	require.Error(t, err)
	require.NoError(t, env.ctrl.HandleError(ctx, err))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "model not loaded", resp.Error)
	assert.Empty(t, resp.CorrelationID)
}

func TestPredictWithoutModelsAnswers503(t *testing.T) {
	t.Parallel()

	e := echo.New()
	ctrl, err := New(e, &conf.Settings{}, detection.NewService(classifier.NewRegistry()))
	require.NoError(t, err)
	e.HTTPErrorHandler = ctrl.HTTPErrorHandler
	env := &testEnv{e: e, ctrl: ctrl}

	rec := env.do(t, http.MethodPost, "/api/predict/email", PredictRequest{Text: "win money now please"}, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Email model not loaded. Please train the model first."}`, rec.Body.String())
}

func TestHandleErrorHidesInternalDetail(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := env.e.NewContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody), httptest.NewRecorder())
	rec := ctx.Response().Writer.(*httptest.ResponseRecorder)

	require.NoError(t, env.ctrl.HandleError(ctx, fmt.Errorf("dial tcp 10.0.0.5:3306: secret detail")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, internalErrorMessage, resp.Error)
	assert.Len(t, resp.CorrelationID, 8)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Not Found"}`, rec.Body.String())
}

func TestNewRequiresDetector(t *testing.T) {
	t.Parallel()

	_, err := New(echo.New(), &conf.Settings{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestIPExtractorFromProxyHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"cloudflare wins", map[string]string{"CF-Connecting-IP": "203.0.113.9", "X-Forwarded-For": "198.51.100.1"}, "10.0.0.1:1234", "203.0.113.9"},
		{"first valid forwarded", map[string]string{"X-Forwarded-For": "garbage, 198.51.100.1, 198.51.100.2"}, "10.0.0.1:1234", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.0.0.1:1234", "198.51.100.7"},
		{"invalid cloudflare ignored", map[string]string{"CF-Connecting-IP": "nope"}, "10.0.0.1:1234", "10.0.0.1"},
		{"peer address", nil, "192.0.2.4:5555", "192.0.2.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ipExtractorFromProxyHeaders(req))
		})
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 50 {
		id := generateCorrelationID()
		assert.Len(t, id, 8)
		assert.Regexp(t, `^[a-zA-Z0-9]{8}$`, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 45)
}
