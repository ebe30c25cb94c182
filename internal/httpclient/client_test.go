package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	c := New(&Config{Transport: mock, UserAgent: "Test/1.0"})
	t.Cleanup(c.Close)
	return c, mock
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	c := New(nil)
	assert.Equal(t, DefaultTimeout, c.defaultTimeout)
	assert.Equal(t, defaultUserAgent, c.userAgent)

	c = New(&Config{DefaultTimeout: time.Second})
	assert.Equal(t, time.Second, c.defaultTimeout)
	assert.Equal(t, defaultUserAgent, c.userAgent)
	assert.NotNil(t, c.HTTPClient())
}

func TestPostJSON(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodPost, "https://api.example/v1/chat",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer k", req.Header.Get("Authorization"))
			assert.Equal(t, "Test/1.0", req.Header.Get("User-Agent"))
			body, _ := io.ReadAll(req.Body)
			assert.JSONEq(t, `{"model":"m"}`, string(body))
			return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
		})

	data, err := c.PostJSON(t.Context(), "https://api.example/v1/chat",
		map[string]string{"model": "m"}, map[string]string{"Authorization": "Bearer k"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
	assert.Equal(t, 1, mock.GetTotalCallCount())
}

func TestPostJSONStatusError(t *testing.T) {
	t.Parallel()

	c, mock := newMockClient(t)
	mock.RegisterResponder(http.MethodPost, "https://api.example/v1/chat",
		httpmock.NewStringResponder(http.StatusTooManyRequests, "slow down\n"))

	_, err := c.PostJSON(t.Context(), "https://api.example/v1/chat", struct{}{}, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	assert.False(t, IsStatus(err, http.StatusInternalServerError))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "slow down", se.Body)
	assert.Contains(t, err.Error(), "429")
}

func TestDoTransportError(t *testing.T) {
	t.Parallel()

	c, _ := newMockClient(t)
	// unregistered routes fail at the transport
	_, err := c.Get(t.Context(), "https://unknown.example/")
	require.Error(t, err)
}

func TestDoAppliesDefaultTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := New(&Config{DefaultTimeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDoBodyReadableAfterReturn(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	t.Cleanup(srv.Close)

	c := New(&Config{DefaultTimeout: time.Second})
	resp, err := c.Get(t.Context(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}
