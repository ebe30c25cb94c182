package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/datastore"
	"github.com/tphakala/spamguard-go/internal/detection"
	"github.com/tphakala/spamguard-go/internal/extract"
	"github.com/tphakala/spamguard-go/internal/security"
	"github.com/tphakala/spamguard-go/internal/textprep"
)

type fixedPredictor struct{ p float32 }

func (f fixedPredictor) Predict(context.Context, []int32) (float32, error) { return f.p, nil }
func (f fixedPredictor) Close() error                                      { return nil }

// testEnv wires the controller to a temp-dir SQLite store, real accounts
// and a registry where email is spam, SMS is legitimate and URL is not loaded.
type testEnv struct {
	e        *echo.Echo
	ctrl     *Controller
	store    *datastore.Store
	accounts *security.Service
	models   *classifier.Registry
}

func newTestEnv(t *testing.T, settings *conf.Settings, opts ...Option) *testEnv {
	t.Helper()

	mgr, err := datastore.Open(&conf.DatabaseSettings{
		Type:   conf.DatabaseSQLite,
		SQLite: conf.SQLiteSettings{Path: filepath.Join(t.TempDir(), "api.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	store := datastore.NewStore(mgr.DB(), nil)

	tok := textprep.NewTokenizer(map[string]int{"<OOV>": 1, "win": 2, "money": 3})
	reg := classifier.NewRegistry()
	reg.Register(&classifier.Classifier{Type: classifier.Email, Tokenizer: tok, Predictor: fixedPredictor{p: 0.9}, MaxLen: 8})
	reg.Register(&classifier.Classifier{Type: classifier.SMS, Tokenizer: tok, Predictor: fixedPredictor{p: 0.1}, MaxLen: 8})

	svc := detection.NewService(reg,
		detection.WithHistory(store),
		detection.WithProvider("OpenRouter"))

	accounts := security.NewService(store, &conf.SecuritySettings{
		JWTSecret:     "api-test-jwt-secret",
		SessionSecret: "api-test-session-secret",
		TokenTTL:      time.Hour,
	})

	if settings == nil {
		settings = &conf.Settings{}
	}
	all := append([]Option{
		WithModels(reg),
		WithHistory(store),
		WithAccounts(accounts),
		WithExtractor(extract.New(extract.Config{MaxSize: 1 << 20})),
		WithVersion("test"),
	}, opts...)

	e := echo.New()
	ctrl, err := New(e, settings, svc, all...)
	require.NoError(t, err)
	e.HTTPErrorHandler = ctrl.HTTPErrorHandler

	return &testEnv{e: e, ctrl: ctrl, store: store, accounts: accounts, models: reg}
}

// do sends a request and returns the recorder. body is JSON-encoded unless it is an io.Reader.
func (env *testEnv) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	if _, ok := body.(io.Reader); !ok && body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// login registers a user and returns an Authorization header carrying its token.
func (env *testEnv) login(t *testing.T, username string) (http.Header, uint) {
	t.Helper()
	ctx := context.Background()
	user, err := env.accounts.Register(ctx, username, username+"@example.com", "secret123")
	require.NoError(t, err)
	token, err := env.accounts.IssueToken(user)
	require.NoError(t, err)
	return http.Header{echo.HeaderAuthorization: []string{"Bearer " + token}}, user.ID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// mustField returns the raw JSON of one top-level field.
func mustField(t *testing.T, body []byte, name string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &fields))
	raw, ok := fields[name]
	require.True(t, ok, "missing field %q", name)
	return raw
}

// mockHistory is a HistoryStore whose calls are scripted per test.
type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) GetUserHistory(ctx context.Context, userID uint, limit int) ([]datastore.SearchHistory, error) {
	args := m.Called(ctx, userID, limit)
	h, _ := args.Get(0).([]datastore.SearchHistory)
	return h, args.Error(1)
}

func (m *mockHistory) GetUserStats(ctx context.Context, userID uint) (*datastore.UserStats, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).(*datastore.UserStats)
	return s, args.Error(1)
}

func (m *mockHistory) DeleteHistoryItem(ctx context.Context, userID, id uint) (bool, error) {
	args := m.Called(ctx, userID, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockHistory) ClearUserHistory(ctx context.Context, userID uint) (int64, error) {
	args := m.Called(ctx, userID)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}
