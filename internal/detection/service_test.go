package detection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/datastore"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/textprep"
	"github.com/tphakala/spamguard-go/internal/verifier"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixedPredictor struct {
	p   float32
	err error
}

func (f fixedPredictor) Predict(context.Context, []int32) (float32, error) { return f.p, f.err }
func (f fixedPredictor) Close() error                                      { return nil }

type models map[classifier.ContentType]*classifier.Classifier

func (m models) Get(t classifier.ContentType) (*classifier.Classifier, error) {
	c, ok := m[t]
	if !ok {
		return nil, classifier.ErrModelNotLoaded
	}
	return c, nil
}

func modelsWith(p float32, types ...classifier.ContentType) models {
	tok := textprep.NewTokenizer(map[string]int{"<OOV>": 1, "win": 2, "money": 3})
	out := models{}
	for _, t := range types {
		out[t] = &classifier.Classifier{Type: t, Tokenizer: tok, Predictor: fixedPredictor{p: p}, MaxLen: 8}
	}
	return out
}

type fakeVerifier struct {
	verdict verifier.Verdict
	err     error
	calls   int
	text    string
}

func (f *fakeVerifier) Name() string { return "Gemini" }

func (f *fakeVerifier) Verify(_ context.Context, _ classifier.ContentType, text string) (verifier.Verdict, error) {
	f.calls++
	f.text = text
	return f.verdict, f.err
}

type memHistory struct {
	entries []*datastore.SearchHistory
	err     error
}

func (h *memHistory) SaveSearch(_ context.Context, e *datastore.SearchHistory) error {
	if h.err != nil {
		return h.err
	}
	h.entries = append(h.entries, e)
	return nil
}

type memPublisher struct{ events []Event }

func (p *memPublisher) PublishClassification(_ context.Context, ev Event) error {
	p.events = append(p.events, ev)
	return nil
}

func TestClassifyModelSpamSkipsVerifier(t *testing.T) {
	t.Parallel()

	v := &fakeVerifier{}
	svc := NewService(modelsWith(0.9234, classifier.Email), WithVerifier(v))

	res, err := svc.Classify(context.Background(), classifier.Email, "WIN MONEY now!!!", nil)
	require.NoError(t, err)

	assert.Zero(t, v.calls)
	assert.True(t, res.Success)
	assert.True(t, res.IsSpam)
	assert.Equal(t, "Spam", res.Label)
	assert.Equal(t, "email", res.Type)
	assert.Equal(t, "Model Detection", res.Verification)
	assert.Equal(t, "Stage 1: Deep Learning Model", res.Stage)
	assert.InDelta(t, 92.34, res.Confidence, 0.001)
	assert.Nil(t, res.ModelConfidence)
	assert.Empty(t, res.Reason)
}

func TestClassifyLegitimateIsVerified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctype     classifier.ContentType
		verdict   verifier.Verdict
		wantLabel string
		wantVerif string
		wantSpam  bool
	}{
		{"email verifier agrees", classifier.Email, verifier.Verdict{Confidence: 88, Reason: "normal"}, "Legitimate", "Verified by Gemini AI", false},
		{"email verifier overrules", classifier.Email, verifier.Verdict{IsSpam: true, Confidence: 95, Reason: "lottery"}, "Spam", "Gemini AI (Model missed this)", true},
		{"sms verifier overrules", classifier.SMS, verifier.Verdict{IsSpam: true, Confidence: 80, Reason: "prize"}, "Spam", "Gemini AI (Model missed this)", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := &fakeVerifier{verdict: tt.verdict}
			svc := NewService(modelsWith(0.1, tt.ctype), WithVerifier(v))

			res, err := svc.Classify(context.Background(), tt.ctype, "  hello there friend  ", nil)
			require.NoError(t, err)

			assert.Equal(t, 1, v.calls)
			assert.Equal(t, "  hello there friend  ", v.text, "verifier sees the raw text")
			assert.Equal(t, tt.wantSpam, res.IsSpam)
			assert.Equal(t, tt.wantLabel, res.Label)
			assert.Equal(t, tt.wantVerif, res.Verification)
			assert.Equal(t, "Stage 2: AI Verification", res.Stage)
			assert.InDelta(t, tt.verdict.Confidence, res.Confidence, 0.001)
			assert.Equal(t, tt.verdict.Reason, res.Reason)
			require.NotNil(t, res.ModelConfidence)
			assert.InDelta(t, 90.0, *res.ModelConfidence, 0.001)
			assert.Empty(t, res.ModelSaid)
		})
	}
}

func TestClassifyURLAlwaysVerified(t *testing.T) {
	t.Parallel()

	v := &fakeVerifier{verdict: verifier.Verdict{IsSpam: true, Confidence: 91, Reason: "lookalike domain"}}
	svc := NewService(modelsWith(0.2, classifier.URL), WithVerifier(v))

	res, err := svc.Classify(context.Background(), classifier.URL, "http://paypa1-login.example", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v.calls)
	assert.Equal(t, "Phishing", res.Label)
	assert.Equal(t, "Gemini AI", res.Verification)
	assert.Equal(t, "AI Verification", res.Stage)
	assert.Equal(t, "Legitimate", res.ModelSaid)
	require.NotNil(t, res.ModelConfidence)
	assert.InDelta(t, 80.0, *res.ModelConfidence, 0.001)

	v.verdict = verifier.Verdict{Confidence: 70, Reason: "known site"}
	svc = NewService(modelsWith(0.7, classifier.URL), WithVerifier(v))
	res, err = svc.Classify(context.Background(), classifier.URL, "https://example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v.calls, "model spam does not skip verification for URLs")
	assert.Equal(t, "Legitimate", res.Label)
	assert.Equal(t, "Verified by Gemini AI", res.Verification)
	assert.Equal(t, "Phishing", res.ModelSaid)
}

func TestClassifyVerifierFallback(t *testing.T) {
	t.Parallel()

	v := &fakeVerifier{err: errors.NewStd("quota exceeded")}
	svc := NewService(modelsWith(0.3, classifier.SMS), WithVerifier(v))

	res, err := svc.Classify(context.Background(), classifier.SMS, "are we still on for lunch", nil)
	require.NoError(t, err)
	assert.False(t, res.IsSpam)
	assert.Equal(t, "Legitimate", res.Label)
	assert.InDelta(t, 50.0, res.Confidence, 0.001)
	assert.Equal(t, "Verification service unavailable: quota exceeded", res.Reason)
	assert.Equal(t, "Verified by Gemini AI", res.Verification)
}

func TestClassifyWithoutVerifier(t *testing.T) {
	t.Parallel()

	svc := NewService(modelsWith(0.3, classifier.Email), WithProvider("OpenRouter"))
	assert.Equal(t, "OpenRouter", svc.Provider())

	res, err := svc.Classify(context.Background(), classifier.Email, "meeting notes attached", nil)
	require.NoError(t, err)
	assert.Equal(t, "Verified by OpenRouter AI", res.Verification)
	assert.Equal(t, "Verification service unavailable: API key not configured", res.Reason)
}

func TestClassifyRejections(t *testing.T) {
	t.Parallel()

	svc := NewService(modelsWith(0.3, classifier.Email, classifier.SMS, classifier.URL))
	ctx := context.Background()

	tests := []struct {
		ctype classifier.ContentType
		text  string
		msg   string
	}{
		{classifier.Email, "   hi  ", "Please enter a valid email text"},
		{classifier.SMS, "ok", "Please enter a valid SMS message"},
		{classifier.URL, "a.b", "Please enter a valid URL"},
		{classifier.Email, "", "Please enter a valid email text"},
	}
	for _, tt := range tests {
		_, err := svc.Classify(ctx, tt.ctype, tt.text, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, tt.msg, err.Error())
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	}

	// three runes is enough for SMS
	_, err := svc.Classify(ctx, classifier.SMS, "hey", nil)
	require.NoError(t, err)

	empty := NewService(models{})
	_, err = empty.Classify(ctx, classifier.URL, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelNotLoaded, "model check precedes validation")
	assert.Equal(t, "URL model not loaded. Please train the model first.", err.Error())
}

func TestClassifyRecordsHistoryAndPublishes(t *testing.T) {
	t.Parallel()

	hist := &memHistory{}
	pub := &memPublisher{}
	v := &fakeVerifier{verdict: verifier.Verdict{Confidence: 77, Reason: "ok"}}
	svc := NewService(modelsWith(0.95, classifier.Email, classifier.SMS),
		WithVerifier(v), WithHistory(hist), WithPublisher(pub))
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	uid := uint(7)
	_, err := svc.Classify(context.Background(), classifier.Email, "win money win money", &uid)
	require.NoError(t, err)
	_, err = svc.Classify(context.Background(), classifier.SMS, "anonymous", nil)
	require.NoError(t, err)

	require.Len(t, hist.entries, 1, "anonymous requests are not recorded")
	e := hist.entries[0]
	assert.Equal(t, uint(7), e.UserID)
	assert.Equal(t, "email", e.SearchType)
	assert.Equal(t, "Spam", e.Result)
	assert.Equal(t, "Model Detection", e.Verification)
	assert.Nil(t, e.Reason)
	assert.Equal(t, fixed, e.SearchedAt)

	require.Len(t, pub.events, 2)
	assert.Equal(t, "email", pub.events[0].Type)
	assert.Equal(t, fixed, pub.events[0].Timestamp)

	raw, err := json.Marshal(pub.events[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "win money")
}

func TestHistoryFailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()

	hist := &memHistory{err: errors.NewStd("disk full")}
	svc := NewService(modelsWith(0.9, classifier.SMS), WithHistory(hist))

	uid := uint(1)
	res, err := svc.Classify(context.Background(), classifier.SMS, "free entry", &uid)
	require.NoError(t, err)
	assert.True(t, res.IsSpam)
}

func TestModelErrorPropagates(t *testing.T) {
	t.Parallel()

	tok := textprep.NewTokenizer(map[string]int{"<OOV>": 1})
	m := models{classifier.Email: {
		Type: classifier.Email, Tokenizer: tok, MaxLen: 4,
		Predictor: fixedPredictor{err: errors.NewStd("interpreter failed")},
	}}
	_, err := NewService(m).Classify(context.Background(), classifier.Email, "hello world", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interpreter failed")
}

func TestClassifyThroughGuard(t *testing.T) {
	t.Parallel()

	inner := &fakeVerifier{verdict: verifier.Verdict{Confidence: 60, Reason: "fine", VerifiedBy: "Gemini AI"}}
	guard := verifier.NewGuard(inner, verifier.GuardOptions{
		Timeout:       time.Second,
		RateLimit:     100,
		Burst:         10,
		MaxConcurrent: 2,
	})
	svc := NewService(modelsWith(0.2, classifier.Email), WithVerifier(guard))

	res, err := svc.Classify(context.Background(), classifier.Email, "quarterly report", nil)
	require.NoError(t, err)
	assert.Equal(t, "Verified by Gemini AI", res.Verification)
	assert.InDelta(t, 60.0, res.Confidence, 0.001)
}

func TestResultJSON(t *testing.T) {
	t.Parallel()

	mc := 81.5
	raw, err := json.Marshal(&Result{Success: true, Label: "Spam", Type: "sms", Verification: "Model Detection", Stage: StageModel})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "model_confidence")
	assert.NotContains(t, string(raw), "reason")
	assert.NotContains(t, string(raw), "Timestamp")

	raw, err = json.Marshal(&Result{ModelConfidence: &mc, ModelSaid: "Phishing"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"model_confidence":81.5`)
	assert.Contains(t, string(raw), `"model_said":"Phishing"`)
}
