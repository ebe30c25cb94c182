// Package detection runs the two-stage decision pipeline: a local model
// first, then an LLM second opinion where the model cannot be trusted.
package detection

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/datastore"
	"github.com/tphakala/spamguard-go/internal/logger"
	"github.com/tphakala/spamguard-go/internal/observability/metrics"
	"github.com/tphakala/spamguard-go/internal/verifier"
)

// ClassifierSource provides the loaded model for a content type.
type ClassifierSource interface {
	Get(t classifier.ContentType) (*classifier.Classifier, error)
}

// HistoryRecorder persists classifications of signed-in users.
type HistoryRecorder interface {
	SaveSearch(ctx context.Context, entry *datastore.SearchHistory) error
}

// EventPublisher receives every completed classification.
type EventPublisher interface {
	PublishClassification(ctx context.Context, ev Event) error
}

// Service is the classification pipeline shared by the HTTP API and CLI.
type Service struct {
	models    ClassifierSource
	verifier  verifier.Verifier
	provider  string
	history   HistoryRecorder
	publisher EventPublisher
	metrics   *metrics.VerifierMetrics
	log       logger.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithVerifier sets the second-stage verifier. A nil verifier makes every
// verification fall back with ErrAPIKeyNotConfigured.
func WithVerifier(v verifier.Verifier) Option {
	return func(s *Service) {
		s.verifier = v
		if v != nil {
			s.provider = v.Name()
		}
	}
}

// WithProvider sets the provider name used in verification labels when no
// verifier is available.
func WithProvider(name string) Option {
	return func(s *Service) {
		if s.verifier == nil && name != "" {
			s.provider = name
		}
	}
}

// WithHistory enables history recording for authenticated requests.
func WithHistory(h HistoryRecorder) Option {
	return func(s *Service) { s.history = h }
}

// WithPublisher enables classification events.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics records verifier fallbacks.
func WithMetrics(m *metrics.VerifierMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the pipeline over models.
func NewService(models ClassifierSource, opts ...Option) *Service {
	s := &Service{
		models:   models,
		provider: verifier.GeminiName,
		log:      GetLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider returns the display name used in verification labels.
func (s *Service) Provider() string {
	return s.provider
}

// HasVerifier reports whether a verifier is configured.
func (s *Service) HasVerifier() bool {
	return s.verifier != nil
}

// Classify runs text through the model for t and, where policy requires,
// the verifier. When userID is non-nil the result is added to that user's
// history.
func (s *Service) Classify(ctx context.Context, t classifier.ContentType, text string, userID *uint) (*Result, error) {
	c, err := s.models.Get(t)
	if err != nil {
		return nil, modelNotLoaded(t)
	}

	if utf8.RuneCountInString(strings.TrimSpace(text)) < t.MinLength() {
		return nil, invalidInput(t)
	}

	pred, err := c.Classify(ctx, text)
	if err != nil {
		return nil, err
	}

	var res *Result
	if t == classifier.URL {
		res = s.urlResult(ctx, text, pred)
	} else {
		res = s.textResult(ctx, t, text, pred)
	}
	res.Timestamp = s.now()

	s.log.Debug("classified",
		logger.String("content_type", string(t)),
		logger.String("label", res.Label),
		logger.Float64("confidence", res.Confidence),
		logger.String("stage", res.Stage))

	if userID != nil {
		s.record(ctx, *userID, t, text, res)
	}
	s.publish(ctx, res)

	return res, nil
}

// textResult trusts a spam prediction and verifies a legitimate one
func (s *Service) textResult(ctx context.Context, t classifier.ContentType, text string, pred classifier.Prediction) *Result {
	modelConf := percent(pred.Confidence)

	if pred.IsSpam {
		return &Result{
			Success:      true,
			IsSpam:       true,
			Confidence:   modelConf,
			Label:        LabelSpam,
			Type:         string(t),
			Verification: VerificationModel,
			Stage:        StageModel,
		}
	}

	v := s.verify(ctx, t, text)
	res := &Result{
		Success:         true,
		IsSpam:          v.IsSpam,
		Confidence:      round2(v.Confidence),
		Label:           label(t, v.IsSpam),
		Type:            string(t),
		Reason:          v.Reason,
		Stage:           StageVerification,
		ModelConfidence: &modelConf,
	}
	if v.IsSpam {
		res.Verification = verifier.Source(s.provider) + " (Model missed this)"
	} else {
		res.Verification = "Verified by " + verifier.Source(s.provider)
	}
	return res
}

// urlResult always defers to the verifier
func (s *Service) urlResult(ctx context.Context, text string, pred classifier.Prediction) *Result {
	modelConf := percent(pred.Confidence)

	v := s.verify(ctx, classifier.URL, text)
	res := &Result{
		Success:         true,
		IsSpam:          v.IsSpam,
		Confidence:      round2(v.Confidence),
		Label:           label(classifier.URL, v.IsSpam),
		Type:            string(classifier.URL),
		Reason:          v.Reason,
		Stage:           StageURL,
		ModelSaid:       label(classifier.URL, pred.IsSpam),
		ModelConfidence: &modelConf,
	}
	if v.IsSpam {
		res.Verification = verifier.Source(s.provider)
	} else {
		res.Verification = "Verified by " + verifier.Source(s.provider)
	}
	return res
}

// verify asks the verifier and substitutes the fallback verdict on error
func (s *Service) verify(ctx context.Context, t classifier.ContentType, text string) verifier.Verdict {
	source := verifier.Source(s.provider)
	if s.verifier == nil {
		s.metrics.RecordFallback("not_configured")
		return verifier.Fallback(source, verifier.ErrAPIKeyNotConfigured)
	}

	v, err := s.verifier.Verify(ctx, t, text)
	if err != nil {
		s.log.Warn("verification failed, using fallback verdict",
			logger.String("provider", s.provider),
			logger.String("content_type", string(t)),
			logger.Error(err))
		s.metrics.RecordFallback("error")
		return verifier.Fallback(source, err)
	}
	return v
}

// record saves the result to history; failures do not fail the request
func (s *Service) record(ctx context.Context, userID uint, t classifier.ContentType, text string, res *Result) {
	if s.history == nil {
		return
	}
	entry := &datastore.SearchHistory{
		UserID:       userID,
		SearchType:   string(t),
		InputText:    text,
		Result:       res.Label,
		Confidence:   res.Confidence,
		Verification: res.Verification,
		SearchedAt:   res.Timestamp,
	}
	if res.Reason != "" {
		reason := res.Reason
		entry.Reason = &reason
	}
	if err := s.history.SaveSearch(ctx, entry); err != nil {
		s.log.Error("failed to save search history",
			logger.Int("user_id", int(userID)),
			logger.String("content_type", string(t)),
			logger.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, res *Result) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishClassification(ctx, res.Event()); err != nil {
		s.log.Warn("failed to publish classification event", logger.Error(err))
	}
}

// GetLogger returns the detection module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("detection")
}
