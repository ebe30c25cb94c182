package classifier

import (
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
	"github.com/tphakala/spamguard-go/internal/observability/metrics"
	"github.com/tphakala/spamguard-go/internal/textprep"
)

// ErrModelNotLoaded is returned by Registry.Get for a type without a model.
var ErrModelNotLoaded = errors.NewStd("model not loaded")

// TypeSpec describes how to build the classifier for one content type.
type TypeSpec struct {
	Type    ContentType
	Enabled bool
	MaxLen  int
}

// ModelPath returns the TFLite model location for t inside dir.
func ModelPath(dir string, t ContentType) string {
	return filepath.Join(dir, string(t)+"_model.tflite")
}

// TokenizerPath returns the tokenizer export location for t inside dir.
func TokenizerPath(dir string, t ContentType) string {
	return filepath.Join(dir, string(t)+"_tokenizer.json")
}

// LoaderFunc creates a Predictor for a model file.
type LoaderFunc func(path string, opts ModelOptions) (Predictor, error)

// RegistryOption configures NewRegistry.
type RegistryOption func(*Registry)

// WithLoader replaces the TFLite loader, mainly for tests.
func WithLoader(fn LoaderFunc) RegistryOption {
	return func(r *Registry) { r.loader = fn }
}

// WithMetrics attaches classifier metrics.
func WithMetrics(m *metrics.ClassifierMetrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// Registry holds the loaded classifiers.
type Registry struct {
	mu          sync.RWMutex
	classifiers map[ContentType]*Classifier
	evaluation  Evaluation
	loader      LoaderFunc
	metrics     *metrics.ClassifierMetrics
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		classifiers: make(map[ContentType]*Classifier),
		evaluation:  DefaultEvaluation(),
		loader: func(path string, o ModelOptions) (Predictor, error) {
			return LoadTFLiteModel(path, o)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TypeSpecs extracts the per-type settings from the model configuration.
func TypeSpecs(s *conf.ModelSettings) []TypeSpec {
	return []TypeSpec{
		{Type: Email, Enabled: s.Email.Enabled, MaxLen: s.Email.MaxLen},
		{Type: SMS, Enabled: s.SMS.Enabled, MaxLen: s.SMS.MaxLen},
		{Type: URL, Enabled: s.URL.Enabled, MaxLen: s.URL.MaxLen},
	}
}

// LoadFromSettings loads every enabled model from the configured directory.
func (r *Registry) LoadFromSettings(s *conf.ModelSettings) {
	r.Load(s.Dir, TypeSpecs(s), ModelOptions{Threads: s.Threads, UseXNNPACK: s.UseXNNPACK})
}

// Load reads the models for specs from dir concurrently. A type whose
// artifacts are missing or broken is logged and left unloaded; the others
// are unaffected. Evaluation metrics are read from metrics.json if present.
func (r *Registry) Load(dir string, specs []TypeSpec, opts ModelOptions) {
	log := GetLogger()

	var g errgroup.Group
	for _, spec := range specs {
		if !spec.Enabled {
			log.Info("model disabled", logger.String("type", string(spec.Type)))
			continue
		}
		g.Go(func() error {
			c, err := r.loadOne(dir, spec, opts)
			r.metrics.RecordModelLoad(string(spec.Type), err)
			if err != nil {
				log.Warn("model not loaded",
					logger.String("type", string(spec.Type)),
					logger.Error(err))
				return nil
			}
			r.Register(c)
			log.Info("model loaded",
				logger.String("type", string(spec.Type)),
				logger.Int("vocabulary", c.Tokenizer.VocabularySize()),
				logger.Int("max_len", c.MaxLen))
			return nil
		})
	}
	_ = g.Wait()

	eval, err := LoadEvaluation(filepath.Join(dir, EvaluationFile))
	switch {
	case err == nil:
		r.mu.Lock()
		r.evaluation = eval
		r.mu.Unlock()
	case !errors.Is(err, os.ErrNotExist):
		log.Warn("ignoring unreadable model metrics", logger.Error(err))
	}
}

func (r *Registry) loadOne(dir string, spec TypeSpec, opts ModelOptions) (*Classifier, error) {
	tok, err := textprep.LoadTokenizer(TokenizerPath(dir, spec.Type))
	if err != nil {
		return nil, err
	}
	p, err := r.loader(ModelPath(dir, spec.Type), opts)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		Type:      spec.Type,
		Tokenizer: tok,
		Predictor: p,
		MaxLen:    spec.MaxLen,
		metrics:   r.metrics,
	}, nil
}

// Register adds or replaces the classifier for c.Type.
func (r *Registry) Register(c *Classifier) {
	if c.metrics == nil {
		c.metrics = r.metrics
	}
	r.mu.Lock()
	old := r.classifiers[c.Type]
	r.classifiers[c.Type] = c
	r.mu.Unlock()

	if old != nil && old.Predictor != c.Predictor {
		_ = old.Predictor.Close()
	}
}

// Get returns the classifier for t or ErrModelNotLoaded.
func (r *Registry) Get(t ContentType) (*Classifier, error) {
	r.mu.RLock()
	c, ok := r.classifiers[t]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.New(ErrModelNotLoaded).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("content_type", string(t)).
			Build()
	}
	return c, nil
}

// Loaded lists the loaded types in AllContentTypes order.
func (r *Registry) Loaded() []ContentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ContentType, 0, len(r.classifiers))
	for _, t := range AllContentTypes {
		if _, ok := r.classifiers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// IsLoaded reports whether t has a classifier.
func (r *Registry) IsLoaded(t ContentType) bool {
	return slices.Contains(r.Loaded(), t)
}

// Evaluation returns the stored evaluation metrics.
func (r *Registry) Evaluation() Evaluation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evaluation
}

// Close releases every model.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for t, c := range r.classifiers {
		if err := c.Predictor.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.classifiers, t)
	}
	return errors.Join(errs...)
}
