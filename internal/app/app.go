package app

import (
	"context"
	"fmt"

	"github.com/tphakala/spamguard-go/internal/api"
	v2 "github.com/tphakala/spamguard-go/internal/api/v2"
	"github.com/tphakala/spamguard-go/internal/buildinfo"
	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/datastore"
	"github.com/tphakala/spamguard-go/internal/detection"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/extract"
	"github.com/tphakala/spamguard-go/internal/httpclient"
	"github.com/tphakala/spamguard-go/internal/logger"
	"github.com/tphakala/spamguard-go/internal/mqtt"
	"github.com/tphakala/spamguard-go/internal/observability"
	"github.com/tphakala/spamguard-go/internal/security"
	"github.com/tphakala/spamguard-go/internal/verifier"
)

// Options selects which components Build starts.
type Options struct {
	Models   bool
	Verifier bool
	Database bool
	MQTT     bool

	// ModelLoader replaces TFLite model loading.
	ModelLoader classifier.LoaderFunc
	// MQTTClient replaces the paho client.
	MQTTClient mqtt.Client
}

// ServeOptions starts every component.
func ServeOptions() Options {
	return Options{Models: true, Verifier: true, Database: true, MQTT: true}
}

// App holds the running components. Fields for components that were not
// selected stay nil, except Models and Extractor which are always set.
type App struct {
	Settings  *conf.Settings
	Build     *buildinfo.Context
	Metrics   *observability.Metrics
	Models    *classifier.Registry
	Verifier  verifier.Verifier
	DB        datastore.Manager
	Store     *datastore.Store
	Accounts  *security.Service
	Extractor *extract.Extractor
	Publisher *mqtt.Publisher
	Detection *detection.Service

	closers []closer
	log     logger.Logger
}

type closer struct {
	name string
	fn   func() error
}

// Build starts the selected components. On error everything already
// started is closed again.
func Build(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, opts Options) (*App, error) {
	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	a := &App{
		Settings:  settings,
		Build:     build,
		Metrics:   m,
		Extractor: extract.New(extract.ConfigFromSettings(&settings.Upload)),
		log:       GetLogger(),
	}

	if err := a.startModels(opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	if opts.Database {
		if err := a.startDatabase(); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	if opts.Verifier {
		if err := a.startVerifier(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	if opts.MQTT {
		a.startMQTT(ctx, opts.MQTTClient)
	}

	a.Detection = detection.NewService(a.Models, a.detectionOptions()...)
	return a, nil
}

func (a *App) startModels(opts Options) error {
	regOpts := []classifier.RegistryOption{classifier.WithMetrics(a.Metrics.Classifier)}
	if opts.ModelLoader != nil {
		regOpts = append(regOpts, classifier.WithLoader(opts.ModelLoader))
	}
	a.Models = classifier.NewRegistry(regOpts...)
	if !opts.Models {
		return nil
	}

	a.Models.LoadFromSettings(&a.Settings.Models)
	a.closers = append(a.closers, closer{"models", a.Models.Close})

	loaded := a.Models.Loaded()
	if len(loaded) == 0 {
		a.log.Warn("no models loaded, predictions will be rejected",
			logger.String("dir", a.Settings.Models.Dir))
	}
	return nil
}

func (a *App) startDatabase() error {
	mgr, err := datastore.Open(&a.Settings.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.DB = mgr
	a.closers = append(a.closers, closer{"database", mgr.Close})
	a.Store = datastore.NewStore(mgr.DB(), a.Metrics.Datastore)
	a.Accounts = security.NewService(a.Store, &a.Settings.Security)
	return nil
}

func (a *App) startVerifier(ctx context.Context) error {
	s := &a.Settings.Verifier
	if !s.Enabled {
		a.log.Info("AI verification disabled")
		return nil
	}

	client := httpclient.New(&httpclient.Config{
		DefaultTimeout: s.Timeout,
		UserAgent:      a.Build.UserAgent(),
	})
	v, err := verifier.New(ctx, s, client, a.Metrics.Verifier)
	switch {
	case errors.Is(err, verifier.ErrAPIKeyNotConfigured):
		a.log.Warn("verifier API key not configured, verdicts fall back to model only",
			logger.String("provider", s.Provider))
		return nil
	case err != nil:
		return fmt.Errorf("failed to create verifier: %w", err)
	}

	a.Verifier = v
	a.log.Info("AI verification enabled", logger.String("provider", v.Name()))
	return nil
}

// startMQTT never fails startup; events are dropped while disconnected.
func (a *App) startMQTT(ctx context.Context, client mqtt.Client) {
	s := &a.Settings.MQTT
	if !s.Enabled {
		return
	}

	cfg := mqtt.ConfigFromSettings(s)
	if client == nil {
		client = mqtt.NewClient(cfg, a.Metrics.MQTT)
	}
	if err := client.Connect(ctx); err != nil {
		a.log.Warn("MQTT connection failed, classification events will be dropped",
			logger.String("broker", cfg.Broker),
			logger.Error(err))
	}

	a.Publisher = mqtt.NewPublisher(client, cfg.Topic)
	a.closers = append(a.closers, closer{"mqtt", func() error {
		a.Publisher.Close()
		return nil
	}})
}

func (a *App) detectionOptions() []detection.Option {
	opts := []detection.Option{
		detection.WithProvider(verifier.ProviderName(a.Settings.Verifier.Provider)),
		detection.WithMetrics(a.Metrics.Verifier),
	}
	if a.Verifier != nil {
		opts = append(opts, detection.WithVerifier(a.Verifier))
	}
	if a.Store != nil {
		opts = append(opts, detection.WithHistory(a.Store))
	}
	if a.Publisher != nil {
		opts = append(opts, detection.WithPublisher(a.Publisher))
	}
	return opts
}

// NewServer creates the HTTP server over the started components.
func (a *App) NewServer(opts ...api.ServerOption) (*api.Server, error) {
	apiOpts := []v2.Option{
		v2.WithModels(a.Models),
		v2.WithExtractor(a.Extractor),
		v2.WithVersion(a.Build.Version()),
	}
	if a.Store != nil {
		apiOpts = append(apiOpts, v2.WithHistory(a.Store), v2.WithAccounts(a.Accounts))
	}

	all := append([]api.ServerOption{
		api.WithMetrics(a.Metrics),
		api.WithAPIOptions(apiOpts...),
	}, opts...)
	return api.New(a.Settings, a.Detection, all...)
}

// Close stops components in reverse start order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn("error closing component", logger.String("component", c.name), logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
