package verifier

import (
	"context"
	"fmt"

	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/httpclient"
	"github.com/tphakala/spamguard-go/internal/observability/metrics"
)

// ProviderName returns the display name for a configured provider key.
func ProviderName(provider string) string {
	if provider == conf.ProviderOpenRouter {
		return OpenRouterName
	}
	return GeminiName
}

// New builds the configured provider wrapped in a Guard. It returns
// ErrAPIKeyNotConfigured when the provider has no key; callers then fall
// back to unverified verdicts.
func New(ctx context.Context, settings *conf.VerifierSettings, client *httpclient.Client, m *metrics.VerifierMetrics) (Verifier, error) {
	if client == nil {
		client = httpclient.New(&httpclient.Config{DefaultTimeout: settings.Timeout})
	}

	var (
		v   Verifier
		err error
	)
	switch settings.Provider {
	case conf.ProviderOpenRouter:
		v, err = NewOpenRouter(settings.OpenRouter, client)
	case conf.ProviderGemini, "":
		v, err = NewGemini(ctx, settings.Gemini, client.HTTPClient())
	default:
		return nil, fmt.Errorf("unknown verifier provider %q", settings.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewGuard(v, GuardOptions{
		Timeout:       settings.Timeout,
		RateLimit:     settings.RateLimit,
		Burst:         settings.Burst,
		MaxConcurrent: settings.MaxConcurrent,
		CacheTTL:      settings.CacheTTL,
		Metrics:       m,
	}), nil
}
