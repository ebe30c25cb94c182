package verifier

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/errors"
)

// GeminiName is the display name of the Gemini provider.
const GeminiName = "Gemini"

// Gemini verifies content with the Google GenAI SDK.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini verifier. httpClient may be nil.
func NewGemini(ctx context.Context, settings conf.GeminiSettings, httpClient *http.Client) (*Gemini, error) {
	if settings.APIKey == "" {
		return nil, ErrAPIKeyNotConfigured
	}

	cfg := &genai.ClientConfig{
		APIKey:     settings.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if settings.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: settings.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to create GenAI client: %w", err)).
			Component("verifier").
			Category(errors.CategoryConfiguration).
			Context("provider", GeminiName).
			Build()
	}

	model := settings.Model
	if model == "" {
		model = conf.DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

// Name implements Verifier.
func (g *Gemini) Name() string { return GeminiName }

// Verify implements Verifier.
func (g *Gemini) Verify(ctx context.Context, t classifier.ContentType, text string) (Verdict, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(Prompt(t, text)), nil)
	if err != nil {
		return Verdict{}, errors.New(fmt.Errorf("gemini generate content: %w", err)).
			Component("verifier").
			Category(errors.CategoryVerifier).
			Context("provider", GeminiName).
			Context("model", g.model).
			Build()
	}

	reply := resp.Text()
	if reply == "" {
		return Verdict{}, errors.New(fmt.Errorf("gemini returned an empty response")).
			Component("verifier").
			Category(errors.CategoryVerifier).
			Context("provider", GeminiName).
			Context("model", g.model).
			Build()
	}
	return ParseResponse(reply, Source(GeminiName)), nil
}
