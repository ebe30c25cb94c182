package verifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/httpclient"
	"github.com/tphakala/spamguard-go/internal/logger"
)

// OpenRouterName is the display name of the OpenRouter provider.
const OpenRouterName = "OpenRouter"

// ErrModelsExhausted is returned when every configured model was rate limited.
var ErrModelsExhausted = errors.NewStd("all models exhausted quota")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// OpenRouter verifies content through the OpenRouter chat completions API,
// trying each configured model until one answers.
type OpenRouter struct {
	client   *httpclient.Client
	endpoint string
	models   []string
	headers  map[string]string
}

// NewOpenRouter creates an OpenRouter verifier.
func NewOpenRouter(settings conf.OpenRouterSettings, client *httpclient.Client) (*OpenRouter, error) {
	if settings.APIKey == "" {
		return nil, ErrAPIKeyNotConfigured
	}
	if client == nil {
		client = httpclient.New(nil)
	}

	endpoint := settings.Endpoint
	if endpoint == "" {
		endpoint = conf.DefaultOpenRouterEndpoint
	}
	models := settings.Models
	if len(models) == 0 {
		models = conf.DefaultOpenRouterModels
	}

	headers := map[string]string{"Authorization": "Bearer " + settings.APIKey}
	if settings.Referer != "" {
		headers["HTTP-Referer"] = settings.Referer
	}
	if settings.Title != "" {
		headers["X-Title"] = settings.Title
	}

	return &OpenRouter{client: client, endpoint: endpoint, models: models, headers: headers}, nil
}

// Name implements Verifier.
func (o *OpenRouter) Name() string { return OpenRouterName }

// Verify implements Verifier.
func (o *OpenRouter) Verify(ctx context.Context, t classifier.ContentType, text string) (Verdict, error) {
	prompt := Prompt(t, text)
	log := GetLogger()

	var lastErr error
	for _, model := range o.models {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		reply, err := o.complete(ctx, model, prompt)
		if err == nil {
			return ParseResponse(reply, Source(OpenRouterName)), nil
		}

		if httpclient.IsStatus(err, http.StatusTooManyRequests) {
			log.Debug("model rate limited, trying next", logger.String("model", model))
			if lastErr == nil {
				lastErr = ErrModelsExhausted
			}
			continue
		}
		log.Debug("model request failed, trying next",
			logger.String("model", model),
			logger.Error(err))
		lastErr = err
	}

	if lastErr == nil {
		lastErr = ErrModelsExhausted
	}
	return Verdict{}, errors.New(lastErr).
		Component("verifier").
		Category(errors.CategoryVerifier).
		Context("provider", OpenRouterName).
		Context("models_tried", len(o.models)).
		Build()
}

// complete sends one chat completion request and returns the message text
func (o *OpenRouter) complete(ctx context.Context, model, prompt string) (string, error) {
	body := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	data, err := o.client.PostJSON(ctx, o.endpoint, body, o.headers)
	if err != nil {
		return "", err
	}

	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if msg, err := obj.GetString("error", "message"); err == nil {
		return "", fmt.Errorf("openrouter error: %s", msg)
	}

	choices, err := obj.GetObjectArray("choices")
	if err != nil || len(choices) == 0 {
		return "", fmt.Errorf("completion has no choices")
	}
	content, err := choices[0].GetString("message", "content")
	if err != nil {
		return "", fmt.Errorf("completion has no message content: %w", err)
	}
	return strings.TrimSpace(content), nil
}
