// Package gemini implements script expansion on Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"storyforge/internal/expand"
	"storyforge/internal/services"
	"storyforge/internal/services/llm"
)

// Config selects the model and sampling settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
}

// Provider implements expand.Provider.
type Provider struct {
	client *genai.Client
	cfg    Config
}

// New dials the Gemini API. Close releases the underlying connection.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Provider, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "expand", "gemini", "api key required", nil)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "expand", "gemini", "model required", nil)
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{client: client, cfg: cfg}, nil
}

// Close releases resources held by the client.
func (p *Provider) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Expand generates a script for req.
func (p *Provider) Expand(ctx context.Context, req expand.Request) (expand.Result, error) {
	system, user := expand.BuildPrompts(req)
	model := p.client.GenerativeModel(p.cfg.Model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(float32(p.cfg.Temperature))

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return expand.Result{}, classify(err)
	}
	text, err := textOf(resp)
	if err != nil {
		return expand.Result{}, services.Wrap(services.ErrTransient, "expand", "gemini", "unusable response", err)
	}
	return expand.ParseResult(llm.ExtractJSON(text))
}

func textOf(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response (finish_reason=%s)", candidate.FinishReason)
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no text parts in response")
	}
	return sb.String(), nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "expand", "gemini", "request deadline exceeded", err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "expand", "gemini", "credentials rejected", err)
		case apiErr.Code == http.StatusBadRequest:
			return services.Wrap(services.ErrValidation, "expand", "gemini", "request rejected", err)
		}
	}
	return services.Wrap(services.ErrTransient, "expand", "gemini", "generate content", err)
}

var _ expand.Provider = (*Provider)(nil)
