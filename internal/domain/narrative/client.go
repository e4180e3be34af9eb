package narrative

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Provider names accepted by NewClient.
const (
	ProviderGemini  = "gemini"
	ProviderGeneric = "generic"
)

// DefaultGeminiURL is the public Generative Language API base URL.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com"

// Generator turns a prompt into free text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ClientConfig configures the remote endpoint.
type ClientConfig struct {
	Provider string
	URL      string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Client calls a text-generation endpoint over HTTP. Requests are never
// retried; a failed call is reported to the user who may try again.
type Client struct {
	http     *resty.Client
	provider string
	model    string
}

// NewClient builds a client for cfg.Provider.
func NewClient(cfg ClientConfig) (*Client, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderGemini
	}
	baseURL := cfg.URL
	switch provider {
	case ProviderGemini:
		if baseURL == "" {
			baseURL = DefaultGeminiURL
		}
	case ProviderGeneric:
		if baseURL == "" {
			return nil, fmt.Errorf("generic provider requires a URL")
		}
	default:
		return nil, fmt.Errorf("unknown generator provider %q", provider)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		if provider == ProviderGemini {
			rc.SetHeader("x-goog-api-key", cfg.APIKey)
		} else {
			rc.SetAuthToken(cfg.APIKey)
		}
	}
	return &Client{http: rc, provider: provider, model: model}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type genericRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

type genericResponse struct {
	Text string `json:"text"`
}

// Generate sends prompt and returns the generated text, trimmed.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.provider == ProviderGeneric {
		return c.generic(ctx, prompt)
	}
	return c.gemini(ctx, prompt)
}

func (c *Client) gemini(ctx context.Context, prompt string) (string, error) {
	var out geminiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("model", c.model).
		SetBody(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}).
		SetResult(&out).
		SetError(&out).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		return "", fmt.Errorf("call generator: %w", err)
	}
	if resp.IsError() {
		if out.Error != nil {
			return "", fmt.Errorf("generator returned %d: %s", resp.StatusCode(), out.Error.Message)
		}
		return "", fmt.Errorf("generator returned %d", resp.StatusCode())
	}
	var b strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (c *Client) generic(ctx context.Context, prompt string) (string, error) {
	var out genericResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(genericRequest{Prompt: prompt, Model: c.model}).
		SetResult(&out).
		Post("")
	if err != nil {
		return "", fmt.Errorf("call generator: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("generator returned %d", resp.StatusCode())
	}
	return strings.TrimSpace(out.Text), nil
}
