package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-flash"

// TokenProvider supplies the Gemini API key.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client generates text with the Gemini API. The underlying SDK client is
// built lazily on the first call so the key can come from SSM.
type Client struct {
	tokens  TokenProvider
	model   string
	baseURL string

	mu  sync.Mutex
	sdk *genai.Client
}

type Option func(*Client)

// WithBaseURL points the SDK at a different endpoint, e.g. a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func NewClient(tokens TokenProvider, model string, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("gemini: token provider must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}
	c := &Client{tokens: tokens, model: model}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveSDK keeps the first successfully built client; failures are retried
// on the next call.
func (c *Client) resolveSDK(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sdk != nil {
		return c.sdk, nil
	}

	apiKey, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini: resolve token: %w", err)
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	sdk, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.sdk = sdk
	return sdk, nil
}

// Generate sends prompt as a single user turn and returns the response text.
// An empty response (e.g. blocked by safety filters) is an error.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	sdk, err := c.resolveSDK(ctx)
	if err != nil {
		return "", err
	}

	res, err := sdk.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}

	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini: empty response text")
	}
	return text, nil
}
