package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// tokenPayload is the expected JSON shape stored in SSM for an API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// TokenSource resolves a provider API token. A static token is returned as is;
// otherwise the token is read from SSM on the first successful call and reused
// for the lifetime of the process. Failed reads are retried on the next call.
type TokenSource struct {
	getter Getter
	name   string

	mu    sync.Mutex
	token string
}

// StaticToken wraps a token taken from the environment.
func StaticToken(token string) *TokenSource {
	return &TokenSource{token: strings.TrimSpace(token)}
}

// NewTokenSource reads the token from the SSM parameter name, whose value
// must be JSON of the form {"token": "..."}.
func NewTokenSource(getter Getter, name string) (*TokenSource, error) {
	if getter == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: token parameter name is empty")
	}
	return &TokenSource{getter: getter, name: name}, nil
}

func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" {
		return t.token, nil
	}
	if t.getter == nil {
		return "", errors.New("paramstore: API token is empty")
	}
	token, err := fetchToken(ctx, t.getter, t.name)
	if err != nil {
		return "", err
	}
	t.token = token
	return token, nil
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch token: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", errors.New("paramstore: API token is empty")
	}
	return strings.TrimSpace(tp.Token), nil
}
