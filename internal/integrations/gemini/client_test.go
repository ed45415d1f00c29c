package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) Token(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func candidateResponse(text string) string {
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + jsonString(text) + `}]}}]}`
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestNewClient_Defaults(t *testing.T) {
	_, err := NewClient(nil, "")
	require.ErrorContains(t, err, "nil")

	c, err := NewClient(&staticTokens{token: "k"}, " ")
	require.NoError(t, err)
	require.Equal(t, defaultModel, c.model)
}

func TestClient_Generate_HappyPath(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(candidateResponse("The sky is blue.")))
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "test-key"}
	c, err := NewClient(tokens, "gemini-test", WithBaseURL(srv.URL))
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "Summarize")
	require.NoError(t, err)
	require.Equal(t, "The sky is blue.", out)
	require.True(t, strings.HasSuffix(gotPath, "models/gemini-test:generateContent"), gotPath)
	require.Equal(t, "test-key", gotKey)

	_, err = c.Generate(context.Background(), "Again")
	require.NoError(t, err)
	require.Equal(t, 1, tokens.calls)
}

func TestClient_Generate_EmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(candidateResponse("  ")))
	}))
	defer srv.Close()

	c, err := NewClient(&staticTokens{token: "k"}, "gemini-test", WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "hi")
	require.ErrorContains(t, err, "empty response")
}

func TestClient_Generate_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(&staticTokens{token: "k"}, "gemini-test", WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "hi")
	require.ErrorContains(t, err, "generate content")
}

func TestClient_Generate_TokenError(t *testing.T) {
	c, err := NewClient(&staticTokens{err: errors.New("ssm unavailable")}, "gemini-test")
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "hi")
	require.ErrorContains(t, err, "ssm unavailable")
}
