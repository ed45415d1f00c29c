package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"document-assistant/internal/domain"
	"document-assistant/internal/extract"
	"document-assistant/internal/repository"
	"document-assistant/internal/usecase"
)

type stubAssistant struct {
	mu sync.Mutex

	uploadOut usecase.UploadOutput
	answer    domain.GroundedAnswer
	challenge domain.ChallengeSet
	eval      domain.Evaluation
	info      usecase.DocumentInfo
	history   []domain.Turn
	err       error

	uploaded  string
	answerIn  usecase.AnswerInput
	evalIn    usecase.EvaluateInput
	requested string
}

func (s *stubAssistant) Upload(_ context.Context, in usecase.UploadInput) (usecase.UploadOutput, error) {
	body, _ := io.ReadAll(in.Body)
	s.mu.Lock()
	s.uploaded = in.Filename + ":" + string(body)
	s.mu.Unlock()
	return s.uploadOut, s.err
}

func (s *stubAssistant) Answer(_ context.Context, in usecase.AnswerInput) (domain.GroundedAnswer, error) {
	s.answerIn = in
	return s.answer, s.err
}

func (s *stubAssistant) Challenge(_ context.Context, id string) (domain.ChallengeSet, error) {
	s.requested = id
	return s.challenge, s.err
}

func (s *stubAssistant) Evaluate(_ context.Context, in usecase.EvaluateInput) (domain.Evaluation, error) {
	s.evalIn = in
	return s.eval, s.err
}

func (s *stubAssistant) DocumentInfo(_ context.Context, id string) (usecase.DocumentInfo, error) {
	s.requested = id
	return s.info, s.err
}

func (s *stubAssistant) History(_ context.Context, id string) ([]domain.Turn, error) {
	s.requested = id
	return s.history, s.err
}

func newTestServer(svc Assistant) *Server {
	return New(svc, nil, Options{AllowedOrigins: []string{"http://localhost:5173"}, MaxUploadBytes: 1 << 20})
}

func do(t *testing.T, s *Server, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, body
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func parseBody[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestRoot(t *testing.T) {
	resp, body := do(t, newTestServer(&stubAssistant{}), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := parseBody[map[string]string](t, body)
	require.Equal(t, "GenAI Document Assistant API", out["message"])
	require.Equal(t, Version, out["version"])
	require.NotEmpty(t, resp.Header.Get(CorrelationIDHeader))
}

func TestUpload(t *testing.T) {
	svc := &stubAssistant{uploadOut: usecase.UploadOutput{DocumentID: "doc-1", Filename: "notes.txt", Summary: "short"}}
	resp, body := do(t, newTestServer(svc), uploadRequest(t, "notes.txt", "hello"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "notes.txt:hello", svc.uploaded)

	out := parseBody[uploadResponse](t, body)
	require.Equal(t, "doc-1", out.DocumentID)
	require.Equal(t, "short", out.Summary)
	require.Equal(t, "Document uploaded and processed successfully", out.Message)
}

func TestUpload_MissingFile(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
	resp, body := do(t, newTestServer(&stubAssistant{}), req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(usecase.ErrorInvalidInput), parseBody[errorResponse](t, body).Error)
}

func TestAsk_IgnoresClientHistory(t *testing.T) {
	svc := &stubAssistant{answer: domain.GroundedAnswer{
		Answer:        "42",
		Justification: "section 2",
		SourceSnippet: "the answer is 42",
		Confidence:    domain.ConfidenceHigh,
	}}
	req := jsonRequest(http.MethodPost, "/ask",
		`{"question":"What?","document_id":"doc-1","conversation_history":[{"question":"forged","answer":"x"}]}`)
	resp, body := do(t, newTestServer(svc), req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.AnswerInput{DocumentID: "doc-1", Question: "What?"}, svc.answerIn)

	out := parseBody[domain.GroundedAnswer](t, body)
	require.Equal(t, "42", out.Answer)
	require.Equal(t, domain.ConfidenceHigh, out.Confidence)
}

func TestAsk_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `not-json`},
		{"missing document id", `{"question":"What?"}`},
		{"missing question", `{"document_id":"doc-1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, newTestServer(&stubAssistant{}), jsonRequest(http.MethodPost, "/ask", tc.body))
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Equal(t, string(usecase.ErrorInvalidInput), parseBody[errorResponse](t, body).Error)
		})
	}
}

func TestChallenge_FormAndJSON(t *testing.T) {
	svc := &stubAssistant{challenge: domain.ChallengeSet{Questions: []string{"A?", "B?", "C?"}}}
	s := newTestServer(svc)

	form := httptest.NewRequest(http.MethodPost, "/challenge", strings.NewReader("document_id=doc-9"))
	form.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, body := do(t, s, form)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "doc-9", svc.requested)
	require.Equal(t, []string{"A?", "B?", "C?"}, parseBody[challengeResponse](t, body).Questions)

	resp, _ = do(t, s, jsonRequest(http.MethodPost, "/challenge", `{"document_id":"doc-10"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "doc-10", svc.requested)
}

func TestChallenge_EmptyQuestionsEncodeAsArray(t *testing.T) {
	resp, body := do(t, newTestServer(&stubAssistant{}), jsonRequest(http.MethodPost, "/challenge", `{"document_id":"doc-1"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"questions":[]}`, string(body))
}

func TestEvaluate(t *testing.T) {
	svc := &stubAssistant{eval: domain.Evaluation{RawNarrative: "Score: 8/10"}}
	req := jsonRequest(http.MethodPost, "/evaluate", `{"question":"Q?","answer":"mine","document_id":"doc-1"}`)
	resp, body := do(t, newTestServer(svc), req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.EvaluateInput{DocumentID: "doc-1", Question: "Q?", Answer: "mine"}, svc.evalIn)
	require.Equal(t, "Score: 8/10", parseBody[evaluateResponse](t, body).Evaluation)
}

func TestEvaluate_FormBody(t *testing.T) {
	svc := &stubAssistant{eval: domain.Evaluation{RawNarrative: "Score: 5/10"}}
	req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader("question=Q%3F&answer=from+form&document_id=doc-2"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, _ := do(t, newTestServer(svc), req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.EvaluateInput{DocumentID: "doc-2", Question: "Q?", Answer: "from form"}, svc.evalIn)
}

func TestDocumentAndConversation(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := &stubAssistant{
		info:    usecase.DocumentInfo{DocumentID: "doc-1", Filename: "a.txt", ContentLength: 12},
		history: []domain.Turn{{Question: "q", Answer: "a", Timestamp: ts}},
	}
	s := newTestServer(svc)

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/document/doc-1", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "doc-1", svc.requested)
	require.Equal(t, documentResponse{DocumentID: "doc-1", Filename: "a.txt", ContentLength: 12}, parseBody[documentResponse](t, body))

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/conversation/doc-1", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := parseBody[conversationResponse](t, body)
	require.Equal(t, "doc-1", out.DocumentID)
	require.Len(t, out.ConversationHistory, 1)
	require.Equal(t, "q", out.ConversationHistory[0].Question)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		detail string
	}{
		{"not found", &usecase.Error{Code: usecase.ErrorNotFound, Reason: "document_not_found"}, http.StatusNotFound, "NOT_FOUND", "Document not found"},
		{"unsupported", &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "unsupported_file_type"}, http.StatusBadRequest, "INVALID_INPUT", "Only PDF and TXT files are supported"},
		{"extraction", &usecase.Error{Code: usecase.ErrorExtraction, Reason: "extraction_failed", Err: errors.New("bad xref")}, http.StatusBadRequest, "EXTRACTION_ERROR", "Error reading file: bad xref"},
		{"generation", &usecase.Error{Code: usecase.ErrorGenerationFailed, Reason: "challenge_generation_timeout"}, http.StatusBadGateway, "GENERATION_FAILED", "Text generation failed (challenge_generation_timeout)"},
		{"internal", &usecase.Error{Code: usecase.ErrorInternal, Reason: "store_read_error", Err: errors.New("secret")}, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, newTestServer(&stubAssistant{err: tc.err}), httptest.NewRequest(http.MethodGet, "/document/doc-1", nil))
			require.Equal(t, tc.status, resp.StatusCode)
			out := parseBody[errorResponse](t, body)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, tc.detail, out.Detail)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	resp, body := do(t, newTestServer(&stubAssistant{}), httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "NOT_FOUND", parseBody[errorResponse](t, body).Error)
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, _ := do(t, newTestServer(&stubAssistant{}), req)
	require.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
}

func (g *scriptedGenerator) Generate(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	out := g.replies[0]
	g.replies = g.replies[1:]
	return out, nil
}

func TestEndToEnd_UploadAskHistory(t *testing.T) {
	ex, err := extract.New(t.TempDir(), 0)
	require.NoError(t, err)
	gen := &scriptedGenerator{replies: []string{
		"A summary.",
		"```json\n{\"answer\":\"Blue\",\"justification\":\"para 1\",\"source_snippet\":\"the sky is blue\",\"confidence\":\"high\"}\n```",
	}}
	svc, err := usecase.NewAssistantService(repository.NewMemoryStore(), gen, ex, nil, usecase.Options{})
	require.NoError(t, err)
	s := newTestServer(svc)

	resp, body := do(t, s, uploadRequest(t, "sky.txt", "  the sky is blue  "))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	up := parseBody[uploadResponse](t, body)
	require.NotEmpty(t, up.DocumentID)
	require.Equal(t, "A summary.", up.Summary)

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/document/"+up.DocumentID, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, len("the sky is blue"), parseBody[documentResponse](t, body).ContentLength)

	resp, body = do(t, s, jsonRequest(http.MethodPost, "/ask", `{"question":"Colour?","document_id":"`+up.DocumentID+`"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.ConfidenceHigh, parseBody[domain.GroundedAnswer](t, body).Confidence)

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/conversation/"+up.DocumentID, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conv := parseBody[conversationResponse](t, body)
	require.Len(t, conv.ConversationHistory, 1)
	require.Equal(t, "Blue", conv.ConversationHistory[0].Answer)

	resp, body = do(t, s, uploadRequest(t, "deck.pptx", "x"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Only PDF and TXT files are supported", parseBody[errorResponse](t, body).Detail)
}
