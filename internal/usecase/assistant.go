package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"document-assistant/internal/domain"
	"document-assistant/internal/extract"
)

const defaultGenerationTimeout = 60 * time.Second

// Generator is the external text-generation capability.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DocumentStore owns documents and their conversation logs. Reads of unknown
// ids report absence as a value; AppendTurn on an unknown id is a no-op.
type DocumentStore interface {
	CreateDocument(ctx context.Context, content, filename string) (string, error)
	GetDocument(ctx context.Context, id string) (domain.Document, bool, error)
	AppendTurn(ctx context.Context, id string, turn domain.Turn) error
	GetHistory(ctx context.Context, id string) ([]domain.Turn, error)
}

// Extractor turns an uploaded file into plain text.
type Extractor interface {
	Extract(ctx context.Context, filename string, r io.Reader) (string, error)
}

type Options struct {
	HistoryWindow     int
	GenerationTimeout time.Duration
}

type AssistantService struct {
	store     DocumentStore
	gen       Generator
	extractor Extractor
	log       *zap.Logger

	historyWindow     int
	generationTimeout time.Duration
}

type UploadInput struct {
	Filename string
	Body     io.Reader
}

type UploadOutput struct {
	DocumentID string
	Filename   string
	Summary    string
}

type AnswerInput struct {
	DocumentID string
	Question   string
}

type EvaluateInput struct {
	DocumentID string
	Question   string
	Answer     string
}

type DocumentInfo struct {
	DocumentID    string
	Filename      string
	ContentLength int
}

func NewAssistantService(store DocumentStore, gen Generator, extractor Extractor, log *zap.Logger, opts Options) (*AssistantService, error) {
	if store == nil {
		return nil, errors.New("usecase: document store must not be nil")
	}
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if extractor == nil {
		return nil, errors.New("usecase: extractor must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = defaultGenerationTimeout
	}
	return &AssistantService{
		store:             store,
		gen:               gen,
		extractor:         extractor,
		log:               log.Named("assistant"),
		historyWindow:     opts.HistoryWindow,
		generationTimeout: opts.GenerationTimeout,
	}, nil
}

// Upload extracts text from an uploaded file, stores it and summarizes it.
// The document is kept even when summarization fails.
func (s *AssistantService) Upload(ctx context.Context, in UploadInput) (UploadOutput, error) {
	filename := strings.TrimSpace(in.Filename)
	if filename == "" || in.Body == nil {
		return UploadOutput{}, newError(ErrorInvalidInput, "missing_file", nil)
	}

	text, err := s.extractor.Extract(ctx, filename, in.Body)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedType) {
			return UploadOutput{}, newError(ErrorInvalidInput, "unsupported_file_type", err)
		}
		return UploadOutput{}, newError(ErrorExtraction, "extraction_failed", err)
	}
	if strings.TrimSpace(text) == "" {
		return UploadOutput{}, newError(ErrorInvalidInput, "empty_document", nil)
	}

	id, err := s.store.CreateDocument(ctx, text, filename)
	if err != nil {
		return UploadOutput{}, newError(ErrorInternal, "store_create_error", err)
	}
	s.log.Info("document stored",
		zap.String("document_id", id),
		zap.String("filename", filename),
		zap.Int("content_length", utf8.RuneCountInString(text)),
	)

	summary, err := s.Summarize(ctx, text)
	if err != nil {
		return UploadOutput{}, err
	}
	return UploadOutput{DocumentID: id, Filename: filename, Summary: summary}, nil
}

// Summarize does not touch the store.
func (s *AssistantService) Summarize(ctx context.Context, content string) (string, error) {
	raw, err := s.generate(ctx, "summary", buildSummaryPrompt(content))
	if err != nil {
		return "", err
	}
	return parseSummary(raw), nil
}

func (s *AssistantService) Answer(ctx context.Context, in AnswerInput) (domain.GroundedAnswer, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return domain.GroundedAnswer{}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	doc, err := s.requireDocument(ctx, in.DocumentID)
	if err != nil {
		return domain.GroundedAnswer{}, err
	}

	history, err := s.store.GetHistory(ctx, doc.ID)
	if err != nil {
		return domain.GroundedAnswer{}, newError(ErrorInternal, "store_history_error", err)
	}

	raw, err := s.generate(ctx, "answer", buildAnswerPrompt(doc.Content, question, history, s.historyWindow))
	if err != nil {
		return domain.GroundedAnswer{}, err
	}

	answer, fallback := parseGroundedAnswer(raw)
	if fallback {
		s.log.Warn("model answer was not valid JSON, using raw text", zap.String("document_id", doc.ID))
	}

	turn := domain.Turn{
		Question:      question,
		Answer:        answer.Answer,
		SourceSnippet: answer.SourceSnippet,
		Timestamp:     now(),
	}
	if err := s.store.AppendTurn(ctx, doc.ID, turn); err != nil {
		return domain.GroundedAnswer{}, newError(ErrorInternal, "store_append_error", err)
	}
	return answer, nil
}

func (s *AssistantService) Challenge(ctx context.Context, documentID string) (domain.ChallengeSet, error) {
	doc, err := s.requireDocument(ctx, documentID)
	if err != nil {
		return domain.ChallengeSet{}, err
	}

	raw, err := s.generate(ctx, "challenge", buildChallengePrompt(doc.Content))
	if err != nil {
		return domain.ChallengeSet{}, err
	}

	set := parseChallenge(raw)
	if set.Strategy == domain.StrategyDegraded || len(set.Questions) < challengeSize {
		s.log.Warn("challenge questions parsed in degraded mode",
			zap.String("document_id", doc.ID),
			zap.String("strategy", string(set.Strategy)),
			zap.Int("questions", len(set.Questions)),
		)
	}
	return set, nil
}

func (s *AssistantService) Evaluate(ctx context.Context, in EvaluateInput) (domain.Evaluation, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return domain.Evaluation{}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	doc, err := s.requireDocument(ctx, in.DocumentID)
	if err != nil {
		return domain.Evaluation{}, err
	}

	raw, err := s.generate(ctx, "evaluation", buildEvaluationPrompt(doc.Content, question, in.Answer))
	if err != nil {
		return domain.Evaluation{}, err
	}
	return parseEvaluation(raw), nil
}

func (s *AssistantService) DocumentInfo(ctx context.Context, documentID string) (DocumentInfo, error) {
	doc, err := s.requireDocument(ctx, documentID)
	if err != nil {
		return DocumentInfo{}, err
	}
	return DocumentInfo{
		DocumentID:    doc.ID,
		Filename:      doc.Filename,
		ContentLength: utf8.RuneCountInString(doc.Content),
	}, nil
}

func (s *AssistantService) History(ctx context.Context, documentID string) ([]domain.Turn, error) {
	doc, err := s.requireDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	history, err := s.store.GetHistory(ctx, doc.ID)
	if err != nil {
		return nil, newError(ErrorInternal, "store_history_error", err)
	}
	if history == nil {
		history = []domain.Turn{}
	}
	return history, nil
}

func (s *AssistantService) requireDocument(ctx context.Context, id string) (domain.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Document{}, newError(ErrorNotFound, "document_not_found", nil)
	}
	doc, ok, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return domain.Document{}, newError(ErrorInternal, "store_read_error", err)
	}
	if !ok {
		return domain.Document{}, newError(ErrorNotFound, "document_not_found", nil)
	}
	return doc, nil
}

// generate bounds the call with the configured timeout. Any failure, including
// deadline expiry, is reported as ErrorGenerationFailed.
func (s *AssistantService) generate(ctx context.Context, task, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.generationTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.gen.Generate(ctx, prompt)
	elapsed := time.Since(start)
	if err != nil {
		reason := task + "_generation_error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = task + "_generation_timeout"
		}
		s.log.Error("generation failed",
			zap.String("task", task),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return "", newError(ErrorGenerationFailed, reason, err)
	}
	s.log.Debug("generation complete",
		zap.String("task", task),
		zap.Int("prompt_chars", len(prompt)),
		zap.Duration("elapsed", elapsed),
	)
	return raw, nil
}

var now = func() time.Time {
	return time.Now().UTC()
}
