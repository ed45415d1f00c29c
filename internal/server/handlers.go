package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"document-assistant/internal/domain"
	"document-assistant/internal/usecase"
)

var validate = validator.New()

type uploadResponse struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Summary    string `json:"summary"`
	Message    string `json:"message"`
}

// askRequest accepts conversation_history for compatibility with older
// clients; the stored log is authoritative and the field is ignored.
type askRequest struct {
	Question            string            `json:"question" form:"question" validate:"required"`
	DocumentID          string            `json:"document_id" form:"document_id" validate:"required"`
	ConversationHistory []json.RawMessage `json:"conversation_history" form:"-"`
}

type challengeRequest struct {
	DocumentID string `json:"document_id" form:"document_id" validate:"required"`
}

type challengeResponse struct {
	Questions []string `json:"questions"`
}

type evaluateRequest struct {
	Question   string `json:"question" form:"question" validate:"required"`
	Answer     string `json:"answer" form:"answer"`
	DocumentID string `json:"document_id" form:"document_id" validate:"required"`
}

type evaluateResponse struct {
	Evaluation string `json:"evaluation"`
}

type documentResponse struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	ContentLength int    `json:"content_length"`
}

type conversationResponse struct {
	DocumentID          string        `json:"document_id"`
	ConversationHistory []domain.Turn `json:"conversation_history"`
}

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "GenAI Document Assistant API",
		"version": Version,
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "No file uploaded")
	}
	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "Error reading file: "+err.Error())
	}
	defer func() { _ = f.Close() }()

	out, err := s.svc.Upload(c.UserContext(), usecase.UploadInput{Filename: fh.Filename, Body: f})
	if err != nil {
		return err
	}
	return c.JSON(uploadResponse{
		DocumentID: out.DocumentID,
		Filename:   out.Filename,
		Summary:    out.Summary,
		Message:    "Document uploaded and processed successfully",
	})
}

func (s *Server) handleAsk(c *fiber.Ctx) error {
	var req askRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	answer, err := s.svc.Answer(c.UserContext(), usecase.AnswerInput{
		DocumentID: req.DocumentID,
		Question:   req.Question,
	})
	if err != nil {
		return err
	}
	return c.JSON(answer)
}

func (s *Server) handleChallenge(c *fiber.Ctx) error {
	var req challengeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	set, err := s.svc.Challenge(c.UserContext(), req.DocumentID)
	if err != nil {
		return err
	}
	questions := set.Questions
	if questions == nil {
		questions = []string{}
	}
	return c.JSON(challengeResponse{Questions: questions})
}

func (s *Server) handleEvaluate(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	eval, err := s.svc.Evaluate(c.UserContext(), usecase.EvaluateInput{
		DocumentID: req.DocumentID,
		Question:   req.Question,
		Answer:     req.Answer,
	})
	if err != nil {
		return err
	}
	return c.JSON(evaluateResponse{Evaluation: eval.RawNarrative})
}

func (s *Server) handleDocument(c *fiber.Ctx) error {
	info, err := s.svc.DocumentInfo(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(documentResponse{
		DocumentID:    info.DocumentID,
		Filename:      info.Filename,
		ContentLength: info.ContentLength,
	})
}

func (s *Server) handleConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	history, err := s.svc.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(conversationResponse{DocumentID: id, ConversationHistory: history})
}

// bind parses a JSON or form body into dst and validates it.
func bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return "Invalid request body"
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s is %s", fieldName(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func fieldName(goName string) string {
	switch goName {
	case "DocumentID":
		return "document_id"
	}
	return strings.ToLower(goName)
}
