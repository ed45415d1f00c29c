package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"document-assistant/internal/usecase"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

var reasonMessages = map[string]string{
	"missing_file":          "No file uploaded",
	"unsupported_file_type": "Only PDF and TXT files are supported",
	"empty_document":        "No text content found in the document",
	"empty_question":        "Question must not be empty",
	"document_not_found":    "Document not found",
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput, usecase.ErrorExtraction:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// detailFor renders the message shown to clients. Extraction failures carry
// their cause; other internal causes are only logged.
func detailFor(ue *usecase.Error) string {
	if msg, ok := reasonMessages[ue.Reason]; ok {
		return msg
	}
	switch ue.Code {
	case usecase.ErrorExtraction:
		if ue.Err != nil {
			return "Error reading file: " + ue.Err.Error()
		}
		return "Error reading file"
	case usecase.ErrorGenerationFailed:
		return "Text generation failed (" + ue.Reason + ")"
	}
	return "Internal server error"
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			ue *usecase.Error
			fe *fiber.Error
		)
		switch {
		case errors.As(err, &ue):
			status := statusFor(ue.Code)
			if status >= http.StatusInternalServerError {
				log.Error("request failed",
					zap.String("path", c.Path()),
					zap.String("code", string(ue.Code)),
					zap.String("reason", ue.Reason),
					zap.Error(ue.Err),
				)
			}
			return c.Status(status).JSON(errorResponse{Error: string(ue.Code), Detail: detailFor(ue)})
		case errors.As(err, &fe):
			code := usecase.ErrorInternal
			switch {
			case fe.Code == http.StatusNotFound:
				code = usecase.ErrorNotFound
			case fe.Code < http.StatusInternalServerError:
				code = usecase.ErrorInvalidInput
			}
			return c.Status(fe.Code).JSON(errorResponse{Error: string(code), Detail: fe.Message})
		default:
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(http.StatusInternalServerError).JSON(errorResponse{
				Error:  string(usecase.ErrorInternal),
				Detail: "Internal server error",
			})
		}
	}
}
