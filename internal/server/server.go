// Package server exposes the document assistant over HTTP.
package server

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"document-assistant/internal/domain"
	"document-assistant/internal/usecase"
)

const (
	Version             = "1.0.0"
	CorrelationIDHeader = "X-Correlation-Id"
)

// Assistant is the set of document operations served over HTTP.
type Assistant interface {
	Upload(ctx context.Context, in usecase.UploadInput) (usecase.UploadOutput, error)
	Answer(ctx context.Context, in usecase.AnswerInput) (domain.GroundedAnswer, error)
	Challenge(ctx context.Context, documentID string) (domain.ChallengeSet, error)
	Evaluate(ctx context.Context, in usecase.EvaluateInput) (domain.Evaluation, error)
	DocumentInfo(ctx context.Context, documentID string) (usecase.DocumentInfo, error)
	History(ctx context.Context, documentID string) ([]domain.Turn, error)
}

type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	Tracing        bool
}

type Server struct {
	app *fiber.App
	svc Assistant
	log *zap.Logger
}

func New(svc Assistant, log *zap.Logger, opts Options) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	bodyLimit := int(opts.MaxUploadBytes) + 1<<20
	if opts.MaxUploadBytes <= 0 {
		bodyLimit = 11 << 20
	}

	app := fiber.New(fiber.Config{
		AppName:               "document-assistant",
		BodyLimit:             bodyLimit,
		ReadTimeout:           30 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(corsMiddleware(opts.AllowedOrigins))
	app.Use(requestid.New(requestid.Config{
		Header:    CorrelationIDHeader,
		Generator: uuid.NewString,
	}))
	if opts.Tracing {
		app.Use(otelfiber.Middleware())
	}
	app.Use(requestLogger(log))

	s := &Server{app: app, svc: svc, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/", s.handleRoot)
	s.app.Get("/healthz", s.handleHealth)

	s.app.Post("/upload", s.handleUpload)
	s.app.Post("/ask", s.handleAsk)
	s.app.Post("/challenge", s.handleChallenge)
	s.app.Post("/evaluate", s.handleEvaluate)
	s.app.Get("/document/:id", s.handleDocument)
	s.app.Get("/conversation/:id", s.handleConversation)
}

// App exposes the router, e.g. for the Lambda adapter and tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Run(port string) error {
	s.log.Info("server listening", zap.String("port", port))
	return s.app.Listen(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func corsMiddleware(origins []string) fiber.Handler {
	allowOrigins := strings.Join(origins, ",")
	credentials := true
	if allowOrigins == "" || strings.Contains(allowOrigins, "*") {
		// fiber rejects credentials combined with a wildcard origin.
		credentials = false
		if allowOrigins == "" {
			allowOrigins = "*"
		}
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowCredentials: credentials,
		AllowMethods:     "GET, POST, OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + CorrelationIDHeader,
		ExposeHeaders:    CorrelationIDHeader,
	})
}

// requestLogger runs the error handler itself so the logged status is the
// one actually sent.
func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("correlation_id", c.GetRespHeader(CorrelationIDHeader)),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	}
}
