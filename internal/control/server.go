package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/roomsync/internal/health"
	"github.com/p-blackswan/roomsync/internal/metrics"
	"github.com/p-blackswan/roomsync/internal/monday"
	"github.com/p-blackswan/roomsync/internal/requestid"
	"github.com/p-blackswan/roomsync/internal/syncer"
	"github.com/p-blackswan/roomsync/internal/variables"
)

// Engine is the part of the orchestrator the API drives.
type Engine interface {
	Status() syncer.Status
	Ready() bool
	Actions() []syncer.ActionInfo
	Action(id string) (syncer.ActionInfo, bool)
	Execute(ctx context.Context, id string, opts map[string]string) (syncer.Result, error)
	Feedbacks() []syncer.FeedbackInfo
	Evaluate(id string, opts map[string]string) (bool, error)
}

// KitLister lists the kit choices.
type KitLister interface {
	ListKits(ctx context.Context, kitsBoardID string) ([]monday.Kit, error)
}

// ActionLog records executed actions.
type ActionLog interface {
	RecordAction(action, caller, result, detail string) error
	RecentActions(limit int) ([]variables.ActionRecord, error)
}

// ServerConfig holds configuration for the control API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
	KitsBoardID string
}

// Deps are the collaborators served by the API. Kits, ActionLog and Metrics
// are optional.
type Deps struct {
	Engine    Engine
	Variables variables.Store
	Kits      KitLister
	ActionLog ActionLog
	Checker   *health.Checker
	Metrics   *metrics.Metrics
}

// Server is the control API Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	logger   zerolog.Logger
	config   ServerConfig
}

// NewServer creates and configures a new control API server. ctx bounds the
// rate limiter's background sweep.
func NewServer(ctx context.Context, cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	handlers := NewHandlers(deps, cfg.KitsBoardID, logger)

	s := &Server{
		app:      app,
		handlers: handlers,
		logger:   logger.With().Str("component", "control_server").Logger(),
		config:   cfg,
	}

	s.setupMiddleware(ctx, cfg, logger)
	s.setupRoutes(handlers, deps.Metrics)

	return s
}

func (s *Server) setupMiddleware(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(func(c *fiber.Ctx) error {
		_, reqID := requestid.Adopt(c.UserContext(), c.Get(requestid.Header))
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(ctx, cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", fmt.Sprintf("%v", c.Locals("request_id"))).
			Msg("control api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers, m *metrics.Metrics) {
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	v1 := s.app.Group("/api/v1")

	v1.Get("/status", h.GetStatus)
	v1.Get("/health", h.HealthDetail)

	v1.Get("/variables", h.ListVariables)
	v1.Get("/variables/:name", h.GetVariable)

	v1.Get("/actions", h.ListActions)
	v1.Get("/actions/log", h.ActionHistory)
	v1.Post("/actions/:id", requireRole(RoleOperator), h.ExecuteAction)

	v1.Get("/feedbacks", h.ListFeedbacks)
	v1.Get("/feedbacks/:id", h.EvaluateFeedback)

	v1.Get("/kits", h.ListKits)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	s.logger.Info().Str("addr", addr).Msg("control API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("control API server shutting down")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
