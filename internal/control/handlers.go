package control

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/roomsync/internal/cache"
	perrors "github.com/p-blackswan/roomsync/internal/errors"
	"github.com/p-blackswan/roomsync/internal/health"
	"github.com/p-blackswan/roomsync/internal/syncer"
	"github.com/p-blackswan/roomsync/internal/variables"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine      Engine
	vars        variables.Store
	kits        KitLister
	actionLog   ActionLog
	checker     *health.Checker
	kitsBoardID string
	logger      zerolog.Logger
	startTime   time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, kitsBoardID string, logger zerolog.Logger) *Handlers {
	return &Handlers{
		engine:      deps.Engine,
		vars:        deps.Variables,
		kits:        deps.Kits,
		actionLog:   deps.ActionLog,
		checker:     deps.Checker,
		kitsBoardID: kitsBoardID,
		logger:      logger.With().Str("component", "handlers").Logger(),
		startTime:   time.Now(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker != nil && !h.checker.IsReady(c.UserContext()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	checks := map[string]string{}
	overall := "ok"
	if h.checker != nil {
		for name, status := range h.checker.RunAll(c.UserContext()) {
			checks[name] = string(status)
			switch {
			case status == health.StatusDown:
				overall = "down"
			case status == health.StatusDegraded && overall == "ok":
				overall = "degraded"
			}
		}
	}

	return c.JSON(HealthDetailResponse{
		Status: overall,
		Checks: checks,
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	})
}

// GetStatus handles GET /api/v1/status.
func (h *Handlers) GetStatus(c *fiber.Ctx) error {
	return c.JSON(h.engine.Status())
}

// ListVariables handles GET /api/v1/variables.
func (h *Handlers) ListVariables(c *fiber.Ctx) error {
	return c.JSON(h.vars.Snapshot())
}

// GetVariable handles GET /api/v1/variables/:name.
func (h *Handlers) GetVariable(c *fiber.Ctx) error {
	name := c.Params("name")
	v, ok := h.vars.Get(name)
	if !ok {
		return problemResponse(c, fiber.StatusNotFound,
			"variable_not_found", "Not Found",
			"Unknown variable: "+name)
	}
	return c.JSON(VariableResponse{Name: name, Value: v})
}

// ListActions handles GET /api/v1/actions.
func (h *Handlers) ListActions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"actions": h.engine.Actions()})
}

// ExecuteAction handles POST /api/v1/actions/:id.
func (h *Handlers) ExecuteAction(c *fiber.Ctx) error {
	id := c.Params("id")
	info, ok := h.engine.Action(id)
	if !ok {
		return problemResponse(c, fiber.StatusNotFound,
			"unknown_action", "Not Found",
			"Unknown action: "+id)
	}
	if !hasRole(c, Role(info.Role)) {
		return problemResponse(c, fiber.StatusForbidden,
			"insufficient_role", "Forbidden",
			"Action "+id+" requires the "+info.Role+" role")
	}

	var req ExecuteActionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_body", "Bad Request",
				"Invalid request body: "+err.Error())
		}
	}

	reqID, _ := c.Locals("request_id").(string)
	res, err := h.engine.Execute(c.UserContext(), id, syncer.ParseOptions(req.Options))
	h.record(c, id, err)
	if err != nil {
		status, errType := actionErrorStatus(err)
		return problemResponse(c, status, errType, "Action Failed", err.Error())
	}

	return c.JSON(ExecuteActionResponse{Result: res, RequestID: reqID})
}

func (h *Handlers) record(c *fiber.Ctx, id string, err error) {
	if h.actionLog == nil {
		return
	}
	result, detail := "ok", ""
	if err != nil {
		result, detail = "error", err.Error()
	}
	if logErr := h.actionLog.RecordAction(id, callerOf(c), result, detail); logErr != nil {
		h.logger.Warn().Err(logErr).Str("action", id).Msg("failed to record action")
	}
}

func actionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, syncer.ErrUnknownAction):
		return fiber.StatusNotFound, "unknown_action"
	case errors.Is(err, perrors.ErrInvalidInput):
		return fiber.StatusBadRequest, "invalid_input"
	case errors.Is(err, perrors.ErrNotResolved):
		return fiber.StatusConflict, "not_resolved"
	case errors.Is(err, perrors.ErrNotFound), errors.Is(err, cache.ErrCacheMiss):
		return fiber.StatusNotFound, "not_found"
	default:
		return fiber.StatusInternalServerError, "action_failed"
	}
}

// ActionHistory handles GET /api/v1/actions/log.
func (h *Handlers) ActionHistory(c *fiber.Ctx) error {
	if h.actionLog == nil {
		return c.JSON(fiber.Map{"entries": []ActionLogEntry{}})
	}
	records, err := h.actionLog.RecentActions(c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	entries := make([]ActionLogEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, ActionLogEntry{
			Action:    r.Action,
			Caller:    r.Caller,
			Result:    r.Result,
			Detail:    r.Detail,
			CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
		})
	}
	return c.JSON(fiber.Map{"entries": entries})
}

// ListFeedbacks handles GET /api/v1/feedbacks.
func (h *Handlers) ListFeedbacks(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"feedbacks": h.engine.Feedbacks()})
}

// EvaluateFeedback handles GET /api/v1/feedbacks/:id.
func (h *Handlers) EvaluateFeedback(c *fiber.Ctx) error {
	id := c.Params("id")
	opts := map[string]string{}
	if status := c.Query("status"); status != "" {
		opts["status"] = status
	}
	v, err := h.engine.Evaluate(id, opts)
	if err != nil {
		if errors.Is(err, syncer.ErrUnknownFeedback) {
			return problemResponse(c, fiber.StatusNotFound,
				"unknown_feedback", "Not Found",
				"Unknown feedback: "+id)
		}
		return err
	}
	return c.JSON(FeedbackResponse{ID: id, Value: v})
}

// ListKits handles GET /api/v1/kits.
func (h *Handlers) ListKits(c *fiber.Ctx) error {
	if h.kits == nil {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"kits_unavailable", "Service Unavailable",
			"Kit listing is not configured")
	}
	kits, err := h.kits.ListKits(c.UserContext(), h.kitsBoardID)
	if err != nil {
		h.logger.Warn().Err(err).Msg("kit listing failed")
		return problemResponse(c, fiber.StatusBadGateway,
			"remote_unavailable", "Bad Gateway",
			"Kit listing failed: "+err.Error())
	}
	return c.JSON(fiber.Map{"kits": kits})
}
