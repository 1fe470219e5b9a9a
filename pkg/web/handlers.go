// Package web provides HTTP handlers and REST API endpoints for submitting
// and inspecting evaluation workflows.
package web

import (
	"net/http"
	"time"

	"github.com/evalforge/evalforge/pkg/definition"
	"github.com/evalforge/evalforge/pkg/orchestrator"
	"github.com/evalforge/evalforge/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	orchestrator *orchestrator.Orchestrator
	definitions  *definition.Store
	persistence  persistence.Persistence
	validator    *validator.Validate
}

func NewAPIHandlers(
	orch *orchestrator.Orchestrator,
	definitions *definition.Store,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		orchestrator: orch,
		definitions:  definitions,
		persistence:  persistence,
		validator:    validator,
	}
}

// Register attaches all API routes to the app.
func (h *APIHandlers) Register(app *fiber.App) {
	evaluations := app.Group("/evaluations")
	evaluations.Post("/", h.SubmitEvaluation)
	evaluations.Get("/:id", h.GetEvaluation)
	evaluations.Get("/:id/result", h.GetEvaluationResult)
	evaluations.Delete("/:id", h.CancelEvaluation)

	workflows := app.Group("/workflows")
	workflows.Get("/", h.GetWorkflows)
	workflows.Get("/:id", h.GetWorkflow)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) SubmitEvaluation(c fiber.Ctx) error {
	var req SubmitEvaluationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	options := orchestrator.StartOptions{
		Priority:      req.Priority,
		Timeout:       time.Duration(req.TimeoutMs) * time.Millisecond,
		CorrelationID: req.CorrelationID,
		Requester:     req.Requester,
		Strategy:      req.Strategy,
	}

	executionID, err := h.orchestrator.StartWorkflow(c.Context(), req.WorkflowID, req.Subject, options)
	if err != nil {
		return handleOrchestratorError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(SubmitEvaluationResponse{
		ExecutionID: executionID,
		WorkflowID:  req.WorkflowID,
		Status:      "pending",
	})
}

func (h *APIHandlers) GetEvaluation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.orchestrator.GetStatus(id)
	if err != nil {
		return handleOrchestratorError(c, err)
	}

	return c.JSON(TransformExecutionResponse(execution))
}

func (h *APIHandlers) GetEvaluationResult(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	result, err := h.orchestrator.GetResult(id)
	if err != nil {
		return handleOrchestratorError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) CancelEvaluation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if !h.orchestrator.CancelWorkflow(id) {
		// Either unknown or already terminal; the status endpoint
		// disambiguates for the caller.
		if _, err := h.orchestrator.GetStatus(id); err != nil {
			return handleOrchestratorError(c, err)
		}

		return notFound(c, "Execution is not active")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	ids := h.definitions.IDs()

	return c.JSON(fiber.Map{
		"workflows":   ids,
		"total_count": len(ids),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	def, err := h.definitions.ByID(id)
	if err != nil {
		return handleOrchestratorError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Evalforge API is healthy"
	httpStatus := http.StatusOK

	var repositoryCheck string

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Evalforge API is unhealthy"
		httpStatus = http.StatusInternalServerError
		repositoryCheck = err.Error()
	} else {
		repositoryCheck = "ok"
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository":     repositoryCheck,
			"active_workers": h.orchestrator.ActiveCount(),
		},
		"timestamp": time.Now().UTC(),
	})
}
