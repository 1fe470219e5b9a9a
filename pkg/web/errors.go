package web

import (
	"errors"

	"github.com/evalforge/evalforge/pkg/definition"
	"github.com/evalforge/evalforge/pkg/orchestrator"
	"github.com/evalforge/evalforge/pkg/plan"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleOrchestratorError maps orchestrator and planner errors onto problem
// responses.
func handleOrchestratorError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, definition.ErrDefinitionNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("workflow_not_found").
			WithDetail("workflow definition not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case plan.IsCyclicDependencyError(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("cyclic_dependency").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case plan.IsConfigurationError(err):
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("invalid_workflow").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case orchestrator.IsCapacityExceeded(err):
		problem := problems.NewStatusProblem(429).
			WithInstance(c.Path()).
			WithType("capacity_exceeded").
			WithDetail(err.Error())

		return c.Status(fiber.StatusTooManyRequests).JSON(problem)

	case orchestrator.IsExecutionNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("execution_not_found").
			WithDetail("execution not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, orchestrator.ErrResultNotReady):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("result_not_ready").
			WithDetail("the execution has no aggregated result yet")

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
