// Package agent defines the analysis agent handler contract and the registry
// of handlers available to the execution service.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evalforge/evalforge/pkg/models"
)

// Handler is one analysis agent: an opaque unit of work that accepts a typed
// request and returns a typed score+insights response. The content of the
// analysis is external to this engine.
type Handler interface {
	TaskType() models.TaskType
	Execute(ctx context.Context, req models.AgentRequest, agentCtx models.AgentContext) (*models.AgentResponse, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc struct {
	Type models.TaskType
	Fn   func(ctx context.Context, req models.AgentRequest, agentCtx models.AgentContext) (*models.AgentResponse, error)
}

func (h HandlerFunc) TaskType() models.TaskType { return h.Type }

func (h HandlerFunc) Execute(ctx context.Context, req models.AgentRequest, agentCtx models.AgentContext) (*models.AgentResponse, error) {
	return h.Fn(ctx, req, agentCtx)
}

// Registry maps task types to their handlers.
type Registry struct {
	logger   *slog.Logger
	handlers map[models.TaskType]Handler
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "agent_registry"),
		handlers: make(map[models.TaskType]Handler),
	}
}

func (r *Registry) Register(handler Handler) {
	r.handlers[handler.TaskType()] = handler
	r.logger.Debug("Registered agent handler", "task_type", handler.TaskType())
}

func (r *Registry) Handler(taskType models.TaskType) (Handler, error) {
	handler, ok := r.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("agent handler for task type '%s' not registered", taskType)
	}

	return handler, nil
}

// TaskTypes lists the registered task types.
func (r *Registry) TaskTypes() []models.TaskType {
	types := make([]models.TaskType, 0, len(r.handlers))
	for taskType := range r.handlers {
		types = append(types, taskType)
	}

	return types
}
