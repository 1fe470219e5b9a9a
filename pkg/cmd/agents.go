// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/evalforge/evalforge/pkg/agent"
	"github.com/evalforge/evalforge/pkg/models"
)

// NewAgentRegistry builds the agent registry from an endpoint mapping of the
// form "task-type=http://host/path,task-type=...". Every entry becomes an
// HTTP-backed handler; unknown task types are rejected.
func NewAgentRegistry(logger *slog.Logger, endpointSpec string) (*agent.Registry, error) {
	registry := agent.NewRegistry(logger)

	if endpointSpec == "" {
		return registry, nil
	}

	for _, entry := range strings.Split(endpointSpec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, endpoint, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("malformed agent endpoint entry %q, want task-type=url", entry)
		}

		taskType := models.TaskType(strings.TrimSpace(name))
		if !models.IsKnownTaskType(taskType) {
			return nil, fmt.Errorf("unknown task type %q in agent endpoints", name)
		}

		registry.Register(agent.NewHTTPHandler(taskType, strings.TrimSpace(endpoint)))

		logger.Info("Registered HTTP agent", "task_type", taskType, "endpoint", endpoint)
	}

	return registry, nil
}
