// Package definition loads workflow definitions from static JSON
// configuration and validates them at process start.
package definition

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evalforge/evalforge/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

// ErrDefinitionNotFound indicates no definition exists for the workflow id.
var ErrDefinitionNotFound = errors.New("workflow definition not found")

// definitionSchema is the file-level contract a definition document must
// satisfy before it is decoded.
const definitionSchema = `{
	"type": "object",
	"required": ["id", "name", "tasks"],
	"properties": {
		"id": {"type": "string", "minLength": 3},
		"name": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"task_timeout_ms": {"type": "integer", "minimum": 0},
		"retry": {
			"type": "object",
			"properties": {
				"max_retries": {"type": "integer", "minimum": 0},
				"backoff": {"type": "string", "enum": ["exponential", "linear", "fixed", "custom"]},
				"base_delay_ms": {"type": "integer", "minimum": 0},
				"max_delay_ms": {"type": "integer", "minimum": 0},
				"jitter": {"type": "boolean"}
			}
		},
		"tasks": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["type"],
				"properties": {
					"type": {"type": "string"},
					"depends_on": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["on"],
							"properties": {
								"on": {"type": "string"},
								"optional": {"type": "boolean"}
							}
						}
					},
					"estimated_duration_ms": {"type": "integer", "minimum": 0},
					"consumes_keys": {"type": "array", "items": {"type": "string"}},
					"produces_keys": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`

var compiledDefinitionSchema = gojsonschema.NewStringLoader(definitionSchema)

// definitionDocument is the on-disk shape; durations are milliseconds.
type definitionDocument struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	TaskTimeout int64          `json:"task_timeout_ms"`
	Retry       retryDocument  `json:"retry"`
	Tasks       []taskDocument `json:"tasks"`
}

type retryDocument struct {
	MaxRetries int    `json:"max_retries"`
	Backoff    string `json:"backoff"`
	BaseDelay  int64  `json:"base_delay_ms"`
	MaxDelay   int64  `json:"max_delay_ms"`
	Jitter     bool   `json:"jitter"`
}

type taskDocument struct {
	Type              string                  `json:"type"`
	DependsOn         []models.DependencyEdge `json:"depends_on"`
	EstimatedDuration int64                   `json:"estimated_duration_ms"`
	ConsumesKeys      []string                `json:"consumes_keys"`
	ProducesKeys      []string                `json:"produces_keys"`
}

// Store holds the immutable definition set for the process lifetime.
type Store struct {
	definitions map[string]*models.WorkflowDefinition
	logger      *slog.Logger
	validate    *validator.Validate
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		definitions: make(map[string]*models.WorkflowDefinition),
		logger:      logger.With("module", "definition_store"),
		validate:    validator.New(),
	}
}

// LoadDir loads every *.json definition in the directory.
func (s *Store) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		if err := s.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}

	if len(s.definitions) == 0 {
		return fmt.Errorf("no workflow definitions found in %s", dir)
	}

	return nil
}

// LoadFile loads, schema-checks, and registers one definition file.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("failed to read definition %s: %w", path, err)
	}

	result, err := gojsonschema.Validate(compiledDefinitionSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to schema-check definition %s: %w", path, err)
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, violation := range result.Errors() {
			violations = append(violations, violation.String())
		}

		return fmt.Errorf("definition %s is invalid: %s", path, strings.Join(violations, "; "))
	}

	var doc definitionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode definition %s: %w", path, err)
	}

	definition := doc.toModel()

	if err := s.Register(definition); err != nil {
		return fmt.Errorf("definition %s rejected: %w", path, err)
	}

	s.logger.Info("Loaded workflow definition",
		"workflow_id", definition.ID,
		"tasks", len(definition.Tasks),
		"path", path)

	return nil
}

// Register validates and adds a definition built in code (used by tests and
// embedded defaults).
func (s *Store) Register(definition *models.WorkflowDefinition) error {
	if err := s.validate.Struct(definition); err != nil {
		return fmt.Errorf("definition failed validation: %w", err)
	}

	if err := checkTaskCatalog(definition); err != nil {
		return err
	}

	if err := checkDataContract(definition); err != nil {
		return err
	}

	s.definitions[definition.ID] = definition

	return nil
}

// ByID returns the definition for a workflow id.
func (s *Store) ByID(workflowID string) (*models.WorkflowDefinition, error) {
	definition, ok := s.definitions[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, workflowID)
	}

	return definition, nil
}

// IDs lists the registered workflow ids.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.definitions))
	for id := range s.definitions {
		ids = append(ids, id)
	}

	return ids
}

func (d *definitionDocument) toModel() *models.WorkflowDefinition {
	tasks := make([]models.TaskSpec, 0, len(d.Tasks))

	for _, task := range d.Tasks {
		tasks = append(tasks, models.TaskSpec{
			Type:              models.TaskType(task.Type),
			DependsOn:         task.DependsOn,
			EstimatedDuration: time.Duration(task.EstimatedDuration) * time.Millisecond,
			ConsumesKeys:      task.ConsumesKeys,
			ProducesKeys:      task.ProducesKeys,
		})
	}

	backoff := models.BackoffKind(d.Retry.Backoff)
	if backoff == "" {
		backoff = models.BackoffExponential
	}

	return &models.WorkflowDefinition{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Tasks:       tasks,
		TaskTimeout: time.Duration(d.TaskTimeout) * time.Millisecond,
		Retry: models.RetryPolicy{
			MaxRetries: d.Retry.MaxRetries,
			Backoff:    backoff,
			BaseDelay:  time.Duration(d.Retry.BaseDelay) * time.Millisecond,
			MaxDelay:   time.Duration(d.Retry.MaxDelay) * time.Millisecond,
			Jitter:     d.Retry.Jitter,
		},
	}
}

func checkTaskCatalog(definition *models.WorkflowDefinition) error {
	for _, task := range definition.Tasks {
		if !models.IsKnownTaskType(task.Type) {
			return fmt.Errorf("definition %s references unknown task type %s", definition.ID, task.Type)
		}
	}

	return nil
}

// checkDataContract verifies every consumed data key is produced by some
// dependency (required or optional) of the consuming task, so ad hoc shared
// store keys cannot appear at runtime.
func checkDataContract(definition *models.WorkflowDefinition) error {
	producedBy := make(map[string][]models.TaskType)

	for _, task := range definition.Tasks {
		for _, key := range task.ProducesKeys {
			producedBy[key] = append(producedBy[key], task.Type)
		}
	}

	for _, task := range definition.Tasks {
		deps := make(map[models.TaskType]bool, len(task.DependsOn))
		for _, edge := range task.DependsOn {
			deps[edge.On] = true
		}

		for _, key := range task.ConsumesKeys {
			producers, ok := producedBy[key]
			if !ok {
				return fmt.Errorf("definition %s: task %s consumes key %q which no task produces",
					definition.ID, task.Type, key)
			}

			satisfied := false

			for _, producer := range producers {
				if deps[producer] {
					satisfied = true

					break
				}
			}

			if !satisfied {
				return fmt.Errorf("definition %s: task %s consumes key %q but does not depend on any producer %v",
					definition.ID, task.Type, key, producers)
			}
		}
	}

	return nil
}
