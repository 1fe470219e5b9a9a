// Package postgresql provides PostgreSQL persistence for evaluation records.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/evalforge/evalforge/pkg/persistence"
	"github.com/evalforge/evalforge/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	evaluations *EvaluationRepository
	taskResults *TaskResultRepository
	results     *ResultRepository
}

// NewPersistence connects, runs migrations, and returns a ready store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		evaluations: &EvaluationRepository{db: database},
		taskResults: &TaskResultRepository{db: database},
		results:     &ResultRepository{db: database},
	}, nil
}

func (p *Persistence) Evaluations() persistence.EvaluationRepository { return p.evaluations }
func (p *Persistence) TaskResults() persistence.TaskResultRepository { return p.taskResults }
func (p *Persistence) Results() persistence.ResultRepository         { return p.results }

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS evaluations (
				execution_id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				status TEXT NOT NULL,
				progress INTEGER NOT NULL DEFAULT 0,
				payload JSONB NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS task_results (
				execution_id TEXT NOT NULL,
				task_type TEXT NOT NULL,
				payload JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (execution_id, task_type)
			);

			CREATE TABLE IF NOT EXISTS aggregated_results (
				execution_id TEXT PRIMARY KEY,
				payload JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_evaluations_status ON evaluations (status);
			CREATE INDEX IF NOT EXISTS idx_evaluations_workflow ON evaluations (workflow_id);
		`,
	}
}
