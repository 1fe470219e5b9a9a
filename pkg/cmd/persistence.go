package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/evalforge/evalforge/pkg/persistence"
	"github.com/evalforge/evalforge/pkg/persistence/file"
	"github.com/evalforge/evalforge/pkg/persistence/postgresql"
)

// NewPersistence selects a persistence backend from the database URL scheme.
// Anything that is not postgres falls back to the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
