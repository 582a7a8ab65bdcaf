package database

import (
	"context"
	"fmt"
	"sort"

	dbsql "github.com/DSTX70/gigster-switchboard/pkg/database/sql"
	"github.com/DSTX70/gigster-switchboard/pkg/logging"
)

// ApplySchema executes the embedded schema files against the connected
// database in lexical order. Statements are idempotent (CREATE IF NOT EXISTS)
// so this is safe to run on every startup.
func ApplySchema(ctx context.Context, db PostgresConn, logger logging.Logger) error {
	entries, err := dbsql.Content.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := dbsql.Content.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("failed to read embedded schema file %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", name, err)
		}
		logger.WithField("file", name).Info("Applied schema file")
	}
	return nil
}
