package sqlstore

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// bootstrap creates the tables when absent. Statements are idempotent so every start runs them.
func bootstrap(ctx context.Context, pool *ConnectionPool) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := pool.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: bootstrap schema: %w", err)
		}
	}
	return nil
}
