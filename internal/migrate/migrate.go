// Package migrate applies the embedded SQL files in name order, tracking
// applied versions in schema_migrations.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/L-L777/classGrabber/internal/db"
)

//go:embed *.sql
var fs embed.FS

func Up(ctx context.Context, d *db.DB) error {
	if err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY);`); err != nil {
		return err
	}
	for _, name := range versions() {
		if err := apply(ctx, d, name); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// versions lists the embedded migration files in lexical order; the numeric
// prefix on each file name is what keeps them ordered.
func versions() []string {
	entries, _ := fs.ReadDir(".")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// apply runs one migration unless schema_migrations says it already ran.
func apply(ctx context.Context, d *db.DB, name string) error {
	var done bool
	if err := d.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, name).Scan(&done); err != nil {
		return err
	}
	if done {
		return nil
	}
	sql, err := fs.ReadFile(name)
	if err != nil {
		return err
	}
	if err := d.Exec(ctx, string(sql)); err != nil {
		return err
	}
	return d.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, name)
}
