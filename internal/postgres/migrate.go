package postgres

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"strings"

	ierr "github.com/flexprice/invoicerecon/internal/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migration is a single schema file applied in name order
type Migration struct {
	Name string
	SQL  string
}

// Migrations lists the embedded schema files in the order they apply
func Migrations() ([]Migration, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	sort.Strings(names)

	list := make([]Migration, 0, len(names))
	for _, name := range names {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
		}
		list = append(list, Migration{
			Name: strings.TrimPrefix(name, "migrations/"),
			SQL:  string(body),
		})
	}
	return list, nil
}

// Migrate applies every embedded migration inside one transaction. The
// statements are idempotent so rerunning against a migrated database is a no-op.
func (db *DB) Migrate(ctx context.Context) error {
	list, err := Migrations()
	if err != nil {
		return err
	}

	return db.WithTx(ctx, func(ctx context.Context) error {
		for _, m := range list {
			db.logger.Infow("applying migration", "name", m.Name)
			if _, err := db.GetQuerier(ctx).ExecContext(ctx, m.SQL); err != nil {
				return ierr.WithError(err).
					WithHintf("Migration %s failed", m.Name).
					Mark(ierr.ErrDatabase)
			}
		}
		return nil
	})
}
