// Package database содержит SQL-миграции схемы сервиса.
package database

import (
	"embed"

	"virkum-respond/pkg/migration"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator создает Migrator со встроенными миграциями.
func NewMigrator(pool *pgxpool.Pool) *migration.Migrator {
	return migration.NewMigrator(migration.Config{
		MigrationsFS:   migrationsFS,
		MigrationsPath: "migrations",
	}, pool)
}
