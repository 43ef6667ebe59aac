// Package migration применяет миграции golang-migrate из fs.FS к пулу pgx.
package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultLockTimeout     = 30 * time.Second
)

// Config настройки миграций
type Config struct {
	MigrationsFS    fs.FS
	MigrationsPath  string
	MigrationsTable string        // пусто = schema_migrations
	LockTimeout     time.Duration // 0 = 30s
}

// Migrator выполняет миграции базы данных
type Migrator struct {
	config Config
	pool   *pgxpool.Pool
}

// NewMigrator создает Migrator
func NewMigrator(config Config, pool *pgxpool.Pool) *Migrator {
	if config.MigrationsTable == "" {
		config.MigrationsTable = defaultMigrationsTable
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = defaultLockTimeout
	}
	return &Migrator{config: config, pool: pool}
}

// Up применяет все новые миграции
func (m *Migrator) Up(ctx context.Context) error {
	return m.with(ctx, func(mg *migrate.Migrate) error {
		if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", err)
		}
		log.Ctx(ctx).Info().Msg("database migrations applied")
		return nil
	})
}

// Down откатывает все миграции
func (m *Migrator) Down(ctx context.Context) error {
	return m.with(ctx, func(mg *migrate.Migrate) error {
		if err := mg.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("rollback migrations: %w", err)
		}
		log.Ctx(ctx).Info().Msg("database migrations rolled back")
		return nil
	})
}

// Steps применяет n миграций вперед (n > 0) или назад (n < 0)
func (m *Migrator) Steps(ctx context.Context, n int) error {
	return m.with(ctx, func(mg *migrate.Migrate) error {
		if err := mg.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate %d steps: %w", n, err)
		}
		log.Ctx(ctx).Info().Int("steps", n).Msg("database migration steps applied")
		return nil
	})
}

// ForceVersion принудительно выставляет версию, снимая флаг dirty
func (m *Migrator) ForceVersion(ctx context.Context, version uint) error {
	return m.with(ctx, func(mg *migrate.Migrate) error {
		if err := mg.Force(int(version)); err != nil {
			return fmt.Errorf("force migration version %d: %w", version, err)
		}
		log.Ctx(ctx).Warn().Uint("version", version).Msg("database migration version forced")
		return nil
	})
}

// Version возвращает текущую версию схемы. Версия 0 = миграции не применялись.
func (m *Migrator) Version(ctx context.Context) (version uint, dirty bool, err error) {
	err = m.with(ctx, func(mg *migrate.Migrate) error {
		v, d, vErr := mg.Version()
		if errors.Is(vErr, migrate.ErrNilVersion) {
			return nil
		}
		if vErr != nil {
			return fmt.Errorf("read migration version: %w", vErr)
		}
		version, dirty = v, d
		return nil
	})
	return version, dirty, err
}

func (m *Migrator) with(ctx context.Context, fn func(mg *migrate.Migrate) error) error {
	if err := m.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database is not reachable: %w", err)
	}

	db := stdlib.OpenDBFromPool(m.pool)
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: m.config.MigrationsTable,
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create postgres driver: %w", err)
	}

	source, err := iofs.New(m.config.MigrationsFS, m.config.MigrationsPath)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("create migration source: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = source.Close()
		_ = driver.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	defer mg.Close()
	mg.LockTimeout = m.config.LockTimeout

	return fn(mg)
}
