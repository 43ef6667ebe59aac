// Package repository хранит компании, итоги прогонов и архив событий.
package repository

import (
	"context"
	"errors"

	"virkum-respond/internal/domain"
	"virkum-respond/internal/worker"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// CompanyRepository источник компаний
type CompanyRepository interface {
	List(ctx context.Context) ([]domain.Company, error)
	Get(ctx context.Context, id int64) (domain.Company, error)
	Create(ctx context.Context, company domain.Company) (domain.Company, error)
	Delete(ctx context.Context, id int64) error
	// Import добавляет новые компании и пропускает уже существующие по имени.
	Import(ctx context.Context, companies []domain.Company) (ImportResult, error)
}

// ImportResult итог импорта
type ImportResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// TestRepository журнал прогонов (таблицы tests и email_test_runs)
type TestRepository interface {
	Save(ctx context.Context, report *domain.RunReport) (int64, error)
	List(ctx context.Context, limit int) ([]domain.RunSummary, error)
	Get(ctx context.Context, testID int64) (domain.RunSummary, error)
	ListTasks(ctx context.Context, testID int64) ([]TaskRecord, error)
}

// EventStore архив событий и итогов прогонов
type EventStore interface {
	Append(ctx context.Context, runID uuid.UUID, events []worker.Event) error
	List(ctx context.Context, runID uuid.UUID, offset int) ([]worker.Event, error)
	SaveSummary(ctx context.Context, summary domain.RunSummary) error
	GetSummary(ctx context.Context, runID uuid.UUID) (domain.RunSummary, error)
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
