package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"virkum-respond/internal/domain"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const companyFields = `id, name, url, description, info, created_at`

type pgCompanyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgCompanyRepository создает CompanyRepository поверх PostgreSQL.
func NewPgCompanyRepository(db *pgxpool.Pool, logger *zap.Logger) CompanyRepository {
	return &pgCompanyRepository{db: db, logger: logger.Named("company_repo")}
}

func (r *pgCompanyRepository) List(ctx context.Context) ([]domain.Company, error) {
	query := fmt.Sprintf(`SELECT %s FROM companies ORDER BY id`, companyFields)
	companies := make([]domain.Company, 0)
	if err := pgxscan.Select(ctx, r.db, &companies, query); err != nil {
		r.logger.Error("Failed to list companies", zap.Error(err))
		return nil, fmt.Errorf("list companies: %w", err)
	}
	return companies, nil
}

func (r *pgCompanyRepository) Get(ctx context.Context, id int64) (domain.Company, error) {
	query := fmt.Sprintf(`SELECT %s FROM companies WHERE id = $1`, companyFields)
	var company domain.Company
	if err := pgxscan.Get(ctx, r.db, &company, query, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Company{}, fmt.Errorf("company %d: %w", id, domain.ErrNotFound)
		}
		r.logger.Error("Failed to get company", zap.Int64("companyID", id), zap.Error(err))
		return domain.Company{}, fmt.Errorf("get company %d: %w", id, err)
	}
	return company, nil
}

func (r *pgCompanyRepository) Create(ctx context.Context, company domain.Company) (domain.Company, error) {
	company.Name = strings.TrimSpace(company.Name)
	if company.Name == "" {
		return domain.Company{}, domain.NewValidationError("name", "must not be empty")
	}

	query := `INSERT INTO companies (name, url, description, info) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query, company.Name, company.URL, company.Description, company.Info).
		Scan(&company.ID, &company.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Company{}, fmt.Errorf("company %q: %w", company.Name, domain.ErrAlreadyExists)
		}
		r.logger.Error("Failed to create company", zap.String("name", company.Name), zap.Error(err))
		return domain.Company{}, fmt.Errorf("create company: %w", err)
	}
	r.logger.Info("Company created", zap.Int64("companyID", company.ID), zap.String("name", company.Name))
	return company, nil
}

func (r *pgCompanyRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete company", zap.Int64("companyID", id), zap.Error(err))
		return fmt.Errorf("delete company %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("company %d: %w", id, domain.ErrNotFound)
	}
	r.logger.Info("Company deleted", zap.Int64("companyID", id))
	return nil
}

func (r *pgCompanyRepository) Import(ctx context.Context, companies []domain.Company) (ImportResult, error) {
	var result ImportResult
	unique := domain.DedupeCompanies(companies)
	result.Skipped = len(companies) - len(unique)

	batch := &pgx.Batch{}
	query := `INSERT INTO companies (name, url, description, info) VALUES ($1, $2, $3, $4)
		ON CONFLICT ((LOWER(BTRIM(name)))) DO NOTHING`
	queued := 0
	for _, c := range unique {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			result.Skipped++
			continue
		}
		batch.Queue(query, name, c.URL, c.Description, c.Info)
		queued++
	}
	if queued == 0 {
		return result, nil
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < queued; i++ {
		tag, err := br.Exec()
		if err != nil {
			r.logger.Error("Failed to import company", zap.Int("row", i), zap.Error(err))
			return result, fmt.Errorf("import companies: %w", err)
		}
		if tag.RowsAffected() == 0 {
			result.Skipped++
		} else {
			result.Inserted++
		}
	}
	r.logger.Info("Companies imported", zap.Int("inserted", result.Inserted), zap.Int("skipped", result.Skipped))
	return result, nil
}
