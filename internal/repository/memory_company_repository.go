package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"virkum-respond/internal/domain"
)

// memoryCompanyRepository хранит компании в памяти. Используется CLI без базы данных.
type memoryCompanyRepository struct {
	mu        sync.RWMutex
	companies map[int64]domain.Company
	nextID    int64
}

// NewMemoryCompanyRepository создает репозиторий, заполненный companies.
func NewMemoryCompanyRepository(companies []domain.Company) CompanyRepository {
	r := &memoryCompanyRepository{companies: make(map[int64]domain.Company)}
	_, _ = r.Import(context.Background(), companies)
	return r
}

func (r *memoryCompanyRepository) List(_ context.Context) ([]domain.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Company, 0, len(r.companies))
	for _, c := range r.companies {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Company) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *memoryCompanyRepository) Get(_ context.Context, id int64) (domain.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[id]
	if !ok {
		return domain.Company{}, fmt.Errorf("company %d: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (r *memoryCompanyRepository) Create(_ context.Context, company domain.Company) (domain.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsLocked(company.Name) {
		return domain.Company{}, fmt.Errorf("company %q: %w", company.Name, domain.ErrAlreadyExists)
	}
	return r.insertLocked(company), nil
}

func (r *memoryCompanyRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.companies[id]; !ok {
		return fmt.Errorf("company %d: %w", id, domain.ErrNotFound)
	}
	delete(r.companies, id)
	return nil
}

func (r *memoryCompanyRepository) Import(_ context.Context, companies []domain.Company) (ImportResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res ImportResult
	for _, c := range companies {
		if strings.TrimSpace(c.Name) == "" || r.existsLocked(c.Name) {
			res.Skipped++
			continue
		}
		r.insertLocked(c)
		res.Inserted++
	}
	return res, nil
}

func (r *memoryCompanyRepository) existsLocked(name string) bool {
	key := domain.NormalizedName(name)
	for _, c := range r.companies {
		if domain.NormalizedName(c.Name) == key {
			return true
		}
	}
	return false
}

func (r *memoryCompanyRepository) insertLocked(c domain.Company) domain.Company {
	r.nextID++
	c.ID = r.nextID
	c.Name = strings.TrimSpace(c.Name)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.companies[c.ID] = c
	return c
}
