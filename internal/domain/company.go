package domain

import (
	"strings"
	"time"
)

// Company снимок компании, используемый как контекст генерации.
type Company struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	URL         string    `json:"url" db:"url"`
	Description string    `json:"description" db:"description"`
	Info        string    `json:"info" db:"info"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// NormalizedName ключ сравнения имен: без пробелов по краям и в нижнем регистре.
func NormalizedName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DedupeCompanies убирает компании с совпадающим нормализованным именем.
// Остается первое вхождение, порядок сохраняется.
func DedupeCompanies(companies []Company) []Company {
	seen := make(map[string]struct{}, len(companies))
	out := make([]Company, 0, len(companies))
	for _, c := range companies {
		key := NormalizedName(c.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
