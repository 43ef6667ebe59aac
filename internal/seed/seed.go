// Package seed читает YAML файлы с компаниями и сценариями.
package seed

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"virkum-respond/internal/domain"

	"gopkg.in/yaml.v3"
)

// File содержимое seed файла.
//
//	companies:
//	  - name: Acme Corp
//	    url: https://acme.example
//	    description: Skincare products
//	    info: Founded in 2001...
//	scenarios:
//	  - |
//	    Subject: Question about ingredients
//	    Hi, ...
type File struct {
	Companies []Company `yaml:"companies"`
	Scenarios []string  `yaml:"scenarios"`
}

// Company запись компании в seed файле
type Company struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
	Info        string `yaml:"info"`
}

// Parse читает seed файл. Компании без имени считаются ошибкой.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for i, c := range f.Companies {
		if strings.TrimSpace(c.Name) == "" {
			return nil, domain.NewValidationError(fmt.Sprintf("companies[%d].name", i), "is required")
		}
	}
	return &f, nil
}

// Load читает seed файл с диска.
func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// DomainCompanies компании файла без дубликатов по имени.
// ID назначаются по порядку начиная с 1.
func (f *File) DomainCompanies() []domain.Company {
	out := make([]domain.Company, 0, len(f.Companies))
	for _, c := range f.Companies {
		out = append(out, domain.Company{
			Name:        strings.TrimSpace(c.Name),
			URL:         strings.TrimSpace(c.URL),
			Description: strings.TrimSpace(c.Description),
			Info:        strings.TrimSpace(c.Info),
		})
	}
	out = domain.DedupeCompanies(out)
	for i := range out {
		out[i].ID = int64(i + 1)
	}
	return out
}
