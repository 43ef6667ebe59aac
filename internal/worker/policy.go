package worker

import (
	"math/rand/v2"
	"strings"

	"virkum-respond/internal/domain"
)

// Второе слово состояния PCG, чтобы один seed давал воспроизводимую последовательность.
const pcgStream = 0x9e3779b97f4a7c15

// PolicyConfig параметры выбора компании и входного письма для задач.
type PolicyConfig struct {
	Companies  []domain.Company
	Random     bool     // false = всегда первая компания
	InputEmail string   // одно письмо для всех задач
	Scenarios  []string // используются, если InputEmail пуст
	Seed       uint64
}

// Assignment то, что получает одна задача.
type Assignment struct {
	Company    domain.Company
	InputEmail string
	Scenario   string
}

// SelectionPolicy детерминированный выбор компании и сценария для задач.
// Вызывается только продюсером диспетчера, не потокобезопасен.
type SelectionPolicy struct {
	candidates []domain.Company
	random     bool
	inputEmail string
	scenarios  []string
	rng        *rand.Rand
}

// NewSelectionPolicy создает политику. Кандидаты дедуплицируются по имени.
func NewSelectionPolicy(cfg PolicyConfig) *SelectionPolicy {
	candidates := domain.DedupeCompanies(cfg.Companies)
	if !cfg.Random && len(candidates) > 1 {
		candidates = candidates[:1]
	}
	scenarios := make([]string, 0, len(cfg.Scenarios))
	for _, s := range cfg.Scenarios {
		if strings.TrimSpace(s) != "" {
			scenarios = append(scenarios, s)
		}
	}
	return &SelectionPolicy{
		candidates: candidates,
		random:     cfg.Random,
		inputEmail: strings.TrimSpace(cfg.InputEmail),
		scenarios:  scenarios,
		rng:        rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^pcgStream)),
	}
}

// Candidates компании, из которых идет выбор.
func (p *SelectionPolicy) Candidates() []domain.Company {
	return p.candidates
}

// Next выбирает компанию и входное письмо для следующей задачи.
func (p *SelectionPolicy) Next() Assignment {
	var a Assignment
	if len(p.candidates) > 0 {
		if p.random {
			a.Company = p.candidates[p.rng.IntN(len(p.candidates))]
		} else {
			a.Company = p.candidates[0]
		}
	}
	switch {
	case p.inputEmail != "":
		a.InputEmail = p.inputEmail
	case len(p.scenarios) > 0:
		a.InputEmail = p.scenarios[p.rng.IntN(len(p.scenarios))]
	}
	if a.InputEmail != "" {
		a.Scenario = domain.ScenarioTitle(a.InputEmail)
	}
	return a
}
