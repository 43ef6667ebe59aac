// Package prompt выбирает режим генерации и собирает тексты промтов.
package prompt

import (
	"embed"
	"fmt"
	"strings"

	"virkum-respond/internal/domain"
)

//go:embed prompts/*.md
var promptFS embed.FS

// Максимальная длина информации о компании в промте (символы).
const maxCompanyInfoRunes = 4000

const (
	noCompanyDescription = "(no description provided)"
	noInputEmail         = "(no customer email: this is an outreach email)"
)

var templates = mustLoadTemplates()

func mustLoadTemplates() map[string]string {
	names := []string{string(domain.ModeColdOutreach), string(domain.ModeDirectReply), string(domain.ModeClarifyingReply), "grading"}
	out := make(map[string]string, len(names))
	for _, name := range names {
		data, err := promptFS.ReadFile("prompts/" + name + ".md")
		if err != nil {
			panic(fmt.Sprintf("prompt %s not embedded: %v", name, err))
		}
		out[name] = string(data)
	}
	return out
}

// Build возвращает системный промт и пользовательский ввод для запроса генерации.
// Для cold_outreach пользовательский ввод пустой.
func Build(req domain.GenerationRequest) (systemPrompt string, userInput string, err error) {
	tmpl, ok := templates[string(req.Mode)]
	if !ok {
		return "", "", fmt.Errorf("unknown generation mode %q", req.Mode)
	}

	r := strings.NewReplacer(
		"{{COMPANY_NAME}}", strings.TrimSpace(req.Company.Name),
		"{{COMPANY_DESCRIPTION}}", orDefault(req.Company.Description, noCompanyDescription),
		"{{COMPANY_INFO}}", orDefault(truncateRunes(req.Company.Info, maxCompanyInfoRunes), noCompanyDescription),
	)
	systemPrompt = r.Replace(tmpl)

	if req.Mode != domain.ModeColdOutreach {
		userInput = req.InputEmail
	}
	return systemPrompt, userInput, nil
}

// BuildGrading собирает промт оценщика по шкале 1–10.
func BuildGrading(companyName, scenario, inputEmail, generatedBody string) string {
	r := strings.NewReplacer(
		"{{COMPANY_NAME}}", companyName,
		"{{SCENARIO}}", orDefault(scenario, noInputEmail),
		"{{INPUT_EMAIL}}", orDefault(inputEmail, noInputEmail),
		"{{GENERATED_BODY}}", generatedBody,
	)
	return r.Replace(templates["grading"])
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
