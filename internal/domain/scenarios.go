package domain

import "strings"

// DefaultScenarios встроенные входные письма клиентов.
var DefaultScenarios = []string{
	"Subject: Inquiry about your products\nDear team, I would like to know more about your skincare line...",
	"Subject: Complaint about delivery\nHello, my recent order arrived damaged...",
	"Subject: Question about ingredients\nHi, can you tell me if your products are suitable for sensitive skin?",
}

// ScenarioTitle первая строка письма, передается оценщику как описание сценария.
func ScenarioTitle(inputEmail string) string {
	first, _, _ := strings.Cut(inputEmail, "\n")
	return strings.TrimSpace(first)
}
