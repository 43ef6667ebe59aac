// Package classifier определяет, адресовано ли входное письмо другой компании.
//
// Это эвристика на подстроках, а не классификатор с уверенностью: новые имена
// компаний и косвенные упоминания пропускаются, случайные совпадения подстрок
// дают ложные срабатывания. Оба вида ошибок допустимы.
package classifier

import "strings"

// KnownCompanies известные внешние компании, которым часто пишут по ошибке.
var KnownCompanies = []string{
	"youtube", "google", "gmail", "amazon", "apple", "microsoft", "facebook",
	"meta", "instagram", "whatsapp", "netflix", "spotify", "paypal", "ebay",
	"twitter", "linkedin", "tiktok", "uber", "airbnb", "samsung", "adobe",
	"dropbox", "slack", "zoom", "shopify", "walmart", "ikea",
}

// Greetings приветствия, после которых обычно стоит адресат.
var Greetings = []string{"dear", "hi", "hello", "hey"}

var greetingSuffixes = []string{"", " team", " support", " customer service"}

var referencePatterns = []string{
	"contacting %s",
	"writing to %s",
	"emailing %s",
	"reaching out to %s",
	"%s account",
	"%s service",
	"%s platform",
}

// IsMisdirected сообщает, было ли письмо явно адресовано другой известной компании.
// Пустой текст не считается ошибочно адресованным.
func IsMisdirected(emailText, companyName string) bool {
	if strings.TrimSpace(emailText) == "" {
		return false
	}
	text := strings.ToLower(emailText)
	self := strings.ToLower(strings.TrimSpace(companyName))

	for _, company := range KnownCompanies {
		if company == self {
			continue
		}
		for _, greeting := range Greetings {
			prefix := greeting + " " + company
			for _, suffix := range greetingSuffixes {
				if strings.Contains(text, prefix+suffix) {
					return true
				}
			}
		}
	}

	for _, company := range KnownCompanies {
		if company == self {
			continue
		}
		for _, pattern := range referencePatterns {
			if strings.Contains(text, strings.Replace(pattern, "%s", company, 1)) {
				return true
			}
		}
	}

	return false
}
