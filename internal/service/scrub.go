package service

import (
	"regexp"
	"strings"
)

var (
	// Любой маркер отправителя: [Your Name], [Sender Name], [Your Email Address], [Your Phone Number] ...
	senderPlaceholderRe = regexp.MustCompile(`(?i)\[\s*(your|sender'?s?)\b[^\]\n]{0,40}\]`)
	// Маркеры отправителя, которые заменяются подписью. Остальные (email, телефон, должность) удаляются.
	senderSignatureRe = regexp.MustCompile(`(?i)\b(name|signature|team|company|business|organi[sz]ation)\b`)
	// Маркеры имени компании: [Company Name], [Company], [Business Name]
	companyPlaceholderRe = regexp.MustCompile(`(?i)\[\s*(company|business|brand|organization)(\s+name)?\s*\]`)
	// Остальные шаблонные маркеры удаляются целиком
	leftoverPlaceholderRe = regexp.MustCompile(`(?i)\[\s*(recipient|customer|client|name|insert|contact|phone|email|address|date|first\s+name|last\s+name|website|url|link|title|position|job)[^\]\n]{0,40}\]`)
	extraSpacesRe         = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforePunctRe    = regexp.MustCompile(`[ \t]+([,.!?;:])`)
)

// scrubPlaceholders заменяет шаблонные маркеры, которые модель иногда оставляет в письме.
// Маркеры имени и компании отправителя заменяются подписью "{Company} Team", маркеры компании ее именем,
// остальные удаляются. Строки, состоявшие только из удаленных маркеров, выбрасываются,
// повторяющаяся подряд подпись схлопывается в одну строку.
func scrubPlaceholders(text, companyName string) string {
	if text == "" {
		return text
	}
	name := strings.TrimSpace(companyName)
	signature := "Team"
	if name != "" {
		signature = name + " Team"
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	changed := false
	for _, line := range lines {
		cleaned := replacePlaceholders(line, name, signature)
		if cleaned == line {
			out = append(out, line)
			continue
		}
		changed = true
		cleaned = extraSpacesRe.ReplaceAllString(cleaned, " ")
		cleaned = spaceBeforePunctRe.ReplaceAllString(cleaned, "$1")
		cleaned = strings.TrimRight(cleaned, " \t")
		if strings.TrimSpace(cleaned) == "" {
			continue
		}
		if strings.TrimSpace(cleaned) == signature && len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == signature {
			continue
		}
		out = append(out, cleaned)
	}
	if !changed {
		return text
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func replacePlaceholders(line, name, signature string) string {
	out := senderPlaceholderRe.ReplaceAllStringFunc(line, func(marker string) string {
		if senderSignatureRe.MatchString(marker) {
			return signature
		}
		return ""
	})
	out = companyPlaceholderRe.ReplaceAllLiteralString(out, name)
	return leftoverPlaceholderRe.ReplaceAllLiteralString(out, "")
}
