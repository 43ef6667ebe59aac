package service

import (
	"strings"
)

// extractJSONObject вырезает JSON-объект из ответа модели.
// Убирает markdown-ограждения, берет текст от первой '{' и дописывает
// недостающие закрывающие скобки, если ответ оборван по лимиту токенов.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	s = s[start:]
	if end := strings.LastIndexByte(s, '}'); end >= 0 && balanced(s[:end+1]) {
		return s[:end+1]
	}
	return fixJSON(s)
}

// balanced сообщает, закрыты ли все фигурные скобки вне строк.
func balanced(s string) bool {
	depth, _ := braceDepth(s)
	return depth == 0
}

// fixJSON дописывает незакрытую строку и недостающие скобки в конец JSON.
func fixJSON(jsonStr string) string {
	depth, inString := braceDepth(jsonStr)
	fixed := jsonStr
	if inString {
		fixed += `"`
	}
	if depth > 0 {
		fixed += strings.Repeat("}", depth)
	}
	return fixed
}

// braceDepth считает разницу открывающих и закрывающих фигурных скобок вне строк.
func braceDepth(s string) (depth int, inString bool) {
	escaped := false
	for _, char := range s {
		switch {
		case escaped:
			escaped = false
		case char == '\\' && inString:
			escaped = true
		case char == '"':
			inString = !inString
		case !inString && char == '{':
			depth++
		case !inString && char == '}':
			depth--
		}
	}
	return depth, inString
}
