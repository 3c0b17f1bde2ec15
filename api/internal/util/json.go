package util

import (
	"encoding/json"
	"strings"
)

func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// maxCandidates ограничивает число проверяемых '{', чтобы длинный мусорный ответ
// не стоил O(n²).
const maxCandidates = 64

// FirstJSONObject ищет в тексте первый корректный JSON-объект верхнего уровня.
// Модели любят оборачивать ответ в прозу и ```-блоки, поэтому скобки
// считаем с учётом строк и escape-последовательностей.
func FirstJSONObject(s string) (string, bool) {
	for start, tries := strings.IndexByte(s, '{'), 0; start >= 0 && tries < maxCandidates; tries++ {
		end := matchBrace(s, start)
		if end < 0 {
			// незакрытая скобка: дальше по тексту закрыть нечему
			break
		}
		if cand := s[start : end+1]; json.Valid([]byte(cand)) {
			return cand, true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace возвращает индекс закрывающей скобки для s[start] == '{' или -1.
func matchBrace(s string, start int) int {
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
