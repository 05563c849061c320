package service

import (
	"regexp"
	"strings"
)

// extractFirstJSONObject devuelve el primer objeto balanceado a partir del primer '{'.
// Respeta strings y escapes, asi que llaves dentro de valores no cuentan.
func extractFirstJSONObject(input string) string {
	start := strings.IndexByte(input, '{')
	if start == -1 {
		return ""
	}

	inString := false
	escape := false
	depth := 0

	for i := start; i < len(input); i++ {
		ch := input[i]

		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
			if depth < 0 {
				return ""
			}
		}
	}

	return ""
}

var (
	reFlatObject = regexp.MustCompile(`\{[^{}]*\}`)
	reQuotedPair = regexp.MustCompile(`^"[^"]+"\s*:\s*.+$`)
)

// extractFlatJSONObjects devuelve todos los objetos sin anidar, en orden de aparicion.
func extractFlatJSONObjects(input string) []string {
	return reFlatObject.FindAllString(input, -1)
}

// wrapBareJSONPairs arma un objeto con lineas tipo `"key": value` cuando el modelo
// omitio las llaves. Devuelve "" si el texto ya tiene llaves o no hay pares.
func wrapBareJSONPairs(input string) string {
	if strings.ContainsAny(input, "{}") {
		return ""
	}
	var pairs []string
	for _, ln := range strings.Split(input, "\n") {
		ln = strings.TrimSpace(ln)
		ln = strings.TrimRight(ln, ",")
		if reQuotedPair.MatchString(ln) {
			pairs = append(pairs, ln)
		}
	}
	if len(pairs) == 0 {
		return ""
	}
	return "{" + strings.Join(pairs, ",") + "}"
}
