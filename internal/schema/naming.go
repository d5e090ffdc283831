package schema

import (
	"strings"
	"unicode"
)

// SnakeToCamel turns "hello_world" into "helloWorld". The first character
// is left as is.
func SnakeToCamel(s string) string {
	var b strings.Builder
	upper := false
	for _, r := range s {
		switch {
		case r == '_':
			upper = true
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SnakeToPascal turns "hello_world" into "HelloWorld".
func SnakeToPascal(s string) string {
	return upperFirst(SnakeToCamel(s))
}

// PascalToCamel lowercases the first character: "HelloWorld" → "helloWorld".
func PascalToCamel(s string) string {
	for i, r := range s {
		return string(unicode.ToLower(r)) + s[i+len(string(r)):]
	}
	return s
}

// PascalToKebab turns "HelloWorld" into "hello-world".
func PascalToKebab(s string) string {
	return strings.Join(lowerWords(s), "-")
}

// ToSnake turns either "helloWorld" or "HelloWorld" into "hello_world".
// Existing underscores are kept as word boundaries.
func ToSnake(s string) string {
	return strings.Join(lowerWords(s), "_")
}

// WireName is the JSON key of a field or the JSON tag of a variant named
// ident: the lowerCamelCase form of the identifier. A leading run of
// capitals is lowered as one word: "ID" → "id", "URLPath" → "urlPath".
func WireName(ident string) string {
	return lowerLeadingRun(SnakeToCamel(ident))
}

func lowerLeadingRun(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	if n > 1 && n < len(runes) && unicode.IsLower(runes[n]) {
		n-- // the last capital starts the next word
	}
	if n == 0 {
		n = 1
	}
	for i := 0; i < n && i < len(runes); i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// Words splits an identifier on underscores and on lower-to-upper case
// transitions: "getTodo_items" → ["get", "Todo", "items"].
func Words(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		if r == '_' || r == '-' {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

func lowerWords(s string) []string {
	words := Words(s)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

func upperFirst(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}
