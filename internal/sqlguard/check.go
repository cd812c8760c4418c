package sqlguard

import (
	"fmt"
	"strings"
	"unicode"
)

// deniedKeywords are rejected anywhere in a statement, case-insensitively.
// The match is a plain substring test, so identifiers such as updated_at are
// rejected too.
var deniedKeywords = []string{"DROP", "DELETE", "UPDATE", "INSERT"}

// Check applies the lexical part of the read-only contract and returns the
// statement to execute: whitespace trimmed and one trailing semicolon
// removed. Rejections wrap [ErrQueryRejected].
//
// A statement passes only when it starts with SELECT, contains none of the
// denied keywords and holds no further semicolon.
func Check(stmt string) (string, error) {
	s := strings.TrimSpace(stmt)
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if s == "" {
		return "", fmt.Errorf("%w: empty statement", ErrQueryRejected)
	}

	upper := strings.ToUpper(s)
	for _, kw := range deniedKeywords {
		if strings.Contains(upper, kw) {
			return "", fmt.Errorf("%w: forbidden keyword %s", ErrQueryRejected, kw)
		}
	}
	if !startsWithSelect(upper) {
		return "", fmt.Errorf("%w: only SELECT statements are allowed", ErrQueryRejected)
	}
	if strings.Contains(s, ";") {
		return "", fmt.Errorf("%w: multiple statements are not allowed", ErrQueryRejected)
	}
	return s, nil
}

func startsWithSelect(upper string) bool {
	rest, ok := strings.CutPrefix(upper, "SELECT")
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	r := []rune(rest)[0]
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}
