package data

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrNoJSON = errors.New("error sanitizing answer")

// SanitizeAnswer extracts the first complete JSON object from a model completion.
// Models wrap their answer in prose or code fences, and objects may nest.
func SanitizeAnswer(ans string) (string, error) {
	for start := strings.IndexByte(ans, '{'); start >= 0; {
		if end := matchingBrace(ans, start); end > 0 {
			candidate := ans[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(ans[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSON
}

func matchingBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
