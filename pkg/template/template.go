package template

import (
	"bytes"
	"fmt"
	lru "github.com/hashicorp/golang-lru/v2"
	"text/template"
)

const cacheSize = 64

var cache, _ = lru.New[string, *template.Template](cacheSize) // size is positive, New cannot fail

// Parse renders text with fields. Parsed templates are cached by their source text.
func Parse(text string, fields any) (string, error) {
	tmpl, ok := cache.Get(text)
	if !ok {
		parsed, err := template.New("").Parse(text)
		if err != nil {
			return "", fmt.Errorf("parse: %w", err)
		}
		cache.Add(text, parsed)
		tmpl = parsed
	}

	var result bytes.Buffer
	err := tmpl.Execute(&result, fields)
	if err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}

	return result.String(), nil
}
