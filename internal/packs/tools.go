package packs

import (
	"context"
	"errors"
	"fmt"
	"go-autoagent/internal/pack"
	"sort"
	"strings"
	"unicode"
)

const GetMoreToolsPack = "get_more_tools"

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "into": true, "need": true, "want": true, "able": true, "can": true,
}

// getMoreTools installs catalog packs whose name, description or categories
// match the functionality the planner asks for.
type getMoreTools struct {
	registry *pack.Registry
	catalog  []pack.Pack
}

func newGetMoreTools(registry *pack.Registry, catalog []pack.Pack) *getMoreTools {
	return &getMoreTools{registry: registry, catalog: catalog}
}

func (g *getMoreTools) Descriptor() pack.Descriptor {
	return pack.Descriptor{
		Name:        GetMoreToolsPack,
		Description: "Looks for additional functions matching a desired functionality and makes them available for later steps.",
		InputSchema: pack.Object([]string{"desired_functionality"}, map[string]pack.Property{
			"desired_functionality": pack.StringProp("What you need to be able to do"),
		}),
		Categories: []string{CategoryMeta},
	}
}

func (g *getMoreTools) Invoke(_ context.Context, in pack.Invocation) (pack.Output, error) {
	words := keywords(in.String("desired_functionality"))
	if len(words) == 0 {
		return pack.Output{}, pack.Errorf(GetMoreToolsPack, nil, "desired functionality is empty")
	}

	var installed []string
	for _, p := range g.catalog {
		desc := p.Descriptor()
		if g.registry.Has(desc.Name) || !matches(desc, words) {
			continue
		}
		if err := g.registry.Register(p); err != nil {
			if errors.Is(err, pack.ErrDuplicatePack) {
				continue
			}
			return pack.Output{}, pack.Errorf(GetMoreToolsPack, err, "cannot install %s", desc.Name)
		}
		installed = append(installed, desc.Name)
	}
	sort.Strings(installed)

	if len(installed) == 0 {
		return pack.Output{Text: "No additional functions match that functionality."}, nil
	}
	return pack.Output{
		Text: fmt.Sprintf("The following functions are now available: %s", strings.Join(installed, ", ")),
		Data: map[string]any{"installed": installed},
	}, nil
}

func keywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 && !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

func matches(desc pack.Descriptor, words []string) bool {
	haystack := strings.ToLower(desc.Name + " " + desc.Description + " " + strings.Join(desc.Categories, " "))
	haystack = strings.ReplaceAll(haystack, "_", " ")
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}
