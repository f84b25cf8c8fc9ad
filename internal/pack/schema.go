package pack

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema is the subset of JSON schema packs declare for their arguments.
type Schema struct {
	Properties           map[string]Property `json:"properties,omitempty"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties,omitempty"`
}

func Object(required []string, props map[string]Property) Schema {
	return Schema{Properties: props, Required: required}
}

func StringProp(description string) Property {
	return Property{Type: "string", Description: description}
}

func BoolProp(description string) Property {
	return Property{Type: "boolean", Description: description}
}

func IntProp(description string) Property {
	return Property{Type: "integer", Description: description}
}

// Validate checks args against the schema. Errors wrap ErrSchemaValidation.
func (s Schema) Validate(args map[string]any) error {
	for _, field := range s.Required {
		if _, ok := args[field]; !ok {
			return fmt.Errorf("%w: missing required argument %q", ErrSchemaValidation, field)
		}
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prop, ok := s.Properties[key]
		if !ok {
			if !s.AdditionalProperties {
				return fmt.Errorf("%w: unknown argument %q", ErrSchemaValidation, key)
			}
			continue
		}
		value := args[key]
		if prop.Type != "" && !matchesType(prop.Type, value) {
			return fmt.Errorf("%w: argument %q must be %s", ErrSchemaValidation, key, prop.Type)
		}
		if len(prop.Enum) > 0 {
			str, _ := value.(string)
			if !contains(prop.Enum, str) {
				return fmt.Errorf("%w: argument %q must be one of [%s]", ErrSchemaValidation, key, strings.Join(prop.Enum, ", "))
			}
		}
	}
	return nil
}

func matchesType(typ string, value any) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		_, ok := toFloat(value)
		return ok
	case "integer":
		f, ok := toFloat(value)
		return ok && f == math.Trunc(f)
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		switch value.(type) {
		case []any, []string:
			return true
		}
		return false
	default:
		return true
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
