package pack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaValidate(t *testing.T) {
	schema := Object([]string{"path"}, map[string]Property{
		"path":      StringProp("file path"),
		"overwrite": BoolProp("replace existing"),
		"lines":     IntProp("line count"),
		"mode":      {Type: "string", Enum: []string{"text", "binary"}},
	})

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{name: "minimal", args: map[string]any{"path": "a.txt"}},
		{name: "all fields", args: map[string]any{"path": "a.txt", "overwrite": true, "lines": float64(3), "mode": "text"}},
		{name: "int literal", args: map[string]any{"path": "a.txt", "lines": 7}},
		{name: "missing required", args: map[string]any{}, wantErr: `missing required argument "path"`},
		{name: "wrong type", args: map[string]any{"path": 12}, wantErr: `argument "path" must be string`},
		{name: "fractional integer", args: map[string]any{"path": "a", "lines": 1.5}, wantErr: `argument "lines" must be integer`},
		{name: "unknown argument", args: map[string]any{"path": "a", "color": "red"}, wantErr: `unknown argument "color"`},
		{name: "enum", args: map[string]any{"path": "a", "mode": "hex"}, wantErr: `argument "mode" must be one of [text, binary]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrSchemaValidation)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSchemaValidate_EmptySchema(t *testing.T) {
	assert.NoError(t, Schema{}.Validate(nil))
	assert.ErrorIs(t, Schema{}.Validate(map[string]any{"x": 1}), ErrSchemaValidation)
	assert.NoError(t, Schema{AdditionalProperties: true}.Validate(map[string]any{"x": 1}))
}
