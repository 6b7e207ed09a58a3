package validate

import (
	"sort"

	"github.com/google/jsonschema-go/jsonschema"

	"tooldeck/internal/domain"
)

// CompileSchema renders a parameter schema as a JSON Schema object, the
// form protocol clients expect when discovering tools. Extra properties are
// left open to mirror the engine's pass-through of unknown arguments.
func CompileSchema(schema domain.ParameterSchema) *jsonschema.Schema {
	out := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(schema)),
	}

	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		param := schema[name]
		prop := &jsonschema.Schema{
			Type:        string(param.Kind),
			Description: param.Description,
		}
		if len(param.Enum) > 0 {
			prop.Enum = append([]any(nil), param.Enum...)
		}
		out.Properties[name] = prop
		if param.Required {
			out.Required = append(out.Required, name)
		}
	}
	return out
}
