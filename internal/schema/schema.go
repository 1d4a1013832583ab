// internal/schema/schema.go

// Package schema derives a JSON schema from an example document and checks
// model output against it.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Infer builds a schema with the same shape as v, where v is a value
// produced by encoding/json (decoded with UseNumber or plain float64).
// Arrays take the schema of their first element; an empty array accepts
// items of any type, and so does a null. Every object key is required.
func Infer(v any) jsonschema.Definition {
	switch t := v.(type) {
	case string:
		return jsonschema.Definition{Type: jsonschema.String}
	case float64, float32, int, int64, json.Number:
		return jsonschema.Definition{Type: jsonschema.Number}
	case bool:
		return jsonschema.Definition{Type: jsonschema.Boolean}
	case []any:
		if len(t) == 0 {
			return jsonschema.Definition{Type: jsonschema.Array, Items: &jsonschema.Definition{}}
		}
		item := Infer(t[0])
		return jsonschema.Definition{Type: jsonschema.Array, Items: &item}
	case map[string]any:
		props := make(map[string]jsonschema.Definition, len(t))
		required := make([]string, 0, len(t))
		for k, val := range t {
			props[k] = Infer(val)
			required = append(required, k)
		}
		sort.Strings(required)
		return jsonschema.Definition{
			Type:                 jsonschema.Object,
			Properties:           props,
			Required:             required,
			AdditionalProperties: false,
		}
	default:
		return jsonschema.Definition{}
	}
}

// Wrap nests def under a single required property, since tool parameters
// must be an object.
func Wrap(name string, def jsonschema.Definition) jsonschema.Definition {
	return jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           map[string]jsonschema.Definition{name: def},
		Required:             []string{name},
		AdditionalProperties: false,
	}
}

// ValidationError names the first location that does not match.
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// Validate checks v against def. A definition without a type accepts
// anything.
func Validate(def jsonschema.Definition, v any) error {
	return validate(def, v, "$")
}

func validate(def jsonschema.Definition, v any, path string) error {
	switch def.Type {
	case "":
		return nil
	case jsonschema.String:
		if _, ok := v.(string); !ok {
			return mismatch(path, "string", v)
		}
	case jsonschema.Number:
		switch v.(type) {
		case float64, json.Number:
		default:
			return mismatch(path, "number", v)
		}
	case jsonschema.Integer:
		switch n := v.(type) {
		case float64:
			if n != float64(int64(n)) {
				return mismatch(path, "integer", v)
			}
		case json.Number:
			if _, err := n.Int64(); err != nil {
				return mismatch(path, "integer", v)
			}
		default:
			return mismatch(path, "integer", v)
		}
	case jsonschema.Boolean:
		if _, ok := v.(bool); !ok {
			return mismatch(path, "boolean", v)
		}
	case jsonschema.Null:
		if v != nil {
			return mismatch(path, "null", v)
		}
	case jsonschema.Array:
		arr, ok := v.([]any)
		if !ok {
			return mismatch(path, "array", v)
		}
		if def.Items == nil {
			return nil
		}
		for i, item := range arr {
			if err := validate(*def.Items, item, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
	case jsonschema.Object:
		obj, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, "object", v)
		}
		for _, key := range def.Required {
			if _, ok := obj[key]; !ok {
				return &ValidationError{Path: path + "." + key, Msg: "required property missing"}
			}
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			prop, ok := def.Properties[k]
			if !ok {
				if def.AdditionalProperties == false {
					return &ValidationError{Path: path + "." + k, Msg: "unexpected property"}
				}
				continue
			}
			if err := validate(prop, obj[k], path+"."+k); err != nil {
				return err
			}
		}
	default:
		return &ValidationError{Path: path, Msg: fmt.Sprintf("unsupported schema type %q", def.Type)}
	}
	return nil
}

func mismatch(path, want string, got any) error {
	return &ValidationError{Path: path, Msg: fmt.Sprintf("expected %s, got %s", want, kind(got))}
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
