package oors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/golobby/cast"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ConfigSchema is a JSON Schema document describing a module configuration.
//
//	oors.ConfigSchema{
//	    "type": "object",
//	    "properties": map[string]any{
//	        "port":     map[string]any{"type": "integer", "default": 8080},
//	        "basePath": map[string]any{"type": "string", "default": "/"},
//	    },
//	    "required": []string{"port"},
//	}
type ConfigSchema map[string]any

// FormatFunc checks a value against a custom "format". It is only called
// for values the format applies to and returns an error describing why the
// value is rejected.
type FormatFunc func(v any) error

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	moduleNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)

	schemaPrinter = message.NewPrinter(language.English)
)

// Validator validates and normalizes raw module configurations. Before a
// schema is checked, missing properties that declare a "default" are filled
// and scalars are coerced to the declared type, so "8080" satisfies
// {"type": "integer"} and "x" satisfies {"type": "array"}.
type Validator struct {
	mu      sync.RWMutex
	formats map[string]FormatFunc
}

// NewValidator creates a validator with the built-in "identifier" and
// "module-name" formats.
func NewValidator() *Validator {
	v := &Validator{formats: make(map[string]FormatFunc)}
	v.RegisterFormat("identifier", stringPattern("identifier", identifierPattern))
	v.RegisterFormat("module-name", stringPattern("module name", moduleNamePattern))
	return v
}

func stringPattern(what string, re *regexp.Regexp) FormatFunc {
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		if !re.MatchString(s) {
			return fmt.Errorf("%q is not a valid %s", s, what)
		}
		return nil
	}
}

// RegisterFormat adds or replaces a custom format.
func (v *Validator) RegisterFormat(name string, fn FormatFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.formats[name] = fn
}

// Validate checks raw against schema and returns the normalized
// configuration. A nil schema accepts any object. Violations are returned
// together as a *ConfigValidationError.
func (v *Validator) Validate(schema ConfigSchema, raw map[string]any) (map[string]any, error) {
	instance, err := toJSONValue(raw)
	if err != nil {
		return nil, &ConfigValidationError{Violations: []Violation{{Message: err.Error()}}}
	}
	if instance == nil {
		instance = map[string]any{}
	}
	if schema == nil {
		return asObject(instance)
	}

	doc, err := toJSONValue(map[string]any(schema))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	docMap, _ := doc.(map[string]any)

	instance = prepare(docMap, instance)

	compiled, err := v.compile(doc)
	if err != nil {
		return nil, err
	}

	if err := compiled.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
		}
		return nil, &ConfigValidationError{Violations: violations(ve)}
	}

	return asObject(instance)
}

// ValidateModule validates the raw configuration of mod against the schema
// it provides, accepting the common "name" and "enabled" keys.
func (v *Validator) ValidateModule(mod Module) (map[string]any, error) {
	var raw map[string]any
	if c, ok := mod.(Configurable); ok {
		raw = c.Config()
	}
	var schema ConfigSchema
	if sp, ok := mod.(SchemaProvider); ok {
		schema = sp.ConfigSchema()
	}

	config, err := v.Validate(withModuleProperties(schema), raw)
	if err != nil {
		var cve *ConfigValidationError
		if errors.As(err, &cve) {
			cve.Module = mod.Name()
		}
		return nil, err
	}
	return config, nil
}

func (v *Validator) compile(doc any) (*jsonschema.Schema, error) {
	const url = "https://oors.local/schemas/config.json"

	c := jsonschema.NewCompiler()
	c.AssertFormat()

	v.mu.RLock()
	for name, fn := range v.formats {
		c.RegisterFormat(&jsonschema.Format{Name: name, Validate: fn})
	}
	v.mu.RUnlock()

	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	return compiled, nil
}

// violations flattens the leaves of a validation error tree.
func violations(ve *jsonschema.ValidationError) []Violation {
	var out []Violation
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			path := ""
			if len(e.InstanceLocation) > 0 {
				path = "/" + strings.Join(e.InstanceLocation, "/")
			}
			out = append(out, Violation{Path: path, Message: e.ErrorKind.LocalizedString(schemaPrinter)})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

// toJSONValue converts a Go value into the generic JSON representation the
// schema library expects, with numbers as json.Number.
func toJSONValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("config is not representable as JSON: %w", err)
	}
	out, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("config is not representable as JSON: %w", err)
	}
	return out, nil
}

func asObject(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &ConfigValidationError{Violations: []Violation{{Message: fmt.Sprintf("got %T, want object", v)}}}
	}
	return plainNumbers(m).(map[string]any), nil
}

// plainNumbers replaces every json.Number in v with an int64, or a float64
// when the number is not integral.
func plainNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = plainNumbers(item)
		}
	case []any:
		for i, item := range val {
			val[i] = plainNumbers(item)
		}
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
	}
	return v
}

// prepare applies defaults and type coercion to value, following schema.
func prepare(schema map[string]any, value any) any {
	if schema == nil {
		return value
	}

	value = coerce(schemaTypes(schema), value)

	switch val := value.(type) {
	case map[string]any:
		props, _ := schema["properties"].(map[string]any)
		for _, name := range sortedKeys(props) {
			sub, _ := props[name].(map[string]any)
			if sub == nil {
				continue
			}
			if _, present := val[name]; !present {
				if def, ok := sub["default"]; ok {
					val[name] = deepCopy(def)
				} else {
					continue
				}
			}
			val[name] = prepare(sub, val[name])
		}
		if extra, ok := schema["additionalProperties"].(map[string]any); ok {
			for name, item := range val {
				if _, declared := props[name]; !declared {
					val[name] = prepare(extra, item)
				}
			}
		}
	case []any:
		if items, ok := schema["items"].(map[string]any); ok {
			for i := range val {
				val[i] = prepare(items, val[i])
			}
		}
	}
	return value
}

func schemaTypes(schema map[string]any) []string {
	switch t := schema["type"].(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func jsonTypeOf(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return ""
}

func typeMatches(actual, want string) bool {
	return actual == want || (want == "number" && actual == "integer")
}

// coerce converts v to the first of types it can be converted to, unless v
// already has one of them.
func coerce(types []string, v any) any {
	if len(types) == 0 {
		return v
	}
	actual := jsonTypeOf(v)
	if slices.ContainsFunc(types, func(t string) bool { return typeMatches(actual, t) }) {
		return v
	}
	for _, t := range types {
		if out, ok := coerceTo(t, v); ok {
			return out
		}
	}
	return v
}

var (
	int64Type   = reflect.TypeOf(int64(0))
	float64Type = reflect.TypeOf(float64(0))
	boolType    = reflect.TypeOf(false)
)

func coerceTo(target string, v any) (any, bool) {
	switch target {
	case "integer", "number":
		switch val := v.(type) {
		case string:
			typ := float64Type
			if target == "integer" {
				typ = int64Type
			}
			n, err := cast.FromType(strings.TrimSpace(val), typ)
			if err != nil {
				return nil, false
			}
			return json.Number(fmt.Sprint(n)), true
		case bool:
			if val {
				return json.Number("1"), true
			}
			return json.Number("0"), true
		case nil:
			return json.Number("0"), true
		}
	case "boolean":
		switch val := v.(type) {
		case string:
			if val != "true" && val != "false" {
				return nil, false
			}
			b, err := cast.FromType(val, boolType)
			if err != nil {
				return nil, false
			}
			return b, true
		case json.Number:
			switch val.String() {
			case "0":
				return false, true
			case "1":
				return true, true
			}
		case nil:
			return false, true
		}
	case "string":
		switch val := v.(type) {
		case json.Number:
			return val.String(), true
		case bool:
			return fmt.Sprint(val), true
		case nil:
			return "", true
		}
	case "null":
		switch val := v.(type) {
		case string:
			if val == "" {
				return nil, true
			}
		case json.Number:
			if val.String() == "0" {
				return nil, true
			}
		case bool:
			if !val {
				return nil, true
			}
		}
	case "array":
		if _, isArray := v.([]any); !isArray {
			return []any{v}, true
		}
	}
	return nil, false
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	}
	return v
}

// withModuleProperties returns a copy of schema that also accepts the
// "name" and "enabled" keys every module configuration may carry.
func withModuleProperties(schema ConfigSchema) ConfigSchema {
	out := make(ConfigSchema, len(schema)+2)
	for k, v := range schema {
		out[k] = v
	}
	if _, ok := out["type"]; !ok {
		out["type"] = "object"
	}

	props := map[string]any{}
	switch p := schema["properties"].(type) {
	case map[string]any:
		for k, v := range p {
			props[k] = v
		}
	case ConfigSchema:
		for k, v := range p {
			props[k] = v
		}
	}
	props["name"] = map[string]any{"type": "string"}
	props["enabled"] = map[string]any{"type": "boolean", "default": true}
	out["properties"] = props
	return out
}
