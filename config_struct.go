package oors

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/golobby/cast"
)

const (
	// Struct tag keys
	tagDefault  = "default"
	tagRequired = "required"
)

// ConfigValidator is implemented by typed configuration structs that need
// checks beyond required fields. DecodeConfig calls it last.
type ConfigValidator interface {
	Validate() error
}

// DecodeConfig decodes a normalized configuration into a typed struct.
// Fields are matched by their json tags. Zero fields with a `default:"..."`
// tag receive the default, fields tagged `required:"true"` must end up
// non-zero, and finally ConfigValidator.Validate is called when implemented.
//
//	type RouterConfig struct {
//	    BasePath string `json:"basePath" default:"/"`
//	    Port     int    `json:"port" required:"true"`
//	}
func DecodeConfig(normalized map[string]any, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrConfigNotPointer
	}

	b, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := json.Unmarshal(b, target); err != nil {
		return &ConfigValidationError{Violations: []Violation{{Message: err.Error()}}}
	}

	if err := applyStructDefaults(v.Elem()); err != nil {
		return err
	}

	var missing []Violation
	collectRequired(v.Elem(), "", &missing)
	if len(missing) > 0 {
		return &ConfigValidationError{Violations: missing}
	}

	if validator, ok := target.(ConfigValidator); ok {
		if err := validator.Validate(); err != nil {
			return &ConfigValidationError{Violations: []Violation{{Message: err.Error()}}}
		}
	}
	return nil
}

// applyStructDefaults recursively sets `default` tags on zero fields.
func applyStructDefaults(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := applyStructDefaults(field); err != nil {
				return err
			}
			continue
		}
		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if !field.IsNil() {
				if err := applyStructDefaults(field.Elem()); err != nil {
					return err
				}
			}
			continue
		}

		def, ok := fieldType.Tag.Lookup(tagDefault)
		if !ok || !field.IsZero() {
			continue
		}
		if err := setDefault(field, def); err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", fieldType.Name, err)
		}
	}
	return nil
}

func setDefault(field reflect.Value, def string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(def)
		if err != nil {
			return fmt.Errorf("failed to parse duration value: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.Slice, reflect.Map:
		ptr := reflect.New(field.Type())
		if err := json.Unmarshal([]byte(def), ptr.Interface()); err != nil {
			return fmt.Errorf("failed to unmarshal JSON default: %w", err)
		}
		field.Set(ptr.Elem())
		return nil
	}

	value, err := cast.FromType(def, field.Type())
	if err != nil {
		return fmt.Errorf("failed to parse default value: %w", err)
	}
	field.Set(reflect.ValueOf(value).Convert(field.Type()))
	return nil
}

// collectRequired records every `required:"true"` field still zero.
func collectRequired(v reflect.Value, prefix string, out *[]Violation) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}

		name := fieldType.Name
		if prefix != "" {
			name = prefix + "." + name
		}

		required := fieldType.Tag.Get(tagRequired) == "true"
		switch {
		case field.Kind() == reflect.Struct:
			collectRequired(field, name, out)
		case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct && !field.IsNil():
			collectRequired(field.Elem(), name, out)
		case required && field.IsZero():
			*out = append(*out, Violation{Path: name, Message: "required field is missing"})
		}
	}
}
