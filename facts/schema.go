// Package facts turns raw JSON payloads into engine facts.
//
// A Schema declares the type of each fact field so that numbers decode to
// the intended variant (an integral 2 declared as float stays a Float), and
// derived fields add values computed with CEL expressions.
package facts

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldType names the variant a fact field must hold.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeList   FieldType = "list"
	TypeMap    FieldType = "map"
	TypeAny    FieldType = "any"
)

// Schema maps fact field names to their declared types.
type Schema map[string]FieldType

const maxSchemaFields = 200

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// typeAliases accepts the CEL spellings of the scalar types as well.
var typeAliases = map[FieldType]FieldType{
	TypeString: TypeString,
	TypeInt:    TypeInt,
	TypeFloat:  TypeFloat,
	TypeBool:   TypeBool,
	TypeList:   TypeList,
	TypeMap:    TypeMap,
	TypeAny:    TypeAny,
	"int64":    TypeInt,
	"float64":  TypeFloat,
	"double":   TypeFloat,
	"dyn":      TypeAny,
}

// Canonical resolves aliases such as "int64" or "double".
func (t FieldType) Canonical() (FieldType, bool) {
	c, ok := typeAliases[t]
	return c, ok
}

// ValidateSchema returns an error describing the first problem in schema.
func ValidateSchema(schema Schema) error {
	if len(schema) == 0 {
		return fmt.Errorf("schema cannot be empty, must declare at least one field")
	}
	if len(schema) > maxSchemaFields {
		return fmt.Errorf("schema declares %d fields, maximum allowed is %d", len(schema), maxSchemaFields)
	}

	for fieldName, typeName := range schema {
		if err := ValidateIdentifier(fieldName); err != nil {
			return fmt.Errorf("invalid field name %q: %w", fieldName, err)
		}
		if typeName == "" {
			return fmt.Errorf("field %q has empty type name", fieldName)
		}
		if strings.TrimSpace(string(typeName)) != string(typeName) {
			return fmt.Errorf("field %q has type with leading/trailing whitespace: %q", fieldName, typeName)
		}
		if _, ok := typeName.Canonical(); !ok {
			return fmt.Errorf("field %q has invalid type %q (must be one of: string, int, float, bool, list, map, any)", fieldName, typeName)
		}
	}

	return nil
}

// ValidateIdentifier checks a field or derived field name: 1-100 characters
// matching ^[a-zA-Z_][a-zA-Z0-9_]*$ and not a reserved word.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(name))
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}
	if reservedKeywords[name] {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

// reservedKeywords cannot be used as field names because CEL
// expressions in derived fields could not reference them.
var reservedKeywords = map[string]bool{
	"true":      true,
	"false":     true,
	"null":      true,
	"if":        true,
	"else":      true,
	"for":       true,
	"while":     true,
	"break":     true,
	"continue":  true,
	"return":    true,
	"var":       true,
	"let":       true,
	"const":     true,
	"function":  true,
	"in":        true,
	"as":        true,
	"import":    true,
	"package":   true,
	"namespace": true,
	"loop":      true,
	"void":      true,
}
