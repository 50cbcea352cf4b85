// Package fields holds the field-classification and value-coercion helpers
// shared by every CRUD operation.
package fields

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"lattice-backend/internal/schema"
)

// IsTimestamp reports whether a field name follows the engine-managed
// timestamp convention.
func IsTimestamp(name string) bool {
	switch name {
	case "created_at", "updated_at", "deleted_at":
		return true
	}
	return strings.HasSuffix(name, "_at") &&
		(strings.HasPrefix(name, "created") || strings.HasPrefix(name, "updated") || strings.HasPrefix(name, "deleted"))
}

// Listable returns the fields that may appear in listings, in document
// order. A field qualifies when explicitly flagged listable, or when it is a
// member of the "list" context and is not readonly, timestamp-conventioned
// or of a secret type. Secure by default: secrets require the explicit flag.
func Listable(doc *schema.Document) []*schema.FieldSpec {
	var out []*schema.FieldSpec
	for _, f := range doc.Fields.All() {
		if f.Listable {
			out = append(out, f)
			continue
		}
		if !f.HasContext("list") {
			continue
		}
		if f.Readonly || f.IsSecret() || IsTimestamp(f.Name) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Editable returns the fields a client may write. Explicitly flagged fields
// always qualify; otherwise a field must not be readonly, engine-managed or
// timestamp-conventioned.
func Editable(doc *schema.Document) []*schema.FieldSpec {
	var out []*schema.FieldSpec
	for _, f := range doc.Fields.All() {
		if f.Editable {
			out = append(out, f)
			continue
		}
		if f.Readonly || f.IsAuto() || IsTimestamp(f.Name) {
			continue
		}
		if f.Name == doc.PrimaryKey.Field && doc.PrimaryKey.Generated {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Sortable returns the explicitly flagged sortable fields.
func Sortable(doc *schema.Document) []*schema.FieldSpec {
	return flagged(doc, func(f *schema.FieldSpec) bool { return f.Sortable })
}

// Filterable returns the explicitly flagged filterable fields.
func Filterable(doc *schema.Document) []*schema.FieldSpec {
	return flagged(doc, func(f *schema.FieldSpec) bool { return f.Filterable })
}

// Searchable returns the explicitly flagged searchable fields.
func Searchable(doc *schema.Document) []*schema.FieldSpec {
	return flagged(doc, func(f *schema.FieldSpec) bool { return f.Searchable })
}

func flagged(doc *schema.Document, keep func(*schema.FieldSpec) bool) []*schema.FieldSpec {
	var out []*schema.FieldSpec
	for _, f := range doc.Fields.All() {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// Names projects specs to their names.
func Names(specs []*schema.FieldSpec) []string {
	out := make([]string, len(specs))
	for i, f := range specs {
		out[i] = f.Name
	}
	return out
}

// Coerce converts a raw query-string value to the field's semantic type.
// Unrecognized types pass through as strings.
func Coerce(f *schema.FieldSpec, raw string) (any, error) {
	switch f.Type {
	case "integer", "int", "bigint":
		return strconv.ParseInt(raw, 10, 64)
	case "decimal", "float":
		return strconv.ParseFloat(raw, 64)
	case "boolean":
		return strconv.ParseBool(raw)
	default:
		return raw, nil
	}
}

// Transform coerces an input value for a write. Passwords are hashed, json
// values are normalized, dates pass through; unrecognized types become
// strings.
func Transform(f *schema.FieldSpec, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch f.Type {
	case "integer", "int", "bigint":
		return toInt64(raw)
	case "decimal", "float":
		return toFloat64(raw)
	case "boolean":
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		default:
			return nil, fmt.Errorf("expected boolean, got %T", raw)
		}
	case "json":
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return string(data), nil
	case "password":
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string password, got %T", raw)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		return string(hash), nil
	case "date", "datetime":
		// stored as-is; the database layer parses timestamps
		return raw, nil
	default:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", raw), nil
	}
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

func toFloat64(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}
