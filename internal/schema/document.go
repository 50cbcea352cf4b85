package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is one entity's declarative description: table, fields,
// relationships, permissions and cascade behavior.
type Document struct {
	Entity      string            `yaml:"entity" json:"entity"`
	Table       string            `yaml:"table" json:"table"`
	PrimaryKey  PrimaryKey        `yaml:"primary_key" json:"primary_key"`
	Timestamps  *bool             `yaml:"timestamps" json:"timestamps,omitempty"`
	SoftDelete  bool              `yaml:"soft_delete" json:"soft_delete"`
	Identity    bool              `yaml:"identity" json:"identity"` // entity represents the authenticated actor
	Permissions map[string]string `yaml:"permissions" json:"permissions,omitempty"`
	DefaultSort Sort              `yaml:"default_sort" json:"default_sort"`
	Fields      FieldMap          `yaml:"fields" json:"fields"`
	Relations   []Relation        `yaml:"relations" json:"relations,omitempty"`
	Children    []ChildRelation   `yaml:"children" json:"children,omitempty"`
}

type PrimaryKey struct {
	Field     string `yaml:"field" json:"field"`
	Type      string `yaml:"type" json:"type"` // uuid, int, bigint, string
	Generated bool   `yaml:"generated" json:"generated"`
}

type Sort struct {
	Field     string `yaml:"field" json:"field"`
	Direction string `yaml:"direction" json:"direction"` // asc or desc
}

// HasTimestamps reports whether created_at/updated_at are engine-managed.
// Absent means true.
func (d *Document) HasTimestamps() bool {
	return d.Timestamps == nil || *d.Timestamps
}

// Relation looks up a relationship spec by name, or nil.
func (d *Document) Relation(name string) *Relation {
	for i := range d.Relations {
		if d.Relations[i].Name == name {
			return &d.Relations[i]
		}
	}
	return nil
}

// Permission resolves the permission string for an action, falling back to
// the "<entity>.<action>" naming convention.
func (d *Document) Permission(action string) string {
	if p, ok := d.Permissions[action]; ok {
		return p
	}
	return d.Entity + "." + action
}

// applyDefaults fills the documented defaults after parsing.
func (d *Document) applyDefaults() {
	if d.PrimaryKey.Field == "" {
		d.PrimaryKey = PrimaryKey{Field: "id", Type: "uuid", Generated: true}
	}
	if d.PrimaryKey.Type == "" {
		d.PrimaryKey.Type = "uuid"
	}
	if d.DefaultSort.Field == "" {
		d.DefaultSort = Sort{Field: d.PrimaryKey.Field, Direction: "asc"}
	}
	if d.DefaultSort.Direction == "" {
		d.DefaultSort.Direction = "asc"
	}
	for i := range d.Children {
		if d.Children[i].Mode == "" {
			d.Children[i].Mode = CascadeAuto
		}
	}
}

// FieldSpec describes one field of an entity.
type FieldSpec struct {
	Name           string      `yaml:"-" json:"name"`
	Type           string      `yaml:"type" json:"type"`
	Label          string      `yaml:"label" json:"label"`
	Required       bool        `yaml:"required" json:"required"`
	Readonly       bool        `yaml:"readonly" json:"readonly"`
	Sortable       bool        `yaml:"sortable" json:"sortable"`
	Filterable     bool        `yaml:"filterable" json:"filterable"`
	Searchable     bool        `yaml:"searchable" json:"searchable"`
	Listable       bool        `yaml:"listable" json:"listable"`
	Editable       bool        `yaml:"editable" json:"editable"`
	Auto           string      `yaml:"auto" json:"-"` // "create" or "update"
	Default        any         `yaml:"default" json:"default,omitempty"`
	Contexts       []string    `yaml:"contexts" json:"contexts,omitempty"`
	FilterOperator string      `yaml:"filter_operator" json:"-"` // equals, contains, starts_with, ends_with, range
	Validation     *Validation `yaml:"validation" json:"validation,omitempty"`
}

type Validation struct {
	MinLength  int    `yaml:"min_length" json:"min_length,omitempty"`
	MaxLength  int    `yaml:"max_length" json:"max_length,omitempty"`
	Min        *float64 `yaml:"min" json:"min,omitempty"`
	Max        *float64 `yaml:"max" json:"max,omitempty"`
	Pattern    string `yaml:"pattern" json:"pattern,omitempty"`
	Unique     bool   `yaml:"unique" json:"unique,omitempty"`
	Expression string `yaml:"expression" json:"-"`
	Message    string `yaml:"message" json:"-"`
}

// HasContext reports membership in a named context (list/form/detail/meta).
func (f *FieldSpec) HasContext(name string) bool {
	for _, c := range f.Contexts {
		if c == name {
			return true
		}
	}
	return false
}

// IsAuto reports whether the field is engine-managed.
func (f *FieldSpec) IsAuto() bool {
	return f.Auto == "create" || f.Auto == "update"
}

// IsSecret reports whether the semantic type must never leak into listings.
func (f *FieldSpec) IsSecret() bool {
	switch f.Type {
	case "password", "secret", "token":
		return true
	}
	return false
}

// FieldMap is an ordered field-name → spec map. YAML mapping order is
// preserved so projections render fields the way the document declares them.
type FieldMap struct {
	names []string
	specs map[string]*FieldSpec
}

func (m *FieldMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("fields: expected a mapping, got %s", node.Tag)
	}
	m.specs = make(map[string]*FieldSpec, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("fields: decode key: %w", err)
		}
		spec := &FieldSpec{}
		if err := node.Content[i+1].Decode(spec); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		spec.Name = name
		if spec.Type == "" {
			spec.Type = "string"
		}
		if spec.Label == "" {
			spec.Label = labelFromName(name)
		}
		m.names = append(m.names, name)
		m.specs[name] = spec
	}
	return nil
}

// MarshalJSON emits the fields as an object in declaration order.
func (m FieldMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range m.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.specs[name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Names returns field names in declaration order.
func (m *FieldMap) Names() []string { return m.names }

// Get returns the spec for a field name, or nil.
func (m *FieldMap) Get(name string) *FieldSpec {
	return m.specs[name]
}

// Has reports whether the field exists.
func (m *FieldMap) Has(name string) bool {
	_, ok := m.specs[name]
	return ok
}

// Len returns the number of fields.
func (m *FieldMap) Len() int { return len(m.names) }

// All returns specs in declaration order.
func (m *FieldMap) All() []*FieldSpec {
	out := make([]*FieldSpec, 0, len(m.names))
	for _, n := range m.names {
		out = append(out, m.specs[n])
	}
	return out
}

func labelFromName(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// Relationship kinds understood by the model layer.
const (
	KindHasMany              = "has_many"
	KindBelongsToMany        = "belongs_to_many"
	KindBelongsToManyThrough = "belongs_to_many_through"
)

// Relation describes a relationship to another entity.
type Relation struct {
	Name   string `yaml:"name" json:"name"`
	Kind   string `yaml:"kind" json:"kind"`
	Target string `yaml:"target" json:"target"`

	// has_many: FK column on the target table pointing at the parent.
	ForeignKey string `yaml:"foreign_key" json:"foreign_key,omitempty"`

	// belongs_to_many and belongs_to_many_through: first pivot table.
	Pivot          string `yaml:"pivot" json:"pivot,omitempty"`
	PivotLocalKey  string `yaml:"pivot_local_key" json:"pivot_local_key,omitempty"`
	PivotTargetKey string `yaml:"pivot_target_key" json:"pivot_target_key,omitempty"`

	// belongs_to_many_through: intermediate entity and its pivot to the target.
	Through               string `yaml:"through" json:"through,omitempty"`
	ThroughPivot          string `yaml:"through_pivot" json:"through_pivot,omitempty"`
	ThroughPivotLocalKey  string `yaml:"through_pivot_local_key" json:"through_pivot_local_key,omitempty"`
	ThroughPivotTargetKey string `yaml:"through_pivot_target_key" json:"through_pivot_target_key,omitempty"`
}

// Cascade modes for child relations.
const (
	CascadeAuto = "auto" // follow the parent: soft when the parent delete is soft
	CascadeHard = "hard"
	CascadeSoft = "soft"
)

// ChildRelation declares a dependent entity removed alongside the parent.
type ChildRelation struct {
	Entity     string `yaml:"entity" json:"entity"`
	ForeignKey string `yaml:"foreign_key" json:"foreign_key"`
	Cascade    *bool  `yaml:"cascade" json:"cascade"`
	Mode       string `yaml:"mode" json:"mode"` // auto, hard, soft
}

// Enabled reports whether the cascade runs. Absent means true.
func (c *ChildRelation) Enabled() bool {
	return c.Cascade == nil || *c.Cascade
}
