package model

import (
	"fmt"
	"strings"

	"lattice-backend/internal/schema"
)

// Relationship is a configured relationship accessor. Target and Through are
// always fully configured model instances; the builders below are the only
// construction path and they refuse bare entity names.
type Relationship struct {
	Name    string
	Kind    Kind
	Spec    schema.Relation
	Parent  *Model
	Target  *Model
	Through *Model // set only for BelongsToManyThrough
}

type builderFunc func(parent *Model, spec schema.Relation, resolve Resolver) (*Relationship, error)

// builders dispatches schema kind strings to dedicated constructors.
var builders = map[Kind]builderFunc{
	HasMany:              buildHasMany,
	BelongsToMany:        buildBelongsToMany,
	BelongsToManyThrough: buildBelongsToManyThrough,
}

func buildRelationship(parent *Model, spec schema.Relation, resolve Resolver) (*Relationship, error) {
	kind, err := ParseKind(spec.Kind)
	if err != nil {
		return nil, &ConfigError{Entity: parent.Doc.Entity, Reason: err.Error()}
	}
	return builders[kind](parent, spec, resolve)
}

func buildHasMany(parent *Model, spec schema.Relation, resolve Resolver) (*Relationship, error) {
	target, err := resolve.Model(spec.Target)
	if err != nil {
		return nil, fmt.Errorf("relation %q: resolve target: %w", spec.Name, err)
	}
	return &Relationship{Name: spec.Name, Kind: HasMany, Spec: spec, Parent: parent, Target: target}, nil
}

func buildBelongsToMany(parent *Model, spec schema.Relation, resolve Resolver) (*Relationship, error) {
	target, err := resolve.Model(spec.Target)
	if err != nil {
		return nil, fmt.Errorf("relation %q: resolve target: %w", spec.Name, err)
	}
	return &Relationship{Name: spec.Name, Kind: BelongsToMany, Spec: spec, Parent: parent, Target: target}, nil
}

func buildBelongsToManyThrough(parent *Model, spec schema.Relation, resolve Resolver) (*Relationship, error) {
	// The through participant must be a configured model instance. An empty
	// name here is a configuration error, caught before any query executes.
	if spec.Through == "" {
		return nil, &ConfigError{
			Entity: parent.Doc.Entity,
			Reason: fmt.Sprintf("relation %q: through entity is required for %s", spec.Name, schema.KindBelongsToManyThrough),
		}
	}
	target, err := resolve.Model(spec.Target)
	if err != nil {
		return nil, fmt.Errorf("relation %q: resolve target: %w", spec.Name, err)
	}
	through, err := resolve.Model(spec.Through)
	if err != nil {
		return nil, fmt.Errorf("relation %q: resolve through entity: %w", spec.Name, err)
	}
	return newThroughRelationship(parent, target, through, spec), nil
}

// newThroughRelationship assembles the two-hop relation from resolved model
// handles only.
func newThroughRelationship(parent, target, through *Model, spec schema.Relation) *Relationship {
	return &Relationship{
		Name:    spec.Name,
		Kind:    BelongsToManyThrough,
		Spec:    spec,
		Parent:  parent,
		Target:  target,
		Through: through,
	}
}

// RowsSQL builds the parameterized row query for one parent id.
func (r *Relationship) RowsSQL(parentID any) (string, []any) {
	d := r.Parent.Dialect()
	pb := d.NewParamBuilder()

	cols := make([]string, 0, len(r.Target.Columns()))
	for _, c := range r.Target.Columns() {
		cols = append(cols, "t."+c)
	}
	selectCols := strings.Join(cols, ", ")

	var sql string
	switch r.Kind {
	case HasMany:
		sql = fmt.Sprintf("SELECT %s FROM %s t WHERE t.%s = %s",
			selectCols, r.Target.Table(), r.Spec.ForeignKey, pb.Add(parentID))

	case BelongsToMany:
		sql = fmt.Sprintf(
			"SELECT %s FROM %s t JOIN %s p ON p.%s = t.%s WHERE p.%s = %s",
			selectCols, r.Target.Table(),
			r.Spec.Pivot, r.Spec.PivotTargetKey, r.Target.PrimaryKey(),
			r.Spec.PivotLocalKey, pb.Add(parentID))

	case BelongsToManyThrough:
		// parent -> pivot -> through entity -> through pivot -> target
		sql = fmt.Sprintf(
			"SELECT %s FROM %s t"+
				" JOIN %s tp ON tp.%s = t.%s"+
				" JOIN %s th ON th.%s = tp.%s"+
				" JOIN %s p ON p.%s = th.%s"+
				" WHERE p.%s = %s",
			selectCols, r.Target.Table(),
			r.Spec.ThroughPivot, r.Spec.ThroughPivotTargetKey, r.Target.PrimaryKey(),
			r.Through.Table(), r.Through.PrimaryKey(), r.Spec.ThroughPivotLocalKey,
			r.Spec.Pivot, r.Spec.PivotTargetKey, r.Through.PrimaryKey(),
			r.Spec.PivotLocalKey, pb.Add(parentID))
	}

	if r.Target.SoftDeleting() {
		sql += " AND t.deleted_at IS NULL"
	}
	return sql, pb.Params()
}

// DetachSQL builds the pivot cleanup statement for one parent id. The second
// return is false when the kind has no pivot rows of its own.
func (r *Relationship) DetachSQL(parentID any) (string, []any, bool) {
	if r.Kind == HasMany {
		return "", nil, false
	}
	pb := r.Parent.Dialect().NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		r.Spec.Pivot, r.Spec.PivotLocalKey, pb.Add(parentID))
	return sql, pb.Params(), true
}

// AttachSQL builds a pivot insert linking the parent to one target id.
func (r *Relationship) AttachSQL(parentID, targetID any) (string, []any, bool) {
	if r.Kind != BelongsToMany {
		return "", nil, false
	}
	pb := r.Parent.Dialect().NewParamBuilder()
	sql := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		r.Spec.Pivot, r.Spec.PivotLocalKey, r.Spec.PivotTargetKey,
		pb.Add(parentID), pb.Add(targetID))
	return sql, pb.Params(), true
}
