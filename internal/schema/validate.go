package schema

import "fmt"

var relationKinds = map[string]bool{
	KindHasMany:              true,
	KindBelongsToMany:        true,
	KindBelongsToManyThrough: true,
}

var cascadeModes = map[string]bool{
	CascadeAuto: true,
	CascadeHard: true,
	CascadeSoft: true,
}

// Validate checks a parsed document for structural problems and reports all
// of them at once. exists probes whether a referenced entity's own schema is
// loadable, so a dangling through-relation fails here rather than mid-query.
func Validate(doc *Document, exists func(name string) bool) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if doc.Entity == "" {
		add("entity name is required")
	}
	if doc.Table == "" {
		add("table name is required")
	}

	for _, name := range doc.Fields.Names() {
		if name == "" {
			add("field list contains an empty name")
			continue
		}
		f := doc.Fields.Get(name)
		for _, c := range f.Contexts {
			if c == "" {
				add("field %q: contexts list contains an empty string", name)
			}
		}
	}

	for i := range doc.Relations {
		rel := &doc.Relations[i]
		where := fmt.Sprintf("relation %q", rel.Name)
		if rel.Name == "" {
			where = fmt.Sprintf("relation #%d", i)
			add("%s: name is required", where)
		}
		if rel.Target == "" {
			add("%s: target entity is required", where)
		}
		if !relationKinds[rel.Kind] {
			add("%s: unknown kind %q", where, rel.Kind)
			continue
		}
		switch rel.Kind {
		case KindHasMany:
			if rel.ForeignKey == "" {
				add("%s: foreign_key is required for has_many", where)
			}
		case KindBelongsToMany:
			if rel.Pivot == "" || rel.PivotLocalKey == "" || rel.PivotTargetKey == "" {
				add("%s: pivot, pivot_local_key and pivot_target_key are required for belongs_to_many", where)
			}
		case KindBelongsToManyThrough:
			if rel.Pivot == "" || rel.PivotLocalKey == "" || rel.PivotTargetKey == "" {
				add("%s: pivot, pivot_local_key and pivot_target_key are required for belongs_to_many_through", where)
			}
			if rel.ThroughPivot == "" || rel.ThroughPivotLocalKey == "" || rel.ThroughPivotTargetKey == "" {
				add("%s: through_pivot keys are required for belongs_to_many_through", where)
			}
			if rel.Through == "" {
				add("%s: through entity is required for belongs_to_many_through", where)
			} else if exists != nil && !exists(rel.Through) {
				add("%s: through entity %q has no loadable schema", where, rel.Through)
			}
		}
		if rel.Target != "" && exists != nil && !exists(rel.Target) {
			add("%s: target entity %q has no loadable schema", where, rel.Target)
		}
	}

	for i := range doc.Children {
		child := &doc.Children[i]
		where := fmt.Sprintf("child %q", child.Entity)
		if child.Entity == "" {
			where = fmt.Sprintf("child #%d", i)
			add("%s: entity is required", where)
		} else if exists != nil && !exists(child.Entity) {
			add("%s: entity has no loadable schema", where)
		}
		if child.ForeignKey == "" {
			add("%s: foreign_key is required", where)
		}
		if !cascadeModes[child.Mode] {
			add("%s: unknown cascade mode %q", where, child.Mode)
		}
	}

	if dir := doc.DefaultSort.Direction; dir != "" && dir != "asc" && dir != "desc" {
		add("default_sort: direction must be asc or desc, got %q", dir)
	}

	for action, perm := range doc.Permissions {
		if perm == "" {
			add("permissions: action %q maps to an empty permission string", action)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Entity: doc.Entity, Problems: problems}
	}
	return nil
}
