package engine

import (
	"context"
	"fmt"

	"lattice-backend/internal/fields"
	"lattice-backend/internal/model"
	"lattice-backend/internal/store"
)

// WritePlan describes one create or update, fully validated and transformed,
// before any SQL runs.
type WritePlan struct {
	IsCreate  bool
	Model     *model.Model
	Fields    map[string]any
	ID        any            // nil for create
	PivotSync map[string][]any // relation name -> replacement target ids
}

// PlanWrite separates fillable fields from pivot-sync payloads, validates,
// and coerces values to their declared semantic types.
func PlanWrite(m *model.Model, body map[string]any, existingID any) (*WritePlan, []ErrorDetail) {
	values := make(map[string]any)
	pivots := make(map[string][]any)
	var unknown []ErrorDetail

	for key, raw := range body {
		if m.Fillable(key) {
			values[key] = raw
			continue
		}
		if rel := m.Relation(key); rel != nil && rel.Kind == model.BelongsToMany {
			ids, ok := raw.([]any)
			if !ok {
				unknown = append(unknown, ErrorDetail{
					Field: key, Rule: "type",
					Message: fmt.Sprintf("%s expects a list of ids", key),
				})
				continue
			}
			pivots[key] = ids
			continue
		}
		unknown = append(unknown, ErrorDetail{
			Field: key, Rule: "unknown",
			Message: fmt.Sprintf("Unknown field or relation: %s", key),
		})
	}
	if len(unknown) > 0 {
		return nil, unknown
	}

	if existingID == nil {
		for name, spec := range m.FillableSpecs() {
			if _, ok := values[name]; !ok && spec.Default != nil {
				values[name] = spec.Default
			}
		}
	}

	if violations := fields.Validate(m.Doc, values, existingID == nil); len(violations) > 0 {
		details := make([]ErrorDetail, len(violations))
		for i, v := range violations {
			details[i] = ErrorDetail{Field: v.Field, Rule: v.Rule, Message: v.Message}
		}
		return nil, details
	}

	for name, raw := range values {
		spec := m.FillableSpecs()[name]
		coerced, err := fields.Transform(spec, raw)
		if err != nil {
			return nil, []ErrorDetail{{
				Field: name, Rule: "type",
				Message: fmt.Sprintf("Invalid value for %s: %v", spec.Label, err),
			}}
		}
		values[name] = coerced
	}

	return &WritePlan{
		IsCreate:  existingID == nil,
		Model:     m,
		Fields:    values,
		ID:        existingID,
		PivotSync: pivots,
	}, nil
}

// ExecuteWritePlan runs the planned operations inside a single transaction
// and returns the resulting record.
func ExecuteWritePlan(ctx context.Context, st *store.Store, plan *WritePlan) (map[string]any, error) {
	tx, err := st.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	m := plan.Model
	var id any
	if plan.IsCreate {
		id, err = m.Insert(ctx, tx, plan.Fields)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", m.Table(), err)
		}
	} else {
		id = plan.ID
		if err := m.Update(ctx, tx, id, plan.Fields); err != nil {
			return nil, fmt.Errorf("update %s: %w", m.Table(), err)
		}
	}

	// Pivot sync replaces the full set: detach, then attach.
	for name, targetIDs := range plan.PivotSync {
		rel := m.Relation(name)
		if sql, params, ok := rel.DetachSQL(id); ok {
			if _, err := store.Exec(ctx, tx, sql, params...); err != nil {
				return nil, fmt.Errorf("sync %s: detach: %w", name, st.Dialect.MapError(err))
			}
		}
		for _, targetID := range targetIDs {
			sql, params, ok := rel.AttachSQL(id, targetID)
			if !ok {
				continue
			}
			if _, err := store.Exec(ctx, tx, sql, params...); err != nil {
				return nil, fmt.Errorf("sync %s: attach %v: %w", name, targetID, st.Dialect.MapError(err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return m.Find(ctx, st.DB, id)
}
