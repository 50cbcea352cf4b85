// Package model binds validated schema documents to a generic persistence
// layer. A configured Model belongs to a single request and is never shared.
package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lattice-backend/internal/fields"
	"lattice-backend/internal/schema"
	"lattice-backend/internal/store"
)

// ConfigError marks a schema-to-model binding problem. It fails fast at
// configure time; a bad configuration never degrades into a malformed query.
type ConfigError struct {
	Entity string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configure model %q: %s", e.Entity, e.Reason)
}

// Resolver produces configured model instances for relationship targets and
// through entities. The relationship builders accept only resolved *Model
// handles, never bare entity names.
type Resolver interface {
	Model(name string) (*Model, error)
}

// Model is a schema-bound data-access object.
type Model struct {
	Doc *schema.Document

	store      *store.Store
	table      string
	pk         schema.PrimaryKey
	timestamps bool
	softDelete bool
	fillable   map[string]*schema.FieldSpec
	relations  map[string]*Relationship
}

// Configure binds a validated document to a model instance. Soft delete is
// active only when the schema flag is set AND the mechanism is registered;
// otherwise the flag silently no-ops.
func Configure(doc *schema.Document, resolve Resolver, st *store.Store, softDeleteRegistered bool) (*Model, error) {
	m := &Model{
		Doc:        doc,
		store:      st,
		table:      doc.Table,
		pk:         doc.PrimaryKey,
		timestamps: doc.HasTimestamps(),
		softDelete: doc.SoftDelete && softDeleteRegistered,
		fillable:   make(map[string]*schema.FieldSpec),
		relations:  make(map[string]*Relationship),
	}

	for _, f := range fields.Editable(doc) {
		m.fillable[f.Name] = f
	}

	if resolve != nil {
		for i := range doc.Relations {
			rel, err := buildRelationship(m, doc.Relations[i], resolve)
			if err != nil {
				return nil, err
			}
			m.relations[rel.Name] = rel
		}
	}

	return m, nil
}

func (m *Model) Table() string                 { return m.table }
func (m *Model) PrimaryKey() string            { return m.pk.Field }
func (m *Model) SoftDeleting() bool            { return m.softDelete }
func (m *Model) Timestamps() bool              { return m.timestamps }
func (m *Model) Store() *store.Store           { return m.store }
func (m *Model) Dialect() store.Dialect        { return m.store.Dialect }
func (m *Model) Relation(name string) *Relationship {
	return m.relations[name]
}

// Fillable reports whether the field accepts client writes.
func (m *Model) Fillable(name string) bool {
	_, ok := m.fillable[name]
	return ok
}

// FillableSpecs returns the fillable specs keyed by name.
func (m *Model) FillableSpecs() map[string]*schema.FieldSpec {
	return m.fillable
}

// Columns returns the select column list: declared fields plus the primary
// key and engine-managed columns when they are not declared explicitly.
// Secret-typed fields stay writable through the fillable set but are never
// selected, so no response body can carry them.
func (m *Model) Columns() []string {
	cols := make([]string, 0, m.Doc.Fields.Len()+4)
	if !m.Doc.Fields.Has(m.pk.Field) {
		cols = append(cols, m.pk.Field)
	}
	for _, f := range m.Doc.Fields.All() {
		if f.IsSecret() {
			continue
		}
		cols = append(cols, f.Name)
	}
	if m.timestamps {
		if !m.Doc.Fields.Has("created_at") {
			cols = append(cols, "created_at")
		}
		if !m.Doc.Fields.Has("updated_at") {
			cols = append(cols, "updated_at")
		}
	}
	if m.softDelete && !m.Doc.Fields.Has("deleted_at") {
		cols = append(cols, "deleted_at")
	}
	return cols
}

// Find fetches one live record by primary key.
func (m *Model) Find(ctx context.Context, q store.Querier, id any) (map[string]any, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(m.Columns(), ", "), m.table, m.pk.Field, m.store.Dialect.Placeholder(1))
	if m.softDelete {
		sql += " AND deleted_at IS NULL"
	}
	row, err := store.QueryRow(ctx, q, sql, id)
	if err != nil {
		return nil, err
	}
	m.fixBooleans([]map[string]any{row})
	return row, nil
}

// FindTrashed fetches one soft-deleted record by primary key.
func (m *Model) FindTrashed(ctx context.Context, q store.Querier, id any) (map[string]any, error) {
	if !m.softDelete {
		return nil, store.ErrNotFound
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND deleted_at IS NOT NULL",
		strings.Join(m.Columns(), ", "), m.table, m.pk.Field, m.store.Dialect.Placeholder(1))
	return store.QueryRow(ctx, q, sql, id)
}

// InsertSQL builds a parameterized INSERT for the fillable subset of data.
// Generated uuid keys are filled in application code; serial keys come back
// via RETURNING.
func (m *Model) InsertSQL(data map[string]any) (string, []any) {
	pb := m.store.Dialect.NewParamBuilder()
	var cols, vals []string

	if m.pk.Generated && m.pk.Type == "uuid" {
		if _, ok := data[m.pk.Field]; !ok {
			cols = append(cols, m.pk.Field)
			vals = append(vals, pb.Add(uuid.New().String()))
		}
	}

	for _, name := range m.Doc.Fields.Names() {
		if _, ok := m.fillable[name]; !ok {
			continue
		}
		value, ok := data[name]
		if !ok {
			continue
		}
		cols = append(cols, name)
		vals = append(vals, pb.Add(value))
	}

	if m.timestamps {
		now := m.store.Dialect.NowExpr()
		cols = append(cols, "created_at", "updated_at")
		vals = append(vals, now, now)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		m.table, strings.Join(cols, ", "), strings.Join(vals, ", "), m.pk.Field)
	return sql, pb.Params()
}

// Insert writes a new record and returns its primary key value.
func (m *Model) Insert(ctx context.Context, q store.Querier, data map[string]any) (any, error) {
	sql, params := m.InsertSQL(data)
	row, err := store.QueryRow(ctx, q, sql, params...)
	if err != nil {
		return nil, m.store.Dialect.MapError(err)
	}
	return row[m.pk.Field], nil
}

// UpdateSQL builds a parameterized UPDATE for the fillable subset of data.
// Returns an empty statement when nothing fillable changed.
func (m *Model) UpdateSQL(id any, data map[string]any) (string, []any) {
	pb := m.store.Dialect.NewParamBuilder()
	var sets []string

	for _, name := range m.Doc.Fields.Names() {
		if _, ok := m.fillable[name]; !ok {
			continue
		}
		value, ok := data[name]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", name, pb.Add(value)))
	}
	if len(sets) == 0 {
		return "", nil
	}

	if m.timestamps {
		sets = append(sets, "updated_at = "+m.store.Dialect.NowExpr())
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		m.table, strings.Join(sets, ", "), m.pk.Field, pb.Add(id))
	if m.softDelete {
		sql += " AND deleted_at IS NULL"
	}
	return sql, pb.Params()
}

// Update writes fillable changes to an existing record.
func (m *Model) Update(ctx context.Context, q store.Querier, id any, data map[string]any) error {
	sql, params := m.UpdateSQL(id, data)
	if sql == "" {
		return nil
	}
	affected, err := store.Exec(ctx, q, sql, params...)
	if err != nil {
		return m.store.Dialect.MapError(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SoftDeleteSQL marks a live record deleted.
func (m *Model) SoftDeleteSQL(id any) (string, []any) {
	pb := m.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("UPDATE %s SET deleted_at = %s WHERE %s = %s AND deleted_at IS NULL",
		m.table, m.store.Dialect.NowExpr(), m.pk.Field, pb.Add(id))
	return sql, pb.Params()
}

// HardDeleteSQL removes a record.
func (m *Model) HardDeleteSQL(id any) (string, []any) {
	pb := m.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		m.table, m.pk.Field, pb.Add(id))
	return sql, pb.Params()
}

// RestoreSQL clears the deletion mark. Restore does not cascade to children.
func (m *Model) RestoreSQL(id any) (string, []any) {
	pb := m.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("UPDATE %s SET deleted_at = NULL WHERE %s = %s AND deleted_at IS NOT NULL",
		m.table, m.pk.Field, pb.Add(id))
	return sql, pb.Params()
}

// Related fetches the rows of a named relationship for one parent record.
func (m *Model) Related(ctx context.Context, q store.Querier, name string, parentID any) ([]map[string]any, error) {
	rel := m.relations[name]
	if rel == nil {
		return nil, &ConfigError{Entity: m.Doc.Entity, Reason: fmt.Sprintf("unknown relationship %q", name)}
	}
	sql, params := rel.RowsSQL(parentID)
	rows, err := store.QueryRows(ctx, q, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("related %s: %w", name, err)
	}
	rel.Target.fixBooleans(rows)
	return rows, nil
}

// fixBooleans normalizes integer booleans on dialects that need it.
func (m *Model) fixBooleans(rows []map[string]any) {
	if m.store == nil || !m.store.Dialect.NeedsBoolFix() {
		return
	}
	var boolFields []string
	for _, f := range m.Doc.Fields.All() {
		if f.Type == "boolean" {
			boolFields = append(boolFields, f.Name)
		}
	}
	store.NormalizeBooleans(rows, boolFields)
}
