// Package listing translates untrusted query parameters into safe,
// schema-whitelisted SQL constraints.
package listing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"lattice-backend/internal/fields"
	"lattice-backend/internal/schema"
	"lattice-backend/internal/store"
)

// MaxPageSize caps the page size regardless of request input.
const MaxPageSize = 100

// DefaultPageSize applies when the request names no size.
const DefaultPageSize = 25

// Whitelists are the four explicit field sets a listing may touch. They are
// derived only from schema flags; there is no type-based fallback, so a
// field the schema author never flagged can never leak into a listing.
type Whitelists struct {
	Sortable   []*schema.FieldSpec
	Filterable []*schema.FieldSpec
	List       []*schema.FieldSpec
	Searchable []*schema.FieldSpec
}

// FromDocument derives the whitelists from a document's flags.
func FromDocument(doc *schema.Document) Whitelists {
	return Whitelists{
		Sortable:   fields.Sortable(doc),
		Filterable: fields.Filterable(doc),
		List:       fields.Listable(doc),
		Searchable: fields.Searchable(doc),
	}
}

// Constraint is an extra WHERE equality injected before execution, used for
// nested detail listings scoped by foreign key.
type Constraint struct {
	Field string
	Value any
}

// Result is the listing contract: one page of rows plus the total count of
// matching rows before pagination.
type Result struct {
	Rows  []map[string]any `json:"rows"`
	Count int64            `json:"count"`
}

type filterClause struct {
	spec     *schema.FieldSpec
	operator string
	raw      string
}

// Engine builds and runs one listing query.
type Engine struct {
	table       string
	dialect     store.Dialect
	logger      zerolog.Logger
	pkField     string
	defaultSort schema.Sort
	softDelete  bool

	listColumns []string
	sortable    map[string]*schema.FieldSpec
	filterable  map[string]*schema.FieldSpec
	searchable  []*schema.FieldSpec

	filters   []filterClause
	search    string
	sortField string
	sortDir   string
	page      int
	size      int
	extra     []Constraint
}

// New sets up a listing over a table with explicit whitelists.
func New(table string, pkField string, w Whitelists, defaultSort schema.Sort, d store.Dialect, logger zerolog.Logger) *Engine {
	e := &Engine{
		table:       table,
		dialect:     d,
		logger:      logger,
		pkField:     pkField,
		defaultSort: defaultSort,
		sortable:    make(map[string]*schema.FieldSpec, len(w.Sortable)),
		filterable:  make(map[string]*schema.FieldSpec, len(w.Filterable)),
		searchable:  w.Searchable,
		page:        1,
		size:        DefaultPageSize,
	}
	for _, f := range w.Sortable {
		e.sortable[f.Name] = f
	}
	for _, f := range w.Filterable {
		e.filterable[f.Name] = f
	}
	e.listColumns = append(e.listColumns, pkField)
	for _, f := range w.List {
		if f.Name != pkField {
			e.listColumns = append(e.listColumns, f.Name)
		}
	}
	return e
}

// WithSoftDelete hides soft-deleted rows.
func (e *Engine) WithSoftDelete() *Engine {
	e.softDelete = true
	return e
}

// ApplyFilters records one clause per filterable field present in params.
// Parameters naming unrecognized fields are dropped, never forwarded into
// the query.
func (e *Engine) ApplyFilters(params map[string]string) {
	for key, raw := range params {
		spec, ok := e.filterable[key]
		if !ok {
			e.logger.Debug().Str("table", e.table).Str("param", key).Msg("dropping non-whitelisted filter param")
			continue
		}
		op := spec.FilterOperator
		if op == "" {
			op = "equals"
		}
		e.filters = append(e.filters, filterClause{spec: spec, operator: op, raw: raw})
	}
}

// ApplySearch records a search term. With an empty searchable set this is a
// no-op; a search clause over zero columns is not representable in SQL.
func (e *Engine) ApplySearch(term string) {
	if len(e.searchable) == 0 || strings.TrimSpace(term) == "" {
		return
	}
	e.search = strings.TrimSpace(term)
}

// ApplySort records the sort order. A field outside the sortable set is
// ignored in favor of the schema's default sort.
func (e *Engine) ApplySort(field, direction string) {
	if _, ok := e.sortable[field]; !ok {
		if field != "" {
			e.logger.Debug().Str("table", e.table).Str("param", field).Msg("dropping non-whitelisted sort field")
		}
		return
	}
	e.sortField = field
	e.sortDir = normalizeDirection(direction)
}

// Paginate records the page window. Size is capped at MaxPageSize.
func (e *Engine) Paginate(page, size int) {
	if page > 0 {
		e.page = page
	}
	if size > 0 {
		e.size = size
	}
	if e.size > MaxPageSize {
		e.size = MaxPageSize
	}
}

// Extend injects an extra WHERE constraint before execution.
func (e *Engine) Extend(c Constraint) {
	e.extra = append(e.extra, c)
}

// SelectSQL builds the page query.
func (e *Engine) SelectSQL() (string, []any) {
	pb := e.dialect.NewParamBuilder()

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(e.listColumns, ", "), e.table)
	if where := e.buildWhere(pb); len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	field, dir := e.order()
	sql += fmt.Sprintf(" ORDER BY %s %s", field, dir)
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(e.size), pb.Add((e.page-1)*e.size))

	return sql, pb.Params()
}

// CountSQL builds the total count query with identical constraints.
func (e *Engine) CountSQL() (string, []any) {
	pb := e.dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s", e.table)
	if where := e.buildWhere(pb); len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return sql, pb.Params()
}

// Run executes the page and count queries.
func (e *Engine) Run(ctx context.Context, q store.Querier) (*Result, error) {
	sql, params := e.SelectSQL()
	rows, err := store.QueryRows(ctx, q, sql, params...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", e.table, err)
	}

	countSQL, countParams := e.CountSQL()
	count, err := store.QueryCount(ctx, q, countSQL, countParams...)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", e.table, err)
	}

	if rows == nil {
		rows = []map[string]any{}
	}
	return &Result{Rows: rows, Count: count}, nil
}

func (e *Engine) buildWhere(pb store.ParamBuilder) []string {
	var where []string

	if e.softDelete {
		where = append(where, "deleted_at IS NULL")
	}

	for _, f := range e.filters {
		clause, ok := e.buildFilterClause(f, pb)
		if !ok {
			continue
		}
		where = append(where, clause)
	}

	if e.search != "" {
		var parts []string
		pattern := pb.Add("%" + e.search + "%")
		for _, f := range e.searchable {
			parts = append(parts, fmt.Sprintf("%s %s %s", f.Name, e.dialect.LikeOperator(), pattern))
		}
		where = append(where, "("+strings.Join(parts, " OR ")+")")
	}

	for _, c := range e.extra {
		where = append(where, fmt.Sprintf("%s = %s", c.Field, pb.Add(c.Value)))
	}

	return where
}

func (e *Engine) buildFilterClause(f filterClause, pb store.ParamBuilder) (string, bool) {
	name := f.spec.Name
	like := e.dialect.LikeOperator()

	switch f.operator {
	case "contains":
		return fmt.Sprintf("%s %s %s", name, like, pb.Add("%"+f.raw+"%")), true
	case "starts_with":
		return fmt.Sprintf("%s %s %s", name, like, pb.Add(f.raw+"%")), true
	case "ends_with":
		return fmt.Sprintf("%s %s %s", name, like, pb.Add("%"+f.raw)), true
	case "range":
		low, high, ok := splitRange(f.raw)
		if !ok {
			e.logger.Debug().Str("table", e.table).Str("param", name).Msg("dropping malformed range filter")
			return "", false
		}
		// Coerce both bounds before reserving placeholders; a half-built
		// clause must not leave an orphan parameter behind.
		var lowVal, highVal any
		if low != "" {
			v, err := fields.Coerce(f.spec, low)
			if err != nil {
				e.logger.Debug().Str("table", e.table).Str("param", name).Err(err).Msg("dropping uncoercible range bound")
				return "", false
			}
			lowVal = v
		}
		if high != "" {
			v, err := fields.Coerce(f.spec, high)
			if err != nil {
				e.logger.Debug().Str("table", e.table).Str("param", name).Err(err).Msg("dropping uncoercible range bound")
				return "", false
			}
			highVal = v
		}
		var parts []string
		if low != "" {
			parts = append(parts, fmt.Sprintf("%s >= %s", name, pb.Add(lowVal)))
		}
		if high != "" {
			parts = append(parts, fmt.Sprintf("%s <= %s", name, pb.Add(highVal)))
		}
		return strings.Join(parts, " AND "), len(parts) > 0
	default: // equals
		v, err := fields.Coerce(f.spec, f.raw)
		if err != nil {
			e.logger.Debug().Str("table", e.table).Str("param", name).Err(err).Msg("dropping uncoercible filter value")
			return "", false
		}
		return fmt.Sprintf("%s = %s", name, pb.Add(v)), true
	}
}

func (e *Engine) order() (string, string) {
	if e.sortField != "" {
		return e.sortField, strings.ToUpper(e.sortDir)
	}
	return e.defaultSort.Field, strings.ToUpper(normalizeDirection(e.defaultSort.Direction))
}

func normalizeDirection(dir string) string {
	if strings.EqualFold(dir, "desc") {
		return "desc"
	}
	return "asc"
}

// splitRange parses "low,high"; either side may be empty for an open bound.
func splitRange(raw string) (string, string, bool) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	low := strings.TrimSpace(parts[0])
	high := strings.TrimSpace(parts[1])
	if low == "" && high == "" {
		return "", "", false
	}
	return low, high, true
}
