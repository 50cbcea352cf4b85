package model

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"lattice-backend/internal/schema"
	"lattice-backend/internal/store"
	"lattice-backend/internal/translate"
)

// testFactory builds a factory over a temp schema directory. The store has
// no live connection; these tests exercise configuration and SQL building.
func testFactory(t *testing.T, docs map[string]string) *Factory {
	t.Helper()
	dir := t.TempDir()
	for name, body := range docs {
		if err := os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o644); err != nil {
			t.Fatalf("write schema %s: %v", name, err)
		}
	}
	svc := schema.NewService(schema.NewLoader([]string{dir}), translate.Noop{}, zerolog.Nop())
	svc.RegisterSoftDelete()
	return NewFactory(svc, store.Open(nil, "postgres"))
}

const userDoc = `
entity: users
table: users
soft_delete: true
fields:
  email:
    type: string
    required: true
  password:
    type: password
  display_name:
    type: string
  role_hint:
    type: string
    readonly: true
relations:
  - name: posts
    kind: has_many
    target: posts
    foreign_key: author_id
  - name: groups
    kind: belongs_to_many
    target: groups
    pivot: memberships
    pivot_local_key: user_id
    pivot_target_key: group_id
  - name: permissions
    kind: belongs_to_many_through
    target: permissions
    through: groups
    pivot: memberships
    pivot_local_key: user_id
    pivot_target_key: group_id
    through_pivot: group_permissions
    through_pivot_local_key: group_id
    through_pivot_target_key: permission_id
`

const postDoc = `
entity: posts
table: posts
fields:
  title:
    type: string
  author_id:
    type: string
`

const groupDoc = `
entity: groups
table: groups
fields:
  name:
    type: string
`

const permissionDoc = `
entity: permissions
table: permissions
timestamps: false
fields:
  code:
    type: string
`

func fullFixture() map[string]string {
	return map[string]string{
		"users":       userDoc,
		"posts":       postDoc,
		"groups":      groupDoc,
		"permissions": permissionDoc,
	}
}

func TestConfigureFillableAndColumns(t *testing.T) {
	f := testFactory(t, fullFixture())
	m, err := f.Model("users")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	if !m.Fillable("email") || !m.Fillable("display_name") {
		t.Fatal("expected declared fields fillable")
	}
	if !m.Fillable("password") {
		t.Fatal("secret fields stay writable")
	}
	if m.Fillable("role_hint") {
		t.Fatal("readonly field must not be fillable")
	}
	if !m.SoftDeleting() {
		t.Fatal("expected soft delete active with mechanism registered")
	}

	cols := strings.Join(m.Columns(), ", ")
	want := "id, email, display_name, role_hint, created_at, updated_at, deleted_at"
	if cols != want {
		t.Fatalf("columns = %q, want %q", cols, want)
	}
}

func TestSoftDeleteRequiresRegistration(t *testing.T) {
	dir := t.TempDir()
	for name, body := range fullFixture() {
		if err := os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o644); err != nil {
			t.Fatalf("write schema %s: %v", name, err)
		}
	}
	svc := schema.NewService(schema.NewLoader([]string{dir}), translate.Noop{}, zerolog.Nop())
	f := NewFactory(svc, store.Open(nil, "postgres"))

	m, err := f.Base("users")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if m.SoftDeleting() {
		t.Fatal("soft_delete flag must no-op without the registered mechanism")
	}
}

func TestThroughRelationRequiresThroughEntity(t *testing.T) {
	docs := fullFixture()
	docs["users"] = strings.Replace(docs["users"], "    through: groups\n", "", 1)

	f := testFactory(t, docs)
	_, err := f.Model("users")
	if err == nil {
		t.Fatal("expected configuration to fail")
	}
	// The dangling through entity is caught by schema validation before the
	// relationship builder ever runs.
	var invalid *schema.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestThroughBuilderRejectsEmptyThrough(t *testing.T) {
	f := testFactory(t, fullFixture())
	parent, err := f.Base("users")
	if err != nil {
		t.Fatalf("configure parent: %v", err)
	}

	spec := schema.Relation{
		Name:   "permissions",
		Kind:   schema.KindBelongsToManyThrough,
		Target: "permissions",
	}
	_, err = buildBelongsToManyThrough(parent, spec, shallowResolver{f})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(cfgErr.Reason, "through entity is required") {
		t.Fatalf("unexpected reason: %q", cfgErr.Reason)
	}
}

func TestRelationshipTargetsAreResolvedModels(t *testing.T) {
	f := testFactory(t, fullFixture())
	m, err := f.Model("users")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	rel := m.Relation("permissions")
	if rel == nil {
		t.Fatal("missing permissions relation")
	}
	if rel.Target == nil || rel.Target.Table() != "permissions" {
		t.Fatal("expected resolved target model")
	}
	if rel.Through == nil || rel.Through.Table() != "groups" {
		t.Fatal("expected resolved through model")
	}
}

func TestRowsSQLShapes(t *testing.T) {
	f := testFactory(t, fullFixture())
	m, err := f.Model("users")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	sql, params := m.Relation("posts").RowsSQL("u1")
	if !strings.Contains(sql, "FROM posts t WHERE t.author_id = $1") {
		t.Fatalf("has_many sql: %q", sql)
	}
	if len(params) != 1 || params[0] != "u1" {
		t.Fatalf("has_many params: %v", params)
	}

	sql, _ = m.Relation("groups").RowsSQL("u1")
	if !strings.Contains(sql, "JOIN memberships p ON p.group_id = t.id") ||
		!strings.Contains(sql, "WHERE p.user_id = $1") {
		t.Fatalf("belongs_to_many sql: %q", sql)
	}

	sql, _ = m.Relation("permissions").RowsSQL("u1")
	for _, fragment := range []string{
		"FROM permissions t",
		"JOIN group_permissions tp ON tp.permission_id = t.id",
		"JOIN groups th ON th.id = tp.group_id",
		"JOIN memberships p ON p.group_id = th.id",
		"WHERE p.user_id = $1",
	} {
		if !strings.Contains(sql, fragment) {
			t.Fatalf("through sql missing %q: %q", fragment, sql)
		}
	}
}

func TestDetachAndAttachSQL(t *testing.T) {
	f := testFactory(t, fullFixture())
	m, err := f.Model("users")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	if _, _, ok := m.Relation("posts").DetachSQL("u1"); ok {
		t.Fatal("has_many has no pivot rows to detach")
	}

	sql, params, ok := m.Relation("groups").DetachSQL("u1")
	if !ok || sql != "DELETE FROM memberships WHERE user_id = $1" {
		t.Fatalf("detach sql: %q", sql)
	}
	if params[0] != "u1" {
		t.Fatalf("detach params: %v", params)
	}

	sql, params, ok = m.Relation("groups").AttachSQL("u1", "g1")
	if !ok || sql != "INSERT INTO memberships (user_id, group_id) VALUES ($1, $2)" {
		t.Fatalf("attach sql: %q", sql)
	}
	if params[0] != "u1" || params[1] != "g1" {
		t.Fatalf("attach params: %v", params)
	}

	if _, _, ok := m.Relation("permissions").AttachSQL("u1", "p1"); ok {
		t.Fatal("through relations are read-only, attach must refuse")
	}
}

func TestInsertSQL(t *testing.T) {
	f := testFactory(t, fullFixture())
	m, err := f.Base("users")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	sql, params := m.InsertSQL(map[string]any{
		"email":     "a@example.com",
		"role_hint": "ignored",
	})
	if !strings.HasPrefix(sql, "INSERT INTO users (id, email, created_at, updated_at)") {
		t.Fatalf("insert sql: %q", sql)
	}
	if !strings.HasSuffix(sql, "RETURNING id") {
		t.Fatalf("expected RETURNING clause: %q", sql)
	}
	// generated uuid + email; timestamps use NOW(), not params
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %v", params)
	}
	if params[1] != "a@example.com" {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestUpdateSQL(t *testing.T) {
	f := testFactory(t, fullFixture())
	m, err := f.Base("users")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	sql, params := m.UpdateSQL("u1", map[string]any{"display_name": "New Name"})
	if !strings.Contains(sql, "SET display_name = $1, updated_at = NOW()") {
		t.Fatalf("update sql: %q", sql)
	}
	if !strings.Contains(sql, "WHERE id = $2 AND deleted_at IS NULL") {
		t.Fatalf("expected live-row guard: %q", sql)
	}
	if params[0] != "New Name" || params[1] != "u1" {
		t.Fatalf("unexpected params: %v", params)
	}

	if sql, _ := m.UpdateSQL("u1", map[string]any{"role_hint": "x"}); sql != "" {
		t.Fatalf("expected empty statement when nothing fillable changed, got %q", sql)
	}
}

func TestDeleteAndRestoreSQL(t *testing.T) {
	f := testFactory(t, fullFixture())
	m, err := f.Base("users")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	sql, _ := m.SoftDeleteSQL("u1")
	if sql != "UPDATE users SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL" {
		t.Fatalf("soft delete sql: %q", sql)
	}

	sql, _ = m.HardDeleteSQL("u1")
	if sql != "DELETE FROM users WHERE id = $1" {
		t.Fatalf("hard delete sql: %q", sql)
	}

	sql, _ = m.RestoreSQL("u1")
	if sql != "UPDATE users SET deleted_at = NULL WHERE id = $1 AND deleted_at IS NOT NULL" {
		t.Fatalf("restore sql: %q", sql)
	}
}

func TestMutualReferencesDoNotRecurse(t *testing.T) {
	f := testFactory(t, map[string]string{
		"authors": `
entity: authors
table: authors
fields:
  name:
    type: string
relations:
  - name: books
    kind: has_many
    target: books
    foreign_key: author_id
`,
		"books": `
entity: books
table: books
fields:
  title:
    type: string
  author_id:
    type: string
relations:
  - name: authors
    kind: belongs_to_many
    target: authors
    pivot: book_authors
    pivot_local_key: book_id
    pivot_target_key: author_id
`,
	})

	m, err := f.Model("authors")
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	rel := m.Relation("books")
	if rel == nil {
		t.Fatal("missing books relation")
	}
	// Relationship participants are shallow; the cycle stops there.
	if rel.Target.Relation("authors") != nil {
		t.Fatal("expected target configured without its own relationships")
	}
}
