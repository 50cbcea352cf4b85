package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSchema(t *testing.T, dir, file, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
		t.Fatalf("write schema file: %v", err)
	}
}

func TestLoaderLayeredOverride(t *testing.T) {
	base := t.TempDir()
	overlay := t.TempDir()

	writeSchema(t, base, "products.yaml", `
entity: products
table: products_base
`)
	writeSchema(t, overlay, "products.yaml", `
entity: products
table: products_overlay
`)

	l := NewLoader([]string{base, overlay})
	doc, err := l.Load("products")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Table != "products_overlay" {
		t.Fatalf("expected overlay document to win, got table %q", doc.Table)
	}
}

func TestLoaderFallsBackToEarlierPath(t *testing.T) {
	base := t.TempDir()
	overlay := t.TempDir()

	writeSchema(t, base, "orders.yaml", `
entity: orders
table: orders
`)

	l := NewLoader([]string{base, overlay})
	doc, err := l.Load("orders")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Table != "orders" {
		t.Fatalf("expected base document, got table %q", doc.Table)
	}
}

func TestLoaderYmlExtension(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "tags.yml", `
entity: tags
table: tags
`)

	l := NewLoader([]string{dir})
	if _, err := l.Load("tags"); err != nil {
		t.Fatalf("load .yml: %v", err)
	}
}

func TestLoaderUnknownEntity(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader([]string{dir})

	_, err := l.Load("missing")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Entity != "missing" {
		t.Fatalf("expected entity=missing, got %s", notFound.Entity)
	}
	if len(notFound.Searched) != 1 || notFound.Searched[0] != dir {
		t.Fatalf("expected searched paths %v, got %v", []string{dir}, notFound.Searched)
	}
}

func TestLoaderRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	parent := filepath.Dir(dir)
	writeSchema(t, parent, "escape.yaml", `
entity: escape
table: escape
`)

	l := NewLoader([]string{dir})
	for _, name := range []string{"../escape", "sub/escape", `sub\escape`, ""} {
		if _, err := l.Load(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
		if l.Exists(name) {
			t.Fatalf("expected Exists(%q) to be false", name)
		}
	}
}

func TestLoaderMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "broken.yaml", "entity: [unclosed")

	l := NewLoader([]string{dir})
	_, err := l.Load("broken")
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoaderAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "notes.yaml", `
entity: notes
table: notes
fields:
  body:
    type: string
children:
  - entity: attachments
    foreign_key: note_id
`)

	l := NewLoader([]string{dir})
	doc, err := l.Load("notes")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	pk := doc.PrimaryKey
	if pk.Field != "id" || pk.Type != "uuid" || !pk.Generated {
		t.Fatalf("expected generated uuid id default, got %+v", pk)
	}
	if doc.DefaultSort.Field != "id" || doc.DefaultSort.Direction != "asc" {
		t.Fatalf("expected default sort id asc, got %+v", doc.DefaultSort)
	}
	if !doc.HasTimestamps() {
		t.Fatal("expected timestamps to default on")
	}
	if doc.Children[0].Mode != CascadeAuto {
		t.Fatalf("expected child mode auto, got %q", doc.Children[0].Mode)
	}
	if !doc.Children[0].Enabled() {
		t.Fatal("expected child cascade enabled by default")
	}
}

func TestFieldMapPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "people.yaml", `
entity: people
table: people
fields:
  last_name:
    type: string
  first_name:
    type: string
  email_address:
    type: string
`)

	l := NewLoader([]string{dir})
	doc, err := l.Load("people")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := []string{"last_name", "first_name", "email_address"}
	got := doc.Fields.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("field %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if label := doc.Fields.Get("email_address").Label; label != "Email Address" {
		t.Fatalf("expected derived label, got %q", label)
	}
	if typ := doc.Fields.Get("first_name").Type; typ != "string" {
		t.Fatalf("expected default type string, got %q", typ)
	}
}
