package schema

import (
	"strings"

	"lattice-backend/internal/translate"
)

// Projection is the result of filtering a document for a UI context. It is a
// closed set: the full document, one flat field view, or a named map of
// per-context views.
type Projection interface {
	isProjection()
}

// FullProjection is the document unchanged.
type FullProjection struct {
	Document *Document `json:"document"`
}

func (FullProjection) isProjection() {}

// Meta is the context-independent part of a projection.
type Meta struct {
	Entity      string            `json:"entity"`
	Table       string            `json:"table"`
	PrimaryKey  PrimaryKey        `json:"primary_key"`
	Timestamps  bool              `json:"timestamps"`
	SoftDelete  bool              `json:"soft_delete"`
	DefaultSort Sort              `json:"default_sort"`
	Permissions map[string]string `json:"permissions,omitempty"`
}

// FieldView is a flat projection for one context.
type FieldView struct {
	Meta
	Context string      `json:"context"`
	Fields  []FieldSpec `json:"fields"`
}

func (FieldView) isProjection() {}

// NamedContexts carries several context views in one response, so a single
// round trip can serve both a list view and a form view.
type NamedContexts struct {
	Meta
	Contexts map[string][]FieldSpec `json:"contexts"`
}

func (NamedContexts) isProjection() {}

// Project filters a document for a context specifier. Empty or "full" returns
// the document unchanged; a single context name returns a flat FieldView; a
// comma-separated set returns a NamedContexts map with exactly those keys.
// Pure: identical input always yields identical output.
func Project(doc *Document, spec string, tr translate.Translator) Projection {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "full" {
		return FullProjection{Document: doc}
	}

	meta := metaOf(doc)

	names := splitContexts(spec)
	if len(names) == 1 {
		return FieldView{
			Meta:    meta,
			Context: names[0],
			Fields:  contextFields(doc, names[0], tr),
		}
	}

	contexts := make(map[string][]FieldSpec, len(names))
	for _, name := range names {
		contexts[name] = contextFields(doc, name, tr)
	}
	return NamedContexts{Meta: meta, Contexts: contexts}
}

func metaOf(doc *Document) Meta {
	return Meta{
		Entity:      doc.Entity,
		Table:       doc.Table,
		PrimaryKey:  doc.PrimaryKey,
		Timestamps:  doc.HasTimestamps(),
		SoftDelete:  doc.SoftDelete,
		DefaultSort: doc.DefaultSort,
		Permissions: doc.Permissions,
	}
}

// contextFields returns copies of the specs valid in a context, in document
// order, with labels resolved through the translator.
func contextFields(doc *Document, context string, tr translate.Translator) []FieldSpec {
	fields := make([]FieldSpec, 0, doc.Fields.Len())
	for _, f := range doc.Fields.All() {
		if !f.HasContext(context) {
			continue
		}
		spec := *f
		if tr != nil {
			spec.Label = tr.Label(doc.Entity, f.Name, f.Label)
		}
		fields = append(fields, spec)
	}
	return fields
}

func splitContexts(spec string) []string {
	var names []string
	for _, part := range strings.Split(spec, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}
