// Package translate is the label-translation boundary. The query engine never
// consults it; only user-facing field labels pass through here.
package translate

// Translator resolves a display label for an entity field.
type Translator interface {
	Label(entity, field, fallback string) string
}

// Noop returns the fallback unchanged.
type Noop struct{}

func (Noop) Label(entity, field, fallback string) string {
	return fallback
}
