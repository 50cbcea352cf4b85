package schema

import (
	"fmt"
	"strings"
)

// NotFoundError means no schema document resolved through the lookup path.
type NotFoundError struct {
	Entity   string
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("schema %q not found (searched %s)", e.Entity, strings.Join(e.Searched, ", "))
}

// ValidationError enumerates every structural problem found in a document.
type ValidationError struct {
	Entity   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema %q invalid: %s", e.Entity, strings.Join(e.Problems, "; "))
}
