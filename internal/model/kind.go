package model

import (
	"fmt"

	"lattice-backend/internal/schema"
)

// Kind is the typed relationship kind. Dispatch on Kind goes through the
// builders table, keeping the set of kinds closed in one place.
type Kind int

const (
	HasMany Kind = iota + 1
	BelongsToMany
	BelongsToManyThrough
)

func (k Kind) String() string {
	switch k {
	case HasMany:
		return schema.KindHasMany
	case BelongsToMany:
		return schema.KindBelongsToMany
	case BelongsToManyThrough:
		return schema.KindBelongsToManyThrough
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a schema kind string to its typed value.
func ParseKind(s string) (Kind, error) {
	switch s {
	case schema.KindHasMany:
		return HasMany, nil
	case schema.KindBelongsToMany:
		return BelongsToMany, nil
	case schema.KindBelongsToManyThrough:
		return BelongsToManyThrough, nil
	}
	return 0, fmt.Errorf("unknown relationship kind %q", s)
}
