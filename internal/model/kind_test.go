package model

import "testing"

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"has_many":                HasMany,
		"belongs_to_many":         BelongsToMany,
		"belongs_to_many_through": BelongsToManyThrough,
	}
	for raw, want := range cases {
		got, err := ParseKind(raw)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q) = %v, want %v", raw, got, want)
		}
		if got.String() != raw {
			t.Fatalf("String() round trip: %q != %q", got.String(), raw)
		}
	}
}

func TestParseKindRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "has_one", "belongs_to"} {
		if _, err := ParseKind(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
