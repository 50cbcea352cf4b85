package schema

import (
	"errors"
	"strings"
	"testing"
)

func allExist(string) bool  { return true }
func noneExist(string) bool { return false }

func TestValidateCollectsAllProblems(t *testing.T) {
	doc := parseDoc(t, `
entity: ""
table: ""
relations:
  - name: widgets
    kind: has_one
    target: widgets
children:
  - entity: parts
    mode: cascade
`)

	err := Validate(doc, allExist)
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// entity, table, relation kind, child foreign_key, child mode
	if len(invalid.Problems) < 5 {
		t.Fatalf("expected all problems collected, got %d: %v", len(invalid.Problems), invalid.Problems)
	}
}

func TestValidateRelationKeyRequirements(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "has_many missing foreign key",
			body: `
entity: posts
table: posts
relations:
  - name: comments
    kind: has_many
    target: comments
`,
			want: "foreign_key is required",
		},
		{
			name: "belongs_to_many missing pivot keys",
			body: `
entity: posts
table: posts
relations:
  - name: tags
    kind: belongs_to_many
    target: tags
    pivot: post_tags
`,
			want: "pivot_local_key and pivot_target_key are required",
		},
		{
			name: "through missing through entity",
			body: `
entity: users
table: users
relations:
  - name: permissions
    kind: belongs_to_many_through
    target: permissions
    pivot: user_groups
    pivot_local_key: user_id
    pivot_target_key: group_id
    through_pivot: group_permissions
    through_pivot_local_key: group_id
    through_pivot_target_key: permission_id
`,
			want: "through entity is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(parseDoc(t, tc.body), allExist)
			var invalid *ValidationError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(invalid.Error(), tc.want) {
				t.Fatalf("expected problem containing %q, got %v", tc.want, invalid.Problems)
			}
		})
	}
}

func TestValidateThroughEntityMustBeLoadable(t *testing.T) {
	doc := parseDoc(t, `
entity: users
table: users
relations:
  - name: permissions
    kind: belongs_to_many_through
    target: permissions
    through: groups
    pivot: user_groups
    pivot_local_key: user_id
    pivot_target_key: group_id
    through_pivot: group_permissions
    through_pivot_local_key: group_id
    through_pivot_target_key: permission_id
`)

	err := Validate(doc, noneExist)
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(invalid.Error(), "has no loadable schema") {
		t.Fatalf("expected loadable-schema problem, got %v", invalid.Problems)
	}
}

func TestValidateAcceptsCompleteDocument(t *testing.T) {
	doc := parseDoc(t, `
entity: users
table: users
soft_delete: true
permissions:
  read: users.read
fields:
  email:
    type: string
    required: true
relations:
  - name: groups
    kind: belongs_to_many
    target: groups
    pivot: memberships
    pivot_local_key: user_id
    pivot_target_key: group_id
children:
  - entity: sessions
    foreign_key: user_id
    mode: hard
`)

	if err := Validate(doc, allExist); err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}
}

func TestValidateEmptyPermissionString(t *testing.T) {
	doc := parseDoc(t, `
entity: users
table: users
permissions:
  read: ""
`)

	err := Validate(doc, allExist)
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(invalid.Error(), "empty permission string") {
		t.Fatalf("expected permission problem, got %v", invalid.Problems)
	}
}

func TestPermissionConventionFallback(t *testing.T) {
	doc := parseDoc(t, `
entity: orders
table: orders
permissions:
  delete: orders.remove
`)

	if got := doc.Permission("delete"); got != "orders.remove" {
		t.Fatalf("expected explicit mapping, got %q", got)
	}
	if got := doc.Permission("read"); got != "orders.read" {
		t.Fatalf("expected convention fallback, got %q", got)
	}
}
