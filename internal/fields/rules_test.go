package fields

import (
	"testing"
)

const rulesDoc = `
entity: products
table: products
fields:
  name:
    type: string
    required: true
    validation:
      min_length: 3
      max_length: 10
  sku:
    type: string
    validation:
      pattern: "^[A-Z]{3}-[0-9]{4}$"
      unique: true
  price:
    type: decimal
    validation:
      min: 0
      max: 1000
  quantity:
    type: integer
    validation:
      expression: "value >= 0 && value <= record.capacity"
      message: "Quantity exceeds capacity"
  capacity:
    type: integer
`

func TestRulesDerivation(t *testing.T) {
	doc := loadDoc(t, rulesDoc)
	rules := Rules(doc)

	nameRules := rules["name"]
	if len(nameRules) != 3 {
		t.Fatalf("expected 3 rules for name, got %v", nameRules)
	}
	if nameRules[0].Name != "required" {
		t.Fatalf("expected required first, got %q", nameRules[0].Name)
	}

	var hasUnique, hasPattern bool
	for _, r := range rules["sku"] {
		switch r.Name {
		case "unique":
			hasUnique = true
		case "pattern":
			hasPattern = true
		}
	}
	if !hasUnique || !hasPattern {
		t.Fatalf("expected unique and pattern rules for sku, got %v", rules["sku"])
	}

	if _, ok := rules["capacity"]; ok {
		t.Fatal("expected no rules for unconstrained field")
	}
}

func TestValidateRequiredOnCreateOnly(t *testing.T) {
	doc := loadDoc(t, rulesDoc)

	violations := Validate(doc, map[string]any{}, true)
	if len(violations) != 1 || violations[0].Rule != "required" || violations[0].Field != "name" {
		t.Fatalf("expected a single required violation on create, got %v", violations)
	}

	if violations := Validate(doc, map[string]any{}, false); len(violations) != 0 {
		t.Fatalf("expected no violations on sparse update, got %v", violations)
	}
}

func TestValidateLengthAndPattern(t *testing.T) {
	doc := loadDoc(t, rulesDoc)

	violations := Validate(doc, map[string]any{
		"name": "ab",
		"sku":  "bad-sku",
	}, true)

	found := map[string]string{}
	for _, v := range violations {
		found[v.Field] = v.Rule
	}
	if found["name"] != "min_length" {
		t.Fatalf("expected min_length violation for name, got %v", violations)
	}
	if found["sku"] != "pattern" {
		t.Fatalf("expected pattern violation for sku, got %v", violations)
	}

	if v := Validate(doc, map[string]any{"name": "valid", "sku": "ABC-1234"}, true); len(v) != 0 {
		t.Fatalf("expected clean input to pass, got %v", v)
	}
}

func TestValidateNumericBounds(t *testing.T) {
	doc := loadDoc(t, rulesDoc)

	violations := Validate(doc, map[string]any{"name": "widget", "price": float64(-1)}, true)
	if len(violations) != 1 || violations[0].Rule != "min" {
		t.Fatalf("expected min violation, got %v", violations)
	}

	violations = Validate(doc, map[string]any{"name": "widget", "price": float64(2000)}, true)
	if len(violations) != 1 || violations[0].Rule != "max" {
		t.Fatalf("expected max violation, got %v", violations)
	}
}

func TestValidateExpression(t *testing.T) {
	doc := loadDoc(t, rulesDoc)

	input := map[string]any{
		"name":     "widget",
		"quantity": 5,
		"capacity": 10,
	}
	if v := Validate(doc, input, true); len(v) != 0 {
		t.Fatalf("expected expression to pass, got %v", v)
	}

	input["quantity"] = 20
	violations := Validate(doc, input, true)
	if len(violations) != 1 || violations[0].Rule != "expression" {
		t.Fatalf("expected expression violation, got %v", violations)
	}
	if violations[0].Message != "Quantity exceeds capacity" {
		t.Fatalf("expected declared message, got %q", violations[0].Message)
	}
}
