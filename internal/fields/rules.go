package fields

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"

	"lattice-backend/internal/schema"
)

// Rule is one derived validation constraint.
type Rule struct {
	Name  string `json:"name"`
	Param any    `json:"param,omitempty"`
}

// Violation is one failed constraint on an input value.
type Violation struct {
	Field   string
	Rule    string
	Message string
}

// Rules derives the per-field rule sets from each spec's validation block.
func Rules(doc *schema.Document) map[string][]Rule {
	out := make(map[string][]Rule)
	for _, f := range doc.Fields.All() {
		var rules []Rule
		if f.Required {
			rules = append(rules, Rule{Name: "required"})
		}
		if v := f.Validation; v != nil {
			if v.MinLength > 0 {
				rules = append(rules, Rule{Name: "min_length", Param: v.MinLength})
			}
			if v.MaxLength > 0 {
				rules = append(rules, Rule{Name: "max_length", Param: v.MaxLength})
			}
			if v.Min != nil {
				rules = append(rules, Rule{Name: "min", Param: *v.Min})
			}
			if v.Max != nil {
				rules = append(rules, Rule{Name: "max", Param: *v.Max})
			}
			if v.Pattern != "" {
				rules = append(rules, Rule{Name: "pattern", Param: v.Pattern})
			}
			if v.Unique {
				rules = append(rules, Rule{Name: "unique"})
			}
			if v.Expression != "" {
				rules = append(rules, Rule{Name: "expression", Param: v.Expression})
			}
		}
		if len(rules) > 0 {
			out[f.Name] = rules
		}
	}
	return out
}

// Validate checks an input map against the document's rules. Uniqueness is
// enforced by the database and surfaces through constraint-error mapping,
// not here. On create, required fields must be present; on update only the
// provided fields are checked.
func Validate(doc *schema.Document, input map[string]any, isCreate bool) []Violation {
	var violations []Violation
	add := func(field, rule, format string, args ...any) {
		violations = append(violations, Violation{
			Field:   field,
			Rule:    rule,
			Message: fmt.Sprintf(format, args...),
		})
	}

	for _, f := range Editable(doc) {
		value, present := input[f.Name]

		if f.Required && isCreate && (!present || value == nil || value == "") {
			add(f.Name, "required", "%s is required", f.Label)
			continue
		}
		if !present || value == nil {
			continue
		}

		v := f.Validation
		if v == nil {
			continue
		}

		if s, ok := value.(string); ok {
			if v.MinLength > 0 && len(s) < v.MinLength {
				add(f.Name, "min_length", "%s must be at least %d characters", f.Label, v.MinLength)
			}
			if v.MaxLength > 0 && len(s) > v.MaxLength {
				add(f.Name, "max_length", "%s must be at most %d characters", f.Label, v.MaxLength)
			}
			if v.Pattern != "" {
				re, err := regexp.Compile(v.Pattern)
				if err != nil {
					add(f.Name, "pattern", "invalid pattern for %s", f.Label)
				} else if !re.MatchString(s) {
					add(f.Name, "pattern", "%s has an invalid format", f.Label)
				}
			}
		}

		if v.Min != nil || v.Max != nil {
			if n, err := toFloat64(value); err == nil {
				if v.Min != nil && n < *v.Min {
					add(f.Name, "min", "%s must be at least %v", f.Label, *v.Min)
				}
				if v.Max != nil && n > *v.Max {
					add(f.Name, "max", "%s must be at most %v", f.Label, *v.Max)
				}
			}
		}

		if v.Expression != "" {
			ok, err := evalExpression(v.Expression, value, input)
			if err != nil {
				add(f.Name, "expression", "validation expression for %s failed: %v", f.Label, err)
			} else if !ok {
				msg := v.Message
				if msg == "" {
					msg = fmt.Sprintf("%s is invalid", f.Label)
				}
				add(f.Name, "expression", "%s", msg)
			}
		}
	}

	return violations
}

// evalExpression runs an expr-lang rule with the candidate value and the
// whole input record in scope.
func evalExpression(source string, value any, record map[string]any) (bool, error) {
	env := map[string]any{
		"value":  value,
		"record": record,
	}
	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}
