package scim

import "strings"

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Quote renders value as a SCIM string literal, escaping backslashes and quotes.
func Quote(value string) string {
	return `"` + quoteReplacer.Replace(value) + `"`
}

func Eq(attr, value string) string {
	return attr + " eq " + Quote(value)
}

func Gt(attr, value string) string {
	return attr + " gt " + Quote(value)
}

func Lt(attr, value string) string {
	return attr + " lt " + Quote(value)
}

// And joins the non-empty expressions with the logical and operator. Expressions
// containing a logical or are grouped so that precedence is preserved.
func And(exprs ...string) string {
	parts := make([]string, 0, len(exprs))
	for _, expr := range exprs {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		if strings.Contains(strings.ToLower(expr), " or ") {
			expr = "(" + expr + ")"
		}
		parts = append(parts, expr)
	}
	return strings.Join(parts, " and ")
}
