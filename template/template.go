// Package template substitutes {{name}} placeholders against a Scope.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// MissingVariablesError reports every placeholder that had no value during a
// strict resolution.
type MissingVariablesError struct {
	Keys []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("missing template variables: %s", strings.Join(e.Keys, ", "))
}

// Resolve replaces every {{name}} in tmpl with the matching scope value.
// When strict is true and at least one name is absent from scope, a
// *MissingVariablesError naming all of them is returned. Otherwise unresolved
// placeholders become the empty string.
func Resolve(tmpl string, scope *Scope, strict bool) (string, error) {
	var missing []string
	seen := make(map[string]bool)

	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := scope.Get(name); ok {
			return v
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return ""
	})

	if strict && len(missing) > 0 {
		return "", &MissingVariablesError{Keys: missing}
	}
	return out, nil
}

// Placeholders lists the distinct variable names referenced by tmpl, in order
// of first appearance.
func Placeholders(tmpl string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
