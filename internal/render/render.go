// Package render implements the {{variable}} substitution used for message
// templates. The language is intentionally flat: no conditionals, no nesting,
// no escaping. Anything that does not look like a well formed placeholder is
// passed through untouched, so CSS/JS blocks with single braces survive.
package render

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// placeholderPattern matches {{identifier}} where the identifier is a single
// run of non-whitespace, non-brace characters, optionally padded with
// whitespace inside the braces. Unmatched or malformed braces never match and
// therefore render literally.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^\s{}]+)\s*\}\}`)

// Render substitutes every placeholder in template with the corresponding
// value from vars. Identifiers missing from vars render as the empty string;
// campaigns routinely carry optional fields, so a gap is not an error. The
// scan is single-pass: substituted values are never re-scanned, which keeps a
// value containing placeholder syntax from expanding again.
func Render(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[name]
	})
}

// Vars builds the variable mapping for one contact record. Every field is
// carried as-is and additionally exposed as name_upper and name_lower
// variants, so templates can adjust casing without extra columns.
func Vars(fields map[string]string) map[string]string {
	vars := make(map[string]string, len(fields)*3)
	for k, v := range fields {
		vars[k] = v
	}
	for k, v := range fields {
		upper := k + "_upper"
		if _, exists := vars[upper]; !exists {
			vars[upper] = strings.ToUpper(v)
		}
		lower := k + "_lower"
		if _, exists := vars[lower]; !exists {
			vars[lower] = strings.ToLower(v)
		}
	}
	return vars
}

// Load resolves a template argument that may be either a file path or an
// inline template string. When the argument names an existing file its
// contents become the template; otherwise the argument itself is used
// verbatim.
func Load(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err != nil || info.IsDir() {
		return arg, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("render: read template %s: %w", arg, err)
	}
	return string(data), nil
}

// ParseAssignments turns repeated key=value arguments into a variable map.
// Entries without an equals sign are ignored; later entries win.
func ParseAssignments(assignments []string) map[string]string {
	vars := make(map[string]string, len(assignments))
	for _, item := range assignments {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		vars[key] = value
	}
	return vars
}
