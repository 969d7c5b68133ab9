package render_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/example/bulksend/internal/render"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{
			name:     "basic substitution",
			template: "Hi {{first_name}}, your code is {{ code }}",
			vars:     map[string]string{"first_name": "Ana", "code": "42"},
			want:     "Hi Ana, your code is 42",
		},
		{
			name:     "missing variable becomes empty",
			template: "Hi {{first_name}}, your code is {{ code }}",
			vars:     map[string]string{"first_name": "Ana"},
			want:     "Hi Ana, your code is ",
		},
		{
			name:     "newline padding inside braces is trimmed",
			template: "Hi {{\nname\n}}!",
			vars:     map[string]string{"name": "Ana"},
			want:     "Hi Ana!",
		},
		{
			name:     "no placeholders is identity",
			template: "body { color: red; }",
			vars:     map[string]string{"color": "blue"},
			want:     "body { color: red; }",
		},
		{
			name:     "unmatched braces pass through",
			template: "broken {{name and {{other",
			vars:     map[string]string{"name": "x", "other": "y"},
			want:     "broken {{name and {{other",
		},
		{
			name:     "whitespace inside identifier does not match",
			template: "{{first name}}",
			vars:     map[string]string{"first name": "Ana", "first": "A"},
			want:     "{{first name}}",
		},
		{
			name:     "identifiers are case sensitive",
			template: "{{Name}}-{{name}}",
			vars:     map[string]string{"name": "ana"},
			want:     "-ana",
		},
		{
			name:     "single pass does not re-expand values",
			template: "{{a}}",
			vars:     map[string]string{"a": "{{b}}", "b": "boom"},
			want:     "{{b}}",
		},
		{
			name:     "adjacent placeholders",
			template: "{{a}}{{b}}",
			vars:     map[string]string{"a": "1", "b": "2"},
			want:     "12",
		},
		{
			name:     "empty template",
			template: "",
			vars:     map[string]string{"a": "1"},
			want:     "",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := render.Render(tc.template, tc.vars)
			if got != tc.want {
				t.Fatalf("Render(%q) = %q, want %q", tc.template, got, tc.want)
			}
		})
	}
}

func TestVarsAddsCaseVariants(t *testing.T) {
	vars := render.Vars(map[string]string{"first_name": "Ana", "plan": "Gold"})

	if vars["first_name"] != "Ana" {
		t.Fatalf("expected original value to be preserved, got %q", vars["first_name"])
	}
	if vars["first_name_upper"] != "ANA" {
		t.Fatalf("expected upper variant ANA, got %q", vars["first_name_upper"])
	}
	if vars["plan_lower"] != "gold" {
		t.Fatalf("expected lower variant gold, got %q", vars["plan_lower"])
	}
}

func TestVarsDoesNotClobberRealColumns(t *testing.T) {
	vars := render.Vars(map[string]string{"name": "Ana", "name_upper": "custom"})

	if vars["name_upper"] != "custom" {
		t.Fatalf("expected explicit column to win over derived variant, got %q", vars["name_upper"])
	}
}

func TestLoadInlineTemplate(t *testing.T) {
	inline := "<h1>Hi {{first_name}}</h1>"
	got, err := render.Load(inline)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != inline {
		t.Fatalf("expected inline template to pass through, got %q", got)
	}
}

func TestLoadTemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.html")
	content := "<p>Hello {{name}}</p>"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}

	got, err := render.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != content {
		t.Fatalf("expected file contents, got %q", got)
	}
}

func TestParseAssignments(t *testing.T) {
	got := render.ParseAssignments([]string{"first_name=John", "plan=Gold", "bad", "note=a=b", "=skip"})

	want := map[string]string{
		"first_name": "John",
		"plan":       "Gold",
		"note":       "a=b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseAssignments mismatch: got %v, want %v", got, want)
	}
}
