package templates

import (
	"bytes"
	"fmt"
	"text/template"
)

// Renderer renders small text templates for outbound messaging.
type Renderer struct{}

// Render compiles the provided template text with strict missing-key semantics.
func (Renderer) Render(name, tmpl string, data any) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("templates: template text required")
	}
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("templates: parse: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("templates: execute: %w", err)
	}
	return buf.String(), nil
}

// Catalog maps template keys to template text.
type Catalog map[string]string

// Render renders key with vars. Unknown keys are an error.
func (c Catalog) Render(key string, vars map[string]string) (string, error) {
	tmpl, ok := c[key]
	if !ok {
		return "", fmt.Errorf("templates: unknown template %q", key)
	}
	if vars == nil {
		vars = map[string]string{}
	}
	return Renderer{}.Render(key, tmpl, vars)
}

// With returns a copy of c with overrides applied.
func (c Catalog) With(overrides map[string]string) Catalog {
	out := make(Catalog, len(c)+len(overrides))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
