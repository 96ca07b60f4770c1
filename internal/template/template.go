// Package template renders a workspace directory tree from a template
// source directory, substituting values into every file via
// text/template. Used for both the rendered Terraform root
// (<workspace>/terraform/) and per-cloud chart values-file overrides
// (<workspace>/<cloud>/bootstrap/chart_values/).
package template

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Values is the substitution set passed to every rendered file's
// {{ .Key }} references.
type Values map[string]any

// RenderDirectory walks srcDir and writes a rendered copy under dstDir,
// preserving relative paths and file modes. Every regular file that
// contains "{{" is parsed as a Go template and executed against values;
// a file without "{{" (e.g. binary assets) is copied unmodified. A parse
// error, or a reference to a key missing from values, surfaces as an
// error, since a malformed template in a chart/terraform root is a
// configuration bug the caller needs to see, not a file to silently skip.
func RenderDirectory(srcDir, dstDir string, values Values) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("template: computing relative path for %s: %w", path, err)
		}
		dst := filepath.Join(dstDir, rel)

		if info.IsDir() {
			return os.MkdirAll(dst, info.Mode())
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("template: reading %s: %w", path, err)
		}

		rendered, err := renderFile(rel, raw, values)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("template: creating directory for %s: %w", dst, err)
		}
		if err := os.WriteFile(dst, rendered, info.Mode()); err != nil {
			return fmt.Errorf("template: writing %s: %w", dst, err)
		}
		return nil
	})
}

func renderFile(name string, content []byte, values Values) ([]byte, error) {
	if !bytes.Contains(content, []byte("{{")) {
		return content, nil
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("template: parsing %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return nil, fmt.Errorf("template: executing %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
