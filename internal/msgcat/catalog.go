package msgcat

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

// Catalog holds parsed message templates keyed by dotted path ("notice.rejected").
// It is immutable after New and safe for concurrent use.
type Catalog struct {
	tpls map[string]*template.Template
}

// New loads the embedded English messages, then every *.yaml / *.yml file in overrideDir.
// Override files may replace embedded keys but not each other's.
func New(overrideDir string) (*Catalog, error) {
	raw, err := defaultFiles.ReadFile("messages.en.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	texts, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("embedded messages: %w", err)
	}
	if dir := strings.TrimSpace(overrideDir); dir != "" {
		if err := mergeDir(texts, dir); err != nil {
			return nil, err
		}
	}

	c := &Catalog{tpls: make(map[string]*template.Template, len(texts))}
	for key, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		tpl, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", key, err)
		}
		c.tpls[key] = tpl
	}
	return c, nil
}

// MustDefault returns the embedded catalog. It panics only if the embedded file is broken.
func MustDefault() *Catalog {
	c, err := New("")
	if err != nil {
		panic(err)
	}
	return c
}

func mergeDir(texts map[string]string, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read messages dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			if !e.IsDir() {
				files = append(files, e.Name())
			}
		}
	}
	slices.Sort(files)

	owner := map[string]string{}
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := flatten(b)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for k, v := range flat {
			if prev, dup := owner[k]; dup {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			owner[k] = name
			texts[k] = v
		}
	}
	return nil
}

// flatten turns nested YAML mappings into dotted keys. Leaves must be strings.
func flatten(b []byte) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	out := map[string]string{}
	if len(doc.Content) == 0 {
		return out, nil
	}
	return out, walk(doc.Content[0], "", out)
}

func walk(n *yaml.Node, prefix string, out map[string]string) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := walk(n.Content[i+1], key, out); err != nil {
				return err
			}
		}
		return nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil
		}
		if prefix == "" {
			return fmt.Errorf("line %d: value without key", n.Line)
		}
		if n.Tag != "!!str" {
			return fmt.Errorf("line %d: %s must be a string, got %s", n.Line, prefix, n.Tag)
		}
		out[prefix] = n.Value
		return nil
	default:
		return fmt.Errorf("line %d: unsupported value at %s", n.Line, prefix)
	}
}

// Render executes the template for key. Unknown keys and missing data fields are errors.
func (c *Catalog) Render(key string, data any) (string, error) {
	tpl, ok := c.tpls[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text renders key and falls back to the key itself on error.
func (c *Catalog) Text(key string, data any) string {
	if c == nil {
		return key
	}
	s, err := c.Render(key, data)
	if err != nil {
		return key
	}
	return s
}
