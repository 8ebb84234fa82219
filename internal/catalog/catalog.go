// Package catalog holds the immutable table of query templates the assistant
// can answer with, and binds extracted parameters into them.
package catalog

import (
	"fmt"
	"regexp"
)

// Template is a canonical parameterized statement. Schema lists the parameter
// names in the order their positional placeholders appear.
type Template struct {
	Name   string
	SQL    string
	Schema []string
}

// Entry pairs a template with the natural-language patterns that map to it.
type Entry struct {
	Template Template
	Patterns []string
}

// Catalog is built once at startup and read-only afterwards, so concurrent
// lookups need no synchronization.
type Catalog struct {
	templates []*Template
	patterns  []string
	byPattern map[string]*Template
}

var placeholderRe = regexp.MustCompile(`\$\d+`)

// New builds a catalog from entries, validating that every pattern maps to
// exactly one template and that each template's placeholder count equals its
// schema length.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{byPattern: make(map[string]*Template)}
	for i := range entries {
		tpl := entries[i].Template
		if len(entries[i].Patterns) == 0 {
			return nil, fmt.Errorf("template %q has no patterns", tpl.Name)
		}
		if n := len(placeholderRe.FindAllString(tpl.SQL, -1)); n != len(tpl.Schema) {
			return nil, fmt.Errorf("template %q has %d placeholders but schema lists %d parameters", tpl.Name, n, len(tpl.Schema))
		}
		t := &tpl
		c.templates = append(c.templates, t)
		for _, p := range entries[i].Patterns {
			if _, dup := c.byPattern[p]; dup {
				return nil, fmt.Errorf("pattern %q maps to more than one template", p)
			}
			c.byPattern[p] = t
			c.patterns = append(c.patterns, p)
		}
	}
	return c, nil
}

// MustNew is New for static tables; invariant violations there are programmer
// errors and abort startup.
func MustNew(entries []Entry) *Catalog {
	c, err := New(entries)
	if err != nil {
		panic(err)
	}
	return c
}

// AllPatterns returns every pattern in catalog (insertion) order. Callers must
// not mutate the returned slice.
func (c *Catalog) AllPatterns() []string {
	return c.patterns
}

// TemplateFor resolves a pattern to its owning template.
func (c *Catalog) TemplateFor(pattern string) (*Template, bool) {
	t, ok := c.byPattern[pattern]
	return t, ok
}

// SchemaFor returns the ordered parameter names a template requires.
func (c *Catalog) SchemaFor(t *Template) []string {
	if t == nil {
		return nil
	}
	return t.Schema
}
