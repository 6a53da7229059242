// Package modules holds the static navigation registry and decides which
// modules a signed-in user may see.
package modules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var registryData []byte

// Category groups modules in the sidebar
type Category string

const (
	CategoryCore       Category = "core"
	CategoryOperations Category = "operations"
	CategoryManagement Category = "management"
	CategoryAdmin      Category = "admin"
	CategoryReports    Category = "reports"
)

func (c Category) valid() bool {
	switch c {
	case "", CategoryCore, CategoryOperations, CategoryManagement, CategoryAdmin, CategoryReports:
		return true
	}
	return false
}

// defaultOrder is the sort position of modules without an order
const defaultOrder = 999

// Module is a navigation entry. Modules are never mutated after the
// registry is loaded; accessors hand out copies.
type Module struct {
	ID            string   `yaml:"id" json:"id"`
	Title         string   `yaml:"title" json:"title"`
	Icon          string   `yaml:"icon" json:"icon"`
	Href          string   `yaml:"href" json:"href"`
	Entity        string   `yaml:"entity,omitempty" json:"entity,omitempty"`
	Permissions   []string `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	RequiredRoles []string `yaml:"requiredRoles,omitempty" json:"requiredRoles,omitempty"`
	AlwaysVisible bool     `yaml:"alwaysVisible,omitempty" json:"alwaysVisible,omitempty"`
	Category      Category `yaml:"category,omitempty" json:"category,omitempty"`
	Order         int      `yaml:"order,omitempty" json:"order,omitempty"`
	Badge         string   `yaml:"badge,omitempty" json:"badge,omitempty"`
	Children      []Module `yaml:"children,omitempty" json:"children,omitempty"`

	// Enabled is nil when the registry leaves it out, which means enabled
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled reports whether the module is switched on
func (m Module) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// SortOrder returns the order used for sorting
func (m Module) SortOrder() int {
	if m.Order == 0 {
		return defaultOrder
	}
	return m.Order
}

func (m Module) clone() Module {
	c := m
	c.Permissions = slices.Clone(m.Permissions)
	c.RequiredRoles = slices.Clone(m.RequiredRoles)
	if m.Enabled != nil {
		enabled := *m.Enabled
		c.Enabled = &enabled
	}
	if m.Children != nil {
		c.Children = make([]Module, len(m.Children))
		for i, child := range m.Children {
			c.Children[i] = child.clone()
		}
	}
	return c
}

// Registry is an immutable set of sidebar and footer modules
type Registry struct {
	modules []Module
	footer  []Module
}

type registryFile struct {
	Modules []Module `yaml:"modules"`
	Footer  []Module `yaml:"footer"`
}

// LoadRegistry parses and validates registry YAML
func LoadRegistry(data []byte) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file registryFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse module registry: %w", err)
	}

	seen := make(map[string]bool)
	for _, list := range [][]Module{file.Modules, file.Footer} {
		for _, m := range list {
			if err := validateModule(m, seen); err != nil {
				return nil, err
			}
		}
	}

	return &Registry{modules: file.Modules, footer: file.Footer}, nil
}

func validateModule(m Module, seen map[string]bool) error {
	var errs []error
	if m.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if m.Title == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if !strings.HasPrefix(m.Href, "/") {
		errs = append(errs, fmt.Errorf("href %q must be an absolute path", m.Href))
	}
	if !m.Category.valid() {
		errs = append(errs, fmt.Errorf("unknown category %q", m.Category))
	}
	if m.ID != "" && seen[m.ID] {
		errs = append(errs, errors.New("duplicate id"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid module %q: %w", m.ID, err)
	}
	seen[m.ID] = true

	for _, child := range m.Children {
		if len(child.Children) > 0 {
			return fmt.Errorf("invalid module %q: children cannot be nested", child.ID)
		}
		if err := validateModule(child, seen); err != nil {
			return err
		}
	}
	return nil
}

var defaultRegistry = mustLoadRegistry(registryData)

func mustLoadRegistry(data []byte) *Registry {
	r, err := LoadRegistry(data)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the registry compiled into the binary
func Default() *Registry {
	return defaultRegistry
}

// All returns every sidebar module in registry order, enabled or not
func (r *Registry) All() []Module {
	return cloneAll(r.modules)
}

// Enabled returns the enabled sidebar modules sorted by order. Modules
// with equal order keep their registry order.
func (r *Registry) Enabled() []Module {
	return enabledSorted(r.modules)
}

// ByCategory returns the enabled modules of category
func (r *Registry) ByCategory(category Category) []Module {
	var out []Module
	for _, m := range r.Enabled() {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out
}

// ByID finds a sidebar or footer module, including disabled ones
func (r *Registry) ByID(id string) (Module, bool) {
	for _, list := range [][]Module{r.modules, r.footer} {
		for _, m := range list {
			if m.ID == id {
				return m.clone(), true
			}
		}
	}
	return Module{}, false
}

// Footer returns the enabled footer modules
func (r *Registry) Footer() []Module {
	return enabledSorted(r.footer)
}

func enabledSorted(list []Module) []Module {
	var out []Module
	for _, m := range list {
		if m.IsEnabled() {
			out = append(out, m.clone())
		}
	}
	slices.SortStableFunc(out, func(a, b Module) int {
		return a.SortOrder() - b.SortOrder()
	})
	return out
}

func cloneAll(list []Module) []Module {
	out := make([]Module, len(list))
	for i, m := range list {
		out[i] = m.clone()
	}
	return out
}
