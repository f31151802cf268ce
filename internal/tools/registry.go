package tools

import (
	"fmt"
	"strings"
)

// Registry maps tool names to tools, keeping registration order so the
// declared tool list is stable between requests.
type Registry struct {
	byName map[string]Tool
	order  []string
}

// NewRegistry creates a registry holding tools. Nil tools are skipped.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	name := strings.TrimSpace(tool.Definition().Name)
	if name == "" {
		return fmt.Errorf("tool name must be non-empty")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("tool %q is already registered", name)
	}
	r.byName[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	tool, ok := r.byName[strings.TrimSpace(name)]
	return tool, ok
}

// Definitions returns every tool definition in registration order.
func (r *Registry) Definitions() []Definition {
	if r == nil {
		return nil
	}
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.byName[name].Definition())
	}
	return defs
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}
