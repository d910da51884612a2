package script

import (
	"context"
	"fmt"
	"slices"
)

// Func is a callable exposed to scripts.
type Func func(ctx context.Context, args ...any) (any, error)

// Object is a method table exposed to scripts.
type Object map[string]Func

// Binding names a value made available to every script: a Func, an Object
// or a plain value (string, bool, number, map or slice of those).
type Binding struct {
	Name  string
	Value any
}

// Provider contributes bindings.
type Provider interface {
	Bindings() []Binding
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() []Binding

func (f ProviderFunc) Bindings() []Binding {
	return f()
}

// Bindings is the merged, read-only binding table.
type Bindings struct {
	values map[string]any
}

// NewBindings merges the bindings of every provider. Two providers binding
// the same name is a startup error.
func NewBindings(providers ...Provider) (*Bindings, error) {
	b := &Bindings{values: make(map[string]any)}
	for _, p := range providers {
		for _, binding := range p.Bindings() {
			if binding.Name == "" || binding.Value == nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidBinding, binding.Name)
			}
			if _, ok := b.values[binding.Name]; ok {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateBinding, binding.Name)
			}
			b.values[binding.Name] = binding.Value
		}
	}
	return b, nil
}

func (b *Bindings) Lookup(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Names returns the bound names in sorted order.
func (b *Bindings) Names() []string {
	names := make([]string, 0, len(b.values))
	for name := range b.values {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Missing returns the required names that are not bound.
func (b *Bindings) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := b.values[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
