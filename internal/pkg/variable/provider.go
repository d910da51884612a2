package variable

import (
	"context"
	"fmt"

	"github.com/anicoll/homehub/internal/pkg/script"
)

// Bindings exposes variable(gateway, device, name) and
// variables(gateway, device) to scripts.
func (s *Store) Bindings() []script.Binding {
	return []script.Binding{
		{Name: "variable", Value: script.Func(s.scriptVariable)},
		{Name: "variables", Value: script.Func(s.scriptVariables)},
	}
}

func (s *Store) scriptVariable(_ context.Context, args ...any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("variable: expected gateway, device and name, got %d arguments", len(args))
	}
	gateway, device, name := fmt.Sprint(args[0]), fmt.Sprint(args[1]), fmt.Sprint(args[2])
	v, _ := s.Get(gateway, device, name)
	return v, nil
}

func (s *Store) scriptVariables(_ context.Context, args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("variables: expected gateway and device, got %d arguments", len(args))
	}
	return s.GetAll(fmt.Sprint(args[0]), fmt.Sprint(args[1])), nil
}
