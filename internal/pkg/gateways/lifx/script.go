package lifx

import (
	"context"
	"fmt"
	"strconv"

	"github.com/anicoll/homehub/internal/pkg/script"
)

// Bindings exposes lifx(id) to scripts. The returned object has
// on(seconds), off(seconds), color(hex, seconds) and brightness(value, seconds).
func (g *Gateway) Bindings() []script.Binding {
	return []script.Binding{{Name: "lifx", Value: script.Func(g.scriptBulb)}}
}

func (g *Gateway) scriptBulb(_ context.Context, args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("lifx: expected a bulb id, got %d arguments", len(args))
	}
	id := fmt.Sprint(args[0])
	device, ok := g.Device(id)
	if !ok {
		return nil, fmt.Errorf("lifx: unknown bulb %q", id)
	}

	run := func(ctx context.Context, action string, values map[string]string) (any, error) {
		for _, a := range actions {
			if a.Name == action {
				return nil, g.ExecuteAction(ctx, device, a, values)
			}
		}
		return nil, fmt.Errorf("lifx: unknown action %q", action)
	}
	seconds := func(args []any, i int) string {
		if i < len(args) {
			return fmt.Sprint(args[i])
		}
		return "0"
	}

	return script.Object{
		"on": func(ctx context.Context, args ...any) (any, error) {
			return run(ctx, ActionSwitchOn, map[string]string{FieldTransition: seconds(args, 0)})
		},
		"off": func(ctx context.Context, args ...any) (any, error) {
			return run(ctx, ActionSwitchOff, map[string]string{FieldTransition: seconds(args, 0)})
		},
		"color": func(ctx context.Context, args ...any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("lifx: color expects a hex color")
			}
			return run(ctx, ActionChangeColor, map[string]string{
				FieldColor:      fmt.Sprint(args[0]),
				FieldTransition: seconds(args, 1),
			})
		},
		"brightness": func(ctx context.Context, args ...any) (any, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("lifx: brightness expects a value between 0 and 1")
			}
			var b float64
			switch v := args[0].(type) {
			case float64:
				b = v
			case int64:
				b = float64(v)
			default:
				f, err := strconv.ParseFloat(fmt.Sprint(v), 64)
				if err != nil {
					return nil, fmt.Errorf("lifx: invalid brightness %v", v)
				}
				b = f
			}
			return run(ctx, ActionChangeBrightness, map[string]string{
				FieldBrightness: strconv.FormatFloat(b, 'f', 2, 64),
				FieldTransition: seconds(args, 1),
			})
		},
	}, nil
}
