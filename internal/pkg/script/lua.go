package script

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/model"
)

// LuaHost runs scripts with gopher-lua. Every run gets a fresh state with
// the base, table, string and math libraries; file access is not exposed.
type LuaHost struct {
	logger *zap.Logger
}

func NewLuaHost() *LuaHost {
	return &LuaHost{logger: zap.L().Named("lua")}
}

var luaLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

func (h *LuaHost) Run(ctx context.Context, s model.Script, bindings *Bindings) error {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	for _, lib := range luaLibs {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("open %q: %w", lib.name, err)
		}
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
	logger := h.logger.With(zap.String("script", s.ID))
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, 0, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		logger.Info(strings.Join(parts, "\t"))
		return 0
	}))

	for _, name := range bindings.Names() {
		v, _ := bindings.Lookup(name)
		L.SetGlobal(name, toLua(L, v))
	}

	L.SetContext(ctx)
	if err := L.DoString(s.Source); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("script %s interrupted: %w", s.ID, ctxErr)
		}
		return fmt.Errorf("script %s: %w", s.ID, err)
	}
	return nil
}

func luaFunc(L *lua.LState, f Func, self *lua.LTable) *lua.LFunction {
	return L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		start := 1
		// obj:method(...) passes the object as the first argument.
		if self != nil && top > 0 && L.Get(1) == self {
			start = 2
		}
		args := make([]any, 0, top)
		for i := start; i <= top; i++ {
			args = append(args, fromLua(L.Get(i)))
		}

		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		res, err := f(ctx, args...)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(toLua(L, res))
		return 1
	})
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case Func:
		return luaFunc(L, val, nil)
	case func(ctx context.Context, args ...any) (any, error):
		return luaFunc(L, val, nil)
	case Object:
		tbl := L.NewTable()
		for name, f := range val {
			tbl.RawSetString(name, luaFunc(L, f, tbl))
		}
		return tbl
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case time.Time:
		return lua.LString(val.Format(time.RFC3339))
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, toLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, lua.LString(item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, toLua(L, item))
		}
		return tbl
	case map[string]string:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, lua.LString(item))
		}
		return tbl
	case error:
		return lua.LString(val.Error())
	case fmt.Stringer:
		return lua.LString(val.String())
	default:
		return lua.LString(fmt.Sprint(val))
	}
}

// fromLua converts a Lua value to Go. Whole numbers become int64, tables
// with only positive integer keys 1..n become []any, other tables become
// map[string]any.
func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LTable:
		return tableToGo(val)
	default:
		return v.String()
	}
}

func tableToGo(tbl *lua.LTable) any {
	n := tbl.Len()
	isArray := true
	count := 0
	tbl.ForEach(func(k, _ lua.LValue) {
		count++
		if num, ok := k.(lua.LNumber); !ok || float64(num) < 1 || float64(num) > float64(n) || float64(num) != math.Trunc(float64(num)) {
			isArray = false
		}
	})
	if isArray && count == n && n > 0 {
		out := make([]any, n)
		for i := 1; i <= n; i++ {
			out[i-1] = fromLua(tbl.RawGetInt(i))
		}
		return out
	}

	out := make(map[string]any, count)
	tbl.ForEach(func(k, item lua.LValue) {
		out[k.String()] = fromLua(item)
	})
	return out
}

// StringMap converts a script argument to string parameters. Non-string
// values are formatted with fmt.
func StringMap(v any) (map[string]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]string, len(val))
		for k, item := range val {
			out[k] = fmt.Sprint(item)
		}
		return out, nil
	case map[string]string:
		return val, nil
	case []any:
		if len(val) == 0 {
			return map[string]string{}, nil
		}
	}
	return nil, errors.New("expected a table of named values")
}
