package scan

import (
	"context"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

const luaHookTimeout = 100 * time.Millisecond

// LuaHook runs a user-supplied classification snippet in a sandbox:
// no io, no os, only base/string/table/math, bounded run time. The
// snippet sees the global `url` and returns "c2", "download", or "".
type LuaHook struct {
	code string
}

// NewLuaHook returns nil for an empty snippet. Snippets without an
// explicit return are wrapped as an expression.
func NewLuaHook(inline string) *LuaHook {
	if inline == "" {
		return nil
	}
	code := inline
	if !strings.Contains(code, "return") {
		code = "return (" + code + ")"
	}
	return &LuaHook{code: code}
}

// Classify evaluates the snippet against one URL.
func (h *LuaHook) Classify(url string) (string, error) {
	L := newSandboxState()
	defer L.Close()

	ctx, cancel := context.WithTimeout(context.Background(), luaHookTimeout)
	defer cancel()
	L.SetContext(ctx)

	L.SetGlobal("url", lua.LString(url))

	fn, err := L.LoadString(h.code)
	if err != nil {
		return "", fmt.Errorf("classify hook: %w", err)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return "", fmt.Errorf("classify hook: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	if s, ok := ret.(lua.LString); ok {
		return string(s), nil
	}
	return "", nil
}

func newSandboxState() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:     true,
		RegistrySize:     256,
		RegistryMaxSize:  1024,
		RegistryGrowStep: 0,
	})
	openLib := func(name string, f lua.LGFunction) {
		L.Push(L.NewFunction(f))
		L.Push(lua.LString(name))
		L.Call(1, 0)
	}
	openLib("base", lua.OpenBase)
	openLib("string", lua.OpenString)
	openLib("table", lua.OpenTable)
	openLib("math", lua.OpenMath)
	return L
}
