package handler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ScriptEntryPoint is the global function a handler script must define.
const ScriptEntryPoint = "handle"

// DefaultScriptTimeout bounds a single script invocation.
const DefaultScriptTimeout = time.Second

// fileFuncs are base library functions that reach the filesystem.
var fileFuncs = []string{"dofile", "loadfile"}

// Script is a Handler backed by a Lua function:
//
//	function handle(payload)
//	  return string.upper(payload)
//	end
//
// A runtime error, a non-string return value or exceeding the timeout is
// reported as an error.
type Script struct {
	name    string
	timeout time.Duration

	// LState is not safe for concurrent use.
	mu sync.Mutex
	L  *lua.LState
	fn *lua.LFunction
}

// LoadScript reads and compiles a handler script from disk.
func LoadScript(path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return NewScript(path, string(src))
}

// NewScript compiles a handler script. Only the base, table, string and math
// libraries are available to it, without the base functions that load files.
func NewScript(name, source string) (*Script, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, fn := range fileFuncs {
		L.SetGlobal(fn, lua.LNil)
	}

	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, fmt.Errorf("load script %s: %w", name, err)
	}

	fn, ok := L.GetGlobal(ScriptEntryPoint).(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("script %s does not define function %q", name, ScriptEntryPoint)
	}

	return &Script{name: name, timeout: DefaultScriptTimeout, L: L, fn: fn}, nil
}

// SetTimeout sets how long one invocation may run. Zero or less disables
// the limit.
func (s *Script) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// Handle runs the script's entry point with payload as its only argument.
func (s *Script) Handle(ctx context.Context, payload string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	if err := s.L.CallByParam(lua.P{
		Fn:      s.fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(payload)); err != nil {
		return "", fmt.Errorf("script %s: %w", s.name, err)
	}

	ret := s.L.Get(-1)
	s.L.Pop(1)

	str, ok := ret.(lua.LString)
	if !ok {
		return "", fmt.Errorf("script %s returned %s, want string", s.name, ret.Type())
	}
	return string(str), nil
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}
