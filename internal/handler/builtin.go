package handler

import (
	"fmt"
	"sort"
	"strings"
)

// builtins are the named transforms selectable from configuration.
var builtins = map[string]func(string) string{
	"echo":  func(s string) string { return s },
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"reverse": func(s string) string {
		r := []rune(s)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r)
	},
}

// Builtin returns the named built-in transform.
func Builtin(name string) (Handler, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin handler %q (available: %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	return Func(fn), nil
}

// BuiltinNames lists the available built-in transforms.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
