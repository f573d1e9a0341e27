// Package render binds placeholder values and translates the generic SQL
// produced by the compiler into a concrete dialect.
package render

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrUnbound is returned when a placeholder has no value.
var ErrUnbound = errors.New("unbound parameter")

var placeholder = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*)`)

// Render substitutes every @name placeholder of sql with its binding.
// Values are inserted verbatim and are not scanned again. Every
// placeholder must be bound; unused bindings are ignored.
func Render(sql string, bindings map[string]string) (string, error) {
	missing := make(map[string]bool)
	out := placeholder.ReplaceAllStringFunc(sql, func(tok string) string {
		v, ok := bindings[tok[1:]]
		if !ok {
			missing[tok[1:]] = true
			return tok
		}
		return v
	})
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, "@"+n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("%w: %s", ErrUnbound, strings.Join(names, ", "))
	}
	return out, nil
}

// Merge returns the union of binding maps. Later maps win.
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
